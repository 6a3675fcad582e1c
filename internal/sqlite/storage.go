// Package sqlite keeps the journal of publish attempts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/guilherme-santos/roomsync"
)

const DriverName = "sqlite3"

type Storage struct {
	db *sqlx.DB
}

// Open opens, creating it if needed, the journal database at path.
func Open(path string) (*Storage, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}
	// sqlite serializes writers and an in-memory database lives in a
	// single connection
	db.SetMaxOpenConns(1)

	s := &Storage{
		db: sqlx.NewDb(db, DriverName),
	}
	if err := s.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) SaveDelivery(ctx context.Context, d *roomsync.Delivery) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO deliveries (id, date, started_at, status_code, calendars, items, error)
		VALUES (:id, :date, :started_at, :status_code, :calendars, :items, :error)
	`, newDelivery(d))
	return err
}

// Deliveries returns the most recent deliveries, newest first.
func (s *Storage) Deliveries(ctx context.Context, limit int) ([]*roomsync.Delivery, error) {
	var rows []Delivery

	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, date, started_at, status_code, calendars, items, error
		FROM deliveries
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}

	res := make([]*roomsync.Delivery, len(rows))
	for i, r := range rows {
		res[i] = r.Convert()
	}
	return res, nil
}

// timeFormat is fixed width so that rows sort by start time as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
