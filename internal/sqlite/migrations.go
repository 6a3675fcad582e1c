package sqlite

func (s Storage) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS deliveries (
		id VARCHAR NOT NULL PRIMARY KEY,
		date VARCHAR NOT NULL,
		started_at VARCHAR NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		calendars INTEGER NOT NULL DEFAULT 0,
		items INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS deliveries_started_at ON deliveries (started_at)`,
}
