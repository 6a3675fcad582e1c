// Package room queries the day schedule of a named room calendar.
package room

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/guilherme-santos/roomsync"
)

// Zone is the civil time zone of the rooms. Day windows are always computed
// in it, whatever the caller's zone.
const Zone = "Europe/Copenhagen"

var Copenhagen = mustLoadLocation(Zone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Account names the calendar to read and the credentials used to read it.
type Account struct {
	EmailAddress string
	Username     string
	Password     string
	CalendarName string
}

func (a Account) credentials() roomsync.Credentials {
	return roomsync.Credentials{
		EmailAddress: a.EmailAddress,
		Username:     a.Username,
		Password:     a.Password,
	}
}

// Calendar is a room calendar reached through provider. The session, the
// resolved mailbox and the calendar folder are looked up on first use and
// kept for the lifetime of the value. A Calendar must not be shared between
// goroutines.
type Calendar struct {
	provider roomsync.Provider
	account  Account
	log      zerolog.Logger

	session roomsync.Session
	mailbox *roomsync.Mailbox
	folder  roomsync.Folder
}

func New(provider roomsync.Provider, account Account, log zerolog.Logger) *Calendar {
	return &Calendar{
		provider: provider,
		account:  account,
		log:      log.With().Str("calendar", account.CalendarName).Logger(),
	}
}

// Fresh returns a copy of c with nothing looked up yet.
func (c *Calendar) Fresh() *Calendar {
	return &Calendar{
		provider: c.provider,
		account:  c.account,
		log:      c.log,
	}
}

func (c *Calendar) Name() string {
	return c.account.CalendarName
}

func (c *Calendar) Session(ctx context.Context) (roomsync.Session, error) {
	if c.session != nil {
		return c.session, nil
	}
	s, err := c.provider.Authenticate(ctx, c.account.credentials())
	if err != nil {
		return nil, fmt.Errorf("unable to log in as %s: %w", c.account.EmailAddress, err)
	}
	c.session = s
	return s, nil
}

func (c *Calendar) Mailbox(ctx context.Context) (roomsync.Mailbox, error) {
	if c.mailbox != nil {
		return *c.mailbox, nil
	}
	s, err := c.Session(ctx)
	if err != nil {
		return roomsync.Mailbox{}, err
	}
	mb, err := s.ResolveName(ctx, c.account.CalendarName)
	if err != nil {
		return roomsync.Mailbox{}, err
	}
	c.log.Debug().Str("mailbox", mb.String()).Msg("resolved calendar name")
	c.mailbox = &mb
	return mb, nil
}

func (c *Calendar) Folder(ctx context.Context) (roomsync.Folder, error) {
	if c.folder != nil {
		return c.folder, nil
	}
	mb, err := c.Mailbox(ctx)
	if err != nil {
		return nil, err
	}
	s, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.Calendar(ctx, mb)
	if err != nil {
		return nil, err
	}
	c.folder = f
	return f, nil
}

// ItemsForDate returns the items of the room starting on d. The window is
// [midnight, next midnight) in Copenhagen, so it lasts 23 or 25 hours on
// daylight saving transitions. Events are fetched as the iterator advances.
func (c *Calendar) ItemsForDate(ctx context.Context, d roomsync.Date) (*Items, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	f, err := c.Folder(ctx)
	if err != nil {
		return nil, err
	}

	start, end := d.Window(Copenhagen)
	events, err := f.Events(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("unable to list events of %s: %w", c.account.CalendarName, err)
	}
	c.log.Debug().Time("start", start).Time("end", end).Msg("querying day")
	return &Items{events: events, start: start, end: end}, nil
}

// Items iterates over the items of one day. It is single pass.
type Items struct {
	events     roomsync.EventIterator
	start, end time.Time

	cur roomsync.Item
	err error
}

// Next skips events whose start lies outside the window, as providers
// return every event overlapping it. Only the start is range-checked: an
// event that begins in the window and runs past its end is kept.
func (it *Items) Next() bool {
	if it.err != nil {
		return false
	}
	for it.events.Next() {
		ev := it.events.Event()
		if ev.StartsAt.Before(it.start) || !ev.StartsAt.Before(it.end) {
			continue
		}
		it.cur = roomsync.NewItem(ev)
		return true
	}
	it.err = it.events.Err()
	return false
}

func (it *Items) Item() roomsync.Item {
	return it.cur
}

func (it *Items) Err() error {
	return it.err
}

// All drains the iterator. The result is never nil.
func (it *Items) All() ([]roomsync.Item, error) {
	items := []roomsync.Item{}
	for it.Next() {
		items = append(items, it.Item())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Query returns a roomsync.QueryFunc reading each named calendar with the
// given credentials. Every call starts from a fresh Calendar so nothing is
// carried over between publish cycles.
func Query(provider roomsync.Provider, creds roomsync.Credentials, log zerolog.Logger) roomsync.QueryFunc {
	return func(ctx context.Context, name string, date roomsync.Date) ([]roomsync.Item, error) {
		cal := New(provider, Account{
			EmailAddress: creds.EmailAddress,
			Username:     creds.Username,
			Password:     creds.Password,
			CalendarName: name,
		}, log)
		items, err := cal.ItemsForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		return items.All()
	}
}
