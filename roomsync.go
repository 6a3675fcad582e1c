package roomsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Credentials identify the account a Provider authenticates as.
type Credentials struct {
	EmailAddress string
	Username     string
	Password     string
}

// Mailbox is the result of resolving a display name through a directory.
//
// EmailAddress is the address the provider uses to open the calendar: an SMTP
// address for Exchange, a calendar ID for Google and a collection path for
// CalDAV.
type Mailbox struct {
	Name         string
	EmailAddress string
}

func (m Mailbox) String() string {
	if m.Name == "" {
		return m.EmailAddress
	}
	return fmt.Sprintf("%s <%s>", m.Name, m.EmailAddress)
}

// Provider is a calendar service able to establish an authenticated Session.
type Provider interface {
	Authenticate(context.Context, Credentials) (Session, error)
}

// Session is an authenticated handle on a calendar service.
type Session interface {
	// ResolveName returns the single mailbox matching displayName. It fails
	// with ErrAmbiguousName, ErrNotFound or ErrResolution otherwise.
	ResolveName(_ context.Context, displayName string) (Mailbox, error)
	// Calendar opens the default calendar collection of the mailbox.
	Calendar(context.Context, Mailbox) (Folder, error)
}

// Folder is a calendar collection that can be queried by time range.
type Folder interface {
	Events(_ context.Context, start, end time.Time) (EventIterator, error)
}

type EventIterator interface {
	Next() bool
	Event() *Event
	Err() error
}

// Event is a calendar item as returned by a provider.
type Event struct {
	ID       string
	Subject  string
	Location string
	StartsAt time.Time
	EndsAt   time.Time
}

// Item is the compact record published for each event.
type Item struct {
	Subject string
	Start   time.Time
	End     time.Time
}

func NewItem(e *Event) Item {
	return Item{
		Subject: e.Subject,
		Start:   e.StartsAt,
		End:     e.EndsAt,
	}
}

func (i Item) String() string {
	return fmt.Sprintf("CalendarItem(subject=%q, start=%s, end=%s)",
		i.Subject, i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

type itemJSON struct {
	Subject string `json:"subject"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func (i Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemJSON{
		Subject: i.Subject,
		Start:   i.Start.Format(time.RFC3339),
		End:     i.End.Format(time.RFC3339),
	})
}

func (i *Item) UnmarshalJSON(b []byte) error {
	var v itemJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339, v.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, v.End)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	*i = Item{Subject: v.Subject, Start: start, End: end}
	return nil
}

// Delivery is one publish attempt as recorded in the journal.
type Delivery struct {
	ID         string
	Date       string
	StartedAt  time.Time
	StatusCode int
	Calendars  int
	Items      int
	Error      string
}
