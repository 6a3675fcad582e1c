package roomsync

import (
	"fmt"
	"time"
)

const DateFormat = "2006-01-02"

// Date is a calendar date. The clock of the embedded time is always midnight.
type Date struct {
	time.Time
}

func Today() Date {
	return NewDateFromTime(time.Now())
}

func NewDateFromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day(), t.Location())
}

// NewDate returns the date at midnight in loc. On a day where loc skips
// midnight the date is kept in UTC instead, so it never moves to a
// neighbouring day.
func NewDate(year int, month time.Month, day int, loc *time.Location) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Hour() != 0 || t.Minute() != 0 {
		t = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
	return Date{t}
}

func (d Date) AddDate(years, months, days int) Date {
	t := d.Time.AddDate(years, months, days)
	return NewDate(t.Year(), t.Month(), t.Day(), t.Location())
}

func Parse(layout, value string) (Date, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return Date{}, err
	}
	return NewDateFromTime(t), nil
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	return Parse(DateFormat, value)
}

func (d *Date) Set(v string) error {
	if d == nil {
		d = new(Date)
	}
	parsed, err := Parse(DateFormat, v)
	if err == nil {
		*d = parsed
	}
	return err
}

func (d Date) String() string {
	return d.Format(DateFormat)
}

// Equal reports whether d and o name the same calendar day, ignoring location.
func (d Date) Equal(o Date) bool {
	y1, m1, d1 := d.Date()
	y2, m2, d2 := o.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Check returns ErrTypeCheck unless d is a non-zero date with no clock component.
func (d Date) Check() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero value", ErrTypeCheck)
	}
	h, m, s := d.Clock()
	if h != 0 || m != 0 || s != 0 || d.Nanosecond() != 0 {
		return fmt.Errorf("%w: %s has a time component", ErrTypeCheck, d.Time.Format(time.RFC3339Nano))
	}
	return nil
}

// Window returns the half-open interval [midnight, next midnight) of d in loc.
// The next midnight is a calendar day later, so the window is 23 or 25 hours
// long on daylight saving transitions.
func (d Date) Window(loc *time.Location) (start, end time.Time) {
	y, m, day := d.Date()
	start = time.Date(y, m, day, 0, 0, 0, 0, loc)
	end = time.Date(y, m, day+1, 0, 0, 0, 0, loc)
	return start, end
}
