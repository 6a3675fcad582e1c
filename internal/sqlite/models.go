package sqlite

import (
	"time"

	"github.com/guilherme-santos/roomsync"
)

type Delivery struct {
	ID         string
	Date       string
	StartedAt  string `db:"started_at"`
	StatusCode int    `db:"status_code"`
	Calendars  int
	Items      int
	Error      string
}

func newDelivery(d *roomsync.Delivery) Delivery {
	return Delivery{
		ID:         d.ID,
		Date:       d.Date,
		StartedAt:  d.StartedAt.UTC().Format(timeFormat),
		StatusCode: d.StatusCode,
		Calendars:  d.Calendars,
		Items:      d.Items,
		Error:      d.Error,
	}
}

func (d Delivery) Convert() *roomsync.Delivery {
	startedAt, _ := time.Parse(timeFormat, d.StartedAt)
	return &roomsync.Delivery{
		ID:         d.ID,
		Date:       d.Date,
		StartedAt:  startedAt,
		StatusCode: d.StatusCode,
		Calendars:  d.Calendars,
		Items:      d.Items,
		Error:      d.Error,
	}
}
