// Package ics renders room items as an iCalendar document.
package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/guilherme-santos/roomsync"
)

const productID = "-//roomsync//room schedule//EN"

// Write serializes items of the named calendar to w. Event UIDs are derived
// from the calendar name and the item, so exporting the same day twice
// yields the same UIDs.
func Write(w io.Writer, calendarName string, items []roomsync.Item, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetName(calendarName)

	for _, it := range items {
		e := cal.AddEvent(UID(calendarName, it))
		e.SetSummary(it.Subject)
		e.SetLocation(calendarName)
		e.SetStartAt(it.Start)
		e.SetEndAt(it.End)
		e.SetDtStampTime(stamp)
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func UID(calendarName string, it roomsync.Item) string {
	key := calendarName + "\x00" + it.Subject + "\x00" + it.Start.UTC().Format(time.RFC3339) + "\x00" + it.End.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String() + "@roomsync"
}
