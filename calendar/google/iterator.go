package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"

	"github.com/guilherme-santos/roomsync"
)

// eventIterator requests a page of events whenever the previous one has
// been consumed.
type eventIterator struct {
	ctx   context.Context
	call  *calendar.EventsListCall
	log   zerolog.Logger
	sleep time.Duration

	page      []*calendar.Event
	pos       int
	pageToken string
	loaded    bool

	current *roomsync.Event
	err     error
}

func (it *eventIterator) Next() bool {
	for {
		if it.err != nil {
			it.current = nil
			return false
		}
		if it.pos < len(it.page) {
			item := it.page[it.pos]
			it.pos++
			if item.Status == "cancelled" {
				continue
			}
			it.current, it.err = newEvent(item)
			return it.err == nil
		}
		if it.loaded && it.pageToken == "" {
			it.current = nil
			return false
		}
		it.fetch()
	}
}

func (it *eventIterator) fetch() {
	for {
		events, err := it.call.PageToken(it.pageToken).Do()
		if err == nil {
			it.page, it.pos = events.Items, 0
			it.pageToken = events.NextPageToken
			it.loaded = true
			return
		}
		if !shouldRetry(err) {
			it.log.Debug().Err(err).Msg("unable to get list of events")
			it.err = classify(err, nil)
			return
		}

		it.log.Debug().Dur("sleep", it.sleep).Msg("rate limited")
		select {
		case <-it.ctx.Done():
			it.err = it.ctx.Err()
			return
		case <-time.After(it.sleep):
		}
	}
}

func (it *eventIterator) Event() *roomsync.Event {
	if it.current == nil && it.err == nil {
		panic("google: Event() called before Next()")
	}
	return it.current
}

func (it *eventIterator) Err() error {
	return it.err
}

func newEvent(event *calendar.Event) (*roomsync.Event, error) {
	startsAt, err := eventTime(event.Start)
	if err != nil {
		return nil, fmt.Errorf("google: event %s: start: %w", event.Id, err)
	}
	endsAt, err := eventTime(event.End)
	if err != nil {
		return nil, fmt.Errorf("google: event %s: end: %w", event.Id, err)
	}
	return &roomsync.Event{
		ID:       event.Id,
		Subject:  event.Summary,
		Location: event.Location,
		StartsAt: startsAt,
		EndsAt:   endsAt,
	}, nil
}

// eventTime reads a timed or all-day boundary. All-day dates are taken at
// midnight in the event's time zone, or UTC when it has none.
func eventTime(dt *calendar.EventDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, errors.New("missing")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	loc := time.UTC
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation(roomsync.DateFormat, dt.Date, loc)
}
