// Package caldav reads room calendars from a CalDAV server. Calendars are
// matched by display name inside the account's calendar home set.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"github.com/guilherme-santos/roomsync"
)

type Config struct {
	URL string
	// Location applies to floating times and all-day dates.
	Location   *time.Location
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
	log zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: caldav: server url is required", roomsync.ErrConfig)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Client{cfg: cfg, log: log.With().Str("provider", "caldav").Logger()}, nil
}

// Authenticate logs in with basic auth and locates the calendar home set of
// the current user.
func (c *Client) Authenticate(ctx context.Context, creds roomsync.Credentials) (roomsync.Session, error) {
	var hc webdav.HTTPClient = statusClient{c.cfg.HTTPClient}
	if creds.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, creds.Username, creds.Password)
	}

	cl, err := caldav.NewClient(hc, c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: caldav: %v", roomsync.ErrConfig, err)
	}

	principal, err := cl.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: caldav: finding principal: %w", roomsync.ErrAuthentication, err)
	}
	homeSet, err := cl.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("%w: caldav: finding calendar home set: %w", roomsync.ErrAuthentication, err)
	}

	c.log.Debug().Str("principal", principal).Str("home_set", homeSet).Msg("session ready")
	return &session{client: c, dav: cl, homeSet: homeSet}, nil
}

type session struct {
	client  *Client
	dav     *caldav.Client
	homeSet string
}

func (s *session) ResolveName(ctx context.Context, name string) (roomsync.Mailbox, error) {
	cals, err := s.dav.FindCalendars(ctx, s.homeSet)
	if err != nil {
		return roomsync.Mailbox{}, fmt.Errorf("%w: resolving %q: %w", roomsync.ErrResolution, name, err)
	}

	var matches []caldav.Calendar
	for _, cal := range cals {
		if cal.Name == name {
			matches = append(matches, cal)
		}
	}
	switch len(matches) {
	case 0:
		return roomsync.Mailbox{}, fmt.Errorf("%w: %q", roomsync.ErrNotFound, name)
	case 1:
		return roomsync.Mailbox{Name: matches[0].Name, EmailAddress: matches[0].Path}, nil
	}
	return roomsync.Mailbox{}, fmt.Errorf("%w: %q matches %d calendars", roomsync.ErrAmbiguousName, name, len(matches))
}

// Calendar returns the collection at the mailbox's path. Existence is
// checked by the first query.
func (s *session) Calendar(_ context.Context, mb roomsync.Mailbox) (roomsync.Folder, error) {
	if mb.EmailAddress == "" {
		return nil, fmt.Errorf("%w: caldav: %s has no collection path", roomsync.ErrResolution, mb)
	}
	return &folder{session: s, path: mb.EmailAddress}, nil
}

type folder struct {
	session *session
	path    string
}

// Events queries VEVENTs overlapping [start, end). Recurring events are
// expanded into one event per occurrence starting inside the range, with
// EXDATE and RECURRENCE-ID overrides applied.
func (f *folder) Events(ctx context.Context, start, end time.Time) (roomsync.EventIterator, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			Comps: []caldav.CalendarCompRequest{{
				Name:     "VEVENT",
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: start,
				End:   end,
			}},
		},
	}
	return &eventIterator{ctx: ctx, folder: f, query: query, start: start, end: end}, nil
}

type eventIterator struct {
	ctx        context.Context
	folder     *folder
	query      *caldav.CalendarQuery
	start, end time.Time

	events []*roomsync.Event
	pos    int
	done   bool

	cur *roomsync.Event
	err error
}

func (it *eventIterator) Next() bool {
	if !it.done {
		it.done = true
		it.events, it.err = it.folder.load(it.ctx, it.query, it.start, it.end)
	}
	if it.err != nil || it.pos >= len(it.events) {
		it.cur = nil
		return false
	}
	it.cur = it.events[it.pos]
	it.pos++
	return true
}

func (it *eventIterator) Event() *roomsync.Event { return it.cur }
func (it *eventIterator) Err() error             { return it.err }

func (f *folder) load(ctx context.Context, query *caldav.CalendarQuery, start, end time.Time) ([]*roomsync.Event, error) {
	objects, err := f.session.dav.QueryCalendar(ctx, f.path, query)
	if err != nil {
		return nil, fmt.Errorf("caldav: querying %s: %w", f.path, err)
	}

	loc := f.session.client.cfg.Location
	var events []*roomsync.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		evs, err := calendarEvents(obj.Data, start, end, loc)
		if err != nil {
			return nil, fmt.Errorf("caldav: %s: %w", obj.Path, err)
		}
		events = append(events, evs...)
	}
	return events, nil
}

// calendarEvents returns the events of cal. A recurring event yields one
// event per occurrence starting in [start, end]. Occurrences replaced by a
// RECURRENCE-ID override are reported through the override instead, when it
// overlaps the range.
func calendarEvents(cal *ical.Calendar, start, end time.Time, loc *time.Location) ([]*roomsync.Event, error) {
	overridden := make(map[string]bool)
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		prop := comp.Props.Get(ical.PropRecurrenceID)
		if prop == nil {
			continue
		}
		rid, err := prop.DateTime(loc)
		if err != nil {
			return nil, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		uid, _ := comp.Props.Text(ical.PropUID)
		overridden[occurrenceID(uid, rid)] = true
	}

	var events []*roomsync.Event
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, err := newEvent(ical.Event{Component: comp}, loc)
		if err != nil {
			return nil, err
		}
		if prop := comp.Props.Get(ical.PropRecurrenceID); prop != nil {
			rid, _ := prop.DateTime(loc)
			ev.ID = occurrenceID(ev.ID, rid)
			if ev.EndsAt.After(start) && ev.StartsAt.Before(end) {
				events = append(events, ev)
			}
			continue
		}

		set, err := recurrenceSet(comp, ev.StartsAt, loc)
		if err != nil {
			return nil, err
		}
		if set == nil {
			events = append(events, ev)
			continue
		}

		dur := ev.EndsAt.Sub(ev.StartsAt)
		occurrences := set.Between(start.In(ev.StartsAt.Location()), end.In(ev.StartsAt.Location()), true)
		if len(occurrences) > maxOccurrences {
			occurrences = occurrences[:maxOccurrences]
		}
		for _, at := range occurrences {
			id := occurrenceID(ev.ID, at)
			if overridden[id] {
				continue
			}
			occ := *ev
			occ.ID = id
			occ.StartsAt = at
			occ.EndsAt = at.Add(dur)
			events = append(events, &occ)
		}
	}
	return events, nil
}

const maxOccurrences = 1000

func occurrenceID(uid string, at time.Time) string {
	return uid + "/" + at.UTC().Format("20060102T150405Z")
}

// recurrenceSet builds the RRULE, RDATE and EXDATE set of comp anchored at
// dtstart. It returns nil for a non-recurring event.
func recurrenceSet(comp *ical.Component, dtstart time.Time, loc *time.Location) (*rrule.Set, error) {
	opt, err := comp.Props.RecurrenceRule()
	if err != nil {
		return nil, fmt.Errorf("RRULE: %w", err)
	}
	if opt == nil {
		return nil, nil
	}
	opt.Dtstart = dtstart
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("RRULE: %w", err)
	}

	set := &rrule.Set{}
	set.RRule(rule)

	exdates, err := dateList(comp.Props[ical.PropExceptionDates], loc)
	if err != nil {
		return nil, fmt.Errorf("EXDATE: %w", err)
	}
	for _, t := range exdates {
		set.ExDate(t)
	}
	rdates, err := dateList(comp.Props[ical.PropRecurrenceDates], loc)
	if err != nil {
		return nil, fmt.Errorf("RDATE: %w", err)
	}
	for _, t := range rdates {
		set.RDate(t)
	}
	return set, nil
}

// dateList parses date or date-time properties that may carry
// comma-separated values. RDATE periods are skipped.
func dateList(props []ical.Prop, loc *time.Location) ([]time.Time, error) {
	var out []time.Time
	for _, prop := range props {
		for _, v := range strings.Split(prop.Value, ",") {
			v = strings.TrimSpace(v)
			if v == "" || strings.Contains(v, "/") {
				continue
			}
			single := ical.Prop{Name: prop.Name, Params: prop.Params, Value: v}
			t, err := single.DateTime(loc)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func newEvent(ev ical.Event, loc *time.Location) (*roomsync.Event, error) {
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return nil, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return nil, fmt.Errorf("DTEND: %w", err)
	}
	uid, _ := ev.Props.Text(ical.PropUID)
	summary, _ := ev.Props.Text(ical.PropSummary)
	location, _ := ev.Props.Text(ical.PropLocation)
	return &roomsync.Event{
		ID:       uid,
		Subject:  summary,
		Location: location,
		StartsAt: start,
		EndsAt:   end,
	}, nil
}

// statusClient turns 401 and 403 answers into authentication errors.
type statusClient struct {
	hc *http.Client
}

func (c statusClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: %s", roomsync.ErrAuthentication, req.Method, req.URL.Path, resp.Status)
	}
	return resp, nil
}
