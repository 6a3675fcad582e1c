package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/rs/zerolog"

	"github.com/guilherme-santos/roomsync"
)

const roomICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:lunch-1\r\n" +
	"DTSTAMP:20170801T120000Z\r\n" +
	"DTSTART:20170814T100000Z\r\n" +
	"DTEND:20170814T110000Z\r\n" +
	"SUMMARY:Lunch club\r\n" +
	"LOCATION:5335-395\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:talk-2\r\n" +
	"DTSTAMP:20170801T120000Z\r\n" +
	"DTSTART:20170814T130000\r\n" +
	"DURATION:PT30M\r\n" +
	"SUMMARY:Talk\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestNewEvent(t *testing.T) {
	cal, err := ical.NewDecoder(strings.NewReader(roomICS)).Decode()
	if err != nil {
		t.Fatalf("decoding: %v", err)
	}
	loc := time.FixedZone("CEST", 2*60*60)

	var got []*roomsync.Event
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, err := newEvent(ical.Event{Component: comp}, loc)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}

	lunch := got[0]
	if lunch.ID != "lunch-1" || lunch.Subject != "Lunch club" || lunch.Location != "5335-395" {
		t.Errorf("unexpected event %+v", lunch)
	}
	if !lunch.StartsAt.Equal(time.Date(2017, 8, 14, 10, 0, 0, 0, time.UTC)) || !lunch.EndsAt.Equal(time.Date(2017, 8, 14, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected times %s - %s", lunch.StartsAt, lunch.EndsAt)
	}

	// floating time in the configured zone, end derived from DURATION
	talk := got[1]
	if want := time.Date(2017, 8, 14, 13, 0, 0, 0, loc); !talk.StartsAt.Equal(want) {
		t.Errorf("expected start %s, got %s", want, talk.StartsAt)
	}
	if d := talk.EndsAt.Sub(talk.StartsAt); d != 30*time.Minute {
		t.Errorf("expected 30m, got %s", d)
	}
}

func TestAuthenticateUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("expected basic auth")
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Authenticate(context.Background(), roomsync.Credentials{Username: "user", Password: "wrong"})
	if !errors.Is(err, roomsync.ErrAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}, zerolog.Nop()); !errors.Is(err, roomsync.ErrConfig) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestCalendarNeedsPath(t *testing.T) {
	s := &session{}
	if _, err := s.Calendar(context.Background(), roomsync.Mailbox{Name: "x"}); !errors.Is(err, roomsync.ErrResolution) {
		t.Errorf("expected resolution error, got %v", err)
	}
}

const weeklyICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:weekly-1\r\n" +
	"DTSTAMP:20170801T120000Z\r\n" +
	"DTSTART:20170807T100000Z\r\n" +
	"DTEND:20170807T110000Z\r\n" +
	"RRULE:FREQ=WEEKLY\r\n" +
	"EXDATE:20170821T100000Z,20170904T100000Z\r\n" +
	"SUMMARY:Weekly lunch\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:weekly-1\r\n" +
	"DTSTAMP:20170801T120000Z\r\n" +
	"RECURRENCE-ID:20170828T100000Z\r\n" +
	"DTSTART:20170828T120000Z\r\n" +
	"DTEND:20170828T130000Z\r\n" +
	"SUMMARY:Moved lunch\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func dayWindow(month time.Month, day int) (time.Time, time.Time) {
	loc := time.FixedZone("CEST", 2*60*60)
	start := time.Date(2017, month, day, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func TestCalendarEventsRecurring(t *testing.T) {
	cal, err := ical.NewDecoder(strings.NewReader(weeklyICS)).Decode()
	if err != nil {
		t.Fatalf("decoding: %v", err)
	}

	tests := []struct {
		name    string
		month   time.Month
		day     int
		subject string
		start   time.Time
		id      string
	}{
		{"first occurrence", time.August, 7, "Weekly lunch", time.Date(2017, 8, 7, 10, 0, 0, 0, time.UTC), "weekly-1/20170807T100000Z"},
		{"later occurrence", time.August, 14, "Weekly lunch", time.Date(2017, 8, 14, 10, 0, 0, 0, time.UTC), "weekly-1/20170814T100000Z"},
		{"excluded", time.August, 21, "", time.Time{}, ""},
		{"overridden", time.August, 28, "Moved lunch", time.Date(2017, 8, 28, 12, 0, 0, 0, time.UTC), "weekly-1/20170828T100000Z"},
		{"second exdate", time.September, 4, "", time.Time{}, ""},
		{"off day", time.August, 15, "", time.Time{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := dayWindow(tt.month, tt.day)
			events, err := calendarEvents(cal, start, end, time.UTC)
			if err != nil {
				t.Fatal(err)
			}
			if tt.subject == "" {
				if len(events) != 0 {
					t.Fatalf("expected no events, got %+v", events[0])
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			ev := events[0]
			if ev.Subject != tt.subject || !ev.StartsAt.Equal(tt.start) {
				t.Errorf("expected %q at %s, got %q at %s", tt.subject, tt.start, ev.Subject, ev.StartsAt)
			}
			if d := ev.EndsAt.Sub(ev.StartsAt); d != time.Hour {
				t.Errorf("expected 1h, got %s", d)
			}
			if ev.ID != tt.id {
				t.Errorf("expected id %q, got %q", tt.id, ev.ID)
			}
		})
	}
}

func TestEventsExpandsRecurrence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "REPORT" || r.URL.Path != "/cal/room/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
 <d:response>
  <d:href>/cal/room/weekly.ics</d:href>
  <d:propstat>
   <d:prop><d:getetag>"1"</d:getetag><c:calendar-data>%s</c:calendar-data></d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
</d:multistatus>`, weeklyICS)
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	dav, err := caldav.NewClient(srv.Client(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	f := &folder{session: &session{client: c, dav: dav}, path: "/cal/room/"}

	start, end := dayWindow(time.August, 14)
	it, err := f.Events(context.Background(), start, end)
	if err != nil {
		t.Fatal(err)
	}
	var got []*roomsync.Event
	for it.Next() {
		got = append(got, it.Event())
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if want := time.Date(2017, 8, 14, 10, 0, 0, 0, time.UTC); got[0].Subject != "Weekly lunch" || !got[0].StartsAt.Equal(want) {
		t.Errorf("unexpected event %+v", got[0])
	}
}
