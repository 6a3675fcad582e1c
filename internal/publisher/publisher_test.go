package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/guilherme-santos/roomsync"
)

type webhook struct {
	status int
	forms  []map[string]string
}

func (h *webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/lunchclub/calendar/update/" {
		http.NotFound(w, r)
		return
	}
	r.ParseForm()
	h.forms = append(h.forms, map[string]string{
		"token":   r.PostForm.Get("token"),
		"payload": r.PostForm.Get("payload"),
	})
	w.WriteHeader(h.status)
}

type memJournal struct {
	deliveries []roomsync.Delivery
}

func (j *memJournal) SaveDelivery(_ context.Context, d *roomsync.Delivery) error {
	j.deliveries = append(j.deliveries, *d)
	return nil
}

var lunch = roomsync.Item{
	Subject: "Lunch",
	Start:   time.Date(2017, 8, 14, 11, 30, 0, 0, time.UTC),
	End:     time.Date(2017, 8, 14, 12, 30, 0, 0, time.UTC),
}

func lunchQuery(_ context.Context, name string, _ roomsync.Date) ([]roomsync.Item, error) {
	if name == "5335-327" {
		return []roomsync.Item{lunch}, nil
	}
	return nil, nil
}

func newTestPublisher(t *testing.T, h *webhook, cfg Config, query roomsync.QueryFunc, opts ...Option) (*Publisher, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/lunchclub"
	if cfg.Token == "" {
		cfg.Token = "s3cret"
	}
	if cfg.Calendars == nil {
		cfg.Calendars = []string{"5335-395", "5335-327"}
	}
	p, err := New(cfg, query, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.now = func() time.Time { return time.Date(2017, 8, 14, 10, 15, 0, 0, time.Local) }

	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 2 {
			return context.Canceled
		}
		return nil
	}
	return p, &sleeps
}

func TestRunSleepsAfterSuccess(t *testing.T) {
	h := &webhook{status: http.StatusOK}
	j := &memJournal{}
	p, sleeps := newTestPublisher(t, h, Config{}, lunchQuery, WithJournal(j))

	err := p.Run(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the loop to stop on cancellation, got %v", err)
	}
	if len(h.forms) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(h.forms))
	}
	for _, d := range *sleeps {
		if d != 600*time.Second {
			t.Errorf("expected 600s sleep, got %s", d)
		}
	}

	form := h.forms[0]
	if form["token"] != "s3cret" {
		t.Errorf("unexpected token %q", form["token"])
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(form["payload"]), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := `{"calendars":{"5335-327":[{"end":"2017-08-14T12:30:00Z","start":"2017-08-14T11:30:00Z","subject":"Lunch"}],"5335-395":[]},"date":"2017-08-14"}`
	if got, _ := json.Marshal(payload); string(got) != want {
		t.Errorf("unexpected payload\n got: %s\nwant: %s", got, want)
	}

	if len(j.deliveries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(j.deliveries))
	}
	d := j.deliveries[0]
	if d.StatusCode != 200 || d.Calendars != 2 || d.Items != 1 || d.Error != "" || d.ID == "" {
		t.Errorf("unexpected delivery %+v", d)
	}
	if d.ID == j.deliveries[1].ID {
		t.Error("run ids should differ")
	}
}

func TestRunStopsOnRejection(t *testing.T) {
	h := &webhook{status: http.StatusServiceUnavailable}
	j := &memJournal{}
	p, sleeps := newTestPublisher(t, h, Config{}, lunchQuery, WithJournal(j))

	err := p.Run(context.Background())
	var derr *roomsync.DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected a delivery error, got %v", err)
	}
	if derr.StatusCode != 503 || derr.Status != "Service Unavailable" {
		t.Errorf("unexpected error %+v", derr)
	}
	if err.Error() != "HTTP 503 (Service Unavailable)" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no sleep after a failed publish, got %v", *sleeps)
	}
	if len(j.deliveries) != 1 || j.deliveries[0].StatusCode != 503 || j.deliveries[0].Error == "" {
		t.Errorf("failed delivery not journaled: %+v", j.deliveries)
	}
}

func TestRunStopsOnQueryFailure(t *testing.T) {
	h := &webhook{status: http.StatusOK}
	failing := func(_ context.Context, name string, _ roomsync.Date) ([]roomsync.Item, error) {
		if name == "5335-327" {
			return nil, roomsync.ErrAmbiguousName
		}
		return nil, nil
	}
	p, sleeps := newTestPublisher(t, h, Config{}, failing)

	err := p.Run(context.Background())
	if !errors.Is(err, roomsync.ErrAmbiguousName) {
		t.Fatalf("expected the query error, got %v", err)
	}
	if len(h.forms) != 0 || len(*sleeps) != 0 {
		t.Errorf("nothing should be published, got %d posts and %d sleeps", len(h.forms), len(*sleeps))
	}
}

func TestIsolateFailures(t *testing.T) {
	h := &webhook{status: http.StatusOK}
	failing := func(_ context.Context, name string, _ roomsync.Date) ([]roomsync.Item, error) {
		if name == "5335-327" {
			return nil, errors.New("boom")
		}
		return nil, nil
	}
	p, _ := newTestPublisher(t, h, Config{IsolateFailures: true}, failing)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := `{"date":"2017-08-14","calendars":{"5335-395":[]},"errors":{"5335-327":"boom"}}`
	if got := h.forms[0]["payload"]; got != want {
		t.Errorf("unexpected payload\n got: %s\nwant: %s", got, want)
	}
}

func TestScheduleWait(t *testing.T) {
	h := &webhook{status: http.StatusOK}
	p, sleeps := newTestPublisher(t, h, Config{Schedule: "0 * * * *"}, lunchQuery)

	p.Run(context.Background())
	if len(*sleeps) == 0 || (*sleeps)[0] != 45*time.Minute {
		t.Errorf("expected to wait until the top of the hour, got %v", *sleeps)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing token", Config{Calendars: []string{"a"}}},
		{"no calendars", Config{Token: "t"}},
		{"bad schedule", Config{Token: "t", Calendars: []string{"a"}, Schedule: "every day"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, lunchQuery, zerolog.Nop())
			if !errors.Is(err, roomsync.ErrConfig) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
