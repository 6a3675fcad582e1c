// Package publisher periodically pushes the day's room schedule to the
// lunch club webhook.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/guilherme-santos/roomsync"
)

const (
	DefaultBaseURL  = "https://apps.cs.au.dk/lunchclub"
	DefaultInterval = 600 * time.Second
	updatePath      = "/calendar/update/"
)

type Config struct {
	BaseURL   string
	Token     string
	Calendars []string
	Interval  time.Duration
	// Schedule is a standard five field cron expression. When set it
	// replaces Interval.
	Schedule        string
	IsolateFailures bool
}

// Journal records every publish attempt.
type Journal interface {
	SaveDelivery(context.Context, *roomsync.Delivery) error
}

type Option func(*Publisher)

func WithJournal(j Journal) Option {
	return func(p *Publisher) {
		p.journal = j
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) {
		p.client = c
	}
}

type Publisher struct {
	cfg      Config
	query    roomsync.QueryFunc
	log      zerolog.Logger
	client   *http.Client
	journal  Journal
	schedule cron.Schedule

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func New(cfg Config, query roomsync.QueryFunc, log zerolog.Logger, opts ...Option) (*Publisher, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: LUNCHCLUB_TOKEN is not set", roomsync.ErrConfig)
	}
	if len(cfg.Calendars) == 0 {
		return nil, fmt.Errorf("%w: no calendars to publish", roomsync.ErrConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	p := &Publisher{
		cfg:    cfg,
		query:  query,
		log:    log.With().Str("component", "publisher").Logger(),
		client: http.DefaultClient,
		now:    time.Now,
		sleep:  sleepContext,
	}
	if cfg.Schedule != "" {
		sched, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("%w: schedule %q: %v", roomsync.ErrConfig, cfg.Schedule, err)
		}
		p.schedule = sched
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run publishes, waits and repeats until a publish fails or ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		if err := p.Tick(ctx); err != nil {
			return err
		}

		wait := p.nextWait(p.now())
		p.log.Debug().Dur("wait", wait).Msg("sleeping")
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p *Publisher) nextWait(now time.Time) time.Duration {
	if p.schedule == nil {
		return p.cfg.Interval
	}
	return p.schedule.Next(now).Sub(now)
}

// Tick builds the payload for today, in the host's local time, and
// publishes it.
func (p *Publisher) Tick(ctx context.Context) error {
	startedAt := p.now()
	d := &roomsync.Delivery{
		ID:        uuid.NewString(),
		Date:      roomsync.NewDateFromTime(startedAt).String(),
		StartedAt: startedAt,
	}
	log := p.log.With().Str("run_id", d.ID).Str("date", d.Date).Logger()

	err := p.tick(ctx, log, d)
	if err != nil {
		d.Error = err.Error()
	}
	if p.journal != nil {
		if jerr := p.journal.SaveDelivery(ctx, d); jerr != nil {
			log.Warn().Err(jerr).Msg("unable to record delivery")
		}
	}
	return err
}

func (p *Publisher) tick(ctx context.Context, log zerolog.Logger, d *roomsync.Delivery) error {
	var opts []roomsync.BuildOption
	if p.cfg.IsolateFailures {
		opts = append(opts, roomsync.IsolateFailures())
	}

	payload, err := roomsync.Build(ctx, roomsync.NewDateFromTime(d.StartedAt), p.cfg.Calendars, p.query, opts...)
	if err != nil {
		return err
	}
	for name, msg := range payload.Errors {
		log.Warn().Str("calendar", name).Str("error", msg).Msg("calendar left out")
	}
	d.Calendars = len(payload.Calendars)
	d.Items = payload.NumItems()

	status, err := p.Publish(ctx, payload)
	d.StatusCode = status
	if err != nil {
		return err
	}
	log.Debug().Int("calendars", d.Calendars).Int("items", d.Items).Msg("published")
	return nil
}

// Publish posts payload to the webhook and returns the response status code.
// A status of 300 or above is returned as a *roomsync.DeliveryError.
func (p *Publisher) Publish(ctx context.Context, payload *roomsync.Payload) (int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("unable to encode payload: %w", err)
	}
	form := url.Values{
		"token":   {p.cfg.Token},
		"payload": {string(b)},
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + updatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", roomsync.ErrConfig, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("unable to publish: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		p.log.Error().Int("status_code", resp.StatusCode).Str("status", resp.Status).Str("url", endpoint).Msg("publish rejected")
		return resp.StatusCode, &roomsync.DeliveryError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
		}
	}
	return resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
