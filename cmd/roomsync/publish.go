package main

import (
	"context"
	"time"

	"github.com/guilherme-santos/roomsync/internal/publisher"
	"github.com/guilherme-santos/roomsync/internal/room"
	"github.com/guilherme-santos/roomsync/internal/sqlite"
)

var PublishCommand = _publishCommand{
	Name:        "publish",
	Description: "Publish today's room schedule to the lunch club, every 10 minutes",
}

type _publishCommand struct {
	Name        string
	Description string
}

func (s _publishCommand) Run(ctx context.Context, env *environment, args []string) error {
	cfg := env.cfg

	var (
		account   accountFlags
		calendars Strings
		interval  time.Duration
		schedule  string
		isolate   bool
		journal   string
	)

	fs := newFlagSet(s.Name)
	account.register(fs, env)
	fs.Var(&calendars, "calendar-name", "room calendar to publish, may be repeated (default 5335-395 and 5335-327)")
	fs.DurationVar(&interval, "interval", cfg.Publish.Interval, "time to wait between publishes")
	fs.StringVar(&schedule, "schedule", cfg.Publish.Schedule, `cron schedule replacing -interval (e.g. "*/10 7-17 * * 1-5")`)
	fs.BoolVar(&isolate, "isolate-failures", cfg.Publish.IsolateFailures, "publish the calendars that work and report the failing ones")
	fs.StringVar(&journal, "journal", cfg.Publish.Journal, "sqlite file recording every publish")

	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	if len(calendars) == 0 {
		calendars = cfg.Calendars
	}

	provider, err := selectedProvider(env)
	if err != nil {
		return err
	}
	creds, err := account.credentials(ctx)
	if err != nil {
		return err
	}

	var opts []publisher.Option
	if journal != "" {
		storage, err := sqlite.Open(journal)
		if err != nil {
			return err
		}
		defer storage.Close()
		opts = append(opts, publisher.WithJournal(storage))
	}

	p, err := publisher.New(publisher.Config{
		BaseURL:         cfg.Publish.BaseURL,
		Token:           cfg.Publish.Token,
		Calendars:       calendars,
		Interval:        interval,
		Schedule:        schedule,
		IsolateFailures: isolate,
	}, room.Query(provider, creds, env.log), env.log, opts...)
	if err != nil {
		return err
	}

	env.log.Info().Strs("calendars", calendars).Str("provider", cfg.Provider).Msg("Publishing")
	return p.Run(ctx)
}
