package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/guilherme-santos/roomsync"
	"github.com/guilherme-santos/roomsync/internal/ics"
	"github.com/guilherme-santos/roomsync/internal/room"
)

var ShowCommand = _showCommand{
	Name:        "show",
	Description: "Print the items of one room calendar for a date",
}

type _showCommand struct {
	Name        string
	Description string
}

func (s _showCommand) Run(ctx context.Context, env *environment, args []string) error {
	var (
		account      accountFlags
		calendarName string
		date         = roomsync.Today()
		output       string
	)

	fs := newFlagSet(s.Name)
	account.register(fs, env)
	fs.StringVar(&calendarName, "calendar-name", "", "display name of the room calendar (e.g. 5335-395)")
	fs.Var(&date, "date", "date to show (e.g. 2017-08-14), defaults to today")
	fs.StringVar(&output, "output", "text", "output format: text, json or ics")

	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	if calendarName == "" {
		return fmt.Errorf("%w: -calendar-name is required", roomsync.ErrConfig)
	}
	switch output {
	case "text", "json", "ics":
	default:
		return fmt.Errorf("%w: unknown output %q", roomsync.ErrConfig, output)
	}

	provider, err := selectedProvider(env)
	if err != nil {
		return err
	}
	creds, err := account.credentials(ctx)
	if err != nil {
		return err
	}

	cal := room.New(provider, room.Account{
		EmailAddress: creds.EmailAddress,
		Username:     creds.Username,
		Password:     creds.Password,
		CalendarName: calendarName,
	}, env.log)

	items, err := cal.ItemsForDate(ctx, date)
	if err != nil {
		return err
	}

	switch output {
	case "json":
		all, err := items.All()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(all)

	case "ics":
		all, err := items.All()
		if err != nil {
			return err
		}
		return ics.Write(os.Stdout, calendarName, all, time.Now())
	}

	for items.Next() {
		fmt.Println(items.Item())
	}
	return items.Err()
}
