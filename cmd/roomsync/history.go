package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guilherme-santos/roomsync"
	"github.com/guilherme-santos/roomsync/internal/sqlite"
)

var HistoryCommand = _historyCommand{
	Name:        "history",
	Description: "List the last publishes recorded in the journal",
}

type _historyCommand struct {
	Name        string
	Description string
}

func (s _historyCommand) Run(ctx context.Context, env *environment, args []string) error {
	var (
		journal string
		limit   int
	)

	fs := newFlagSet(s.Name)
	fs.StringVar(&journal, "journal", env.cfg.Publish.Journal, "sqlite file written by publish -journal")
	fs.IntVar(&limit, "limit", 20, "number of entries to show")

	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	if journal == "" {
		return fmt.Errorf("%w: -journal is required", roomsync.ErrConfig)
	}
	if _, err := os.Stat(journal); err != nil {
		return fmt.Errorf("%w: %v", roomsync.ErrConfig, err)
	}

	storage, err := sqlite.Open(journal)
	if err != nil {
		return err
	}
	defer storage.Close()

	deliveries, err := storage.Deliveries(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDATE\tSTATUS\tCALENDARS\tITEMS\tERROR")
	for _, d := range deliveries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			d.StartedAt.Local().Format(time.DateTime), d.Date, d.StatusCode, d.Calendars, d.Items, d.Error)
	}
	return w.Flush()
}
