package roomsync

import (
	"context"
	"fmt"
)

// Payload is the document published for one date.
type Payload struct {
	Date      string            `json:"date"`
	Calendars map[string][]Item `json:"calendars"`
	// Errors is only populated when the payload was built with IsolateFailures.
	Errors map[string]string `json:"errors,omitempty"`
}

// NumItems returns the number of items across all calendars.
func (p Payload) NumItems() int {
	var n int
	for _, items := range p.Calendars {
		n += len(items)
	}
	return n
}

// QueryFunc returns the items of the named calendar for date.
type QueryFunc func(_ context.Context, name string, date Date) ([]Item, error)

type buildOptions struct {
	isolateFailures bool
}

type BuildOption func(*buildOptions)

// IsolateFailures makes Build skip calendars whose query fails and report them
// in Payload.Errors instead of aborting the whole build.
func IsolateFailures() BuildOption {
	return func(o *buildOptions) {
		o.isolateFailures = true
	}
}

// Build queries every calendar in names, in order, and assembles the payload
// for date. By default the first failing calendar aborts the build.
func Build(ctx context.Context, date Date, names []string, query QueryFunc, opts ...BuildOption) (*Payload, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	p := &Payload{
		Date:      date.String(),
		Calendars: make(map[string][]Item, len(names)),
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, err := query(ctx, name, date)
		if err != nil {
			if !o.isolateFailures {
				return nil, fmt.Errorf("unable to get items for %s: %w", name, err)
			}
			if p.Errors == nil {
				p.Errors = make(map[string]string)
			}
			p.Errors[name] = err.Error()
			continue
		}
		if items == nil {
			// encode as [] rather than null
			items = []Item{}
		}
		p.Calendars[name] = items
	}
	return p, nil
}
