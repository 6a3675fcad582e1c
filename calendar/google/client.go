// Package google reads room calendars shared with a Google account.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/guilherme-santos/roomsync"
)

type Client struct {
	oauthCfg *oauth2.Config
	log      zerolog.Logger

	// test hooks
	endpoint   string
	retrySleep time.Duration
}

// NewClient builds a client from an OAuth client credentials file as
// downloaded from the Google Cloud console.
func NewClient(credJSON []byte, log zerolog.Logger) (*Client, error) {
	oauthCfg, err := google.ConfigFromJSON(credJSON, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: google: parsing credentials file: %v", roomsync.ErrConfig, err)
	}

	return &Client{
		oauthCfg:   oauthCfg,
		log:        log.With().Str("provider", "google").Logger(),
		retrySleep: defaultSleep,
	}, nil
}

const defaultSleep = 5 * time.Second

// Authenticate expects the password to hold the JSON token written by the
// google-login command.
func (c *Client) Authenticate(ctx context.Context, creds roomsync.Credentials) (roomsync.Session, error) {
	var tok *oauth2.Token
	if err := json.Unmarshal([]byte(creds.Password), &tok); err != nil || tok == nil {
		return nil, fmt.Errorf("%w: google: password is not an oauth token", roomsync.ErrConfig)
	}

	// the token source outlives the caller's context
	httpClient := c.oauthCfg.Client(context.WithoutCancel(ctx), tok)
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	return &session{client: c, svc: svc, account: creds.EmailAddress}, nil
}

type session struct {
	client  *Client
	svc     *calendar.Service
	account string
}

// ResolveName finds the calendar whose title, or the account's own name for
// it, is name.
func (s *session) ResolveName(ctx context.Context, name string) (roomsync.Mailbox, error) {
	var matches []*calendar.CalendarListEntry
	err := s.svc.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
		for _, entry := range page.Items {
			if entry.Summary == name || entry.SummaryOverride == name {
				matches = append(matches, entry)
			}
		}
		return nil
	})
	if err != nil {
		return roomsync.Mailbox{}, fmt.Errorf("resolving %q: %w", name, classify(err, roomsync.ErrResolution))
	}

	switch len(matches) {
	case 0:
		return roomsync.Mailbox{}, fmt.Errorf("%w: %q", roomsync.ErrNotFound, name)
	case 1:
	default:
		return roomsync.Mailbox{}, fmt.Errorf("%w: %q matches %d calendars", roomsync.ErrAmbiguousName, name, len(matches))
	}

	s.client.log.Debug().Str("name", name).Str("calendar_id", matches[0].Id).Msg("resolved name")
	return roomsync.Mailbox{Name: matches[0].Summary, EmailAddress: matches[0].Id}, nil
}

func (s *session) Calendar(ctx context.Context, mb roomsync.Mailbox) (roomsync.Folder, error) {
	cal, err := s.svc.Calendars.Get(mb.EmailAddress).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("opening calendar of %s: %w", mb, classify(err, roomsync.ErrResolution))
	}
	return &folder{session: s, id: cal.Id, name: mb.String()}, nil
}

type folder struct {
	session *session
	id      string
	name    string
}

// Events lists single occurrences overlapping [start, end) in start order.
func (f *folder) Events(ctx context.Context, start, end time.Time) (roomsync.EventIterator, error) {
	call := f.session.svc.Events.
		List(f.id).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339))

	return &eventIterator{
		ctx:   ctx,
		call:  call,
		log:   f.session.client.log.With().Str("calendar", f.name).Logger(),
		sleep: f.session.client.retrySleep,
	}, nil
}

// classify maps Google API failures onto the roomsync error kinds.
func classify(err error, fallback error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", roomsync.ErrAuthentication, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", roomsync.ErrNotFound, err)
		}
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return fmt.Errorf("%w: %w", roomsync.ErrAuthentication, err)
	}
	if fallback == nil {
		return err
	}
	return fmt.Errorf("%w: %w", fallback, err)
}

func shouldRetry(err error) bool {
	return errIsReason(err, "rateLimitExceeded")
}

func errIsReason(err error, reason string) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}

	for _, err := range gErr.Errors {
		switch err.Reason {
		case reason:
			return true
		}
	}
	return false
}
