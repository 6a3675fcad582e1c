package main

import (
	"context"
	"fmt"
	"os"

	"github.com/guilherme-santos/roomsync"
	"github.com/guilherme-santos/roomsync/calendar"
	"github.com/guilherme-santos/roomsync/calendar/caldav"
	"github.com/guilherme-santos/roomsync/calendar/ews"
	"github.com/guilherme-santos/roomsync/calendar/google"
	"github.com/guilherme-santos/roomsync/internal/room"
	"github.com/guilherme-santos/roomsync/internal/secret"
)

const (
	ewsProvider    = "ews"
	googleProvider = "google"
	caldavProvider = "caldav"
)

// newMux registers every provider the configuration has settings for.
// Exchange needs none.
func newMux(env *environment) (*calendar.Mux, error) {
	cfg := env.cfg

	auth, err := ews.ParseAuthType(cfg.EWS.Auth)
	if err != nil {
		return nil, err
	}
	mux := calendar.NewMux()
	mux.Register(ewsProvider, ews.NewClient(ews.Config{
		URL:      cfg.EWS.URL,
		Auth:     auth,
		ClientID: cfg.EWS.ClientID,
		TenantID: cfg.EWS.TenantID,
	}, env.log))

	if cfg.Google.CredentialsFile != "" {
		credFile, err := os.ReadFile(cfg.Google.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to read credentials file: %v", roomsync.ErrConfig, err)
		}
		googleCal, err := google.NewClient(credFile, env.log)
		if err != nil {
			return nil, err
		}
		mux.Register(googleProvider, googleCal)
	}

	if cfg.CalDAV.URL != "" {
		caldavCal, err := caldav.NewClient(caldav.Config{
			URL:      cfg.CalDAV.URL,
			Location: room.Copenhagen,
		}, env.log)
		if err != nil {
			return nil, err
		}
		mux.Register(caldavProvider, caldavCal)
	}
	return mux, nil
}

func selectedProvider(env *environment) (roomsync.Provider, error) {
	mux, err := newMux(env)
	if err != nil {
		return nil, err
	}
	return mux.Get(env.cfg.Provider)
}

func (a accountFlags) credentials(ctx context.Context) (roomsync.Credentials, error) {
	password, err := secret.Resolve(ctx, a.Password)
	if err != nil {
		return roomsync.Credentials{}, err
	}
	return roomsync.Credentials{
		EmailAddress: a.EmailAddress,
		Username:     a.Username,
		Password:     password,
	}, nil
}
