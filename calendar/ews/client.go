// Package ews is a minimal Exchange Web Services client covering what a
// room calendar poller needs: endpoint autodiscovery, ResolveNames, GetFolder
// on a delegated mailbox's calendar and CalendarView queries.
package ews

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/guilherme-santos/roomsync"
)

const (
	defaultVersion  = "Exchange2010_SP2"
	defaultPageSize = 100
)

type Config struct {
	// URL is the EWS endpoint. When empty it is autodiscovered from the
	// account's e-mail address.
	URL  string
	Auth AuthType
	// Version is sent as RequestServerVersion.
	Version string

	// OAuth2 client credentials. The client secret is the account password.
	ClientID string
	TenantID string
	TokenURL string

	// HTTPClient supplies the base transport and timeout.
	HTTPClient *http.Client
	PageSize   int
}

type Client struct {
	cfg Config
	log zerolog.Logger

	autodiscoverURLs func(domain string) []string
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.Auth == "" {
		cfg.Auth = AuthNTLM
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Client{
		cfg:              cfg,
		log:              log.With().Str("provider", "ews").Logger(),
		autodiscoverURLs: defaultAutodiscoverURLs,
	}
}

// Authenticate prepares an authenticated transport for creds and locates the
// EWS endpoint. Credentials are checked by the server on the first request.
func (c *Client) Authenticate(ctx context.Context, creds roomsync.Credentials) (roomsync.Session, error) {
	if creds.EmailAddress == "" && (c.cfg.URL == "" || c.cfg.Auth == AuthOAuth2) {
		return nil, fmt.Errorf("%w: ews: e-mail address is required", roomsync.ErrConfig)
	}
	if c.cfg.Auth != AuthOAuth2 && creds.Username == "" {
		return nil, fmt.Errorf("%w: ews: username is required for %s auth", roomsync.ErrConfig, c.cfg.Auth)
	}

	hc, err := c.httpClient(ctx, creds)
	if err != nil {
		return nil, err
	}

	url := c.cfg.URL
	if url == "" {
		url, err = c.discover(ctx, hc, creds.EmailAddress)
		if err != nil {
			return nil, err
		}
	}

	s := &session{
		client:  c,
		http:    hc,
		url:     url,
		version: c.cfg.Version,
	}
	if c.cfg.Auth == AuthOAuth2 {
		// app-only tokens act on behalf of the account through impersonation
		s.impersonate = creds.EmailAddress
	}
	c.log.Debug().Str("url", url).Str("account", creds.EmailAddress).Str("auth", string(c.cfg.Auth)).Msg("session ready")
	return s, nil
}

type session struct {
	client      *Client
	http        *http.Client
	url         string
	version     string
	impersonate string
}
