package ews

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/go-ntlmssp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/guilherme-santos/roomsync"
)

type AuthType string

const (
	AuthNTLM   AuthType = "ntlm"
	AuthBasic  AuthType = "basic"
	AuthOAuth2 AuthType = "oauth2"
)

func ParseAuthType(s string) (AuthType, error) {
	switch a := AuthType(strings.ToLower(s)); a {
	case AuthNTLM, AuthBasic, AuthOAuth2:
		return a, nil
	case "":
		return AuthNTLM, nil
	}
	return "", fmt.Errorf("%w: unknown ews auth %q", roomsync.ErrConfig, s)
}

const (
	office365TokenURL = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	office365Scope    = "https://outlook.office365.com/.default"
)

func (c *Client) httpClient(ctx context.Context, creds roomsync.Credentials) (*http.Client, error) {
	base := c.cfg.HTTPClient
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	switch c.cfg.Auth {
	case AuthBasic:
		return &http.Client{
			Transport: basicAuthTransport{creds.Username, creds.Password, transport},
			Timeout:   base.Timeout,
		}, nil

	case AuthNTLM:
		// The negotiator picks the credentials up from the basic auth header
		// and falls back to basic auth when the server does not offer NTLM.
		return &http.Client{
			Transport: basicAuthTransport{creds.Username, creds.Password, ntlmssp.Negotiator{RoundTripper: transport}},
			Timeout:   base.Timeout,
		}, nil

	case AuthOAuth2:
		if c.cfg.ClientID == "" {
			return nil, fmt.Errorf("%w: ews: oauth2 auth needs a client id", roomsync.ErrConfig)
		}
		tokenURL := c.cfg.TokenURL
		if tokenURL == "" {
			tenant := c.cfg.TenantID
			if tenant == "" {
				tenant = "common"
			}
			tokenURL = fmt.Sprintf(office365TokenURL, tenant)
		}
		cc := clientcredentials.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: creds.Password,
			TokenURL:     tokenURL,
			Scopes:       []string{office365Scope},
		}
		// token refreshes outlive the caller's context
		tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, base)
		hc := cc.Client(tokenCtx)
		hc.Timeout = base.Timeout
		return hc, nil
	}
	return nil, fmt.Errorf("%w: unknown ews auth %q", roomsync.ErrConfig, c.cfg.Auth)
}

type basicAuthTransport struct {
	username string
	password string
	next     http.RoundTripper
}

func (t basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.next.RoundTrip(req)
}
