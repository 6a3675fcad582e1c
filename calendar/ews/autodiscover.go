package ews

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/guilherme-santos/roomsync"
)

const nsAutodiscoverResponse = "http://schemas.microsoft.com/exchange/autodiscover/outlook/responseschema/2006a"

func defaultAutodiscoverURLs(domain string) []string {
	return []string{
		"https://autodiscover." + domain + "/autodiscover/autodiscover.xml",
		"https://" + domain + "/autodiscover/autodiscover.xml",
	}
}

type autodiscoverRequest struct {
	XMLName                  xml.Name `xml:"http://schemas.microsoft.com/exchange/autodiscover/outlook/requestschema/2006 Autodiscover"`
	EMailAddress             string   `xml:"Request>EMailAddress"`
	AcceptableResponseSchema string   `xml:"Request>AcceptableResponseSchema"`
}

type autodiscoverResponse struct {
	Response struct {
		Error *struct {
			ErrorCode string `xml:"ErrorCode"`
			Message   string `xml:"Message"`
		} `xml:"Error"`
		Account struct {
			Action       string `xml:"Action"`
			RedirectURL  string `xml:"RedirectUrl"`
			RedirectAddr string `xml:"RedirectAddr"`
			Protocols    []struct {
				Type   string `xml:"Type"`
				EwsURL string `xml:"EwsUrl"`
			} `xml:"Protocol"`
		} `xml:"Account"`
	} `xml:"Response"`
}

// ewsURL prefers the internal EXCH endpoint over the external EXPR one.
func (r *autodiscoverResponse) ewsURL() string {
	var expr string
	for _, p := range r.Response.Account.Protocols {
		switch {
		case p.Type == "EXCH" && p.EwsURL != "":
			return p.EwsURL
		case p.Type == "EXPR" && expr == "":
			expr = p.EwsURL
		}
	}
	return expr
}

const maxAutodiscoverHops = 10

// discover finds the EWS endpoint for email using POX autodiscover. The
// candidate URLs are tried in order; an authentication failure stops the
// search. A redirectUrl answer retries at the given URL and a redirectAddr
// answer restarts discovery for the new address, up to maxAutodiscoverHops.
func (c *Client) discover(ctx context.Context, hc *http.Client, email string) (string, error) {
	addr := email
	candidates, err := c.candidates(addr)
	if err != nil {
		return "", err
	}

	var errs []error
	hops := 0
	for len(candidates) > 0 {
		u := candidates[0]
		candidates = candidates[1:]

		ad, err := c.autodiscoverAt(ctx, hc, u, addr)
		if err != nil {
			if errors.Is(err, roomsync.ErrAuthentication) || ctx.Err() != nil {
				return "", err
			}
			c.log.Debug().Err(err).Str("autodiscover", u).Msg("autodiscover candidate failed")
			errs = append(errs, err)
			continue
		}

		account := ad.Response.Account
		switch {
		case strings.EqualFold(account.Action, "redirectUrl") && account.RedirectURL != "":
			if hops++; hops > maxAutodiscoverHops {
				return "", fmt.Errorf("%w: ews: autodiscover for %s: too many redirects", roomsync.ErrConfig, email)
			}
			c.log.Debug().Str("autodiscover", u).Str("redirect", account.RedirectURL).Msg("autodiscover redirected")
			candidates = []string{account.RedirectURL}
			continue

		case strings.EqualFold(account.Action, "redirectAddr") && account.RedirectAddr != "":
			if hops++; hops > maxAutodiscoverHops {
				return "", fmt.Errorf("%w: ews: autodiscover for %s: too many redirects", roomsync.ErrConfig, email)
			}
			c.log.Debug().Str("autodiscover", u).Str("address", account.RedirectAddr).Msg("autodiscover redirected")
			addr = account.RedirectAddr
			if candidates, err = c.candidates(addr); err != nil {
				return "", err
			}
			continue
		}

		ewsURL := ad.ewsURL()
		if ewsURL == "" {
			errs = append(errs, fmt.Errorf("autodiscover %s: no EWS endpoint for %s", u, addr))
			continue
		}
		c.log.Debug().Str("autodiscover", u).Str("url", ewsURL).Msg("discovered endpoint")
		return ewsURL, nil
	}
	return "", fmt.Errorf("%w: ews: autodiscover for %s failed: %w", roomsync.ErrConfig, email, errors.Join(errs...))
}

func (c *Client) candidates(email string) ([]string, error) {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return nil, fmt.Errorf("%w: ews: cannot autodiscover without a domain in %q", roomsync.ErrConfig, email)
	}
	return c.autodiscoverURLs(domain), nil
}

func (c *Client) autodiscoverAt(ctx context.Context, hc *http.Client, url, email string) (*autodiscoverResponse, error) {
	payload, err := xml.Marshal(autodiscoverRequest{
		EMailAddress:             email,
		AcceptableResponseSchema: nsAutodiscoverResponse,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: autodiscover %s: %s", roomsync.ErrAuthentication, url, resp.Status)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("autodiscover %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var ad autodiscoverResponse
	if err := xml.Unmarshal(body, &ad); err != nil {
		return nil, fmt.Errorf("autodiscover %s: %w", url, err)
	}
	if e := ad.Response.Error; e != nil {
		return nil, fmt.Errorf("autodiscover %s: %s: %s", url, e.ErrorCode, e.Message)
	}
	return &ad, nil
}
