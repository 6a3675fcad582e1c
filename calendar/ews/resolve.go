package ews

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/guilherme-santos/roomsync"
)

type resolveNamesRequest struct {
	XMLName               xml.Name `xml:"m:ResolveNames"`
	ReturnFullContactData bool     `xml:"ReturnFullContactData,attr"`
	SearchScope           string   `xml:"SearchScope,attr"`
	UnresolvedEntry       string   `xml:"m:UnresolvedEntry"`
}

type resolveNamesResponse struct {
	Messages []resolveNamesMessage `xml:"ResponseMessages>ResolveNamesResponseMessage"`
}

type resolveNamesMessage struct {
	responseMessage
	Resolutions []resolution `xml:"ResolutionSet>Resolution"`
}

type resolution struct {
	Mailbox mailbox `xml:"Mailbox"`
}

type mailbox struct {
	Name         string `xml:"Name"`
	EmailAddress string `xml:"EmailAddress"`
	RoutingType  string `xml:"RoutingType"`
	MailboxType  string `xml:"MailboxType"`
}

// ResolveName resolves a display name such as "5335-395" against the
// directory. Exactly one mailbox must match.
func (s *session) ResolveName(ctx context.Context, name string) (roomsync.Mailbox, error) {
	req := resolveNamesRequest{
		ReturnFullContactData: false,
		SearchScope:           "ActiveDirectory",
		UnresolvedEntry:       name,
	}
	var resp resolveNamesResponse
	if err := s.call(ctx, &req, &resp); err != nil {
		return roomsync.Mailbox{}, fmt.Errorf("resolving %q: %w", name, err)
	}
	if len(resp.Messages) != 1 {
		return roomsync.Mailbox{}, fmt.Errorf("%w: resolving %q: got %d response messages", roomsync.ErrResolution, name, len(resp.Messages))
	}

	msg := resp.Messages[0]
	if err := msg.err(roomsync.ErrResolution); err != nil {
		return roomsync.Mailbox{}, fmt.Errorf("resolving %q: %w", name, err)
	}

	switch n := len(msg.Resolutions); {
	case n == 0:
		return roomsync.Mailbox{}, fmt.Errorf("%w: %q", roomsync.ErrNotFound, name)
	case n > 1:
		return roomsync.Mailbox{}, fmt.Errorf("%w: %q matches %d mailboxes", roomsync.ErrAmbiguousName, name, n)
	}

	mb := msg.Resolutions[0].Mailbox
	if mb.EmailAddress == "" {
		return roomsync.Mailbox{}, fmt.Errorf("%w: %q resolved to a contact without a mailbox", roomsync.ErrResolution, name)
	}
	s.client.log.Debug().Str("name", name).Str("email", mb.EmailAddress).Msg("resolved name")
	return roomsync.Mailbox{Name: mb.Name, EmailAddress: mb.EmailAddress}, nil
}
