package ews

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"github.com/guilherme-santos/roomsync"
)

const (
	nsSOAP     = "http://schemas.xmlsoap.org/soap/envelope/"
	nsTypes    = "http://schemas.microsoft.com/exchange/services/2006/types"
	nsMessages = "http://schemas.microsoft.com/exchange/services/2006/messages"
)

type requestEnvelope struct {
	XMLName    xml.Name      `xml:"soap:Envelope"`
	XMLNSSoap  string        `xml:"xmlns:soap,attr"`
	XMLNSTypes string        `xml:"xmlns:t,attr"`
	XMLNSMsgs  string        `xml:"xmlns:m,attr"`
	Header     requestHeader `xml:"soap:Header"`
	Body       requestBody   `xml:"soap:Body"`
}

type requestHeader struct {
	Version       serverVersion          `xml:"t:RequestServerVersion"`
	Impersonation *exchangeImpersonation `xml:"t:ExchangeImpersonation,omitempty"`
}

type serverVersion struct {
	Version string `xml:"Version,attr"`
}

type exchangeImpersonation struct {
	PrimarySmtpAddress string `xml:"t:ConnectingSID>t:PrimarySmtpAddress"`
}

type requestBody struct {
	Operation any
}

type responseEnvelope struct {
	Body responseBody `xml:"Body"`
}

type responseBody struct {
	Fault   *soapFault `xml:"Fault"`
	Content []byte     `xml:",innerxml"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail struct {
		ResponseCode string `xml:"ResponseCode"`
		Message      string `xml:"Message"`
	} `xml:"detail"`
}

func (f *soapFault) Error() string {
	if f.Detail.ResponseCode != "" {
		return fmt.Sprintf("ews: soap fault %s: %s", f.Detail.ResponseCode, f.String)
	}
	return fmt.Sprintf("ews: soap fault %s: %s", f.Code, f.String)
}

func (f *soapFault) Unwrap() error {
	return kindOf(f.Detail.ResponseCode, nil)
}

// call posts op inside a SOAP envelope and decodes the body of the response
// into out.
func (s *session) call(ctx context.Context, op, out any) error {
	env := requestEnvelope{
		XMLNSSoap:  nsSOAP,
		XMLNSTypes: nsTypes,
		XMLNSMsgs:  nsMessages,
		Header:     requestHeader{Version: serverVersion{s.version}},
		Body:       requestBody{op},
	}
	if s.impersonate != "" {
		env.Header.Impersonation = &exchangeImpersonation{s.impersonate}
	}

	payload, err := xml.Marshal(env)
	if err != nil {
		return fmt.Errorf("ews: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return fmt.Errorf("ews: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Accept", "text/xml")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("ews: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: ews: %s", roomsync.ErrAuthentication, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ews: reading response: %w", err)
	}

	var renv responseEnvelope
	if err := xml.Unmarshal(body, &renv); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("ews: %s", resp.Status)
		}
		return fmt.Errorf("ews: decoding response: %w", err)
	}
	if renv.Body.Fault != nil {
		return renv.Body.Fault
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ews: %s", resp.Status)
	}

	if err := xml.Unmarshal(renv.Body.Content, out); err != nil {
		return fmt.Errorf("ews: decoding response body: %w", err)
	}
	return nil
}

type responseMessage struct {
	ResponseClass string `xml:"ResponseClass,attr"`
	ResponseCode  string `xml:"ResponseCode"`
	MessageText   string `xml:"MessageText"`
}

// err returns a *ResponseError for anything but a successful message.
// Warnings are tolerated. fallback classifies codes kindOf does not know.
func (m responseMessage) err(fallback error) error {
	if m.ResponseClass != "Error" && (m.ResponseCode == "" || m.ResponseCode == "NoError" || m.ResponseClass == "Warning") {
		return nil
	}
	return &ResponseError{
		Class: m.ResponseClass,
		Code:  m.ResponseCode,
		Text:  m.MessageText,
		kind:  kindOf(m.ResponseCode, fallback),
	}
}

// ResponseError is a failed EWS response message.
type ResponseError struct {
	Class string
	Code  string
	Text  string

	kind error
}

func (e *ResponseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("ews: %s", e.Code)
	}
	return fmt.Sprintf("ews: %s: %s", e.Code, e.Text)
}

func (e *ResponseError) Unwrap() error {
	return e.kind
}

func kindOf(code string, fallback error) error {
	switch code {
	case "ErrorAccessDenied", "ErrorImpersonateUserDenied", "ErrorImpersonationDenied":
		return roomsync.ErrAuthentication
	case "ErrorNameResolutionMultipleResults":
		return roomsync.ErrAmbiguousName
	case "ErrorNameResolutionNoResults", "ErrorNonExistentMailbox", "ErrorFolderNotFound":
		return roomsync.ErrNotFound
	}
	return fallback
}
