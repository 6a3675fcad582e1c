package roomsync

import (
	"errors"
	"fmt"
)

var (
	ErrConfig         = errors.New("configuration error")
	ErrExternalTool   = errors.New("external tool failed")
	ErrAmbiguousName  = errors.New("name resolves to more than one mailbox")
	ErrNotFound       = errors.New("name not found")
	ErrResolution     = errors.New("name resolution failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrTypeCheck      = errors.New("not a calendar date")
)

// DeliveryError is returned when the destination answers a publish with a
// status code of 300 or above.
type DeliveryError struct {
	StatusCode int
	Status     string
}

func (e *DeliveryError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %d (%s)", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}
