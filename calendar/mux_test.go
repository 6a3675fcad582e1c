package calendar

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/guilherme-santos/roomsync"
)

type nopProvider struct{}

func (nopProvider) Authenticate(context.Context, roomsync.Credentials) (roomsync.Session, error) {
	return nil, nil
}

func TestMux(t *testing.T) {
	mux := NewMux()
	mux.Register("google", nopProvider{})
	mux.Register("ews", nopProvider{})

	if _, err := mux.Get("ews"); err != nil {
		t.Errorf("Get(ews) error = %v", err)
	}
	if _, err := mux.Get("outlook"); !errors.Is(err, roomsync.ErrConfig) {
		t.Errorf("Get(outlook) error = %v, want ErrConfig", err)
	}
	if got, want := mux.Providers(), []string{"ews", "google"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Providers() = %v, want %v", got, want)
	}
}
