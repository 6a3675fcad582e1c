package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guilherme-santos/roomsync"
	"github.com/guilherme-santos/roomsync/internal/publisher"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", env(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "ews" || cfg.EWS.Auth != "ntlm" {
		t.Errorf("unexpected provider defaults %+v", cfg)
	}
	if cfg.Publish.BaseURL != publisher.DefaultBaseURL || cfg.Publish.Interval != publisher.DefaultInterval {
		t.Errorf("unexpected publish defaults %+v", cfg.Publish)
	}
	if len(cfg.Calendars) != 2 || cfg.Calendars[0] != "5335-395" || cfg.Calendars[1] != "5335-327" {
		t.Errorf("unexpected calendars %v", cfg.Calendars)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomsync.yaml")
	err := os.WriteFile(path, []byte(`
provider: EWS
email_address: bot@uni.example
password: pass:au
ews:
  url: https://mail.uni.example/EWS/Exchange.asmx
  auth: basic
calendars: [A, B, C]
publish:
  base_url: https://file.example
  interval: 5m
  schedule: "*/10 7-16 * * 1-5"
  journal: /var/lib/roomsync.db
`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, env(map[string]string{
		"LUNCHCLUB_URL":   "https://env.example",
		"LUNCHCLUB_TOKEN": "tok",
		"ROOMSYNC_AUTH":   "",
	}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		got, want any
	}{
		{"provider", cfg.Provider, "ews"},
		{"email", cfg.EmailAddress, "bot@uni.example"},
		{"password", cfg.Password, "pass:au"},
		{"ews url", cfg.EWS.URL, "https://mail.uni.example/EWS/Exchange.asmx"},
		{"auth from file, empty env ignored", cfg.EWS.Auth, "basic"},
		{"calendars", len(cfg.Calendars), 3},
		{"base url from env", cfg.Publish.BaseURL, "https://env.example"},
		{"token from env", cfg.Publish.Token, "tok"},
		{"interval", cfg.Publish.Interval, 5 * time.Minute},
		{"schedule", cfg.Publish.Schedule, "*/10 7-16 * * 1-5"},
		{"journal", cfg.Publish.Journal, "/var/lib/roomsync.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("calendars: {"), 0o600)

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), bad} {
		if _, err := Load(path, env(nil)); !errors.Is(err, roomsync.ErrConfig) {
			t.Errorf("%s: expected configuration error, got %v", path, err)
		}
	}
}
