// Package config loads roomsync settings. Values come from built-in
// defaults, then an optional YAML file, then the environment; command line
// flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guilherme-santos/roomsync"
	"github.com/guilherme-santos/roomsync/internal/publisher"
)

var DefaultCalendars = []string{"5335-395", "5335-327"}

type Config struct {
	// Provider is one of ews, google or caldav.
	Provider string `yaml:"provider"`

	EmailAddress string `yaml:"email_address"`
	Username     string `yaml:"username"`
	// Password is a secret reference: env:NAME, pass:KEY or the literal
	// password.
	Password string `yaml:"password"`

	EWS    EWSConfig    `yaml:"ews"`
	Google GoogleConfig `yaml:"google"`
	CalDAV CalDAVConfig `yaml:"caldav"`

	Calendars []string      `yaml:"calendars"`
	Publish   PublishConfig `yaml:"publish"`
}

type EWSConfig struct {
	// URL skips autodiscovery when set.
	URL  string `yaml:"url"`
	Auth string `yaml:"auth"`

	ClientID string `yaml:"client_id"`
	TenantID string `yaml:"tenant_id"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

type CalDAVConfig struct {
	URL string `yaml:"url"`
}

type PublishConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Token           string        `yaml:"token"`
	Interval        time.Duration `yaml:"interval"`
	Schedule        string        `yaml:"schedule"`
	IsolateFailures bool          `yaml:"isolate_failures"`
	// Journal is the path of the sqlite delivery journal. Empty disables it.
	Journal string `yaml:"journal"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider:  "ews",
		EWS:       EWSConfig{Auth: "ntlm"},
		Calendars: append([]string(nil), DefaultCalendars...),
		Publish: PublishConfig{
			BaseURL:  publisher.DefaultBaseURL,
			Interval: publisher.DefaultInterval,
		},
	}
}

// Normalize fills in zero values with defaults.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(c.Provider)
	if c.Provider == "" {
		c.Provider = "ews"
	}
	if c.EWS.Auth == "" {
		c.EWS.Auth = "ntlm"
	}
	if len(c.Calendars) == 0 {
		c.Calendars = append([]string(nil), DefaultCalendars...)
	}
	if c.Publish.BaseURL == "" {
		c.Publish.BaseURL = publisher.DefaultBaseURL
	}
	if c.Publish.Interval <= 0 {
		c.Publish.Interval = publisher.DefaultInterval
	}
}

// Load reads the YAML file at path on top of the defaults and applies the
// environment. An empty path skips the file.
func Load(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: config file %s does not exist", roomsync.ErrConfig, path)
			}
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", roomsync.ErrConfig, path, err)
		}
	}

	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	cfg.applyEnv(lookupEnv)
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) {
	set := func(dst *string, name string) {
		if v, ok := lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Publish.BaseURL, "LUNCHCLUB_URL")
	set(&c.Publish.Token, "LUNCHCLUB_TOKEN")
	set(&c.Provider, "ROOMSYNC_PROVIDER")
	set(&c.EWS.URL, "ROOMSYNC_EWS_URL")
	set(&c.EWS.Auth, "ROOMSYNC_AUTH")
	set(&c.CalDAV.URL, "ROOMSYNC_CALDAV_URL")
}
