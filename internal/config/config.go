// Package config loads and stores idkeeper configuration in the XDG config dir.
// Only non-secret settings are kept here; the session credential goes to the OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"idkeeper/cli/internal/xdg"
)

// Config holds non-sensitive idkeeper settings.
type Config struct {
	// ServiceURL is the identity provider base URL (e.g. "https://id.example.com").
	ServiceURL string `json:"service_url"`
	// Discovery enables fetching endpoint paths from the provider manifest.
	Discovery bool      `json:"discovery"`
	Endpoints Endpoints `json:"endpoints"`

	Keyring KeyringConfig `json:"keyring"`
	Session SessionConfig `json:"session"`

	Reachability ReachabilityConfig `json:"reachability"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// JournalDSN is an optional Postgres DSN receiving session events.
	JournalDSN string `json:"journal_dsn,omitempty"`
	// MetricsAddr is an optional listen address for the Prometheus endpoint.
	MetricsAddr string `json:"metrics_addr,omitempty"`
	// EventsAddr is an optional listen address for the WebSocket event stream.
	EventsAddr string `json:"events_addr,omitempty"`
}

// Endpoints contains provider REST paths relative to ServiceURL.
type Endpoints struct {
	Login    string `json:"login"`
	Validate string `json:"validate"`
	Account  string `json:"account"`
	Revoke   string `json:"revoke"`
}

// KeyringConfig selects and scopes the OS secret store.
type KeyringConfig struct {
	// Service namespaces every item (keychain service, wincred prefix, pass prefix).
	Service string `json:"service"`
	// AccessGroup is the account scope the session record is stored under.
	AccessGroup string `json:"access_group"`
	// Backends restricts keyring backends ("keychain", "wincred", "secret-service",
	// "kwallet", "pass", "file"). Empty means platform defaults.
	Backends []string `json:"backends,omitempty"`
	// FileDir overrides the directory used by the "file" backend.
	FileDir string `json:"file_dir,omitempty"`
}

// SessionConfig tunes the session controller.
type SessionConfig struct {
	// StalenessThreshold is the age after which a validated session is checked
	// again on a restored connection. Zero revalidates on every restore.
	StalenessThreshold Duration `json:"staleness_threshold"`
	// OptimisticLogin accepts a login whose validation failed for network reasons.
	OptimisticLogin bool `json:"optimistic_login"`
	// LoginTimeout bounds a non-optimistic login waiting for the network.
	LoginTimeout Duration `json:"login_timeout"`
	// RequestTimeout bounds every provider request.
	RequestTimeout Duration `json:"request_timeout"`
}

// ReachabilityConfig selects how connectivity is observed.
type ReachabilityConfig struct {
	// Mode is "http" (probe ServiceURL), "grpc" (watch a gRPC channel) or "none".
	Mode string `json:"mode"`
	// Target overrides the probed URL or the gRPC target.
	Target   string   `json:"target,omitempty"`
	Interval Duration `json:"interval"`
}

// Duration is a time.Duration encoded as a Go duration string in JSON.
type Duration struct {
	time.Duration
}

// MarshalJSON encodes the duration as a string such as "1m30s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = v
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ServiceURL: "https://id.example.com",
		Endpoints: Endpoints{
			Login:    "/login",
			Validate: "/api/v1/session/validate",
			Account:  "/api/v1/account",
			Revoke:   "/api/v1/session/logout",
		},
		Keyring: KeyringConfig{
			Service:     xdg.AppName,
			AccessGroup: "default",
		},
		Session: SessionConfig{
			StalenessThreshold: Duration{0},
			OptimisticLogin:    true,
			LoginTimeout:       Duration{2 * time.Minute},
			RequestTimeout:     Duration{10 * time.Second},
		},
		Reachability: ReachabilityConfig{
			Mode:     "http",
			Interval: Duration{15 * time.Second},
		},
		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults. Environment
// overrides are applied last in both cases.
func Load() (Config, error) {
	c := Default()
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, err
	}
	if err == nil {
		if err := json.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", p, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// Validate reports settings that would make the controller misbehave.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceURL) == "" {
		return errors.New("service_url is required")
	}
	if c.Keyring.Service == "" || c.Keyring.AccessGroup == "" {
		return errors.New("keyring.service and keyring.access_group are required")
	}
	if c.Session.StalenessThreshold.Duration < 0 {
		return errors.New("session.staleness_threshold must not be negative")
	}
	switch c.Reachability.Mode {
	case "http", "grpc", "none":
	default:
		return fmt.Errorf("unknown reachability.mode %q", c.Reachability.Mode)
	}
	return nil
}

// applyEnv overrides settings from IDKEEPER_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		dst.Duration = d
		return nil
	}

	str("IDKEEPER_SERVICE_URL", &c.ServiceURL)
	str("IDKEEPER_KEYRING_SERVICE", &c.Keyring.Service)
	str("IDKEEPER_ACCESS_GROUP", &c.Keyring.AccessGroup)
	str("IDKEEPER_KEYRING_FILE_DIR", &c.Keyring.FileDir)
	str("IDKEEPER_REACHABILITY", &c.Reachability.Mode)
	str("IDKEEPER_REACHABILITY_TARGET", &c.Reachability.Target)
	str("IDKEEPER_LOG_LEVEL", &c.LogLevel)
	str("IDKEEPER_LOG_FORMAT", &c.LogFormat)
	str("IDKEEPER_JOURNAL_DSN", &c.JournalDSN)
	str("IDKEEPER_METRICS_ADDR", &c.MetricsAddr)
	str("IDKEEPER_EVENTS_ADDR", &c.EventsAddr)

	if v, ok := lookup("IDKEEPER_KEYRING_BACKENDS"); ok && v != "" {
		c.Keyring.Backends = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Keyring.Backends = append(c.Keyring.Backends, b)
			}
		}
	}
	if v, ok := lookup("IDKEEPER_OPTIMISTIC_LOGIN"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IDKEEPER_OPTIMISTIC_LOGIN: %w", err)
		}
		c.Session.OptimisticLogin = b
	}
	if v, ok := lookup("IDKEEPER_DISCOVERY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IDKEEPER_DISCOVERY: %w", err)
		}
		c.Discovery = b
	}

	for key, dst := range map[string]*Duration{
		"IDKEEPER_STALENESS_THRESHOLD": &c.Session.StalenessThreshold,
		"IDKEEPER_LOGIN_TIMEOUT":       &c.Session.LoginTimeout,
		"IDKEEPER_REQUEST_TIMEOUT":     &c.Session.RequestTimeout,
		"IDKEEPER_REACHABILITY_EVERY":  &c.Reachability.Interval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}
