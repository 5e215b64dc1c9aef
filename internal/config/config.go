// Package config loads and validates the gridhost daemon configuration.
//
// The daemon is configured with a single TOML file read at boot. Widget
// definitions are not part of this file; they live in the SQLite store and
// are managed through the HTTP boundary.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultListen                = ":7070"
	DefaultLogLevel              = "info"
	DefaultSandboxTimeoutSeconds = 10
	DefaultSandboxGraceMillis    = 500
	DefaultWebhookTimeoutSeconds = 5
	DefaultPendingWindowSeconds  = 300
)

// Config is the daemon configuration.
type Config struct {
	Listen   string        `toml:"listen"`
	LogLevel string        `toml:"log_level"`
	DBPath   string        `toml:"db_path"`
	Sandbox  SandboxConfig `toml:"sandbox"`
	Refresh  RefreshConfig `toml:"refresh"`

	// Credentials maps provider id to secret for the sandbox's credential
	// resolution. Values never leave the process; exported packages carry
	// only provider names.
	Credentials map[string]string `toml:"credentials"`
}

// SandboxConfig bounds server-side snippet execution.
type SandboxConfig struct {
	// TimeoutSeconds is the default per-invocation wall clock limit.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// GraceMillis extends the outer watchdog timer past the engine timeout.
	GraceMillis int `toml:"grace_millis"`
	// CacheDirs are the only directories readable through read_cache_file.
	CacheDirs []string `toml:"cache_dirs"`
}

// RefreshConfig controls the refresh request queue and its webhook notifier.
type RefreshConfig struct {
	// WebhookURL is the external refresh actor's endpoint. Empty disables
	// the notification; the durable request row is still written.
	WebhookURL string `toml:"webhook_url"`
	// TimeoutSeconds bounds the detached webhook call, independent of any
	// caller's request lifecycle.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// PendingWindowSeconds is the trailing window in which an unprocessed
	// refresh request still counts as pending.
	PendingWindowSeconds int `toml:"pending_window_seconds"`
}

// NewConfig loads a Config from a TOML file and applies defaults.
// Validation is a separate step so callers can report all problems at once.
func NewConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: file does not exist: %s", ErrFailedToLoadConfig, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadConfig, err)
	}

	return NewConfigFromBytes(data)
}

// NewConfigFromBytes parses TOML bytes and applies defaults.
func NewConfigFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadConfig, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Sandbox.TimeoutSeconds == 0 {
		c.Sandbox.TimeoutSeconds = DefaultSandboxTimeoutSeconds
	}
	if c.Sandbox.GraceMillis == 0 {
		c.Sandbox.GraceMillis = DefaultSandboxGraceMillis
	}
	if len(c.Sandbox.CacheDirs) == 0 {
		c.Sandbox.CacheDirs = []string{filepath.Join(os.TempDir(), "gridhost")}
	}
	if c.Refresh.TimeoutSeconds == 0 {
		c.Refresh.TimeoutSeconds = DefaultWebhookTimeoutSeconds
	}
	if c.Refresh.PendingWindowSeconds == 0 {
		c.Refresh.PendingWindowSeconds = DefaultPendingWindowSeconds
	}
}

// Validate checks the configuration, collecting all problems.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, ErrMissingListenAddr)
	}
	if c.DBPath == "" {
		errs = append(errs, ErrMissingDatabasePath)
	}
	if c.Sandbox.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("%w: sandbox timeout_seconds must not be negative", ErrInvalidTimeout))
	}
	if c.Sandbox.GraceMillis < 0 {
		errs = append(errs, fmt.Errorf("%w: sandbox grace_millis must not be negative", ErrInvalidTimeout))
	}
	for _, dir := range c.Sandbox.CacheDirs {
		if !filepath.IsAbs(dir) {
			errs = append(errs, fmt.Errorf("%w: %q is not absolute", ErrInvalidCacheDir, dir))
		}
	}
	if c.Refresh.WebhookURL != "" {
		u, err := url.Parse(c.Refresh.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidWebhookURL, c.Refresh.WebhookURL))
		}
	}
	if c.Refresh.TimeoutSeconds < 0 || c.Refresh.PendingWindowSeconds < 0 {
		errs = append(errs, fmt.Errorf("%w: refresh timers must not be negative", ErrInvalidTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrFailedToValidateConfig, errors.Join(errs...))
	}
	return nil
}

// SandboxTimeout returns the default sandbox timeout as a duration.
func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSeconds) * time.Second
}

// SandboxGrace returns the outer watchdog grace as a duration.
func (c *Config) SandboxGrace() time.Duration {
	return time.Duration(c.Sandbox.GraceMillis) * time.Millisecond
}

// WebhookTimeout returns the webhook notifier timeout as a duration.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Refresh.TimeoutSeconds) * time.Second
}

// PendingWindow returns the refresh pending window as a duration.
func (c *Config) PendingWindow() time.Duration {
	return time.Duration(c.Refresh.PendingWindowSeconds) * time.Second
}

func (c *Config) String() string {
	return fmt.Sprintf("Config(listen=%s, db=%s, sandbox_timeout=%s)",
		c.Listen, c.DBPath, c.SandboxTimeout())
}
