// Package widget defines the stored domain model for custom dashboard
// widgets: the reusable Definition, its placed Instances, and the
// configuration blocks that control fetching, caching, and credentials.
package widget

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// FetchType selects how a widget's data gets into the cache.
type FetchType string

const (
	// FetchServerCode runs the definition's server snippet in the sandbox.
	FetchServerCode FetchType = "server_code"
	// FetchWebhook expects an external system to push data in.
	FetchWebhook FetchType = "webhook"
	// FetchAgentRefresh expects an agent to write data through the cache
	// boundary, driven by the refresh request queue.
	FetchAgentRefresh FetchType = "agent_refresh"
)

// CredentialType classifies a credential requirement.
type CredentialType string

const (
	CredentialAPIKey        CredentialType = "api_key"
	CredentialLocalSoftware CredentialType = "local_software"
	CredentialOAuth         CredentialType = "oauth"
	CredentialAgent         CredentialType = "agent"
)

// ErrorPolicy selects behavior when an upstream refresh fails while a
// cached value exists.
type ErrorPolicy string

const (
	// OnErrorUseStale serves the last good entry annotated as degraded.
	OnErrorUseStale ErrorPolicy = "use_stale"
	// OnErrorShow surfaces the failure instead of any cached value.
	OnErrorShow ErrorPolicy = "show_error"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Definition is the stored, reusable template for a custom widget.
// Identity (ID) is immutable once created; the slug may be remapped only
// during import conflict resolution.
type Definition struct {
	ID                string `json:"id"`
	Slug              string `json:"slug"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	SourceCode        string `json:"source_code"`
	ServerCode        string `json:"server_code,omitempty"`
	ServerCodeEnabled bool   `json:"server_code_enabled,omitempty"`

	DefaultWidth  int `json:"default_width,omitempty"`
	DefaultHeight int `json:"default_height,omitempty"`
	MinWidth      int `json:"min_width,omitempty"`
	MinHeight     int `json:"min_height,omitempty"`

	RefreshIntervalSeconds int `json:"refresh_interval_seconds,omitempty"`

	Credentials []CredentialRequirement `json:"credentials,omitempty"`
	Setup       *SetupConfig            `json:"setup,omitempty"`
	Fetch       FetchConfig             `json:"fetch"`
	Cache       *CacheConfig            `json:"cache,omitempty"`
	Schema      *DataSchema             `json:"schema,omitempty"`

	Author    string    `json:"author,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialRequirement names a secret the widget needs. It is not itself
// a secret; values live in the external credential store keyed by Provider.
type CredentialRequirement struct {
	ID          string         `json:"id"`
	Type        CredentialType `json:"type"`
	Provider    string         `json:"provider"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	// VerifyURL is optional metadata for checking that the credential works.
	VerifyURL string `json:"verify_url,omitempty"`
}

// SetupConfig describes per-instance setup the dashboard collects before
// the widget first renders.
type SetupConfig struct {
	Instructions string       `json:"instructions,omitempty"`
	Fields       []SetupField `json:"fields,omitempty"`
}

// SetupField is one input in the setup form.
type SetupField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Default  string `json:"default,omitempty"`
}

// FetchConfig selects the fetch strategy for a definition.
type FetchConfig struct {
	Type FetchType `json:"type"`
	// ExpectedFreshnessSeconds hints how often an agent_refresh widget's
	// data is expected to change; used for TTL derivation.
	ExpectedFreshnessSeconds int `json:"expected_freshness_seconds,omitempty"`
}

// CacheConfig tunes freshness classification and error fallback.
type CacheConfig struct {
	TTLSeconds          int         `json:"ttl_seconds,omitempty"`
	MaxStalenessSeconds int         `json:"max_staleness_seconds,omitempty"`
	OnError             ErrorPolicy `json:"on_error,omitempty"`
}

// Instance is one placement of a Definition on a dashboard. Every instance
// owns its own cache entry even when several reference the same definition.
type Instance struct {
	ID           string `json:"id"`
	DefinitionID string `json:"definition_id,omitempty"`
	// BuiltinType is set instead of DefinitionID for built-in widgets.
	BuiltinType string    `json:"builtin_type,omitempty"`
	X           int       `json:"x"`
	Y           int       `json:"y"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the definition, collecting all problems.
func (d *Definition) Validate() error {
	var errs []error

	if d.ID == "" {
		errs = append(errs, ErrEmptyID)
	}
	if d.Slug == "" {
		errs = append(errs, ErrEmptySlug)
	} else if !slugRe.MatchString(d.Slug) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidSlug, d.Slug))
	}
	if d.Name == "" {
		errs = append(errs, ErrEmptyName)
	}
	if d.SourceCode == "" {
		errs = append(errs, ErrEmptySourceCode)
	}
	if d.ServerCodeEnabled && d.ServerCode == "" {
		errs = append(errs, ErrMissingServerCode)
	}
	if err := d.Fetch.Validate(); err != nil {
		errs = append(errs, err)
	}
	if d.Cache != nil {
		if err := d.Cache.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for i, cr := range d.Credentials {
		if err := cr.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("credential[%d]: %w", i, err))
		}
	}
	if d.RefreshIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("%w: refresh interval must not be negative", ErrInvalidValue))
	}

	return errors.Join(errs...)
}

// String returns a short identifier for logs.
func (d *Definition) String() string {
	if d == nil {
		return "Definition(nil)"
	}
	return fmt.Sprintf("Definition(%s slug=%s fetch=%s)", d.ID, d.Slug, d.Fetch.Type)
}

// RefreshInterval returns the poll interval as a duration.
func (d *Definition) RefreshInterval() time.Duration {
	return time.Duration(d.RefreshIntervalSeconds) * time.Second
}

// Validate checks the fetch config.
func (f FetchConfig) Validate() error {
	switch f.Type {
	case FetchServerCode, FetchWebhook, FetchAgentRefresh:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFetchType, f.Type)
	}
	if f.ExpectedFreshnessSeconds < 0 {
		return fmt.Errorf("%w: expected freshness must not be negative", ErrInvalidValue)
	}
	return nil
}

// Validate checks the cache config.
func (c *CacheConfig) Validate() error {
	var errs []error
	if c.TTLSeconds < 0 || c.MaxStalenessSeconds < 0 {
		errs = append(errs, fmt.Errorf("%w: cache durations must not be negative", ErrInvalidValue))
	}
	switch c.OnError {
	case "", OnErrorUseStale, OnErrorShow:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidErrorPolicy, c.OnError))
	}
	return errors.Join(errs...)
}

// Validate checks a credential requirement.
func (cr CredentialRequirement) Validate() error {
	var errs []error
	if cr.ID == "" {
		errs = append(errs, ErrEmptyID)
	}
	if cr.Provider == "" {
		errs = append(errs, fmt.Errorf("%w: empty provider", ErrInvalidValue))
	}
	switch cr.Type {
	case CredentialAPIKey, CredentialLocalSoftware, CredentialOAuth, CredentialAgent:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidCredentialType, cr.Type))
	}
	return errors.Join(errs...)
}
