// Package pack serializes widget definitions into versioned, shareable
// package strings and imports them back, resolving slug conflicts by
// caller-selected policy.
//
// A package is transient: it exists only at the system boundary and is
// never persisted. It carries the definition and its requirement
// metadata; credential requirements name providers but never contain
// secret values.
package pack

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atlanticdynamic/gridhost/internal/widget"
)

// Marker prefixes every encoded package. The version is part of the
// marker so a reader can reject future formats before touching the
// payload.
const Marker = "GRIDWIDGET.V1:"

// FormatVersion is the payload schema version carried inside the package.
const FormatVersion = 1

// Package is the decoded form of a shareable widget definition.
type Package struct {
	FormatVersion int           `json:"format_version"`
	Widget        PackageWidget `json:"widget"`

	Credentials []widget.CredentialRequirement `json:"credentials,omitempty"`
	Setup       *widget.SetupConfig            `json:"setup,omitempty"`
	Fetch       widget.FetchConfig             `json:"fetch"`
	Cache       *widget.CacheConfig            `json:"cache,omitempty"`
	Schema      *widget.DataSchema             `json:"schema,omitempty"`
}

// PackageWidget is the widget metadata and body inside a package.
type PackageWidget struct {
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	SourceCode        string `json:"source_code"`
	ServerCode        string `json:"server_code,omitempty"`
	ServerCodeEnabled bool   `json:"server_code_enabled,omitempty"`

	DefaultWidth  int `json:"default_width,omitempty"`
	DefaultHeight int `json:"default_height,omitempty"`
	MinWidth      int `json:"min_width,omitempty"`
	MinHeight     int `json:"min_height,omitempty"`

	RefreshIntervalSeconds int `json:"refresh_interval_seconds,omitempty"`
}

// Encode serializes a definition into a package string. author, when
// non-empty, overrides the definition's stored author in the package
// metadata. The definition's id is deliberately excluded: identity is
// assigned by the importing system, never shipped.
func Encode(def *widget.Definition, author string) (string, error) {
	if author == "" {
		author = def.Author
	}
	pkg := Package{
		FormatVersion: FormatVersion,
		Widget: PackageWidget{
			Name:        def.Name,
			Slug:        def.Slug,
			Description: def.Description,
			Author:      author,
			CreatedAt:   def.CreatedAt,
			UpdatedAt:   def.UpdatedAt,

			SourceCode:        def.SourceCode,
			ServerCode:        def.ServerCode,
			ServerCodeEnabled: def.ServerCodeEnabled,

			DefaultWidth:  def.DefaultWidth,
			DefaultHeight: def.DefaultHeight,
			MinWidth:      def.MinWidth,
			MinHeight:     def.MinHeight,

			RefreshIntervalSeconds: def.RefreshIntervalSeconds,
		},
		Credentials: def.Credentials,
		Setup:       def.Setup,
		Fetch:       def.Fetch,
		Cache:       def.Cache,
		Schema:      def.Schema,
	}

	payload, err := json.Marshal(pkg)
	if err != nil {
		return "", fmt.Errorf("failed to encode package: %w", err)
	}
	return Marker + base64.RawURLEncoding.EncodeToString(payload), nil
}

// Decode parses and structurally validates a package string. On any
// failure it returns an error and no partial package.
func Decode(s string) (*Package, error) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, Marker)
	if !ok {
		if v, future := futureVersion(s); future {
			return nil, fmt.Errorf("%w: V%d", ErrUnsupportedVersion, v)
		}
		return nil, ErrInvalidMarker
	}

	payload, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var pkg Package
	if err := json.Unmarshal(payload, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if pkg.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: payload version %d", ErrUnsupportedVersion, pkg.FormatVersion)
	}

	var missing []string
	if pkg.Widget.Name == "" {
		missing = append(missing, "widget.name")
	}
	if pkg.Widget.Slug == "" {
		missing = append(missing, "widget.slug")
	}
	if pkg.Widget.SourceCode == "" {
		missing = append(missing, "widget.source_code")
	}
	if pkg.Fetch.Type == "" {
		missing = append(missing, "fetch.type")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	return &pkg, nil
}

// futureVersion detects a well-formed marker with a version newer than
// this reader understands, so the error can say so instead of claiming
// the string is not a package at all.
func futureVersion(s string) (int, bool) {
	rest, ok := strings.CutPrefix(s, "GRIDWIDGET.V")
	if !ok {
		return 0, false
	}
	head, _, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, false
	}
	var v int
	if _, err := fmt.Sscanf(head, "%d", &v); err != nil {
		return 0, false
	}
	return v, v > FormatVersion
}

// Definition materializes the package as a definition with the given
// id. Enabled defaults to true; the caller stamps timestamps for new
// rows.
func (p *Package) Definition(id string) *widget.Definition {
	return &widget.Definition{
		ID:          id,
		Slug:        p.Widget.Slug,
		Name:        p.Widget.Name,
		Description: p.Widget.Description,

		SourceCode:        p.Widget.SourceCode,
		ServerCode:        p.Widget.ServerCode,
		ServerCodeEnabled: p.Widget.ServerCodeEnabled,

		DefaultWidth:  p.Widget.DefaultWidth,
		DefaultHeight: p.Widget.DefaultHeight,
		MinWidth:      p.Widget.MinWidth,
		MinHeight:     p.Widget.MinHeight,

		RefreshIntervalSeconds: p.Widget.RefreshIntervalSeconds,

		Credentials: p.Credentials,
		Setup:       p.Setup,
		Fetch:       p.Fetch,
		Cache:       p.Cache,
		Schema:      p.Schema,

		Author:    p.Widget.Author,
		Enabled:   true,
		CreatedAt: p.Widget.CreatedAt,
		UpdatedAt: p.Widget.UpdatedAt,
	}
}
