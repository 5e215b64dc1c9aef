package pack

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlanticdynamic/gridhost/internal/widget"
)

func sampleDefinition() *widget.Definition {
	created := time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC)
	return &widget.Definition{
		ID:                "def-original",
		Slug:              "github-prs",
		Name:              "GitHub PRs",
		Description:       "Open pull requests for a repository",
		SourceCode:        `function Widget() { return card({"title": "PRs"}, []) }`,
		ServerCode:        `{"count": 3}`,
		ServerCodeEnabled: true,
		DefaultWidth:      4,
		DefaultHeight:     2,
		MinWidth:          2,
		MinHeight:         1,

		RefreshIntervalSeconds: 300,
		Credentials: []widget.CredentialRequirement{{
			ID:       "github-token",
			Type:     widget.CredentialAPIKey,
			Provider: "github",
			Name:     "GitHub token",
		}},
		Setup: &widget.SetupConfig{
			Fields: []widget.SetupField{{Key: "repo", Label: "Repository", Type: "text", Required: true}},
		},
		Fetch: widget.FetchConfig{Type: widget.FetchServerCode},
		Cache: &widget.CacheConfig{TTLSeconds: 300, MaxStalenessSeconds: 900, OnError: widget.OnErrorUseStale},
		Schema: &widget.DataSchema{Fields: map[string]widget.FieldSpec{
			"count": {Type: "number", Required: true},
		}},

		Author:    "alex",
		Enabled:   true,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	def := sampleDefinition()

	encoded, err := Encode(def, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, Marker))

	pkg, err := Decode(encoded)
	require.NoError(t, err)

	// Identity is assigned at import time, never carried by the package.
	got := pkg.Definition(def.ID)
	assert.Equal(t, def, got)
}

func TestEncode_AuthorOverride(t *testing.T) {
	def := sampleDefinition()

	encoded, err := Encode(def, "sam")
	require.NoError(t, err)

	pkg, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "sam", pkg.Widget.Author)
}

func TestEncode_NeverContainsSecrets(t *testing.T) {
	def := sampleDefinition()

	encoded, err := Encode(def, "")
	require.NoError(t, err)

	pkg, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, pkg.Credentials, 1)
	// Only the requirement metadata travels: provider name, not a value.
	assert.Equal(t, "github", pkg.Credentials[0].Provider)
	assert.NotContains(t, encoded, "ghp_")
}

func TestDecode_RejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty string", "", ErrInvalidMarker},
		{"random text", "hello world", ErrInvalidMarker},
		{"wrong marker", "OTHERFORMAT.V1:abc", ErrInvalidMarker},
		{"future version", "GRIDWIDGET.V9:abc", ErrUnsupportedVersion},
		{"invalid base64", Marker + "!!!not-base64!!!", ErrMalformedPayload},
		{"valid base64, invalid json", Marker + "bm90IGpzb24", ErrMalformedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := Decode(tt.input)
			assert.Nil(t, pkg, "no partial package on failure")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecode_RejectsMissingFields(t *testing.T) {
	def := sampleDefinition()
	def.SourceCode = ""

	encoded, err := Encode(def, "")
	require.NoError(t, err)

	pkg, err := Decode(encoded)
	assert.Nil(t, pkg)
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "source_code")
}

func TestValidate_ServerCodeConsistency(t *testing.T) {
	def := sampleDefinition()
	def.ServerCode = ""

	encoded, err := Encode(def, "")
	require.NoError(t, err)
	pkg, err := Decode(encoded)
	require.NoError(t, err)

	res := Validate(t.Context(), pkg, nil)
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, strings.Join(res.Errors, "\n"), "server_code")
}

func TestValidate_UnconfiguredCredentialIsWarning(t *testing.T) {
	def := sampleDefinition()

	encoded, err := Encode(def, "")
	require.NoError(t, err)
	pkg, err := Decode(encoded)
	require.NoError(t, err)

	res := Validate(t.Context(), pkg, nil)
	assert.True(t, res.Valid, "missing credentials never block import")
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "github")
}
