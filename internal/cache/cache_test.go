package cache

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlanticdynamic/gridhost/internal/store"
	"github.com/atlanticdynamic/gridhost/internal/widget"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	ttl := 300 * time.Second
	maxStale := 900 * time.Second

	tests := []struct {
		age  time.Duration
		want Freshness
	}{
		{200 * time.Second, Fresh},
		{300 * time.Second, Fresh},
		{500 * time.Second, Stale},
		{900 * time.Second, Stale},
		{1000 * time.Second, Expired},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.age, ttl, maxStale), "age %s", tt.age)
	}
}

func TestClassify_DefaultMaxStaleIsTripleTTL(t *testing.T) {
	t.Parallel()
	ttl := 100 * time.Second

	assert.Equal(t, Stale, Classify(250*time.Second, ttl, 0))
	assert.Equal(t, Stale, Classify(300*time.Second, ttl, 0))
	assert.Equal(t, Expired, Classify(301*time.Second, ttl, 0))
}

func TestClassify_MonotonicInAge(t *testing.T) {
	t.Parallel()
	rank := map[Freshness]int{Fresh: 0, Stale: 1, Expired: 2}

	prev := Fresh
	for age := time.Duration(0); age <= 2000*time.Second; age += 7 * time.Second {
		got := Classify(age, 300*time.Second, 900*time.Second)
		require.GreaterOrEqual(t, rank[got], rank[prev],
			"classification regressed at age %s", age)
		prev = got
	}
}

func TestFreshnessTTL_Derivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		def  *widget.Definition
		want time.Duration
	}{
		{
			name: "explicit ttl wins",
			def: &widget.Definition{
				Fetch:                  widget.FetchConfig{Type: widget.FetchAgentRefresh, ExpectedFreshnessSeconds: 60},
				Cache:                  &widget.CacheConfig{TTLSeconds: 120, MaxStalenessSeconds: 600},
				RefreshIntervalSeconds: 30,
			},
			want: 120 * time.Second,
		},
		{
			name: "agent refresh uses max staleness",
			def: &widget.Definition{
				Fetch: widget.FetchConfig{Type: widget.FetchAgentRefresh},
				Cache: &widget.CacheConfig{MaxStalenessSeconds: 600},
			},
			want: 600 * time.Second,
		},
		{
			name: "agent refresh falls back to triple expected freshness",
			def: &widget.Definition{
				Fetch: widget.FetchConfig{Type: widget.FetchAgentRefresh, ExpectedFreshnessSeconds: 60},
			},
			want: 180 * time.Second,
		},
		{
			name: "otherwise refresh interval",
			def: &widget.Definition{
				Fetch:                  widget.FetchConfig{Type: widget.FetchServerCode},
				RefreshIntervalSeconds: 45,
			},
			want: 45 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FreshnessTTL(tt.def))
		})
	}
}

func TestStorageTTL_MaxStalenessOverrides(t *testing.T) {
	t.Parallel()

	def := &widget.Definition{
		Fetch: widget.FetchConfig{Type: widget.FetchServerCode},
		Cache: &widget.CacheConfig{TTLSeconds: 300, MaxStalenessSeconds: 900},
	}
	assert.Equal(t, 900*time.Second, StorageTTL(def))

	def.Cache.MaxStalenessSeconds = 0
	assert.Equal(t, 300*time.Second, StorageTTL(def))
}

// --- service tests over a real store ---

type fixture struct {
	store *store.Store
	svc   *Service
	def   *widget.Definition
	now   time.Time
}

func newFixture(t *testing.T, instanceCount int) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	def := &widget.Definition{
		ID:         "def-1",
		Slug:       "server-load",
		Name:       "Server load",
		SourceCode: `function Widget() { return stat({"value": 1}, []) }`,
		Fetch:      widget.FetchConfig{Type: widget.FetchAgentRefresh},
		Cache:      &widget.CacheConfig{TTLSeconds: 300, MaxStalenessSeconds: 900, OnError: widget.OnErrorUseStale},
		Schema: &widget.DataSchema{Fields: map[string]widget.FieldSpec{
			"load": {Type: "number", Required: true},
		}},
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx := context.Background()
	require.NoError(t, s.Definitions.Create(ctx, def))
	for i := 0; i < instanceCount; i++ {
		require.NoError(t, s.Instances.Create(ctx, &widget.Instance{
			ID: "inst-" + string(rune('a'+i)), DefinitionID: def.ID,
			Width: 2, Height: 2, CreatedAt: now,
		}))
	}

	svc := New(s.Cache, s.Instances, slog.Default())
	svc.now = func() time.Time { return now }
	return &fixture{store: s, svc: svc, def: def, now: now}
}

func (f *fixture) advance(d time.Duration) {
	at := f.now.Add(d)
	f.svc.now = func() time.Time { return at }
}

func TestPush_FansOutToEveryInstance(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	res, err := f.svc.Push(ctx, f.def, map[string]any{"load": 0.71}, "agent")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Instances)
	assert.Equal(t, 900, res.TTLSeconds)
	assert.Equal(t, f.now.Add(900*time.Second), res.ExpiresAt)

	for _, id := range []string{"inst-a", "inst-b", "inst-c"} {
		got, err := f.svc.Get(ctx, id, f.def)
		require.NoError(t, err)
		require.True(t, got.HasCache)
		data := got.Data.(map[string]any)
		assert.Equal(t, 0.71, data["load"])
		meta := data["_meta"].(map[string]any)
		assert.Equal(t, "agent", meta["updated_by"])
		assert.Equal(t, f.now.Format(time.RFC3339), meta["updated_at"])
		assert.Equal(t, f.now, got.FetchedAt.UTC())
	}
}

func TestPush_RejectsNonAgentRefresh(t *testing.T) {
	f := newFixture(t, 1)

	f.def.Fetch.Type = widget.FetchServerCode
	_, err := f.svc.Push(context.Background(), f.def, map[string]any{"load": 1.0}, "agent")
	assert.ErrorIs(t, err, ErrNotWritable)
}

func TestPush_SchemaViolationsAreStructured(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.Push(context.Background(), f.def, map[string]any{"load": "high"}, "agent")
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Len(t, schemaErr.Fields, 1)
	assert.Equal(t, "load", schemaErr.Fields[0].Field)
	assert.ErrorIs(t, err, widget.ErrSchemaMismatch)
}

func TestGet_MissIsNotAnError(t *testing.T) {
	f := newFixture(t, 1)

	res, err := f.svc.Get(context.Background(), "inst-a", f.def)
	require.NoError(t, err)
	assert.False(t, res.HasCache)
	assert.Nil(t, res.Data)
}

func TestGet_ClassifiesAge(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Push(ctx, f.def, map[string]any{"load": 0.5}, "agent")
	require.NoError(t, err)

	f.advance(200 * time.Second)
	res, err := f.svc.Get(ctx, "inst-a", f.def)
	require.NoError(t, err)
	assert.Equal(t, Fresh, res.Freshness)
	assert.EqualValues(t, 200, res.AgeSeconds)

	f.advance(500 * time.Second)
	res, err = f.svc.Get(ctx, "inst-a", f.def)
	require.NoError(t, err)
	assert.Equal(t, Stale, res.Freshness)

	f.advance(1000 * time.Second)
	res, err = f.svc.Get(ctx, "inst-a", f.def)
	require.NoError(t, err)
	assert.Equal(t, Expired, res.Freshness)
}

func TestGetAfterRefresh_UseStaleServesDegraded(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Push(ctx, f.def, map[string]any{"load": 0.5}, "agent")
	require.NoError(t, err)

	f.advance(100 * time.Second)
	res, err := f.svc.GetAfterRefresh(ctx, "inst-a", f.def, errors.New("upstream 503"))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, Stale, res.Freshness)
	assert.Contains(t, res.RefreshError, "upstream 503")
}

func TestGetAfterRefresh_ShowErrorSurfacesFailure(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.def.Cache.OnError = widget.OnErrorShow
	_, err := f.svc.Push(ctx, f.def, map[string]any{"load": 0.5}, "agent")
	require.NoError(t, err)

	_, err = f.svc.GetAfterRefresh(ctx, "inst-a", f.def, errors.New("upstream 503"))
	require.ErrorIs(t, err, ErrRefreshFailed)
}

func TestGetAfterRefresh_NoCacheSurfacesFailure(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.GetAfterRefresh(context.Background(), "inst-a", f.def, errors.New("upstream 503"))
	require.ErrorIs(t, err, ErrRefreshFailed)
}

func TestClear_ExpiresEveryInstance(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.Push(ctx, f.def, map[string]any{"load": 0.5}, "agent")
	require.NoError(t, err)

	n, err := f.svc.Clear(ctx, f.def)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f.advance(time.Second)
	for _, id := range []string{"inst-a", "inst-b"} {
		res, err := f.svc.Get(ctx, id, f.def)
		require.NoError(t, err)
		assert.True(t, res.HasCache, "clear writes an empty entry, it does not delete")
		assert.Equal(t, map[string]any{}, res.Data)
		assert.Equal(t, Expired, res.Freshness)
	}
}

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Push(ctx, f.def, map[string]any{"load": 0.5}, "agent")
	require.NoError(t, err)

	// Entry expires 900s after push; retain nothing past expiry.
	f.advance(2000 * time.Second)
	n, err := f.svc.PurgeExpired(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	res, err := f.svc.Get(ctx, "inst-a", f.def)
	require.NoError(t, err)
	assert.False(t, res.HasCache)
}