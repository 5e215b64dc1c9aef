// Package cache owns the freshness cache: per-instance payload storage
// with age-based fresh/stale/expired classification, definition-wide
// fan-out on writes, and policy-driven fallback when a refresh fails.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlanticdynamic/gridhost/internal/store"
	"github.com/atlanticdynamic/gridhost/internal/widget"
)

// EntryStore is the slice of the persistence layer the cache writes.
type EntryStore interface {
	Upsert(ctx context.Context, entry *store.CacheEntry) error
	Get(ctx context.Context, instanceID string) (*store.CacheEntry, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// InstanceLister enumerates a definition's placements for fan-out.
type InstanceLister interface {
	ListByDefinition(ctx context.Context, definitionID string) ([]*widget.Instance, error)
}

// ReadResult is the cache read payload.
type ReadResult struct {
	HasCache   bool       `json:"has_cache"`
	Data       any        `json:"data"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	AgeSeconds int64      `json:"age_seconds,omitempty"`
	Freshness  Freshness  `json:"freshness,omitempty"`
	// Degraded marks a stale entry served in place of a failed refresh.
	Degraded     bool   `json:"degraded,omitempty"`
	RefreshError string `json:"refresh_error,omitempty"`
}

// PushResult reports an accepted write.
type PushResult struct {
	TTLSeconds int       `json:"ttl_seconds"`
	ExpiresAt  time.Time `json:"expires_at"`
	Instances  int       `json:"instances"`
}

// Service implements the cache boundary over the store.
type Service struct {
	entries   EntryStore
	instances InstanceLister
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a cache Service.
func New(entries EntryStore, instances InstanceLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		entries:   entries,
		instances: instances,
		logger:    logger.With("component", "cache"),
		now:       time.Now,
	}
}

// Put records data for one instance with fetched_at=now and
// expires_at=now+ttl, overwriting any prior entry.
func (s *Service) Put(ctx context.Context, instanceID, definitionID string, data any, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}
	now := s.now().UTC()
	return s.entries.Upsert(ctx, &store.CacheEntry{
		InstanceID:   instanceID,
		DefinitionID: definitionID,
		Data:         string(raw),
		FetchedAt:    now,
		ExpiresAt:    now.Add(ttl),
	})
}

// Push validates and fans out a data write for a definition: one entry
// per instance, identical payload and clocks, each row written in its
// own statement. A crash mid-loop leaves a partial fan-out; callers
// needing atomicity must wrap this in a transaction themselves.
func (s *Service) Push(ctx context.Context, def *widget.Definition, data map[string]any, updatedBy string) (*PushResult, error) {
	if def.Fetch.Type != widget.FetchAgentRefresh {
		return nil, fmt.Errorf("%w: definition %s has fetch type %q",
			ErrNotWritable, def.Slug, def.Fetch.Type)
	}
	if fieldErrs := def.Schema.CheckData(data); len(fieldErrs) > 0 {
		return nil, &SchemaError{Fields: fieldErrs}
	}

	now := s.now().UTC()
	ttl := StorageTTL(def)
	payload := map[string]any{}
	for k, v := range data {
		payload[k] = v
	}
	payload["_meta"] = map[string]any{
		"updated_at": now.Format(time.RFC3339),
		"updated_by": updatedBy,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache payload: %w", err)
	}

	insts, err := s.instances.ListByDefinition(ctx, def.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances for fan-out: %w", err)
	}

	expiresAt := now.Add(ttl)
	for _, inst := range insts {
		entry := &store.CacheEntry{
			InstanceID:   inst.ID,
			DefinitionID: def.ID,
			Data:         string(raw),
			FetchedAt:    now,
			ExpiresAt:    expiresAt,
		}
		if err := s.entries.Upsert(ctx, entry); err != nil {
			return nil, fmt.Errorf("fan-out write for instance %s: %w", inst.ID, err)
		}
	}

	s.logger.Debug("cache push fanned out",
		"definition", def.Slug, "instances", len(insts), "ttl", ttl)
	return &PushResult{
		TTLSeconds: int(ttl / time.Second),
		ExpiresAt:  expiresAt,
		Instances:  len(insts),
	}, nil
}

// Get reads one instance's entry and classifies its freshness against
// the definition's thresholds. A miss returns {HasCache: false}, not an
// error.
func (s *Service) Get(ctx context.Context, instanceID string, def *widget.Definition) (ReadResult, error) {
	entry, err := s.entries.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, store.ErrNoCacheEntry) {
			return ReadResult{HasCache: false}, nil
		}
		return ReadResult{}, err
	}

	var data any
	if err := json.Unmarshal([]byte(entry.Data), &data); err != nil {
		return ReadResult{}, fmt.Errorf("failed to decode cache payload for %s: %w", instanceID, err)
	}

	ttl := FreshnessTTL(def)
	age := s.now().UTC().Sub(entry.FetchedAt)
	freshness := Classify(age, ttl, MaxStaleness(def, ttl))
	if !entry.ExpiresAt.After(entry.FetchedAt) {
		// Zero-TTL entry, written by Clear: expired from birth.
		freshness = Expired
	}
	fetchedAt := entry.FetchedAt
	expiresAt := entry.ExpiresAt
	return ReadResult{
		HasCache:   true,
		Data:       data,
		FetchedAt:  &fetchedAt,
		ExpiresAt:  &expiresAt,
		AgeSeconds: int64(age / time.Second),
		Freshness:  freshness,
	}, nil
}

// GetAfterRefresh applies the definition's on_error policy to a read
// that follows a refresh attempt. A nil refreshErr is a plain read.
// With use_stale, a surviving entry is served annotated as degraded;
// with show_error the failure wins even when cached data exists.
func (s *Service) GetAfterRefresh(ctx context.Context, instanceID string, def *widget.Definition, refreshErr error) (ReadResult, error) {
	res, err := s.Get(ctx, instanceID, def)
	if err != nil {
		return ReadResult{}, err
	}
	if refreshErr == nil {
		return res, nil
	}

	policy := widget.OnErrorUseStale
	if def.Cache != nil && def.Cache.OnError != "" {
		policy = def.Cache.OnError
	}
	if policy == widget.OnErrorShow || !res.HasCache || res.Freshness == Expired {
		return ReadResult{}, fmt.Errorf("%w: %v", ErrRefreshFailed, refreshErr)
	}

	res.Degraded = true
	res.RefreshError = refreshErr.Error()
	if res.Freshness == Fresh {
		res.Freshness = Stale
	}
	return res, nil
}

// Clear overwrites every instance's entry with an empty payload and a
// zero TTL. Entries expire logically by timestamp comparison; nothing is
// deleted.
func (s *Service) Clear(ctx context.Context, def *widget.Definition) (int, error) {
	insts, err := s.instances.ListByDefinition(ctx, def.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list instances for clear: %w", err)
	}
	now := s.now().UTC()
	for _, inst := range insts {
		entry := &store.CacheEntry{
			InstanceID:   inst.ID,
			DefinitionID: def.ID,
			Data:         "{}",
			FetchedAt:    now,
			ExpiresAt:    now,
		}
		if err := s.entries.Upsert(ctx, entry); err != nil {
			return 0, fmt.Errorf("clear write for instance %s: %w", inst.ID, err)
		}
	}
	return len(insts), nil
}

// PurgeExpired is the optional housekeeping pass: it deletes rows whose
// expires_at is older than the retention window. Correctness never
// depends on it running.
func (s *Service) PurgeExpired(ctx context.Context, retain time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retain)
	n, err := s.entries.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged expired cache entries", "count", n)
	}
	return n, nil
}
