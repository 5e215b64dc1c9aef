package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoCacheEntry marks a cache miss for an instance.
var ErrNoCacheEntry = errors.New("no cache entry for instance")

// CacheEntry is one instance's cached payload. Data holds the raw JSON
// document as written; freshness classification happens above this layer.
type CacheEntry struct {
	InstanceID   string
	DefinitionID string
	Data         string
	FetchedAt    time.Time
	ExpiresAt    time.Time
}

// CacheRepository handles database operations for widget_cache.
type CacheRepository struct {
	db *sql.DB
}

// Upsert writes or replaces the entry for its instance. Each instance
// owns exactly one row.
func (r *CacheRepository) Upsert(ctx context.Context, entry *CacheEntry) error {
	query := `
		INSERT INTO widget_cache (widget_instance_id, definition_id, data, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(widget_instance_id) DO UPDATE SET
			definition_id = excluded.definition_id,
			data = excluded.data,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.InstanceID, entry.DefinitionID, entry.Data, entry.FetchedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Get returns the entry for an instance, or ErrNoCacheEntry on a miss.
func (r *CacheRepository) Get(ctx context.Context, instanceID string) (*CacheEntry, error) {
	query := `SELECT widget_instance_id, definition_id, data, fetched_at, expires_at
		FROM widget_cache WHERE widget_instance_id = ?`
	var entry CacheEntry
	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(
		&entry.InstanceID, &entry.DefinitionID, &entry.Data, &entry.FetchedAt, &entry.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoCacheEntry, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

// Delete removes an instance's entry. Deleting a missing entry is not an
// error; clearing is idempotent.
func (r *CacheRepository) Delete(ctx context.Context, instanceID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM widget_cache WHERE widget_instance_id = ?`, instanceID)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// PurgeExpired deletes every entry whose expires_at is before cutoff and
// returns how many rows went away.
func (r *CacheRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM widget_cache WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged cache entries: %w", err)
	}
	return n, nil
}
