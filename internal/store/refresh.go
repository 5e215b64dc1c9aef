package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RefreshRequest is one append-only row in the refresh queue.
// ProcessedAt is nil while the request is still pending.
type RefreshRequest struct {
	ID          int64
	WidgetSlug  string
	RequestedAt time.Time
	ProcessedAt *time.Time
}

// RefreshRepository handles database operations for widget_refresh_requests.
type RefreshRepository struct {
	db *sql.DB
}

// Append records a new refresh request and returns its row id. Rows are
// never updated except to stamp processed_at.
func (r *RefreshRepository) Append(ctx context.Context, slug string, requestedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO widget_refresh_requests (widget_slug, requested_at) VALUES (?, ?)`,
		slug, requestedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to append refresh request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read refresh request id: %w", err)
	}
	return id, nil
}

// PendingSince returns unprocessed requests for the slug requested at or
// after since, newest first.
func (r *RefreshRepository) PendingSince(ctx context.Context, slug string, since time.Time) ([]RefreshRequest, error) {
	query := `
		SELECT id, widget_slug, requested_at, processed_at
		FROM widget_refresh_requests
		WHERE widget_slug = ? AND processed_at IS NULL AND requested_at >= ?
		ORDER BY requested_at DESC
	`
	return r.list(ctx, query, slug, since)
}

// ListBySlug returns the slug's full request history, newest first,
// capped at limit rows.
func (r *RefreshRepository) ListBySlug(ctx context.Context, slug string, limit int) ([]RefreshRequest, error) {
	query := `
		SELECT id, widget_slug, requested_at, processed_at
		FROM widget_refresh_requests
		WHERE widget_slug = ?
		ORDER BY requested_at DESC
		LIMIT ?
	`
	return r.list(ctx, query, slug, limit)
}

// MarkProcessed stamps processed_at on every unprocessed request for the
// slug and returns how many rows it touched.
func (r *RefreshRepository) MarkProcessed(ctx context.Context, slug string, processedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE widget_refresh_requests SET processed_at = ? WHERE widget_slug = ? AND processed_at IS NULL`,
		processedAt, slug)
	if err != nil {
		return 0, fmt.Errorf("failed to mark refresh requests processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count processed refresh requests: %w", err)
	}
	return n, nil
}

func (r *RefreshRepository) list(ctx context.Context, query string, args ...any) ([]RefreshRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh requests: %w", err)
	}
	defer rows.Close()

	reqs := []RefreshRequest{}
	for rows.Next() {
		var (
			req       RefreshRequest
			processed sql.NullTime
		)
		if err := rows.Scan(&req.ID, &req.WidgetSlug, &req.RequestedAt, &processed); err != nil {
			return nil, fmt.Errorf("failed to scan refresh request row: %w", err)
		}
		if processed.Valid {
			t := processed.Time
			req.ProcessedAt = &t
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refresh request rows: %w", err)
	}
	return reqs, nil
}
