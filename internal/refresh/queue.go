// Package refresh implements the durable refresh request queue and its
// best-effort webhook companion. Rows are append-only; "pending" is
// derived from a null processed_at inside a trailing window, never a
// flag column that could drift.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlanticdynamic/gridhost/internal/store"
)

// DefaultPendingWindow is the trailing window inside which an
// unprocessed request still counts as pending. Older requests are
// treated as abandoned.
const DefaultPendingWindow = 5 * time.Minute

// RequestLog is the slice of the persistence layer the queue writes.
type RequestLog interface {
	Append(ctx context.Context, slug string, requestedAt time.Time) (int64, error)
	PendingSince(ctx context.Context, slug string, since time.Time) ([]store.RefreshRequest, error)
	MarkProcessed(ctx context.Context, slug string, processedAt time.Time) (int64, error)
}

// EnqueueResult is the enqueue response payload. WebhookSent reports
// that a notification was dispatched, not that it succeeded — delivery
// is detached and its outcome is only ever logged.
type EnqueueResult struct {
	Status         string    `json:"status"`
	WebhookSent    bool      `json:"webhook_sent"`
	FallbackQueued bool      `json:"fallback_queued"`
	Slug           string    `json:"slug"`
	RequestedAt    time.Time `json:"requestedAt"`
}

// PendingResult is the pending-check response payload.
type PendingResult struct {
	Pending bool                  `json:"pending"`
	Request *store.RefreshRequest `json:"request,omitempty"`
}

// Queue coordinates durable refresh requests with the detached notifier.
type Queue struct {
	requests RequestLog
	notifier *Notifier
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// dispatch launches the detached notification; swapped in tests.
	dispatch func(func())
}

// New creates a Queue. window <= 0 uses DefaultPendingWindow.
func New(requests RequestLog, notifier *Notifier, window time.Duration, logger *slog.Logger) *Queue {
	if window <= 0 {
		window = DefaultPendingWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		requests: requests,
		notifier: notifier,
		window:   window,
		logger:   logger.With("component", "refresh-queue"),
		now:      time.Now,
		dispatch: func(fn func()) { go fn() },
	}
}

// Enqueue appends a request row, then fires the webhook notification as
// a detached task. The row write is the only thing that can fail; the
// notification never blocks or fails the enqueue.
func (q *Queue) Enqueue(ctx context.Context, slug string) (*EnqueueResult, error) {
	requestedAt := q.now().UTC()
	id, err := q.requests.Append(ctx, slug, requestedAt)
	if err != nil {
		return nil, err
	}
	q.logger.Info("refresh request queued", "slug", slug, "id", id)

	sent := false
	if q.notifier.Enabled() {
		sent = true
		q.dispatch(func() {
			q.notifier.Notify(slug, requestedAt)
		})
	}

	return &EnqueueResult{
		Status:         "queued",
		WebhookSent:    sent,
		FallbackQueued: true,
		Slug:           slug,
		RequestedAt:    requestedAt,
	}, nil
}

// PeekPending returns the most recent unprocessed request for the slug
// inside the trailing window, or Pending=false when none qualifies.
func (q *Queue) PeekPending(ctx context.Context, slug string) (*PendingResult, error) {
	since := q.now().UTC().Add(-q.window)
	reqs, err := q.requests.PendingSince(ctx, slug, since)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return &PendingResult{Pending: false}, nil
	}
	// PendingSince orders newest first.
	req := reqs[0]
	return &PendingResult{Pending: true, Request: &req}, nil
}

// MarkProcessed stamps every unprocessed request for the slug and
// returns how many were settled.
func (q *Queue) MarkProcessed(ctx context.Context, slug string) (int64, error) {
	n, err := q.requests.MarkProcessed(ctx, slug, q.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("refresh requests marked processed", "slug", slug, "count", n)
	}
	return n, nil
}
