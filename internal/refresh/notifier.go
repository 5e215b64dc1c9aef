package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultNotifyTimeout bounds one webhook delivery attempt. It is
// independent of any caller deadline: the notification outlives the
// request that triggered it.
const DefaultNotifyTimeout = 10 * time.Second

// Notification is the webhook payload sent to the external refresh actor.
type Notification struct {
	Slug        string    `json:"slug"`
	RequestedAt time.Time `json:"requested_at"`
	Instruction string    `json:"instruction"`
}

// Notifier delivers best-effort refresh notifications over HTTP. Every
// failure mode (timeout, refused connection, non-2xx) is logged and
// swallowed; the durable queue row is the source of truth, not this
// signal.
type Notifier struct {
	client *resty.Client
	url    string
	logger *slog.Logger
}

// NewNotifier creates a Notifier posting to url. An empty url disables
// notification entirely.
func NewNotifier(url string, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		logger: logger.With("component", "refresh-notifier"),
	}
}

// Enabled reports whether a webhook target is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Notify posts one notification and reports delivery success. It runs
// on its own context so it is never cancelled by the triggering request.
func (n *Notifier) Notify(slug string, requestedAt time.Time) bool {
	if !n.Enabled() {
		return false
	}
	payload := Notification{
		Slug:        slug,
		RequestedAt: requestedAt,
		Instruction: "refresh widget data and push it through the cache boundary",
	}
	resp, err := n.client.R().
		SetContext(context.Background()).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		n.logger.Warn("refresh webhook delivery failed", "slug", slug, "error", err)
		return false
	}
	if resp.IsError() {
		n.logger.Warn("refresh webhook rejected",
			"slug", slug, "status", resp.StatusCode())
		return false
	}
	n.logger.Debug("refresh webhook delivered", "slug", slug, "status", resp.StatusCode())
	return true
}
