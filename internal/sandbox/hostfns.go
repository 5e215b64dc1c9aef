package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// maxFetchBodyBytes caps the response body exposed to a snippet.
const maxFetchBodyBytes = 1 << 20

// newFetchFunc builds the host side of the fetch binding. The engine
// context carries the invocation deadline, so an outbound call can never
// outlive the snippet that issued it.
func newFetchFunc(client *resty.Client, logger *slog.Logger, widgetSlug string) func(ctx context.Context, url string, opts ...map[string]any) (map[string]any, error) {
	return func(ctx context.Context, url string, opts ...map[string]any) (map[string]any, error) {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return nil, fmt.Errorf("fetch: unsupported url %q", url)
		}

		req := client.R().SetContext(ctx)
		method := http.MethodGet
		if len(opts) > 0 && opts[0] != nil {
			opt := opts[0]
			if m, ok := opt["method"].(string); ok && m != "" {
				method = strings.ToUpper(m)
			}
			if headers, ok := opt["headers"].(map[string]any); ok {
				for k, v := range headers {
					req.SetHeader(k, fmt.Sprint(v))
				}
			}
			if body, ok := opt["body"]; ok {
				req.SetBody(body)
			}
		}

		resp, err := req.Execute(method, url)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}

		body := resp.String()
		if len(body) > maxFetchBodyBytes {
			body = body[:maxFetchBodyBytes]
		}
		headers := make(map[string]any, len(resp.Header()))
		for k := range resp.Header() {
			headers[k] = resp.Header().Get(k)
		}

		logger.Debug("sandbox fetch",
			"widget", widgetSlug, "method", method, "url", url, "status", resp.StatusCode())
		return map[string]any{
			"status":  resp.StatusCode(),
			"ok":      resp.StatusCode() >= 200 && resp.StatusCode() < 300,
			"headers": headers,
			"body":    body,
		}, nil
	}
}

// newSleepFunc builds setTimeout. The requested delay is clamped to the
// invocation timeout, so a snippet cannot stretch its own wall-clock bound.
func newSleepFunc(limit time.Duration) func(ctx context.Context, ms int64) error {
	return func(ctx context.Context, ms int64) error {
		d := time.Duration(ms) * time.Millisecond
		if d < 0 {
			d = 0
		}
		if d > limit {
			d = limit
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// newConsole builds the namespaced console bindings. Output lands in the
// host log, prefixed with the widget slug.
func newConsole(logger *slog.Logger, widgetSlug string) map[string]any {
	l := logger.With("widget", widgetSlug)
	return map[string]any{
		"log":   func(args ...any) { l.Info(fmt.Sprint(args...)) },
		"warn":  func(args ...any) { l.Warn(fmt.Sprint(args...)) },
		"error": func(args ...any) { l.Error(fmt.Sprint(args...)) },
	}
}
