// Package sandbox executes user-authored server snippets in an isolated
// Risor runtime with an enumerated capability set and dual timeout
// enforcement.
//
// Execution happens in two phases. Phase one statically screens the code
// against a deny-list (see validate.go); a match aborts before anything
// runs. Phase two compiles the snippet and evaluates it with only the
// injected bindings in scope: params, pre-resolved credentials, pre-read
// cache files, a host-mediated fetch for outbound HTTP, a setTimeout
// clamped to the invocation timeout, and a console that logs through the
// host. Host-side resolution means a snippet can never request a
// credential its definition did not declare, nor read a path outside the
// allow-listed cache directories — the restriction is enforced where the
// data is assembled, not at call time.
//
// Two independent timers bound every invocation: the engine evaluates under
// a context deadline, and the caller races that evaluation against an outer
// timer extended by a small grace. Whichever fires first wins. If the
// engine ever fails to interrupt a pathological loop, the outer timer still
// returns control to the caller; the abandoned goroutine is an accepted
// cost, documented rather than hidden.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/atlanticdynamic/gridhost/internal/creds"
	"github.com/robbyt/go-polyscript/engines/risor"
	"github.com/robbyt/go-polyscript/platform/constants"
	"github.com/robbyt/go-polyscript/platform/data"
	"github.com/robbyt/go-polyscript/platform/script/loader"
)

const (
	// DefaultTimeout bounds execution when the caller does not specify one.
	DefaultTimeout = 10 * time.Second
	// DefaultGrace extends the outer watchdog past the engine deadline.
	DefaultGrace = 500 * time.Millisecond
)

// Result is the only thing Execute ever returns: either data or an error
// message, never a propagated exception.
type Result struct {
	Data  any     `json:"data"`
	Error *string `json:"error"`
}

func errResult(msg string) Result {
	return Result{Data: nil, Error: &msg}
}

func okResult(data any) Result {
	return Result{Data: data, Error: nil}
}

// Options configures one invocation.
type Options struct {
	// WidgetSlug tags console output and logs.
	WidgetSlug string
	// Params are caller-supplied values visible to the snippet as `params`.
	Params map[string]any
	// Providers lists the credential provider ids the snippet's definition
	// declared. Only these are resolved and injected.
	Providers []string
	// Timeout overrides the sandbox default for this invocation.
	Timeout time.Duration
}

// Sandbox executes server snippets. One Sandbox is shared process-wide;
// concurrent invocations are independent.
type Sandbox struct {
	creds     creds.Store
	cacheDirs []string
	timeout   time.Duration
	grace     time.Duration
	http      *resty.Client
	logger    *slog.Logger
}

// New creates a Sandbox. cacheDirs is the path allow-list for
// readCacheFile; nil disables file access entirely.
func New(credStore creds.Store, cacheDirs []string, timeout, grace time.Duration, logger *slog.Logger) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{
		creds:     credStore,
		cacheDirs: cacheDirs,
		timeout:   timeout,
		grace:     grace,
		http:      resty.New(),
		logger:    logger.With("component", "sandbox"),
	}
}

// Execute runs one snippet. The returned Result always has exactly one of
// Data or Error set; no failure mode escapes as a panic or error return.
func (s *Sandbox) Execute(ctx context.Context, code string, opts Options) Result {
	if strings.TrimSpace(code) == "" {
		return errResult(ErrEmptyCode.Error())
	}

	// Phase 1: static screening. A match means the code never runs.
	if verr := ValidateCode(code); verr != nil {
		s.logger.Info("server code rejected by static validation",
			"widget", opts.WidgetSlug, "pattern", verr.Pattern)
		return errResult(verr.Error())
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}

	script := wrapCode(code)
	scriptLoader, err := loader.NewFromString(script)
	if err != nil {
		return errResult(fmt.Sprintf("failed to load server code: %v", err))
	}
	evaluator, err := risor.FromRisorLoader(s.logger.Handler(), scriptLoader)
	if err != nil {
		return errResult(fmt.Sprintf("failed to compile server code: %v", err))
	}

	slug := orUnknown(opts.WidgetSlug)
	scriptData := map[string]any{
		"widget":      slug,
		"params":      orEmptyMap(opts.Params),
		"credentials": s.resolveCredentials(ctx, opts.Providers),
		"cache_files": loadCacheFiles(s.cacheDirs, s.logger),
		"fetch":       newFetchFunc(s.http, s.logger, slug),
		"set_timeout": newSleepFunc(timeout),
		"console":     newConsole(s.logger, slug),
	}

	// Engine timer: the evaluator observes this deadline between ops.
	engineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	contextProvider := data.NewContextProvider(constants.EvalData)
	enrichedCtx, err := contextProvider.AddDataToContext(engineCtx, scriptData)
	if err != nil {
		return errResult(fmt.Sprintf("failed to prepare execution data: %v", err))
	}

	type evalOutcome struct {
		value any
		err   error
	}
	done := make(chan evalOutcome, 1)
	start := time.Now()
	go func() {
		response, evalErr := evaluator.Eval(enrichedCtx)
		if evalErr != nil {
			done <- evalOutcome{err: evalErr}
			return
		}
		done <- evalOutcome{value: response.Interface()}
	}()

	// Outer timer: guarantees the caller gets a result even if the engine
	// deadline fails to interrupt.
	select {
	case outcome := <-done:
		duration := time.Since(start)
		if outcome.err != nil {
			if engineCtx.Err() == context.DeadlineExceeded {
				s.logger.Warn("server code timed out",
					"widget", opts.WidgetSlug, "timeout", timeout)
				return errResult(fmt.Sprintf("%v after %s", ErrTimeout, timeout))
			}
			s.logger.Debug("server code failed",
				"widget", opts.WidgetSlug, "error", outcome.err, "duration", duration)
			return errResult(fmt.Sprintf("execution failed: %v", outcome.err))
		}
		s.logger.Debug("server code executed",
			"widget", opts.WidgetSlug, "duration", duration)
		return okResult(outcome.value)

	case <-time.After(timeout + s.grace):
		s.logger.Warn("server code watchdog fired; abandoning evaluation",
			"widget", opts.WidgetSlug, "timeout", timeout, "grace", s.grace)
		return errResult(fmt.Sprintf("%v after %s", ErrTimeout, timeout))
	}
}

// resolveCredentials maps each declared provider to its secret. Missing
// credentials resolve to nil so the snippet can handle absence itself.
func (s *Sandbox) resolveCredentials(ctx context.Context, providers []string) map[string]any {
	out := make(map[string]any, len(providers))
	for _, provider := range providers {
		if s.creds == nil {
			out[provider] = nil
			continue
		}
		secret, err := s.creds.GetCredential(ctx, provider)
		if err != nil {
			out[provider] = nil
			continue
		}
		out[provider] = secret
	}
	return out
}

// wrapCode binds the capability helpers and appends the user code. The
// snippet's final expression becomes the result value.
func wrapCode(code string) string {
	var b strings.Builder
	b.WriteString(`// gridhost server sandbox
let __credentials = ctx.get("credentials", {})
let __cache_files = ctx.get("cache_files", {})
let params = ctx.get("params", {})
let fetch = ctx.get("fetch")
let setTimeout = ctx.get("set_timeout")
let console = ctx.get("console", {})

let getCredential = function(provider) { return __credentials.get(provider) }
let readCacheFile = function(path) { return __cache_files.get(path) }

// --- user code ---
`)
	b.WriteString(code)
	b.WriteString("\n")
	return b.String()
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
