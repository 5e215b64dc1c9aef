// Package server exposes the widget subsystem over HTTP and manages the
// listener's lifecycle as a supervisor Runnable.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robbyt/go-supervisor/supervisor"

	"github.com/atlanticdynamic/gridhost/internal/server/finitestate"
)

// Interface guard: ensure Runner implements required interfaces
var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

const shutdownTimeout = 10 * time.Second

// Runner serves the widget API and reports its lifecycle through a
// finite state machine.
type Runner struct {
	logger     *slog.Logger
	listenAddr string
	handler    http.Handler

	fsm finitestate.Machine

	srv     *http.Server
	srvLock sync.Mutex

	localCtx    context.Context
	localCancel context.CancelFunc
}

// NewRunner creates a Runner serving handler on listenAddr.
func NewRunner(listenAddr string, handler http.Handler, logger *slog.Logger) (*Runner, error) {
	if listenAddr == "" {
		return nil, errors.New("listen address cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	machine, err := finitestate.New(logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}

	return &Runner{
		logger:     logger.With("component", "server"),
		listenAddr: listenAddr,
		handler:    handler,
		fsm:        machine,
	}, nil
}

func (r *Runner) String() string {
	return "server.Runner"
}

// Run starts the HTTP listener and blocks until the context is canceled
// or the server fails.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	r.localCtx, r.localCancel = context.WithCancel(ctx)
	defer r.localCancel()

	listener, err := net.Listen("tcp", r.listenAddr)
	if err != nil {
		if stateErr := r.fsm.Transition(finitestate.StatusError); stateErr != nil {
			r.logger.Error("Failed to transition to error state", "error", stateErr)
		}
		return fmt.Errorf("failed to listen on %s: %w", r.listenAddr, err)
	}

	srv := &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	r.srvLock.Lock()
	r.srv = srv
	r.srvLock.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}
	r.logger.Info("HTTP server listening", "addr", listener.Addr().String())

	select {
	case <-r.localCtx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			if stateErr := r.fsm.Transition(finitestate.StatusError); stateErr != nil {
				r.logger.Error("Failed to transition to error state", "error", stateErr)
			}
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
		return fmt.Errorf("failed to transition to stopping state: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("Graceful shutdown incomplete", "error", err)
	}

	if err := r.fsm.Transition(finitestate.StatusStopped); err != nil {
		r.logger.Error("Failed to transition to stopped state", "error", err)
	}
	r.logger.Info("HTTP server stopped", "addr", r.listenAddr)
	return nil
}

// Stop signals Run to shut the server down.
func (r *Runner) Stop() {
	r.logger.Debug("Stopping Runner")
	if r.localCancel != nil {
		r.localCancel()
	}
}

// GetState returns the current lifecycle state.
func (r *Runner) GetState() string {
	return r.fsm.GetState()
}

// GetStateChan returns a channel emitting lifecycle state changes.
func (r *Runner) GetStateChan(ctx context.Context) <-chan string {
	return r.fsm.GetStateChan(ctx)
}

// IsRunning reports whether the server is accepting requests.
func (r *Runner) IsRunning() bool {
	return r.fsm.GetState() == finitestate.StatusRunning
}
