// Package finitestate wraps the state machine tracking the HTTP
// server's lifecycle.
package finitestate

import (
	"context"
	"log/slog"
	"time"

	fsm "github.com/robbyt/go-fsm/v2"
	"github.com/robbyt/go-fsm/v2/hooks"
	"github.com/robbyt/go-fsm/v2/transitions"
)

const (
	StatusNew       = transitions.StatusNew
	StatusBooting   = transitions.StatusBooting
	StatusRunning   = transitions.StatusRunning
	StatusReloading = transitions.StatusReloading
	StatusStopping  = transitions.StatusStopping
	StatusStopped   = transitions.StatusStopped
	StatusError     = transitions.StatusError
	StatusUnknown   = transitions.StatusUnknown
)

// broadcastTimeout bounds each state broadcast so updates are still
// delivered during shutdown.
const broadcastTimeout = 5 * time.Second

// stateChanBuffer absorbs rapid transitions when the consumer lags.
const stateChanBuffer = 10

// Machine defines the interface for the finite state machine that tracks
// the HTTP server's lifecycle states. The abstraction keeps tests free
// to substitute their own implementation.
type Machine interface {
	// Transition attempts to transition the state machine to the specified state.
	Transition(state string) error

	// TransitionBool attempts to transition and reports success.
	TransitionBool(state string) bool

	// SetState sets the state of the state machine to the specified state.
	SetState(state string) error

	// GetState returns the current state of the state machine.
	GetState() string

	// GetStateChan returns a channel that emits the state machine's state
	// whenever it changes, starting with the current state. Delivery stops
	// when ctx is canceled.
	GetStateChan(ctx context.Context) <-chan string
}

// ServerFSM embeds fsm.Machine and adapts its channel-argument
// GetStateChan to the channel-returning form the runner consumes.
type ServerFSM struct {
	*fsm.Machine
}

// GetStateChan subscribes to state broadcasts. The underlying machine
// sends the current state immediately, then every transition after it.
func (m *ServerFSM) GetStateChan(ctx context.Context) <-chan string {
	ch := make(chan string, stateChanBuffer)
	if err := m.Machine.GetStateChan(ctx, ch); err != nil {
		// Subscription failure still yields a usable channel carrying
		// at least the current state.
		ch <- m.GetState()
	}
	return ch
}

// New creates a finite state machine with the standard lifecycle
// transitions. The hook registry backs state-change broadcasts.
func New(handler slog.Handler) (Machine, error) {
	registry, err := hooks.NewRegistry(
		hooks.WithLogHandler(handler),
		hooks.WithTransitions(transitions.Typical),
	)
	if err != nil {
		return nil, err
	}
	machine, err := fsm.New(StatusNew, transitions.Typical,
		fsm.WithLogHandler(handler),
		fsm.WithCallbackRegistry(registry),
		fsm.WithBroadcastTimeout(broadcastTimeout),
	)
	if err != nil {
		return nil, err
	}
	return &ServerFSM{Machine: machine}, nil
}
