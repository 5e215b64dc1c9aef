package pack

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	fsm "github.com/robbyt/go-fsm/v2"
	"github.com/robbyt/go-loglater"
)

// Import transaction states.
const (
	StateCreated    = "created"
	StateValidating = "validating"
	StateValidated  = "validated"
	StateInvalid    = "invalid" // terminal
	StateImporting  = "importing"
	StateCompleted  = "completed" // terminal
	StateFailed     = "failed"    // terminal
)

// importTransitions defines the legal lifecycle of an import.
var importTransitions = map[string][]string{
	StateCreated:    {StateValidating},
	StateValidating: {StateValidated, StateInvalid},
	StateValidated:  {StateImporting},
	StateImporting:  {StateCompleted, StateFailed},
	StateInvalid:    {},
	StateCompleted:  {},
	StateFailed:     {},
}

// ImportTransaction tracks one import batch through its lifecycle. Its
// logger records through a loglater collector so the full history can be
// replayed after the fact, regardless of the handler's level at the time.
type ImportTransaction struct {
	ID        uuid.UUID
	Policy    Policy
	CreatedAt time.Time

	fsm          *fsm.Machine
	logger       *slog.Logger
	logCollector *loglater.LogCollector
}

// NewImportTransaction creates a transaction for a batch of packages.
func NewImportTransaction(policy Policy, packages int, handler slog.Handler) (*ImportTransaction, error) {
	txID := uuid.Must(uuid.NewV6())

	machine, err := fsm.NewSimple(StateCreated, importTransitions, fsm.WithLogHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("%s failed to create state machine: %w", txID, err)
	}

	logCollector := loglater.NewLogCollector(handler)
	logger := slog.New(logCollector).With(
		"id", txID,
		"policy", policy,
		"packages", packages)

	tx := &ImportTransaction{
		ID:           txID,
		Policy:       policy,
		CreatedAt:    time.Now(),
		fsm:          machine,
		logger:       logger,
		logCollector: logCollector,
	}
	tx.logger.Info("Import transaction created")
	return tx, nil
}

// GetState returns the current lifecycle state.
func (tx *ImportTransaction) GetState() string {
	return tx.fsm.GetState()
}

// BeginValidation marks package validation as started.
func (tx *ImportTransaction) BeginValidation() error {
	if err := tx.fsm.Transition(StateValidating); err != nil {
		return err
	}
	tx.logger.Info("Import validation started")
	return nil
}

// MarkValidated records that every package passed validation.
func (tx *ImportTransaction) MarkValidated() error {
	if err := tx.fsm.Transition(StateValidated); err != nil {
		return err
	}
	tx.logger.Info("Import validation succeeded")
	return nil
}

// MarkInvalid records validation failure; the transaction is terminal.
func (tx *ImportTransaction) MarkInvalid(errs []string) error {
	if err := tx.fsm.Transition(StateInvalid); err != nil {
		return err
	}
	tx.logger.Error("Import validation failed", "errors", errs)
	return nil
}

// BeginImport marks the write phase as started.
func (tx *ImportTransaction) BeginImport() error {
	if err := tx.fsm.Transition(StateImporting); err != nil {
		return err
	}
	tx.logger.Info("Import execution started")
	return nil
}

// MarkCompleted records success.
func (tx *ImportTransaction) MarkCompleted(outcomes int) error {
	if err := tx.fsm.Transition(StateCompleted); err != nil {
		return err
	}
	tx.logger.Info("Import completed", "outcomes", outcomes)
	return nil
}

// MarkFailed records a write-phase failure.
func (tx *ImportTransaction) MarkFailed(cause error) error {
	if err := tx.fsm.Transition(StateFailed); err != nil {
		return err
	}
	tx.logger.Error("Import failed", "error", cause)
	return nil
}

// PlaybackLogs plays back the transaction's log history to the handler.
func (tx *ImportTransaction) PlaybackLogs(handler slog.Handler) error {
	return tx.logCollector.PlayLogs(handler)
}

// GetTotalDuration returns how long the transaction has been running.
func (tx *ImportTransaction) GetTotalDuration() time.Duration {
	return time.Since(tx.CreatedAt)
}
