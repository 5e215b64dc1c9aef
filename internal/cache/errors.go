package cache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atlanticdynamic/gridhost/internal/widget"
)

var (
	// ErrNotWritable rejects pushes to definitions whose fetch type does
	// not accept external writes.
	ErrNotWritable = errors.New("cache writes require an agent_refresh fetch type")
	// ErrRefreshFailed is the policy-surfaced form of an upstream failure.
	ErrRefreshFailed = errors.New("refresh failed")
)

// SchemaError carries the per-field violations from a rejected push.
type SchemaError struct {
	Fields []widget.FieldError
}

func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%v: %s", widget.ErrSchemaMismatch, strings.Join(msgs, "; "))
}

func (e *SchemaError) Unwrap() error {
	return widget.ErrSchemaMismatch
}
