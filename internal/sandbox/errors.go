package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrForbiddenPattern is the base error for static validation failures.
	ErrForbiddenPattern = errors.New("forbidden pattern")

	// ErrEmptyCode indicates there was nothing to execute.
	ErrEmptyCode = errors.New("empty code")

	// ErrTimeout indicates the execution exceeded its wall-clock bound.
	ErrTimeout = errors.New("execution timed out")
)

// ValidationError reports which deny-list pattern matched. It is produced
// before execution; code that fails validation is never run.
type ValidationError struct {
	Pattern string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("forbidden pattern %q is not allowed in server code", e.Pattern)
}

func (e *ValidationError) Unwrap() error {
	return ErrForbiddenPattern
}
