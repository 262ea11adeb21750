// Package tripflow - errors.go
// Defines the error taxonomy shared by the stores and the HTTP layer.

package tripflow

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller mistakes: empty agent/key on a write,
	// a search limit below 1. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks references to entities that do not exist, including
	// foreign-key violations on memory writes.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a storage conflict the upsert clause could not
	// resolve. This should not happen; treat it as a defect.
	ErrConflict = errors.New("conflict")
)

// IgnorableError is a tool-execution failure the agent loop should swallow:
// the tool result is replaced with a generic failure message and the LLM
// is told not to retry.
type IgnorableError struct {
	Message string
}

func (e *IgnorableError) Error() string {
	return e.Message
}

// RetryableError is a tool-execution failure worth surfacing to the LLM so
// it can retry with corrected arguments.
type RetryableError struct {
	Message string
}

func (e *RetryableError) Error() string {
	return e.Message
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
