// Package dispatch hands a validated bundle to the container runtime's
// compose CLI. It is the only stage allowed to touch live services, and
// the only error class eligible for automatic retry.
package dispatch

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrDaemonUnavailable marks a transient failure to reach the
	// runtime daemon. The only retryable condition.
	ErrDaemonUnavailable = errors.New("container runtime daemon unavailable")

	// ErrRuntimeFailed marks a compose invocation that ran and failed.
	ErrRuntimeFailed = errors.New("compose invocation failed")

	// ErrBinaryNotFound marks a missing runtime binary.
	ErrBinaryNotFound = errors.New("container runtime binary not found")
)

// DispatchError wraps runtime invocation failures with the verb that
// was being executed.
type DispatchError struct {
	Verb    string
	Message string
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Verb != "" {
		return fmt.Sprintf("compose %s: %s", e.Verb, e.Message)
	}
	return e.Message
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(verb, message string, err error) *DispatchError {
	return &DispatchError{
		Verb:    verb,
		Message: message,
		Err:     err,
	}
}
