// Package fragment contains pure functions for parsing Compose fragment
// files into the model the composition system validates. Like the rest
// of the core, it performs no I/O - callers pass file contents in.
package fragment

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrEmptyFragment = errors.New("fragment is empty")
	ErrInvalidYAML   = errors.New("invalid YAML syntax")
	ErrNoServices    = errors.New("fragment must define at least one service")
)

// ParseError wraps errors with context about which fragment failed.
type ParseError struct {
	File    string // fragment file path
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(file, message string, err error) *ParseError {
	return &ParseError{
		File:    file,
		Message: message,
		Err:     err,
	}
}
