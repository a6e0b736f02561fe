// Package bundle assembles a set of Compose fragments into one ordered,
// conflict-checked deployment bundle. Pure functions only.
package bundle

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrMissingBase      = errors.New("base fragment not found")
	ErrUnknownFragment  = errors.New("unknown fragment")
	ErrResourceConflict = errors.New("shared resource declared by more than one fragment")
)

// CompositionError wraps failures assembling a bundle with the entity
// involved, so the operator can correct the declarative source directly.
type CompositionError struct {
	Entity  string // fragment name or resource identifier
	Message string
	Err     error
}

func (e *CompositionError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Message)
	}
	return e.Message
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// NewCompositionError creates a new CompositionError.
func NewCompositionError(entity, message string, err error) *CompositionError {
	return &CompositionError{
		Entity:  entity,
		Message: message,
		Err:     err,
	}
}
