// Package registry contains pure functions for parsing and validating
// the declarative service registry (services.yaml). No I/O happens here;
// callers hand in raw document bytes.
package registry

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Document errors
	ErrEmptyRegistry     = errors.New("service registry is empty")
	ErrMalformedRegistry = errors.New("service registry is malformed")

	// Declaration errors
	ErrDuplicateService = errors.New("duplicate service declaration")
	ErrInvalidEnvFile   = errors.New("invalid env file name")

	// Consistency errors (registry vs compose fragments)
	ErrUnregisteredService = errors.New("service missing from registry")
	ErrOrphanDeclaration   = errors.New("registry declares unknown service")
	ErrEnvFileMismatch     = errors.New("fragment env_file list disagrees with registry")
)

// SchemaError wraps registry validation failures with the offending entity.
type SchemaError struct {
	Entity  string // service name or registry field, e.g. "vnc-desktop"
	Message string
	Err     error
}

func (e *SchemaError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Message)
	}
	return e.Message
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// NewSchemaError creates a new SchemaError.
func NewSchemaError(entity, message string, err error) *SchemaError {
	return &SchemaError{
		Entity:  entity,
		Message: message,
		Err:     err,
	}
}
