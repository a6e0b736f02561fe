package docker

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrConnectionFailed = errors.New("docker connection failed")
	ErrServiceNotFound  = errors.New("no container found for service")
)

// DockerError wraps errors with the failing operation and entity.
type DockerError struct {
	Op      string
	Entity  string
	Message string
	Err     error
}

func (e *DockerError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// NewDockerError creates a new DockerError.
func NewDockerError(op, entity, message string, err error) *DockerError {
	return &DockerError{
		Op:      op,
		Entity:  entity,
		Message: message,
		Err:     err,
	}
}
