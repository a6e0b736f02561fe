// Package workspace is the filesystem shell around the composition
// core: it probes deployment target candidates, reads the registry and
// fragment files, and resolves per-service env files. All inputs are
// consumed read-only.
package workspace

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNoTarget is returned when no candidate directory holds a
	// usable .env file.
	ErrNoTarget = errors.New("no deployment target found")

	// ErrRegistryUnreadable is returned when the registry file cannot
	// be read from the resolved target.
	ErrRegistryUnreadable = errors.New("service registry not readable")

	// ErrNoFragments is returned when the target contains no compose
	// fragment files at all.
	ErrNoFragments = errors.New("no compose fragments found")

	// ErrUnknownService is returned when env injection is requested
	// for a service the registry does not declare.
	ErrUnknownService = errors.New("service not declared in registry")

	// ErrEnvFileMissing is returned when a declared env file does not
	// exist under the target root. Launching anyway would hand the
	// service empty variables instead of its secrets.
	ErrEnvFileMissing = errors.New("declared env file missing")
)

// ConfigurationError reports a failed target resolution with every
// path that was probed, so the operator sees exactly where a .env file
// was expected.
type ConfigurationError struct {
	Probed []ProbeResult
	Err    error
}

// ProbeResult records one candidate directory probe.
type ProbeResult struct {
	Candidate string // candidate name ("production", "development", ...)
	EnvFile   string // the .env path probed
	Reason    string // why it was rejected
}

func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString("no deployment target found; probed:")
	for _, p := range e.Probed {
		fmt.Fprintf(&sb, " %s=%s (%s)", p.Candidate, p.EnvFile, p.Reason)
	}
	return sb.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// LookupError reports a failed env file lookup for a named service.
type LookupError struct {
	Service string
	File    string
	Err     error
}

func (e *LookupError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("service %s: env file %s: %v", e.Service, e.File, e.Err)
	}
	return fmt.Sprintf("service %s: %v", e.Service, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
