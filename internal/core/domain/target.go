// Package domain defines the core entities shared across the homelab tool.
// Everything here is a plain value type - no I/O, no behavior beyond
// simple derivations.
package domain

import "path/filepath"

// =============================================================================
// Deployment Target
// =============================================================================

// DeploymentTarget is the resolved environment for one invocation.
// Exactly one target is active per invocation; it is resolved once and
// passed explicitly through every stage, never stashed in ambient
// process state.
type DeploymentTarget struct {
	// Name identifies the candidate that matched ("override",
	// "production", "development" or "local").
	Name string

	// RootPath is the absolute directory all relative workspace
	// paths (registry, fragments, env files) resolve against.
	RootPath string

	// EnvFile is the absolute path of the target's primary .env file.
	// It is guaranteed to exist and be non-empty by the resolver.
	EnvFile string
}

// Join resolves a relative workspace path against the target root.
func (t DeploymentTarget) Join(rel string) string {
	return filepath.Join(t.RootPath, rel)
}
