// Package envfile implements the layering semantics for per-service
// environment files: declaration order is load order, and keys in later
// files overwrite same-named keys from earlier files, never the reverse.
package envfile

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/compose-spec/compose-go/v2/dotenv"

	"github.com/homelab-sh/homelab/internal/core/domain"
	"github.com/homelab-sh/homelab/internal/core/registry"
)

// =============================================================================
// Ordering and Resolution
// =============================================================================

// Resolve maps a declaration's relative env file names onto absolute
// paths under the active deployment target, preserving declaration
// order. An empty declaration resolves to an empty list. Existence is
// not checked here - that is the injector's job at load time.
func Resolve(target domain.DeploymentTarget, decl registry.Declaration) []string {
	if len(decl.EnvFiles) == 0 {
		return nil
	}
	out := make([]string, len(decl.EnvFiles))
	for i, name := range decl.EnvFiles {
		out[i] = filepath.Join(target.RootPath, name)
	}
	return out
}

// =============================================================================
// Parsing and Merging
// =============================================================================

// Parse reads one env file's contents using dotenv semantics (quoting,
// comments, export prefixes).
func Parse(r io.Reader) (map[string]string, error) {
	vars, err := dotenv.ParseWithLookup(r, func(string) (string, bool) {
		// Env files must be self-contained: no silent fallback to the
		// ambient process environment.
		return "", false
	})
	if err != nil {
		return nil, fmt.Errorf("parse env file: %w", err)
	}
	return vars, nil
}

// Merge layers maps low-to-high precedence: keys in later maps
// overwrite same-named keys from earlier maps. The inputs are not
// modified.
func Merge(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}
