package workspace

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/homelab-sh/homelab/internal/core/domain"
	"github.com/homelab-sh/homelab/internal/core/envfile"
	"github.com/homelab-sh/homelab/internal/core/fragment"
	"github.com/homelab-sh/homelab/internal/core/registry"
)

// =============================================================================
// Loader
// =============================================================================

// Config describes where deployment targets and workspace files live.
type Config struct {
	// ProductionPath and DevelopmentPath are the conventional candidate
	// roots, probed in that order after any explicit override.
	ProductionPath  string
	DevelopmentPath string

	// RegistryFile is the registry file name inside the target root.
	RegistryFile string

	// ComposePrefix is the fragment file prefix. The base fragment is
	// <prefix>.yml; feature fragments are <prefix>.<name>.yml.
	ComposePrefix string
}

// Loader reads the declarative workspace from the filesystem.
type Loader struct {
	cfg    Config
	logger *slog.Logger
}

// NewLoader creates a workspace loader.
func NewLoader(cfg Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RegistryFile == "" {
		cfg.RegistryFile = "services.yaml"
	}
	if cfg.ComposePrefix == "" {
		cfg.ComposePrefix = "docker-compose"
	}
	return &Loader{cfg: cfg, logger: logger}
}

// =============================================================================
// Deployment Target Resolution
// =============================================================================

// ResolveTarget probes candidate roots in fixed priority order: the
// explicit override (if any), the production path, the development
// path, then the current working directory. The first candidate whose
// .env file exists, is readable and is non-empty wins. Resolution is
// deterministic: same candidates and .env state, same target.
func (l *Loader) ResolveTarget(override string) (domain.DeploymentTarget, error) {
	type candidate struct {
		name string
		root string
	}

	var candidates []candidate
	if override != "" {
		candidates = append(candidates, candidate{"override", override})
	}
	if l.cfg.ProductionPath != "" {
		candidates = append(candidates, candidate{"production", l.cfg.ProductionPath})
	}
	if l.cfg.DevelopmentPath != "" {
		candidates = append(candidates, candidate{"development", l.cfg.DevelopmentPath})
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, candidate{"local", cwd})
	}

	var probed []ProbeResult
	for _, c := range candidates {
		root, err := filepath.Abs(c.root)
		if err != nil {
			probed = append(probed, ProbeResult{c.name, c.root, "invalid path"})
			continue
		}
		envPath := filepath.Join(root, ".env")

		reason, ok := probeEnvFile(envPath)
		if !ok {
			probed = append(probed, ProbeResult{c.name, envPath, reason})
			continue
		}

		l.logger.Debug("deployment target resolved",
			"target", c.name,
			"root", root,
			"env_file", envPath,
		)
		return domain.DeploymentTarget{Name: c.name, RootPath: root, EnvFile: envPath}, nil
	}

	// Never fall back to an empty configuration: starting services with
	// no secrets produces silent crash-loops downstream.
	return domain.DeploymentTarget{}, &ConfigurationError{Probed: probed, Err: ErrNoTarget}
}

// probeEnvFile checks one .env candidate. Returns a rejection reason
// when the file is unusable.
func probeEnvFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "not found", false
		}
		return "not accessible", false
	}
	if info.IsDir() {
		return "is a directory", false
	}
	if info.Size() == 0 {
		return "empty", false
	}

	f, err := os.Open(path)
	if err != nil {
		return "not readable", false
	}
	f.Close()

	return "", true
}

// =============================================================================
// Registry Loading
// =============================================================================

// LoadRegistry reads and parses the registry file from the target root.
func (l *Loader) LoadRegistry(target domain.DeploymentTarget) (*registry.Registry, error) {
	path := target.Join(l.cfg.RegistryFile)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRegistryUnreadable, path, err)
	}
	reg, err := registry.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// =============================================================================
// Fragment Loading
// =============================================================================

// LoadFragments reads every compose fragment in the target root. The
// logical name of <prefix>.yml is "base"; <prefix>.<name>.yml maps to
// <name>. Other files are ignored.
func (l *Loader) LoadFragments(target domain.DeploymentTarget) (map[string]*fragment.Fragment, error) {
	entries, err := os.ReadDir(target.RootPath)
	if err != nil {
		return nil, fmt.Errorf("read target root %s: %w", target.RootPath, err)
	}

	fragments := make(map[string]*fragment.Fragment)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := l.fragmentName(entry)
		if !ok {
			continue
		}

		path := target.Join(entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read fragment %s: %w", path, err)
		}
		frag, err := fragment.Parse(name, path, content)
		if err != nil {
			return nil, err
		}
		fragments[name] = frag
	}

	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFragments, target.RootPath)
	}

	l.logger.Debug("fragments loaded", "count", len(fragments))
	return fragments, nil
}

// fragmentName derives the logical fragment name from a file name, or
// reports that the file is not a fragment.
func (l *Loader) fragmentName(entry fs.DirEntry) (string, bool) {
	base := entry.Name()
	ext := filepath.Ext(base)
	if ext != ".yml" && ext != ".yaml" {
		return "", false
	}
	stem := strings.TrimSuffix(base, ext)

	if stem == l.cfg.ComposePrefix {
		return "base", true
	}
	prefix := l.cfg.ComposePrefix + "."
	if strings.HasPrefix(stem, prefix) {
		name := strings.TrimPrefix(stem, prefix)
		if name != "" {
			return name, true
		}
	}
	return "", false
}

// =============================================================================
// Env File Injection
// =============================================================================

// ResolveEnvFiles resolves a service's declared env files to absolute
// paths under the target root and verifies each one exists. A missing
// file fails fast: a missing credential file would otherwise silently
// become an empty variable at launch.
func (l *Loader) ResolveEnvFiles(target domain.DeploymentTarget, reg *registry.Registry, service string) ([]string, error) {
	decl, ok := reg.Declaration(service)
	if !ok {
		return nil, &LookupError{Service: service, Err: ErrUnknownService}
	}

	files := envfile.Resolve(target, decl)
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return nil, &LookupError{Service: service, File: path, Err: ErrEnvFileMissing}
		}
	}
	return files, nil
}

// LoadMergedEnv loads and layers a service's declared env files,
// last-wins per key. Used for plan inspection; the runtime itself
// loads the same files at dispatch.
func (l *Loader) LoadMergedEnv(target domain.DeploymentTarget, reg *registry.Registry, service string) (map[string]string, error) {
	files, err := l.ResolveEnvFiles(target, reg, service)
	if err != nil {
		return nil, err
	}

	layers := make([]map[string]string, 0, len(files))
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, &LookupError{Service: service, File: path, Err: ErrEnvFileMissing}
		}
		vars, perr := envfile.Parse(f)
		f.Close()
		if perr != nil {
			return nil, &LookupError{Service: service, File: path, Err: perr}
		}
		layers = append(layers, vars)
	}
	return envfile.Merge(layers...), nil
}
