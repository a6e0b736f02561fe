package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/homelab-sh/homelab/internal/core/domain"
)

// =============================================================================
// Runner
// =============================================================================

// Invocation is one fully resolved compose invocation: the bundle's
// fragment files in merge order, the per-service env file injection,
// and the compose verb plus its arguments.
type Invocation struct {
	Target   domain.DeploymentTarget
	Files    []string
	EnvFiles map[string][]string // service name -> absolute env file paths
	Verb     string
	Args     []string
}

// Runner executes compose invocations against the container runtime
// CLI. It never writes a file: the per-service env injection travels as
// an override document on stdin.
type Runner struct {
	bin         string
	projectName string
	substVar    string
	attempts    int
	retryDelay  time.Duration
	logger      *slog.Logger

	stdout io.Writer
	stderr io.Writer
}

// Options configures a Runner.
type Options struct {
	// Binary is the runtime binary, "docker" by default.
	Binary string

	// ProjectName is the compose project name for the whole homelab.
	ProjectName string

	// SubstitutionVar is the variable fragments use to refer to the
	// deployment root, exported only to the child process.
	SubstitutionVar string

	// RetryAttempts bounds retries on daemon unavailability. All other
	// failures surface immediately: retrying a structurally invalid
	// invocation cannot succeed and would mask the root cause.
	RetryAttempts int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner creates a Runner.
func NewRunner(opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Binary == "" {
		opts.Binary = "docker"
	}
	if opts.ProjectName == "" {
		opts.ProjectName = "homelab"
	}
	if opts.SubstitutionVar == "" {
		opts.SubstitutionVar = "HOMELAB_ROOT"
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Runner{
		bin:         opts.Binary,
		projectName: opts.ProjectName,
		substVar:    opts.SubstitutionVar,
		attempts:    opts.RetryAttempts,
		retryDelay:  opts.RetryDelay,
		logger:      logger,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
	}
}

// Run executes one compose invocation, retrying only on daemon
// unavailability, a bounded number of times.
func (r *Runner) Run(ctx context.Context, inv Invocation) error {
	override, err := OverrideDocument(inv.EnvFiles)
	if err != nil {
		return NewDispatchError(inv.Verb, "build env override document", err)
	}

	args := BuildArgs(r.projectName, inv, len(override) > 0)

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			r.logger.Warn("runtime daemon unavailable, retrying",
				"attempt", attempt,
				"max_attempts", r.attempts,
				"delay", r.retryDelay,
			)
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return NewDispatchError(inv.Verb, "cancelled", ctx.Err())
			}
		}

		lastErr = r.runOnce(ctx, inv, args, override)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrDaemonUnavailable) {
			return lastErr
		}
	}
	return lastErr
}

func (r *Runner) runOnce(ctx context.Context, inv Invocation, args []string, override []byte) error {
	r.logger.Debug("dispatching to runtime",
		"bin", r.bin,
		"verb", inv.Verb,
		"files", inv.Files,
	)

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Dir = inv.Target.RootPath

	// The one and only exported value: the substitution variable the
	// fragment files interpolate for the deployment root.
	cmd.Env = append(os.Environ(), r.substVar+"="+inv.Target.RootPath)

	if len(override) > 0 {
		cmd.Stdin = bytes.NewReader(override)
	}

	// Tee stderr so daemon unavailability can be classified after the
	// operator has already seen the output.
	var stderrBuf bytes.Buffer
	cmd.Stdout = r.stdout
	cmd.Stderr = io.MultiWriter(r.stderr, &stderrBuf)

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return NewDispatchError(inv.Verb, fmt.Sprintf("%s not found in PATH", r.bin), ErrBinaryNotFound)
		}
		if IsDaemonUnavailable(stderrBuf.String()) {
			return NewDispatchError(inv.Verb, "runtime daemon is not reachable", ErrDaemonUnavailable)
		}
		return NewDispatchError(inv.Verb, fmt.Sprintf("runtime exited with error: %v", err), ErrRuntimeFailed)
	}
	return nil
}

// =============================================================================
// Argument and Override Construction (pure)
// =============================================================================

// BuildArgs assembles the compose CLI argument list for an invocation.
// Fragment files appear in bundle order; when an env override document
// is injected it is appended last as "-f -" so it takes precedence over
// every fragment.
func BuildArgs(projectName string, inv Invocation, withOverride bool) []string {
	args := []string{
		"compose",
		"--project-name", projectName,
		"--project-directory", inv.Target.RootPath,
		"--env-file", inv.Target.EnvFile,
	}
	for _, f := range inv.Files {
		args = append(args, "-f", f)
	}
	if withOverride {
		args = append(args, "-f", "-")
	}
	args = append(args, inv.Verb)
	args = append(args, inv.Args...)
	return args
}

// overrideFile is the shape of one service entry in the synthesized
// override document.
type overrideFile struct {
	EnvFile []string `yaml:"env_file"`
}

type overrideDoc struct {
	Services map[string]overrideFile `yaml:"services"`
}

// OverrideDocument synthesizes the in-memory compose override that
// attaches each service's injected env files. Returns nil when no
// service declares any env file. Output is deterministic: services are
// emitted in sorted order.
func OverrideDocument(envFiles map[string][]string) ([]byte, error) {
	services := make([]string, 0, len(envFiles))
	for svc, files := range envFiles {
		if len(files) > 0 {
			services = append(services, svc)
		}
	}
	if len(services) == 0 {
		return nil, nil
	}
	sort.Strings(services)

	doc := overrideDoc{Services: make(map[string]overrideFile, len(services))}
	for _, svc := range services {
		doc.Services[svc] = overrideFile{EnvFile: envFiles[svc]}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// daemonDownMarkers are the stderr fingerprints of a runtime daemon
// that is not running or not reachable.
var daemonDownMarkers = []string{
	"Cannot connect to the Docker daemon",
	"Is the docker daemon running",
	"error during connect",
	"the docker daemon is not running",
}

// IsDaemonUnavailable classifies runtime stderr output as transient
// daemon unavailability.
func IsDaemonUnavailable(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range daemonDownMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
