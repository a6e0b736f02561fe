package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab-sh/homelab/internal/core/bundle"
	"github.com/homelab-sh/homelab/internal/core/fragment"
	"github.com/homelab-sh/homelab/internal/core/registry"
	"github.com/homelab-sh/homelab/internal/pipeline"
	"github.com/homelab-sh/homelab/internal/shell/dispatch"
	"github.com/homelab-sh/homelab/internal/shell/journal"
	"github.com/homelab-sh/homelab/internal/shell/workspace"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "HOMELAB_") {
			t.Setenv(key, "") // registers restore
			os.Unsetenv(key)
		}
	}
}

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/opt/homelab", cfg.Paths.Production)
	assert.Equal(t, "services.yaml", cfg.Workspace.RegistryFile)
	assert.Equal(t, "docker-compose", cfg.Workspace.ComposePrefix)
	assert.Equal(t, "docker", cfg.Compose.Binary)
	assert.Equal(t, "homelab", cfg.Compose.ProjectName)
	assert.Equal(t, "HOMELAB_ROOT", cfg.Compose.SubstitutionVar)
	assert.Equal(t, 3, cfg.Compose.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Compose.RetryDelay)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "127.0.0.1:8199", cfg.Serve.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
paths:
  production: /srv/homelab
  development: /home/op/lab

compose:
  binary: podman
  project_name: lab
  retry_attempts: 5
  retry_delay: 10s

journal:
  enabled: false

log:
  level: debug
  format: json
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "/srv/homelab", cfg.Paths.Production)
	assert.Equal(t, "/home/op/lab", cfg.Paths.Development)
	assert.Equal(t, "podman", cfg.Compose.Binary)
	assert.Equal(t, "lab", cfg.Compose.ProjectName)
	assert.Equal(t, 5, cfg.Compose.RetryAttempts)
	assert.Equal(t, 10*time.Second, cfg.Compose.RetryDelay)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOMELAB_PATHS_PRODUCTION", "/mnt/tank/homelab")
	t.Setenv("HOMELAB_COMPOSE_BINARY", "podman")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/mnt/tank/homelab", cfg.Paths.Production)
	assert.Equal(t, "podman", cfg.Compose.Binary)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "docker", cfg.Compose.Binary)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("paths: ["), 0644))

	_, err := LoadConfig(tmpFile)
	require.Error(t, err)
}

// =============================================================================
// App Wiring Tests
// =============================================================================

func TestNewApp_UnusableJournalPathFallsBackToNoop(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	// The journal directory cannot be created: its parent is a file.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	cfg.Journal.Path = filepath.Join(blocker, "journal.db")

	app, err := newApp(cfg, SetupLogger(cfg), "", nil)
	require.NoError(t, err)
	defer app.Close()

	_, ok := app.recorder.(*journal.NoopRecorder)
	assert.True(t, ok, "journal must degrade to the no-op recorder")
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		cfg := &Config{Log: LogConfig{Level: level, Format: "text"}}
		assert.NotNil(t, SetupLogger(cfg))
	}
}

// =============================================================================
// Exit Code Mapping Tests
// =============================================================================

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			"configuration error",
			pipeline.NewStageError(pipeline.StageResolve, &workspace.ConfigurationError{Err: workspace.ErrNoTarget}),
			ExitConfigError,
		},
		{
			"schema error",
			pipeline.NewStageError(pipeline.StageRegistry, registry.NewSchemaError("grafana", "missing", registry.ErrUnregisteredService)),
			ExitSchemaError,
		},
		{
			"fragment parse error",
			pipeline.NewStageError(pipeline.StageRegistry, fragment.NewParseError("docker-compose.web.yml", "invalid YAML", fragment.ErrInvalidYAML)),
			ExitSchemaError,
		},
		{
			"composition error",
			pipeline.NewStageError(pipeline.StageCompose, bundle.NewCompositionError("homelab", "conflict", bundle.ErrResourceConflict)),
			ExitCompError,
		},
		{
			"lookup error",
			pipeline.NewStageError(pipeline.StageInject, &workspace.LookupError{Service: "postgres", Err: workspace.ErrEnvFileMissing}),
			ExitLookupError,
		},
		{
			"dispatch error",
			pipeline.NewStageError(pipeline.StageDispatch, dispatch.NewDispatchError("up", "failed", dispatch.ErrRuntimeFailed)),
			ExitDispatch,
		},
		{
			"unknown error",
			errors.New("something else"),
			ExitError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}
