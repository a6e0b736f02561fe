// Package e2e provides end-to-end tests for the homelab launcher.
//
// These tests require a running Docker daemon with the compose plugin
// and will create/destroy real containers. Run with:
//
//	go test -v -timeout 10m ./tests/e2e/...
//
// When no daemon is reachable the whole suite is skipped.
package e2e

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/homelab-sh/homelab/internal/pipeline"
	"github.com/homelab-sh/homelab/internal/shell/dispatch"
	"github.com/homelab-sh/homelab/internal/shell/docker"
	"github.com/homelab-sh/homelab/internal/shell/workspace"
)

// projectName is deliberately distinct from the default so a test run
// never touches an operator's real homelab project.
const projectName = "homelab-e2e"

// =============================================================================
// Test Globals
// =============================================================================

var (
	testRoot        string
	testDocker      *docker.Client
	testPipe        *pipeline.Pipeline
	testOpts        pipeline.Options
	dockerAvailable bool
)

// =============================================================================
// Workspace Fixture
// =============================================================================

const fixtureEnv = "TZ=UTC\n"

const fixtureRegistry = `smoke-web:
  - .env.smoke-web
`

const fixtureFragment = `services:
  smoke-web:
    image: alpine:3.20
    command: ["sh", "-c", "echo ready && sleep 600"]
networks:
  homelab-e2e:
`

const fixtureServiceEnv = "SMOKE_GREETING=hello\n"

func writeWorkspace(root string) error {
	files := map[string]string{
		".env":               fixtureEnv,
		"services.yaml":      fixtureRegistry,
		"docker-compose.yml": fixtureFragment,
		".env.smoke-web":     fixtureServiceEnv,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// =============================================================================
// TestMain Setup
// =============================================================================

func TestMain(m *testing.M) {
	code := setup()
	if code != 0 {
		os.Exit(code)
	}

	result := m.Run()

	teardown()
	os.Exit(result)
}

func setup() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	root, err := os.MkdirTemp("", "homelab-e2e-*")
	if err != nil {
		log.Printf("e2e setup: %v", err)
		return 1
	}
	testRoot = root

	if err := writeWorkspace(testRoot); err != nil {
		log.Printf("e2e setup: %v", err)
		return 1
	}

	testDocker, err = docker.NewClient("")
	if err != nil {
		log.Printf("e2e setup: docker client: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := testDocker.Ping(ctx); err != nil {
		log.Printf("docker daemon not reachable, skipping e2e suite: %v", err)
		dockerAvailable = false
		return 0
	}
	dockerAvailable = true

	ws := workspace.NewLoader(workspace.Config{}, logger)
	runner := dispatch.NewRunner(dispatch.Options{
		ProjectName: projectName,
	}, logger)

	testPipe = pipeline.New(pipeline.Config{
		Workspace:   ws,
		Runner:      runner,
		Inspector:   testDocker,
		ProjectName: projectName,
		Logger:      logger,
	})
	testOpts = pipeline.Options{TargetOverride: testRoot}

	return 0
}

func teardown() {
	if dockerAvailable && testPipe != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if plan, err := testPipe.Prepare(ctx, testOpts); err == nil {
			if err := testPipe.Passthrough(ctx, plan, "down", []string{"--timeout", "5"}); err != nil {
				log.Printf("e2e teardown: down failed: %v", err)
			}
		}
	}
	if testDocker != nil {
		testDocker.Close()
	}
	if testRoot != "" {
		os.RemoveAll(testRoot)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if !dockerAvailable {
		t.Skip("docker daemon not reachable")
	}
}

// waitForService polls until the named service reports state running or
// the deadline expires.
func waitForService(t *testing.T, plan *pipeline.Plan, service string, deadline time.Duration) *pipeline.StatusReport {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	for {
		report, err := testPipe.Status(ctx, plan)
		if err == nil {
			for _, s := range report.Services {
				if s.Service == service && s.State == "running" {
					return report
				}
			}
		}
		select {
		case <-ctx.Done():
			t.Fatalf("service %s did not reach running state within %s", service, deadline)
			return nil
		case <-time.After(time.Second):
		}
	}
}
