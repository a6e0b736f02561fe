package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/homelab-sh/homelab/internal/core/bundle"
	"github.com/homelab-sh/homelab/internal/core/fragment"
	"github.com/homelab-sh/homelab/internal/core/registry"
	"github.com/homelab-sh/homelab/internal/pipeline"
	"github.com/homelab-sh/homelab/internal/shell/api"
	"github.com/homelab-sh/homelab/internal/shell/dispatch"
	"github.com/homelab-sh/homelab/internal/shell/docker"
	"github.com/homelab-sh/homelab/internal/shell/journal"
	"github.com/homelab-sh/homelab/internal/shell/workspace"
)

// passthroughVerbs are the compose verbs forwarded to the runtime
// after full validation.
var passthroughVerbs = map[string]bool{
	"up":      true,
	"down":    true,
	"ps":      true,
	"pull":    true,
	"restart": true,
	"stop":    true,
	"start":   true,
}

// =============================================================================
// Application Wiring
// =============================================================================

// app holds the wired pipeline for one process invocation.
type app struct {
	cfg       *Config
	logger    *slog.Logger
	pipe      *pipeline.Pipeline
	recorder  journal.Recorder
	inspector *docker.Client
	opts      pipeline.Options
}

func newApp(cfg *Config, logger *slog.Logger, targetOverride string, selection []string) (*app, error) {
	ws := workspace.NewLoader(workspace.Config{
		ProductionPath:  cfg.Paths.Production,
		DevelopmentPath: cfg.Paths.Development,
		RegistryFile:    cfg.Workspace.RegistryFile,
		ComposePrefix:   cfg.Workspace.ComposePrefix,
	}, logger)

	runner := dispatch.NewRunner(dispatch.Options{
		Binary:          cfg.Compose.Binary,
		ProjectName:     cfg.Compose.ProjectName,
		SubstitutionVar: cfg.Compose.SubstitutionVar,
		RetryAttempts:   cfg.Compose.RetryAttempts,
		RetryDelay:      cfg.Compose.RetryDelay,
	}, logger)

	var recorder journal.Recorder = journal.NewNoopRecorder()
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0755); err != nil {
			logger.Warn("journal unavailable, continuing without it", "error", err)
		} else if j, err := journal.Open(cfg.Journal.Path); err == nil {
			recorder = j
		} else {
			logger.Warn("journal unavailable, continuing without it", "error", err)
		}
	}

	inspector, err := docker.NewClient(cfg.Docker.Host)
	if err != nil {
		recorder.Close()
		return nil, err
	}

	pipe := pipeline.New(pipeline.Config{
		Workspace:   ws,
		Runner:      runner,
		Inspector:   inspector,
		Recorder:    recorder,
		ProjectName: cfg.Compose.ProjectName,
		Logger:      logger,
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		pipe:      pipe,
		recorder:  recorder,
		inspector: inspector,
		opts: pipeline.Options{
			TargetOverride: targetOverride,
			Selection:      selection,
		},
	}, nil
}

// Close releases the app's connections.
func (a *app) Close() {
	a.recorder.Close()
	a.inspector.Close()
}

// dispatch routes one subcommand.
func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "status":
		return a.cmdStatus(ctx)
	case "logs":
		return a.cmdLogs(ctx, args)
	case "fix":
		return a.cmdFix(ctx)
	case "config":
		return a.cmdConfig(ctx)
	case "history":
		return a.cmdHistory(ctx, args)
	case "serve":
		return a.cmdServe(ctx)
	default:
		if passthroughVerbs[cmd] {
			return a.cmdPassthrough(ctx, cmd, args)
		}
		return fmt.Errorf("unknown command %q (run homelab without arguments for usage)", cmd)
	}
}

// =============================================================================
// Commands
// =============================================================================

func (a *app) cmdStatus(ctx context.Context) error {
	plan, err := a.pipe.Prepare(ctx, a.opts)
	if err != nil {
		return err
	}
	report, err := a.pipe.Status(ctx, plan)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "SERVICE\tSTATE\tHEALTH\tRESTARTS\tCONTAINER\n")
	for _, s := range report.Services {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.Service, s.State, s.Health, s.Restarts, s.Container)
	}
	w.Flush()
	fmt.Printf("\ntarget: %s   overall: %s\n", report.Target, report.Overall)
	return nil
}

func (a *app) cmdLogs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	follow := fs.Bool("follow", false, "Follow the log stream")
	tail := fs.String("tail", "100", "Number of lines from the end of the logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: homelab logs [-follow] [-tail N] <service>")
	}
	service := fs.Arg(0)

	plan, err := a.pipe.Prepare(ctx, a.opts)
	if err != nil {
		return err
	}
	return a.pipe.Logs(ctx, plan, service, docker.LogOptions{
		Follow: *follow,
		Tail:   *tail,
	}, os.Stdout)
}

func (a *app) cmdFix(ctx context.Context) error {
	plan, err := a.pipe.Prepare(ctx, a.opts)
	if err != nil {
		return err
	}
	if err := a.pipe.Apply(ctx, plan); err != nil {
		return err
	}
	a.logger.Info("bundle applied", "target", plan.Target.Name, "fragments", plan.Bundle.Names)
	return nil
}

func (a *app) cmdPassthrough(ctx context.Context, verb string, args []string) error {
	plan, err := a.pipe.Prepare(ctx, a.opts)
	if err != nil {
		return err
	}
	return a.pipe.Passthrough(ctx, plan, verb, args)
}

// planSummary is the printable shape of a resolved plan.
type planSummary struct {
	Target struct {
		Name    string `yaml:"name"`
		Root    string `yaml:"root"`
		EnvFile string `yaml:"env_file"`
	} `yaml:"target"`
	Fragments []string            `yaml:"fragments"`
	Files     []string            `yaml:"files"`
	Services  map[string][]string `yaml:"services"`
}

func (a *app) cmdConfig(ctx context.Context) error {
	plan, err := a.pipe.Prepare(ctx, a.opts)
	if err != nil {
		return err
	}

	var summary planSummary
	summary.Target.Name = plan.Target.Name
	summary.Target.Root = plan.Target.RootPath
	summary.Target.EnvFile = plan.Target.EnvFile
	summary.Fragments = plan.Bundle.Names
	summary.Files = plan.Bundle.Files
	summary.Services = make(map[string][]string)
	for _, svc := range plan.Bundle.Services() {
		summary.Services[svc] = plan.EnvFiles[svc]
	}

	out, err := yaml.Marshal(summary)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}

func (a *app) cmdHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("n", 20, "Number of entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	records, err := a.recorder.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no recorded invocations")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "WHEN\tCOMMAND\tTARGET\tFRAGMENTS\tOUTCOME\tDURATION\n")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Command, r.Target, r.Fragments, r.Outcome,
			r.Duration.Round(time.Millisecond),
		)
	}
	return w.Flush()
}

// statusSource recomposes a fresh plan per request, keeping the API as
// stateless as the CLI.
type statusSource struct {
	pipe *pipeline.Pipeline
	opts pipeline.Options
}

func (s *statusSource) CurrentStatus(ctx context.Context) (*pipeline.StatusReport, error) {
	plan, err := s.pipe.Prepare(ctx, s.opts)
	if err != nil {
		return nil, err
	}
	return s.pipe.Status(ctx, plan)
}

func (a *app) cmdServe(ctx context.Context) error {
	// Validate once up front so a broken workspace fails the command
	// instead of every request.
	if _, err := a.pipe.Prepare(ctx, a.opts); err != nil {
		return err
	}

	srv := api.NewServer(a.cfg.Serve.Addr, &statusSource{pipe: a.pipe, opts: a.opts}, a.logger)
	return srv.Start(ctx)
}

// =============================================================================
// Exit Code Mapping
// =============================================================================

// exitCodeFor maps the error taxonomy onto distinct exit codes.
func exitCodeFor(err error) int {
	var (
		confErr   *workspace.ConfigurationError
		schemaErr *registry.SchemaError
		parseErr  *fragment.ParseError
		compErr   *bundle.CompositionError
		lookupErr *workspace.LookupError
		dispErr   *dispatch.DispatchError
	)
	switch {
	case errors.As(err, &confErr):
		return ExitConfigError
	case errors.As(err, &schemaErr), errors.As(err, &parseErr):
		return ExitSchemaError
	case errors.As(err, &compErr):
		return ExitCompError
	case errors.As(err, &lookupErr):
		return ExitLookupError
	case errors.As(err, &dispErr):
		return ExitDispatch
	default:
		return ExitError
	}
}
