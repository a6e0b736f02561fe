package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/homelab-sh/homelab/internal/core/bundle"
	"github.com/homelab-sh/homelab/internal/core/domain"
	"github.com/homelab-sh/homelab/internal/core/fragment"
	"github.com/homelab-sh/homelab/internal/core/health"
	"github.com/homelab-sh/homelab/internal/core/registry"
	"github.com/homelab-sh/homelab/internal/shell/dispatch"
	"github.com/homelab-sh/homelab/internal/shell/docker"
	"github.com/homelab-sh/homelab/internal/shell/journal"
	"github.com/homelab-sh/homelab/internal/shell/workspace"
)

// baseFragmentName is the logical name of the fragment that owns the
// shared resources all other fragments reference.
const baseFragmentName = "base"

// =============================================================================
// Pipeline
// =============================================================================

// Inspector is the read-only runtime surface the pipeline needs for
// status and log streaming.
type Inspector interface {
	ProjectContainers(ctx context.Context, project string) ([]domain.ServiceHealth, error)
	StreamServiceLogs(ctx context.Context, project, service string, opts docker.LogOptions, w io.Writer) error
}

// Options selects what one invocation composes.
type Options struct {
	// TargetOverride is an explicit deployment root, probed before the
	// conventional candidates.
	TargetOverride string

	// Selection names the feature fragments to merge after base.
	// Order matters: later fragments override earlier ones for
	// overlapping service keys.
	Selection []string
}

// Plan is the fully validated result of the four validation stages,
// ready for dispatch. It is immutable once returned.
type Plan struct {
	Target   domain.DeploymentTarget
	Registry *registry.Registry
	Bundle   *bundle.Bundle
	EnvFiles map[string][]string // service -> absolute env file paths
}

// Pipeline wires the workspace shell, the dispatcher and the runtime
// inspector into the fixed stage sequence.
type Pipeline struct {
	ws          *workspace.Loader
	runner      *dispatch.Runner
	inspector   Inspector
	recorder    journal.Recorder
	projectName string
	logger      *slog.Logger
}

// Config assembles a Pipeline.
type Config struct {
	Workspace   *workspace.Loader
	Runner      *dispatch.Runner
	Inspector   Inspector
	Recorder    journal.Recorder
	ProjectName string
	Logger      *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = journal.NewNoopRecorder()
	}
	projectName := cfg.ProjectName
	if projectName == "" {
		projectName = "homelab"
	}
	return &Pipeline{
		ws:          cfg.Workspace,
		runner:      cfg.Runner,
		inspector:   cfg.Inspector,
		recorder:    recorder,
		projectName: projectName,
		logger:      logger,
	}
}

// =============================================================================
// Validation Stages
// =============================================================================

// Prepare runs every validation stage and returns the dispatch-ready
// plan. Nothing observable happens to running services in here: all
// inputs are consumed read-only.
func (p *Pipeline) Prepare(ctx context.Context, opts Options) (*Plan, error) {
	// Stage 1: resolve the deployment target.
	target, err := p.ws.ResolveTarget(opts.TargetOverride)
	if err != nil {
		return nil, NewStageError(StageResolve, err)
	}
	p.logger.Info("deployment target resolved", "target", target.Name, "root", target.RootPath)

	// Stage 2: load the registry and all fragments, then enforce the
	// registry-to-fragment contract. Consistency is checked against
	// every fragment in the workspace, not just the selection: an
	// undeclared service is a defect even when tonight's bundle leaves
	// its fragment out.
	reg, err := p.ws.LoadRegistry(target)
	if err != nil {
		return nil, NewStageError(StageRegistry, err)
	}
	fragments, err := p.ws.LoadFragments(target)
	if err != nil {
		return nil, NewStageError(StageRegistry, err)
	}

	all := make([]*fragment.Fragment, 0, len(fragments))
	for _, name := range sortedKeys(fragments) {
		all = append(all, fragments[name])
	}
	union, fragmentEnvFiles := fragment.ServiceUnion(all)
	if err := registry.CheckConsistency(reg, union, fragmentEnvFiles); err != nil {
		return nil, NewStageError(StageRegistry, err)
	}

	// Stage 3: compose the bundle.
	b, err := bundle.Compose(opts.Selection, fragments, baseFragmentName)
	if err != nil {
		return nil, NewStageError(StageCompose, err)
	}
	p.logger.Info("bundle composed", "fragments", b.Names)

	// Stage 4: inject env files for every service in the bundle. Each
	// declared file must exist and parse; a missing credential file
	// fails here instead of becoming an empty variable at launch.
	envFiles := make(map[string][]string)
	for _, svc := range b.Services() {
		files, err := p.ws.ResolveEnvFiles(target, reg, svc)
		if err != nil {
			return nil, NewStageError(StageInject, err)
		}
		if len(files) > 0 {
			if _, err := p.ws.LoadMergedEnv(target, reg, svc); err != nil {
				return nil, NewStageError(StageInject, err)
			}
			envFiles[svc] = files
		}
	}

	return &Plan{
		Target:   target,
		Registry: reg,
		Bundle:   b,
		EnvFiles: envFiles,
	}, nil
}

// =============================================================================
// Dispatch
// =============================================================================

// Apply dispatches the plan as "up -d --remove-orphans": create,
// update and start everything the bundle describes.
func (p *Pipeline) Apply(ctx context.Context, plan *Plan) error {
	return p.dispatchVerb(ctx, plan, "fix", "up", []string{"-d", "--remove-orphans"})
}

// Passthrough dispatches an arbitrary compose verb against the plan.
func (p *Pipeline) Passthrough(ctx context.Context, plan *Plan, verb string, extra []string) error {
	return p.dispatchVerb(ctx, plan, verb, verb, extra)
}

// mutatingVerbs are the compose verbs worth a journal entry.
var mutatingVerbs = map[string]bool{
	"fix":     true,
	"up":      true,
	"down":    true,
	"restart": true,
	"stop":    true,
	"start":   true,
	"pull":    true,
}

func (p *Pipeline) dispatchVerb(ctx context.Context, plan *Plan, command, verb string, args []string) error {
	started := time.Now()

	err := p.runner.Run(ctx, dispatch.Invocation{
		Target:   plan.Target,
		Files:    plan.Bundle.Files,
		EnvFiles: plan.EnvFiles,
		Verb:     verb,
		Args:     args,
	})

	if mutatingVerbs[command] {
		p.record(ctx, plan, command, started, err)
	}

	if err != nil {
		return NewStageError(StageDispatch, err)
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, plan *Plan, command string, started time.Time, dispatchErr error) {
	rec := domain.InvocationRecord{
		Command:   command,
		Target:    plan.Target.Name,
		Fragments: plan.Bundle.Names,
		Services:  plan.Bundle.Services(),
		Outcome:   domain.OutcomeSuccess,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}
	if dispatchErr != nil {
		rec.Outcome = domain.OutcomeFailure
		rec.Error = dispatchErr.Error()
	}
	if err := p.recorder.Record(ctx, rec); err != nil {
		// The journal never blocks an invocation.
		p.logger.Warn("journal write failed", "error", err)
	}
}

// =============================================================================
// Inspection
// =============================================================================

// StatusReport is the composed-bundle health view.
type StatusReport struct {
	Target   string                 `json:"target"`
	Overall  domain.HealthStatus    `json:"overall"`
	Services []domain.ServiceHealth `json:"services"`
}

// Status reports per-service and aggregate health for the plan's
// bundle. A bundle service with no container at all is reported as
// missing and unhealthy.
func (p *Pipeline) Status(ctx context.Context, plan *Plan) (*StatusReport, error) {
	observed, err := p.inspector.ProjectContainers(ctx, p.projectName)
	if err != nil {
		return nil, NewStageError(StageDispatch, err)
	}

	byService := make(map[string]domain.ServiceHealth, len(observed))
	for _, s := range observed {
		byService[s.Service] = s
	}

	var services []domain.ServiceHealth
	for _, svc := range plan.Bundle.Services() {
		if s, ok := byService[svc]; ok {
			services = append(services, s)
			continue
		}
		services = append(services, domain.ServiceHealth{
			Service: svc,
			State:   "missing",
			Health:  domain.HealthStatusUnhealthy,
		})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Service < services[j].Service })

	return &StatusReport{
		Target:   plan.Target.Name,
		Overall:  health.Aggregate(services),
		Services: services,
	}, nil
}

// Logs streams one service's logs to w. The service must be part of
// the composed bundle's registry.
func (p *Pipeline) Logs(ctx context.Context, plan *Plan, service string, opts docker.LogOptions, w io.Writer) error {
	if _, ok := plan.Registry.Declaration(service); !ok {
		return NewStageError(StageInject, &workspace.LookupError{Service: service, Err: workspace.ErrUnknownService})
	}
	if err := p.inspector.StreamServiceLogs(ctx, p.projectName, service, opts, w); err != nil {
		return NewStageError(StageDispatch, err)
	}
	return nil
}

func sortedKeys(m map[string]*fragment.Fragment) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
