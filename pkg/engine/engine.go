// Package engine runs workflow plans: it resolves step inputs, gates
// sensitive steps behind approval, drives the sandbox executor with
// classified retries, folds normalized findings into the handoff state,
// and consults the decision policy between steps.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/windoliver/ThreatWeaver/pkg/approval"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/handoff"
	"github.com/windoliver/ThreatWeaver/pkg/metrics"
	"github.com/windoliver/ThreatWeaver/pkg/plan"
	"github.com/windoliver/ThreatWeaver/pkg/policy"
	"github.com/windoliver/ThreatWeaver/pkg/retry"
	"github.com/windoliver/ThreatWeaver/pkg/sandbox"
	"github.com/windoliver/ThreatWeaver/pkg/tooling"
	"github.com/windoliver/ThreatWeaver/pkg/workspace"
)

// stagedInputFile is where resolved input values are written inside the
// sandbox for tools that read a list file.
const stagedInputFile = "targets.txt"

// Config assembles an Engine. Executor, Store, and Registry are
// required; everything else has a working default.
type Config struct {
	Executor *sandbox.Executor
	Store    workspace.Store
	Registry *tooling.Registry

	// Gate handles sensitive steps. Without one, sensitive steps fail
	// as misconfigured rather than running ungated.
	Gate *approval.Gate

	// Policy is consulted after every step. Defaults to policy.Keep.
	// The engine bounds whatever it is given: a hanging policy falls
	// back to the unmodified plan.
	Policy policy.Policy

	// PolicyTimeout bounds each policy call (default 30s).
	PolicyTimeout time.Duration

	// Team namespaces workspace paths.
	Team string

	Metrics *metrics.Collector
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Engine executes plans one step at a time. Findings are appended to
// the handoff state in strict step order; any parallelism lives inside
// individual tools, never across steps.
type Engine struct {
	executor *sandbox.Executor
	store    workspace.Store
	registry *tooling.Registry
	gate     *approval.Gate
	policy   policy.Policy
	team     string
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: engine: executor is required", finding.ErrConfiguration)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: engine: workspace store is required", finding.ErrConfiguration)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: engine: tool registry is required", finding.ErrConfiguration)
	}
	p := cfg.Policy
	if p == nil {
		p = policy.Keep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("threatweaver/engine")
	}
	team := cfg.Team
	if team == "" {
		team = "default"
	}
	return &Engine{
		executor: cfg.Executor,
		store:    cfg.Store,
		registry: cfg.Registry,
		gate:     cfg.Gate,
		policy:   policy.Bounded(p, cfg.PolicyTimeout, logger),
		team:     team,
		metrics:  cfg.Metrics,
		tracer:   tracer,
		logger:   logger,
	}, nil
}

// Run executes p against target. The returned error is non-nil only
// when the run aborted; a completed run with failed steps returns nil
// and the Report carries the per-step detail.
func (e *Engine) Run(ctx context.Context, p *plan.Plan, target string) (*Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	report := &Report{
		RunID:     runID,
		Target:    target,
		Team:      e.team,
		Plan:      p.Name,
		State:     StatePlanned,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := e.tracer.Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.target", target),
			attribute.String("run.plan", p.Name),
		))
	defer span.End()

	logger := e.logger.With("run_id", runID, "target", target, "plan", p.Name)
	logger.Info("run started", "steps", len(p.Steps))

	state := handoff.New(e.team, target, runID)
	previous, err := e.loadPrevious(ctx, target)
	if err != nil {
		return e.abort(report, span, fmt.Errorf("load prior handoff: %w", err))
	}

	rem := plan.NewRemaining(p)
	report.State = StateRunning

	for {
		step, ok := rem.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return e.abort(report, span, fmt.Errorf("run cancelled: %w", err))
		}

		sr := e.runStep(ctx, report, step, state)
		rem.Advance()
		report.Steps = append(report.Steps, sr)
		if e.metrics != nil {
			e.metrics.StepFinished(sr.Tool, string(sr.Status), sr.Duration)
		}
		logger.Info("step finished",
			"step", sr.ID, "tool", sr.Tool, "status", string(sr.Status),
			"findings", sr.Findings, "attempts", sr.Attempts)

		if err := ctx.Err(); err != nil {
			return e.abort(report, span, fmt.Errorf("run cancelled: %w", err))
		}

		if previous != nil {
			d := handoff.Compare(state, previous)
			state.SetMetadata("recommendation", string(d.Recommendation))
		}
		rem, err = e.policy.Decide(ctx, state, rem)
		if err != nil {
			// Bounded policies absorb their own failures; an error
			// here means the replacement tail itself was invalid.
			return e.abort(report, span, fmt.Errorf("policy decision: %w", err))
		}
	}

	prioritize(state)
	if err := e.persist(ctx, state); err != nil {
		return e.abort(report, span, fmt.Errorf("persist handoff: %w", err))
	}

	report.Handoff = state
	if previous != nil {
		d := handoff.Compare(state, previous)
		report.Diff = &d
	}
	report.State = StateCompleted
	report.FinishedAt = time.Now().UTC()
	if e.metrics != nil {
		e.metrics.RunFinished(string(StateCompleted))
	}
	span.SetAttributes(attribute.Int("run.findings", len(state.Findings)))
	logger.Info("run completed",
		"succeeded", report.Succeeded(), "failed", report.Failed(),
		"findings", len(state.Findings))
	return report, nil
}

func (e *Engine) abort(report *Report, span trace.Span, err error) (*Report, error) {
	report.State = StateAborted
	report.Error = err.Error()
	report.FinishedAt = time.Now().UTC()
	if e.metrics != nil {
		e.metrics.RunFinished(string(StateAborted))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Error("run aborted", "run_id", report.RunID, "error", err)
	return report, err
}

func (e *Engine) runStep(ctx context.Context, report *Report, step plan.Step, state *handoff.State) StepReport {
	sr := StepReport{ID: step.ID, Tool: step.Tool}
	start := time.Now()
	defer func() { sr.Duration = time.Since(start) }()

	ctx, span := e.tracer.Start(ctx, "step",
		trace.WithAttributes(
			attribute.String("step.id", step.ID),
			attribute.String("step.tool", step.Tool),
		))
	defer span.End()

	adapter, err := e.registry.Lookup(step.Tool)
	if err != nil {
		sr.Status = StepFailed
		sr.Classification = finding.ClassConfiguration
		sr.Error = err.Error()
		return sr
	}

	in, files, ok := resolveInput(report.Target, step, state)
	if !ok {
		sr.Status = StepSkipped
		sr.Error = fmt.Sprintf("no %s findings to feed %s", step.Input.Kind, step.Tool)
		return sr
	}

	cfg := adapter.Template(in)
	cfg.Sensitive = step.SensitiveOr(cfg.Sensitive)

	if cfg.Sensitive {
		status, approvalID, err := e.awaitApproval(ctx, report, step, cfg)
		sr.ApprovalID = approvalID
		if err != nil {
			sr.Status = StepFailed
			sr.Classification = finding.Classify(err)
			sr.Error = err.Error()
			return sr
		}
		if status != "" {
			sr.Status = status
			return sr
		}
	}
	report.State = StateRunning

	var res tooling.ExecutionResult
	rcfg := retry.DefaultConfig()
	rcfg.MaxAttempts = step.Retries + 1
	retryErr := retry.Do(ctx, rcfg, func() error {
		sr.Attempts++
		res = e.executor.Execute(ctx, cfg, files, e.store, report.Target, report.RunID)
		if res.Success {
			return nil
		}
		err := fmt.Errorf("%s: %s", res.Classification, res.Err)
		if res.Classification.IsStepRetryable() {
			return err
		}
		return retry.Stop(err)
	})
	if retryErr != nil {
		sr.Status = StepFailed
		sr.Classification = res.Classification
		if sr.Classification == finding.ClassNone {
			// Cancelled between attempts.
			sr.Classification = finding.ClassRetryable
		}
		sr.Error = retryErr.Error()
		span.SetStatus(codes.Error, retryErr.Error())
		return sr
	}

	found := adapter.Normalize(res)
	now := time.Now().UTC()
	for i := range found {
		if found[i].ID == "" {
			found[i].ID = uuid.NewString()
		}
		found[i].StepID = step.ID
		if found[i].DiscoveredAt.IsZero() {
			found[i].DiscoveredAt = now
		}
	}
	state.Append(found...)

	sr.Status = StepSucceeded
	sr.Findings = len(found)
	if len(res.Missing) > 0 {
		sr.Error = fmt.Sprintf("outputs not produced: %s", strings.Join(res.Missing, ", "))
	}
	span.SetAttributes(attribute.Int("step.findings", len(found)))
	return sr
}

// awaitApproval suspends the run on the gate. The first return is the
// step's final status when the gate said no ("" means approved, go
// ahead).
func (e *Engine) awaitApproval(ctx context.Context, report *Report, step plan.Step, cfg tooling.ToolConfig) (StepStatus, string, error) {
	if e.gate == nil {
		return "", "", fmt.Errorf("%w: step %s is sensitive but no approval gate is configured",
			finding.ErrConfiguration, step.ID)
	}
	report.State = StateAwaitingApproval
	req, err := e.gate.Request(ctx, approval.Spec{
		RunID:       report.RunID,
		StepID:      step.ID,
		Title:       fmt.Sprintf("%s against %s", cfg.Name, report.Target),
		Description: fmt.Sprintf("%s %s", cfg.Command, strings.Join(cfg.Args, " ")),
		RiskLevel:   cfg.RiskLevel,
		Action:      approval.Action{Tool: cfg.Name, Args: cfg.Args},
	})
	if err != nil {
		return "", "", err
	}
	e.logger.Info("awaiting approval",
		"run_id", report.RunID, "step", step.ID, "request_id", req.ID,
		"expires_at", req.ExpiresAt)

	decided, err := e.gate.Await(ctx, req.ID)
	if err != nil {
		return "", req.ID, err
	}
	switch decided.Status {
	case approval.StatusApproved:
		return "", req.ID, nil
	case approval.StatusRejected:
		return StepRejected, req.ID, nil
	default:
		return StepExpired, req.ID, nil
	}
}

// resolveInput builds the adapter input from the step's selection rule.
// ok is false when the rule selects a kind and nothing of that kind has
// been found: the step has nothing to run against.
func resolveInput(target string, step plan.Step, state *handoff.State) (tooling.Input, map[string][]byte, bool) {
	in := tooling.Input{Target: target}
	if step.Input.Empty() {
		return in, nil, true
	}
	var values []string
	seen := make(map[string]bool)
	for _, f := range state.ByKind(step.Input.Kind) {
		if step.Input.FromStep != "" && f.StepID != step.Input.FromStep {
			continue
		}
		v := f.Value
		switch step.Input.Use {
		case "url":
			v = f.URL
		case "host":
			v = f.Host
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	if len(values) == 0 {
		return in, nil, false
	}
	in.Values = values
	in.InputFile = stagedInputFile
	files := map[string][]byte{
		stagedInputFile: []byte(strings.Join(values, "\n") + "\n"),
	}
	return in, files, true
}

// loadPrevious fetches the target's last persisted snapshot for
// diffing, retrying transient store failures the same way persist
// does. A store that stays unreachable aborts the run; a snapshot
// that exists but will not decode only disables the diff.
func (e *Engine) loadPrevious(ctx context.Context, target string) (*handoff.State, error) {
	var previous *handoff.State
	err := retry.Do(ctx, storeRetry(), func() error {
		var lerr error
		previous, lerr = handoff.LoadLatest(ctx, e.store, e.team, target)
		return lerr
	})
	if err != nil {
		if finding.Classify(err) == finding.ClassUnavailable {
			return nil, err
		}
		e.logger.Warn("prior handoff unreadable, diffing disabled", "target", target, "error", err)
		return nil, nil
	}
	return previous, nil
}

// persist writes the handoff snapshot, retrying transient store
// failures before giving up.
func (e *Engine) persist(ctx context.Context, state *handoff.State) error {
	return retry.Do(ctx, storeRetry(), func() error {
		return state.Persist(ctx, e.store)
	})
}

// storeRetry is the shared retry budget for workspace operations.
func storeRetry() retry.Config {
	cfg := retry.StoreConfig()
	cfg.Retryable = func(err error) bool {
		return finding.Classify(err) == finding.ClassUnavailable
	}
	return cfg
}

// prioritize orders the state's high-signal findings for the next team:
// critical and high severity first, by score.
func prioritize(state *handoff.State) {
	var hot []finding.Finding
	for _, f := range state.Findings {
		if f.Severity.Score() >= finding.High.Score() {
			hot = append(hot, f)
		}
	}
	sort.SliceStable(hot, func(i, j int) bool {
		return hot[i].Severity.Score() > hot[j].Severity.Score()
	})
	keys := make([]string, len(hot))
	for i, f := range hot {
		keys[i] = f.Key()
	}
	state.Prioritize(keys)
}
