package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/tooling"
	"github.com/windoliver/ThreatWeaver/pkg/workspace"
)

// DefaultCaptureLimit bounds each of stdout and stderr per invocation.
const DefaultCaptureLimit = 1 << 20 // 1 MiB

// DefaultMaxConcurrent is the admission ceiling when none is given.
const DefaultMaxConcurrent = 8

// Monitor receives sandbox lifecycle signals. Started fires once per
// admitted invocation and Finished always pairs with it, whether or
// not a box could be created. Implementations must be cheap and must
// not block.
type Monitor interface {
	SandboxStarted()
	SandboxFinished(c finding.Classification)
}

// Executor drives tool invocations through a Provider. It enforces the
// admission ceiling, the per-invocation timeout, bounded output capture,
// and teardown on every path.
type Executor struct {
	provider     Provider
	sem          *semaphore.Weighted
	logger       *slog.Logger
	monitor      Monitor
	captureLimit int

	active atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMonitor attaches lifecycle metrics.
func WithMonitor(m Monitor) Option {
	return func(e *Executor) { e.monitor = m }
}

// WithCaptureLimit overrides the per-stream capture bound.
func WithCaptureLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.captureLimit = n
		}
	}
}

// NewExecutor creates an executor over provider admitting at most
// maxConcurrent invocations at once (0 means DefaultMaxConcurrent).
func NewExecutor(provider Provider, maxConcurrent int, opts ...Option) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	e := &Executor{
		provider:     provider,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		logger:       slog.Default(),
		captureLimit: DefaultCaptureLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AllocationCount returns the number of currently live boxes. It is
// zero whenever no invocation is in flight; a nonzero value at rest
// means a teardown leak.
func (e *Executor) AllocationCount() int64 {
	return e.active.Load()
}

// Execute runs one tool invocation to completion. files are staged into
// the box before the process starts (input lists and the like). When ws
// is non-nil every collected output is mirrored to the store under
// {target}/{runID}/{tool}/.
//
// Execute never returns an error value: every failure mode is folded
// into the ExecutionResult's Classification so the engine branches on
// one closed set.
func (e *Executor) Execute(ctx context.Context, cfg tooling.ToolConfig, files map[string][]byte, ws workspace.Store, target, runID string) tooling.ExecutionResult {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return failure(finding.ClassConfiguration, err)
	}

	// Admission is fail-fast: a full executor reports exhaustion now
	// instead of queueing work against a saturated host.
	if !e.sem.TryAcquire(1) {
		return failure(finding.ClassResourceExhausted,
			fmt.Errorf("%w: sandbox executor at capacity", finding.ErrResourceExhausted))
	}
	defer e.sem.Release(1)

	if e.monitor != nil {
		e.monitor.SandboxStarted()
	}
	res := e.run(ctx, cfg, files)
	if e.monitor != nil {
		e.monitor.SandboxFinished(res.Classification)
	}
	if ws != nil {
		e.mirror(ctx, cfg, res, ws, target, runID)
	}
	return res
}

func (e *Executor) run(ctx context.Context, cfg tooling.ToolConfig, files map[string][]byte) (res tooling.ExecutionResult) {
	start := time.Now()

	box, err := e.provider.Create(ctx, Spec{
		Image:           cfg.Image,
		Env:             cfg.Env,
		CPULimit:        cfg.CPULimit,
		MemoryLimitMB:   cfg.MemoryLimitMB,
		NetworkIsolated: cfg.NetworkIsolated,
	})
	if err != nil {
		return failure(classifyCreate(err), fmt.Errorf("create sandbox for %s: %w", cfg.Name, err))
	}
	e.active.Add(1)

	// Teardown happens on every path out of this function, panics
	// included. The destroy context is detached so a timed-out or
	// cancelled run still gets cleaned up.
	defer func() {
		if err := box.Destroy(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("sandbox destroy failed", "box", box.ID(), "tool", cfg.Name, "error", err)
		}
		e.active.Add(-1)
		if r := recover(); r != nil {
			res = failure(finding.ClassRetryable, fmt.Errorf("sandbox panic running %s: %v", cfg.Name, r))
			res.Duration = time.Since(start)
		}
	}()

	for path, data := range files {
		if err := box.WriteFile(ctx, path, data); err != nil {
			return failure(finding.ClassUnavailable, fmt.Errorf("stage %s into %s: %w", path, cfg.Name, err))
		}
	}

	stdout := newCaptureBuffer(e.captureLimit)
	stderr := newCaptureBuffer(e.captureLimit)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	e.logger.Info("sandbox exec", "box", box.ID(), "tool", cfg.Name, "timeout", cfg.Timeout)
	exit, runErr := box.Run(runCtx, append([]string{cfg.Command}, cfg.Args...), stdout, stderr)

	res = tooling.ExecutionResult{
		ExitCode: exit,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Classification = finding.ClassTimeout
		res.Err = fmt.Sprintf("%s exceeded its %s timeout", cfg.Name, cfg.Timeout)
	case runErr != nil && ctx.Err() != nil:
		res.Classification = finding.ClassRetryable
		res.Err = fmt.Sprintf("%s interrupted: %v", cfg.Name, runErr)
	case runErr != nil:
		res.Classification = finding.ClassRetryable
		res.Err = fmt.Sprintf("%s failed to run: %v", cfg.Name, runErr)
	case exit != 0:
		res.Classification = finding.ClassRetryable
		res.Err = fmt.Sprintf("%s exited %d", cfg.Name, exit)
	default:
		res.Success = true
	}

	// Collect declared outputs even on a nonzero exit: partial results
	// from a tool that crashed late are still results. A missing file
	// is recorded, never an error.
	if res.Classification != finding.ClassTimeout {
		res.Outputs = make(map[string][]byte)
		for _, path := range cfg.OutputFiles {
			data, err := box.ReadFile(context.WithoutCancel(ctx), path)
			if err != nil {
				res.Missing = append(res.Missing, path)
				continue
			}
			res.Outputs[path] = data
		}
	}
	return res
}

// mirror copies raw outputs to the workspace so a run leaves a durable
// audit trail regardless of what normalization keeps. Mirror failures
// are logged, not fatal: the in-memory result already has the bytes.
func (e *Executor) mirror(ctx context.Context, cfg tooling.ToolConfig, res tooling.ExecutionResult, ws workspace.Store, target, runID string) {
	for path, data := range res.Outputs {
		dst, err := workspace.CleanPath(fmt.Sprintf("%s/%s/%s/%s", target, runID, cfg.Name, path))
		if err != nil {
			e.logger.Warn("skip mirroring output", "tool", cfg.Name, "path", path, "error", err)
			continue
		}
		if err := ws.Write(ctx, dst, data); err != nil {
			e.logger.Warn("mirror output failed", "tool", cfg.Name, "path", dst, "error", err)
		}
	}
}

func classifyCreate(err error) finding.Classification {
	if c := finding.Classify(err); c == finding.ClassResourceExhausted {
		return c
	}
	return finding.ClassUnavailable
}

func failure(c finding.Classification, err error) tooling.ExecutionResult {
	return tooling.ExecutionResult{
		ExitCode:       -1,
		Classification: c,
		Err:            err.Error(),
	}
}
