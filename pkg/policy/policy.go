// Package policy decides what a run should do next. After every step
// the engine hands the current state and the not-yet-run plan tail to a
// Policy, which may reorder it, drop steps, append new ones, or empty
// it to finish the run early.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/handoff"
	"github.com/windoliver/ThreatWeaver/pkg/plan"
)

// Policy reworks the remaining plan in light of what a run has found so
// far. Implementations must treat state as read-only and return a
// Remaining derived from rem (same frozen prefix).
type Policy interface {
	Decide(ctx context.Context, state *handoff.State, rem *plan.Remaining) (*plan.Remaining, error)
}

// Func adapts a plain function to the Policy interface.
type Func func(ctx context.Context, state *handoff.State, rem *plan.Remaining) (*plan.Remaining, error)

func (f Func) Decide(ctx context.Context, state *handoff.State, rem *plan.Remaining) (*plan.Remaining, error) {
	return f(ctx, state, rem)
}

// Keep is the identity policy: run the plan exactly as written.
var Keep = Func(func(_ context.Context, _ *handoff.State, rem *plan.Remaining) (*plan.Remaining, error) {
	return rem, nil
})

// Bounded wraps p with a decision deadline. The wrapped policy runs
// against a clone of the remaining plan; if it errors, panics, or the
// deadline passes, the caller gets the unmodified original back with a
// nil error, so a broken policy can never stall or derail a run.
func Bounded(p Policy, timeout time.Duration, logger *slog.Logger) Policy {
	if timeout <= 0 {
		timeout = duration.PolicyDecision
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Func(func(ctx context.Context, state *handoff.State, rem *plan.Remaining) (*plan.Remaining, error) {
		dctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type result struct {
			rem *plan.Remaining
			err error
		}
		ch := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					ch <- result{err: fmt.Errorf("policy: panic: %v", r)}
				}
			}()
			out, err := p.Decide(dctx, state, rem.Clone())
			ch <- result{rem: out, err: err}
		}()

		select {
		case res := <-ch:
			if res.err != nil {
				logger.Warn("policy decision failed, keeping plan", "error", res.err)
				return rem, nil
			}
			if res.rem == nil {
				return rem, nil
			}
			return res.rem, nil
		case <-dctx.Done():
			logger.Warn("policy decision timed out, keeping plan", "timeout", timeout)
			return rem, nil
		}
	})
}
