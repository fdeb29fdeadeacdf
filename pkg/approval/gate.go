package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/notify"
	"github.com/windoliver/ThreatWeaver/pkg/retry"
)

// Gate is the approval primitive the engine suspends on. All state lives
// in the Store; the Gate itself is stateless apart from configuration,
// so any number of processes can share one backing directory and any of
// them may perform a request's final transition.
type Gate struct {
	store    Store
	notifier *notify.Dispatcher
	logger   *slog.Logger

	// now is a seam for tests.
	now func() time.Time
}

// NewGate creates a gate over store. notifier may be nil (no events);
// a nil logger falls back to slog.Default().
func NewGate(store Store, notifier *notify.Dispatcher, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// Request creates a pending approval record and emits one created event.
// Notification failure is the dispatcher's problem; the durable record is
// authoritative either way.
func (g *Gate) Request(ctx context.Context, spec Spec) (Request, error) {
	expiry := spec.Expiry
	if expiry <= 0 {
		expiry = duration.ApprovalExpiry
	}
	now := g.now().UTC()
	r := Request{
		ID:          uuid.NewString(),
		RunID:       spec.RunID,
		StepID:      spec.StepID,
		Title:       spec.Title,
		Description: spec.Description,
		RiskLevel:   spec.RiskLevel,
		Action:      spec.Action,
		Status:      StatusPending,
		RequestedAt: now,
		ExpiresAt:   now.Add(expiry),
	}
	err := retry.Do(ctx, storeRetry(), func() error {
		return g.store.Put(ctx, r)
	})
	if err != nil {
		return Request{}, fmt.Errorf("approval: create request: %w", err)
	}

	g.logger.Info("approval requested",
		"request_id", r.ID, "run_id", r.RunID, "step_id", r.StepID,
		"risk", r.RiskLevel, "expires_at", r.ExpiresAt)
	g.emit(ctx, notify.Event{
		Type:      notify.EventRequestCreated,
		RequestID: r.ID,
		RunID:     r.RunID,
		Title:     r.Title,
		RiskLevel: r.RiskLevel,
		ExpiresAt: r.ExpiresAt,
	})
	return r, nil
}

// Get returns the current record for id.
func (g *Gate) Get(ctx context.Context, id string) (Request, error) {
	return g.store.Get(ctx, id)
}

// Pending lists all pending requests, newest first.
func (g *Gate) Pending(ctx context.Context) ([]Request, error) {
	return g.store.List(ctx, StatusPending)
}

// Decide approves or rejects a pending request. It fails with
// finding.ErrAlreadyDecided if the request already left pending. A
// decision arriving after the expiry timestamp expires the request
// instead and then reports ErrAlreadyDecided: the expiry is the sole
// authority and a late approval must not resurrect the action.
func (g *Gate) Decide(ctx context.Context, id string, approve bool, decidedBy, reason string) (Request, error) {
	now := g.now().UTC()

	current, err := g.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if current.Overdue(now) {
		expired, eerr := g.expireOne(ctx, id, "expired before decision")
		if eerr == nil {
			g.emitExpired(ctx, expired)
		}
		return expired, fmt.Errorf("%w: %s expired at %s", finding.ErrAlreadyDecided, id, current.ExpiresAt)
	}

	r, err := g.store.Transition(ctx, id, func(r *Request) {
		if approve {
			r.Status = StatusApproved
		} else {
			r.Status = StatusRejected
			if reason == "" {
				reason = "no reason provided"
			}
			r.Reason = reason
		}
		r.DecidedBy = decidedBy
		r.DecidedAt = now
	})
	if err != nil {
		return r, err
	}

	g.logger.Info("approval decided",
		"request_id", r.ID, "status", string(r.Status), "decided_by", decidedBy)
	g.emit(ctx, notify.Event{
		Type:      notify.EventRequestDecided,
		RequestID: r.ID,
		RunID:     r.RunID,
		Title:     r.Title,
		RiskLevel: r.RiskLevel,
		Decision:  string(r.Status),
		Reason:    r.Reason,
	})
	return r, nil
}

// ExpireOverdue sweeps every pending request whose expiry has passed,
// transitioning each to expired exactly once. The sweep is idempotent:
// a second call finds nothing pending and is a no-op. Any process may
// run it.
func (g *Gate) ExpireOverdue(ctx context.Context) ([]Request, error) {
	pending, err := g.store.List(ctx, StatusPending)
	if err != nil {
		return nil, err
	}
	now := g.now().UTC()

	var expired []Request
	for _, r := range pending {
		if !r.Overdue(now) {
			continue
		}
		out, err := g.expireOne(ctx, r.ID, "expired by sweep")
		if errors.Is(err, finding.ErrAlreadyDecided) {
			// Another worker won the transition. Fine.
			continue
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, out)
		g.emitExpired(ctx, out)
	}
	if len(expired) > 0 {
		g.logger.Info("approval sweep expired requests", "count", len(expired))
	}
	return expired, nil
}

// Cancel expires a pending request immediately, regardless of its expiry
// timestamp. Used when a waiting run is cancelled: the gate resolves to
// "do not execute" now rather than waiting out the timer. The audit
// record distinguishes it by reason.
func (g *Gate) Cancel(ctx context.Context, id, reason string) (Request, error) {
	if reason == "" {
		reason = "run cancelled"
	}
	r, err := g.expireOne(ctx, id, reason)
	if err != nil {
		return r, err
	}
	g.emitExpired(ctx, r)
	return r, nil
}

func (g *Gate) expireOne(ctx context.Context, id, reason string) (Request, error) {
	return g.store.Transition(ctx, id, func(r *Request) {
		r.Status = StatusExpired
		r.Reason = reason
		r.DecidedAt = g.now().UTC()
	})
}

// Await blocks until the request reaches a terminal status, re-checking
// the durable record with backoff. The wait survives process restarts:
// a fresh process calling Await on the same id resumes exactly where the
// old one stopped, and the final transition may come from anywhere.
//
// Context cancellation expires the pending request immediately and
// returns the expired record along with ctx.Err().
func (g *Gate) Await(ctx context.Context, id string) (Request, error) {
	delay := duration.ApprovalPollInit
	for {
		r, err := g.store.Get(ctx, id)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return Request{}, err
		}
		if err == nil {
			if r.Status.Terminal() {
				return r, nil
			}
			if r.Overdue(g.now().UTC()) {
				// Expire in place; lose the race gracefully.
				out, eerr := g.expireOne(ctx, id, "expired while awaited")
				if eerr == nil {
					g.emitExpired(ctx, out)
					return out, nil
				}
				if errors.Is(eerr, finding.ErrAlreadyDecided) {
					continue
				}
				return Request{}, eerr
			}
		}

		select {
		case <-ctx.Done():
			out, cerr := g.Cancel(context.WithoutCancel(ctx), id, "run cancelled")
			if cerr != nil {
				return out, ctx.Err()
			}
			return out, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > duration.ApprovalPollMax {
			delay = duration.ApprovalPollMax
		}
	}
}

func (g *Gate) emit(ctx context.Context, ev notify.Event) {
	if g.notifier != nil {
		g.notifier.Emit(ctx, ev)
	}
}

func (g *Gate) emitExpired(ctx context.Context, r Request) {
	g.emit(ctx, notify.Event{
		Type:      notify.EventRequestExpired,
		RequestID: r.ID,
		RunID:     r.RunID,
		Title:     r.Title,
		RiskLevel: r.RiskLevel,
		Reason:    r.Reason,
	})
}

func storeRetry() retry.Config {
	cfg := retry.StoreConfig()
	cfg.Retryable = func(err error) bool {
		return finding.Classify(err) == finding.ClassUnavailable
	}
	return cfg
}
