// Package notify routes approval-gate events to external integrations.
// Hooks handle real-time delivery (webhooks, Slack, logs); the dispatcher
// fans one event out to every registered hook.
//
// Delivery is best-effort by contract: the durable approval record is
// authoritative whether or not a human was notified, so a failing hook is
// logged and never affects gate correctness.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType identifies what happened to an approval request.
type EventType string

const (
	// EventRequestCreated fires when a request enters pending.
	EventRequestCreated EventType = "approval.requested"

	// EventRequestDecided fires on an approve/reject decision.
	EventRequestDecided EventType = "approval.decided"

	// EventRequestExpired fires when the sweep (or a cancellation)
	// expires a pending request.
	EventRequestExpired EventType = "approval.expired"
)

// Event is the notification payload.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id"`
	RunID     string    `json:"run_id"`
	Title     string    `json:"title"`
	RiskLevel string    `json:"risk_level"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// Decision is "approved" or "rejected" on decided events.
	Decision string `json:"decision,omitempty"`

	// Reason is the rejection reason, when given.
	Reason string `json:"reason,omitempty"`
}

// Hook is one delivery integration.
type Hook interface {
	// OnEvent delivers one event. Errors are logged by the dispatcher
	// and otherwise ignored.
	OnEvent(ctx context.Context, ev Event) error

	// EventTypes returns the event types this hook handles. Nil or
	// empty means all.
	EventTypes() []EventType
}

// Dispatcher fans events out to registered hooks. Safe for concurrent use.
type Dispatcher struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil logger falls back to
// slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: orDefault(logger)}
}

// Register adds a hook.
func (d *Dispatcher) Register(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Emit delivers ev to every hook whose EventTypes match. Hook failures
// are logged and do not propagate.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	d.mu.RLock()
	hooks := make([]Hook, len(d.hooks))
	copy(hooks, d.hooks)
	d.mu.RUnlock()

	for _, h := range hooks {
		if !wants(h, ev.Type) {
			continue
		}
		if err := h.OnEvent(ctx, ev); err != nil {
			d.logger.Warn("notification delivery failed",
				"event", string(ev.Type),
				"request_id", ev.RequestID,
				"error", err)
		}
	}
}

func wants(h Hook, t EventType) bool {
	types := h.EventTypes()
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
