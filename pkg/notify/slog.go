package notify

import (
	"context"
	"log/slog"
)

// Compile-time interface check.
var _ Hook = (*SlogHook)(nil)

// SlogHook records every approval event in the structured log. It is the
// default hook: even with no external integration configured, the audit
// trail of gate activity lands in the logs.
type SlogHook struct {
	logger *slog.Logger
}

// NewSlogHook creates a log hook. A nil logger falls back to slog.Default().
func NewSlogHook(logger *slog.Logger) *SlogHook {
	return &SlogHook{logger: orDefault(logger)}
}

// EventTypes returns nil: all events are logged.
func (h *SlogHook) EventTypes() []EventType { return nil }

// OnEvent logs one event.
func (h *SlogHook) OnEvent(_ context.Context, ev Event) error {
	h.logger.Info("approval event",
		"event", string(ev.Type),
		"request_id", ev.RequestID,
		"run_id", ev.RunID,
		"title", ev.Title,
		"risk", ev.RiskLevel,
		"decision", ev.Decision)
	return nil
}
