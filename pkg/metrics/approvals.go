package metrics

import (
	"context"

	"github.com/windoliver/ThreatWeaver/pkg/notify"
)

// ApprovalHook keeps the pending-approvals gauge aligned with gate
// events: a created request raises it, a decision or expiry lowers it.
// Register it on the same dispatcher the gate emits through.
type ApprovalHook struct {
	c *Collector
}

var _ notify.Hook = (*ApprovalHook)(nil)

// NewApprovalHook creates a hook feeding c.
func NewApprovalHook(c *Collector) *ApprovalHook {
	return &ApprovalHook{c: c}
}

func (h *ApprovalHook) EventTypes() []notify.EventType { return nil }

func (h *ApprovalHook) OnEvent(_ context.Context, ev notify.Event) error {
	switch ev.Type {
	case notify.EventRequestCreated:
		h.c.pendingApprovals.Inc()
	case notify.EventRequestDecided, notify.EventRequestExpired:
		h.c.pendingApprovals.Dec()
	}
	return nil
}
