// Package approval implements the durable, time-boxed human-approval
// primitive that suspends a workflow step pending an external decision.
//
// A request transitions exactly once out of pending (to approved,
// rejected, or expired) and is never mutated afterwards. The persisted
// record is authoritative: the engine's wait is a resumable status
// re-check, not in-memory blocking, so any process may perform the final
// transition and a restarted process picks the wait back up.
package approval

import (
	"time"
)

// Status of an approval request.
type Status string

const (
	// StatusPending means no decision has been made yet.
	StatusPending Status = "pending"

	// StatusApproved authorizes the gated action.
	StatusApproved Status = "approved"

	// StatusRejected denies the gated action.
	StatusRejected Status = "rejected"

	// StatusExpired means the expiry passed with no decision. Expired
	// and rejected both resolve the gate to "do not execute"; they are
	// distinguished only for audit purposes.
	StatusExpired Status = "expired"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool { return s != StatusPending }

// Action is the payload that would execute if approved.
type Action struct {
	Tool string   `json:"tool"`
	Args []string `json:"args,omitempty"`
}

// Request is the durable approval record.
type Request struct {
	// ID uniquely identifies the request.
	ID string `json:"id"`

	// RunID and StepID reference the owning run and plan step.
	RunID  string `json:"run_id"`
	StepID string `json:"step_id"`

	// Title and Description are shown to the human reviewer.
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// RiskLevel classifies the request (LOW, MEDIUM, HIGH, CRITICAL).
	RiskLevel string `json:"risk_level"`

	// Action is what executes if approved.
	Action Action `json:"action"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// RequestedAt is when the request was created.
	RequestedAt time.Time `json:"requested_at"`

	// ExpiresAt is the absolute expiry. Fixed at creation; it is the
	// sole authority for auto-expiry and is never extended.
	ExpiresAt time.Time `json:"expires_at"`

	// Decision metadata, set by the single transition out of pending.
	DecidedBy string    `json:"decided_by,omitempty"`
	DecidedAt time.Time `json:"decided_at,omitzero"`
	Reason    string    `json:"reason,omitempty"`
}

// Overdue reports whether a pending request's expiry has passed.
func (r Request) Overdue(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.ExpiresAt)
}

// Spec describes a request to be created.
type Spec struct {
	RunID       string
	StepID      string
	Title       string
	Description string
	RiskLevel   string
	Action      Action

	// Expiry overrides duration.ApprovalExpiry when positive.
	Expiry time.Duration
}
