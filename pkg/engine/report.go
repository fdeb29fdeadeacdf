package engine

import (
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/handoff"
)

// State is a run's lifecycle state.
type State string

const (
	// StatePlanned means the run has not started executing yet.
	StatePlanned State = "planned"

	// StateRunning means a step is executing.
	StateRunning State = "running"

	// StateAwaitingApproval means the run is suspended on a gate.
	StateAwaitingApproval State = "awaiting-approval"

	// StateCompleted is terminal: the plan ran to its end, possibly
	// with failed steps.
	StateCompleted State = "completed"

	// StateAborted is terminal: the run stopped early and nothing
	// further should be trusted.
	StateAborted State = "aborted"
)

// StepStatus is a step's final disposition.
type StepStatus string

const (
	// StepSucceeded means the tool ran and exited clean.
	StepSucceeded StepStatus = "succeeded"

	// StepFailed means the tool failed after its retry budget.
	StepFailed StepStatus = "failed"

	// StepSkipped means the step never ran: no inputs existed for it.
	StepSkipped StepStatus = "skipped"

	// StepRejected means a human declined the approval gate.
	StepRejected StepStatus = "rejected"

	// StepExpired means the approval gate timed out undecided.
	StepExpired StepStatus = "expired"
)

// StepReport records one step's outcome.
type StepReport struct {
	ID             string                 `json:"id"`
	Tool           string                 `json:"tool"`
	Status         StepStatus             `json:"status"`
	Classification finding.Classification `json:"classification,omitempty"`
	Findings       int                    `json:"findings"`
	Attempts       int                    `json:"attempts"`
	Duration       time.Duration          `json:"duration"`
	Error          string                 `json:"error,omitempty"`

	// ApprovalID links gated steps to their audit record.
	ApprovalID string `json:"approval_id,omitempty"`
}

// Report is the full account of one run.
type Report struct {
	RunID      string         `json:"run_id"`
	Target     string         `json:"target"`
	Team       string         `json:"team"`
	Plan       string         `json:"plan"`
	State      State          `json:"state"`
	Steps      []StepReport   `json:"steps"`
	Handoff    *handoff.State `json:"handoff,omitempty"`
	Diff       *handoff.Diff  `json:"diff,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Error      string         `json:"error,omitempty"`
}

// Succeeded counts steps that ran clean.
func (r *Report) Succeeded() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepSucceeded {
			n++
		}
	}
	return n
}

// Failed counts steps that failed.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			n++
		}
	}
	return n
}
