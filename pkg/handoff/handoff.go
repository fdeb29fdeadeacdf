// Package handoff implements the two-tier state container passed between
// steps and runs: an in-memory State mutated by the orchestration engine
// during one active run, and an immutable Snapshot persisted to the
// workspace store when the run finishes.
//
// There is one canonical struct. Persist and Load are the only bridge
// between the two tiers; nothing else serializes run state, so the
// ephemeral and durable representations cannot drift.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/jsonutil"
	"github.com/windoliver/ThreatWeaver/pkg/workspace"
)

// State is the per-target, per-run container. It is owned by exactly one
// run's engine goroutine: findings are appended in strict step order and
// the struct is never shared across runs, so it carries no lock.
type State struct {
	// Target is the run's target (domain, IP, CIDR).
	Target string `json:"target"`

	// TeamID scopes the workspace namespace; empty for single tenant.
	TeamID string `json:"team_id,omitempty"`

	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Findings is the ordered sequence produced so far this run.
	Findings []finding.Finding `json:"findings"`

	// Prioritized holds the finding keys the decision policy selected
	// as high-value targets.
	Prioritized []string `json:"prioritized,omitempty"`

	// Metadata carries free-form run metadata (timings, counts).
	Metadata map[string]string `json:"metadata,omitempty"`

	// PersistedAt is set on the durable snapshot only.
	PersistedAt time.Time `json:"persisted_at,omitzero"`
}

// New creates the active state for one run.
func New(team, target, runID string) *State {
	return &State{
		Target:    target,
		TeamID:    team,
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
}

// Append adds findings produced by one step, preserving order.
func (s *State) Append(fs ...finding.Finding) {
	s.Findings = append(s.Findings, fs...)
}

// Prioritize records the policy's high-value selection, replacing any
// prior selection.
func (s *State) Prioritize(keys []string) {
	s.Prioritized = keys
}

// SetMetadata records one free-form metadata entry.
func (s *State) SetMetadata(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
}

// CountByKind returns how many findings of kind k the run has produced.
func (s *State) CountByKind(k finding.Kind) int {
	n := 0
	for _, f := range s.Findings {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// ByKind returns the findings of kind k in discovery order.
func (s *State) ByKind(k finding.Kind) []finding.Finding {
	var out []finding.Finding
	for _, f := range s.Findings {
		if f.Kind == k {
			out = append(out, f)
		}
	}
	return out
}

// snapshotPath is the per-run snapshot location.
func snapshotPath(team, target, runID string) string {
	return workspace.Join(team, target, runID, "handoffs", "state.json")
}

// latestPath accumulates every run's snapshot as generations of one
// logical path, so "most recent snapshot for this target" is a single
// versioned read. Generations are immutable once written.
func latestPath(team, target string) string {
	return workspace.Join(team, target, "handoffs", "latest.json")
}

// Persist writes the state as an immutable snapshot, keyed by
// (target, run id, timestamp). Called exactly once, at run completion.
func (s *State) Persist(ctx context.Context, store workspace.Store) error {
	snap := *s
	snap.PersistedAt = time.Now().UTC()
	data, err := jsonutil.MarshalIndent(snap, "  ")
	if err != nil {
		return fmt.Errorf("handoff: encode snapshot: %w", err)
	}
	if err := store.Write(ctx, snapshotPath(s.TeamID, s.Target, s.RunID), data); err != nil {
		return fmt.Errorf("handoff: persist run snapshot: %w", err)
	}
	if err := store.Write(ctx, latestPath(s.TeamID, s.Target), data); err != nil {
		return fmt.Errorf("handoff: persist latest snapshot: %w", err)
	}
	return nil
}

// LoadLatest returns the most recent persisted snapshot for the target,
// or (nil, nil) when the target has never completed a run.
func LoadLatest(ctx context.Context, store workspace.Store, team, target string) (*State, error) {
	data, err := store.Read(ctx, latestPath(team, target))
	if errors.Is(err, workspace.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("handoff: load latest snapshot: %w", err)
	}
	var snap State
	if err := jsonutil.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("handoff: decode snapshot: %w", err)
	}
	return &snap, nil
}

// LoadRun returns one specific run's snapshot.
func LoadRun(ctx context.Context, store workspace.Store, team, target, runID string) (*State, error) {
	data, err := store.Read(ctx, snapshotPath(team, target, runID))
	if err != nil {
		return nil, fmt.Errorf("handoff: load run %s: %w", runID, err)
	}
	var snap State
	if err := jsonutil.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("handoff: decode snapshot: %w", err)
	}
	return &snap, nil
}
