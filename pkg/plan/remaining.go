package plan

import (
	"fmt"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// Remaining tracks plan progress with a frozen executed prefix. The
// engine advances it step by step; the decision policy may replace the
// not-yet-run tail (append, reorder, drop, or empty it out to finish
// early) but can never touch a step that already ran.
type Remaining struct {
	executed []Step
	upcoming []Step
}

// NewRemaining starts progress tracking over p's steps.
func NewRemaining(p *Plan) *Remaining {
	upcoming := make([]Step, len(p.Steps))
	copy(upcoming, p.Steps)
	return &Remaining{upcoming: upcoming}
}

// Next returns the next step to run without advancing. The second
// return is false when the plan is exhausted.
func (r *Remaining) Next() (Step, bool) {
	if len(r.upcoming) == 0 {
		return Step{}, false
	}
	return r.upcoming[0], true
}

// Advance moves the current step into the frozen prefix.
func (r *Remaining) Advance() {
	if len(r.upcoming) == 0 {
		return
	}
	r.executed = append(r.executed, r.upcoming[0])
	r.upcoming = r.upcoming[1:]
}

// Done reports whether no steps remain.
func (r *Remaining) Done() bool { return len(r.upcoming) == 0 }

// Clone returns an independent copy. Mutating the clone's tail leaves
// the original untouched.
func (r *Remaining) Clone() *Remaining {
	return &Remaining{executed: r.Executed(), upcoming: r.Upcoming()}
}

// Executed returns a copy of the frozen prefix.
func (r *Remaining) Executed() []Step {
	out := make([]Step, len(r.executed))
	copy(out, r.executed)
	return out
}

// Upcoming returns a copy of the not-yet-run tail.
func (r *Remaining) Upcoming() []Step {
	out := make([]Step, len(r.upcoming))
	copy(out, r.upcoming)
	return out
}

// Append adds steps to the end of the tail, validating each against the
// IDs already in the plan.
func (r *Remaining) Append(steps ...Step) error {
	tail := make([]Step, 0, len(r.upcoming)+len(steps))
	tail = append(tail, r.upcoming...)
	tail = append(tail, steps...)
	return r.Replace(tail)
}

// Replace swaps the not-yet-run tail for steps. An empty slice finishes
// the plan early. Step IDs must stay unique across the executed prefix
// and the new tail, and from-step references may only point backwards.
func (r *Remaining) Replace(steps []Step) error {
	seen := make(map[string]bool, len(r.executed)+len(steps))
	for _, s := range r.executed {
		seen[s.ID] = true
	}
	for i, s := range steps {
		if s.ID == "" {
			return fmt.Errorf("%w: plan tail: step %d has no id", finding.ErrConfiguration, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: plan tail: duplicate step id %s", finding.ErrConfiguration, s.ID)
		}
		if s.Tool == "" {
			return fmt.Errorf("%w: plan tail: step %s has no tool", finding.ErrConfiguration, s.ID)
		}
		if from := s.Input.FromStep; from != "" && !seen[from] {
			return fmt.Errorf("%w: plan tail: step %s: input from-step %s is not an earlier step",
				finding.ErrConfiguration, s.ID, from)
		}
		seen[s.ID] = true
	}
	tail := make([]Step, len(steps))
	copy(tail, steps)
	r.upcoming = tail
	return nil
}
