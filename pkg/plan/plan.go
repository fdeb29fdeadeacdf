// Package plan defines workflow plans: ordered tool steps with
// input-selection rules, loadable from YAML or built in.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// Plan is an ordered sequence of tool steps executed against one target.
type Plan struct {
	// Name of the plan
	Name string `yaml:"name" json:"name"`

	// Description of the plan
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Steps to execute, in order
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step references a registered tool and declares where its input comes
// from. Steps run strictly in order; the decision policy may rework the
// not-yet-run tail between steps.
type Step struct {
	// ID for referencing this step
	ID string `yaml:"id" json:"id"`

	// Tool is the adapter name to run
	Tool string `yaml:"tool" json:"tool"`

	// Sensitive overrides the tool's own sensitivity flag when set
	Sensitive *bool `yaml:"sensitive,omitempty" json:"sensitive,omitempty"`

	// Input selects what this step consumes
	Input InputRule `yaml:"input,omitempty" json:"input,omitempty"`

	// Retries on classified-retryable failure
	Retries int `yaml:"retries,omitempty" json:"retries,omitempty"`
}

// InputRule selects a step's input. An empty rule means the run target
// itself. Otherwise the step consumes all findings of Kind produced so
// far, optionally narrowed to those discovered by FromStep.
type InputRule struct {
	Kind     finding.Kind `yaml:"kind,omitempty" json:"kind,omitempty"`
	FromStep string       `yaml:"from-step,omitempty" json:"from_step,omitempty"`

	// Use picks which finding field feeds the tool: "value" (the
	// default), "url", or "host". A vulnerability finding's value is
	// its identity key, so a step that exploits it asks for the URL.
	Use string `yaml:"use,omitempty" json:"use,omitempty"`
}

// Empty reports whether the rule selects the run target.
func (r InputRule) Empty() bool {
	return r.Kind == "" && r.FromStep == ""
}

// SensitiveOr returns the step's sensitivity override, or def when the
// step does not set one.
func (s Step) SensitiveOr(def bool) bool {
	if s.Sensitive != nil {
		return *s.Sensitive
	}
	return def
}

// Load reads and validates a plan from a YAML file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a plan from YAML bytes.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: plan: parse: %v", finding.ErrConfiguration, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks structural soundness: a name, at least one step,
// unique step IDs, tools named, and input references pointing only at
// earlier steps.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: plan: name is required", finding.ErrConfiguration)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan %s: no steps", finding.ErrConfiguration, p.Name)
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("%w: plan %s: step %d has no id", finding.ErrConfiguration, p.Name, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: plan %s: duplicate step id %s", finding.ErrConfiguration, p.Name, s.ID)
		}
		if s.Tool == "" {
			return fmt.Errorf("%w: plan %s: step %s has no tool", finding.ErrConfiguration, p.Name, s.ID)
		}
		if s.Retries < 0 {
			return fmt.Errorf("%w: plan %s: step %s: negative retries", finding.ErrConfiguration, p.Name, s.ID)
		}
		if from := s.Input.FromStep; from != "" && !seen[from] {
			return fmt.Errorf("%w: plan %s: step %s: input from-step %s is not an earlier step",
				finding.ErrConfiguration, p.Name, s.ID, from)
		}
		switch s.Input.Use {
		case "", "value", "url", "host":
		default:
			return fmt.Errorf("%w: plan %s: step %s: unknown input use %q",
				finding.ErrConfiguration, p.Name, s.ID, s.Input.Use)
		}
		if s.Input.Use != "" && s.Input.Kind == "" {
			return fmt.Errorf("%w: plan %s: step %s: input use without a kind",
				finding.ErrConfiguration, p.Name, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
