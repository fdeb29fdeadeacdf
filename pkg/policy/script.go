package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/handoff"
	"github.com/windoliver/ThreatWeaver/pkg/plan"
)

// safeModules are the only Tengo stdlib modules available to scripts.
// No file I/O, no network, no OS access.
var safeModules = stdlib.GetModuleMap("text", "fmt", "math", "times")

const scriptMaxAllocs = 10_000_000

// Script wraps a Tengo script as a Policy. The script must define a
// decide function:
//
//	decide := func(counts, recommendation, steps) { ... }
//
// counts is a map of finding kind to count, recommendation is the
// diff recommendation for this run (possibly empty), and steps is the
// not-yet-run tail as an array of {id, tool} maps. The function returns
// the ordered step ids to keep; ids it omits are dropped. Returning
// undefined keeps the plan unchanged.
type Script struct {
	name     string
	compiled *tengo.Compiled
}

var _ Policy = (*Script)(nil)

// LoadScript compiles a .tengo policy file once; each decision runs on
// a Clone of the compiled script, so one Script is safe for concurrent
// use.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy script %s: %w", path, err)
	}
	return ParseScript(path, data)
}

// ParseScript compiles policy script source.
func ParseScript(name string, src []byte) (*Script, error) {
	wrapper := fmt.Sprintf(`%s
__result__ := decide(__counts__, __recommendation__, __steps__)
`, string(src))

	script := tengo.NewScript([]byte(wrapper))
	script.SetImports(safeModules)
	script.SetMaxAllocs(scriptMaxAllocs)
	_ = script.Add("__counts__", map[string]interface{}{})
	_ = script.Add("__recommendation__", "")
	_ = script.Add("__steps__", []interface{}{})

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: policy script %s: %v", finding.ErrConfiguration, name, err)
	}
	return &Script{name: name, compiled: compiled}, nil
}

// Name returns the script's source path or label.
func (s *Script) Name() string { return s.name }

// Decide runs the script against the current state and applies the
// returned step-id order to the remaining tail.
func (s *Script) Decide(ctx context.Context, state *handoff.State, rem *plan.Remaining) (*plan.Remaining, error) {
	upcoming := rem.Upcoming()

	counts := make(map[string]interface{})
	for _, k := range []finding.Kind{
		finding.KindSubdomain, finding.KindLiveHost, finding.KindOpenPort,
		finding.KindEndpoint, finding.KindTechnology,
		finding.KindVulnerability, finding.KindInjectionPoint,
	} {
		counts[string(k)] = int64(state.CountByKind(k))
	}
	steps := make([]interface{}, 0, len(upcoming))
	byID := make(map[string]plan.Step, len(upcoming))
	for _, st := range upcoming {
		steps = append(steps, map[string]interface{}{
			"id":   st.ID,
			"tool": st.Tool,
		})
		byID[st.ID] = st
	}

	c := s.compiled.Clone()
	if err := c.Set("__counts__", counts); err != nil {
		return nil, fmt.Errorf("policy script %s: %w", s.name, err)
	}
	if err := c.Set("__recommendation__", state.Metadata["recommendation"]); err != nil {
		return nil, fmt.Errorf("policy script %s: %w", s.name, err)
	}
	if err := c.Set("__steps__", steps); err != nil {
		return nil, fmt.Errorf("policy script %s: %w", s.name, err)
	}
	if err := c.RunContext(ctx); err != nil {
		return nil, fmt.Errorf("policy script %s: %w", s.name, err)
	}

	out := c.Get("__result__")
	if out.IsUndefined() {
		return rem, nil
	}
	arr, ok := out.Value().([]interface{})
	if !ok {
		return nil, fmt.Errorf("policy script %s: decide returned %s, want array of step ids", s.name, out.ValueType())
	}
	tail := make([]plan.Step, 0, len(arr))
	for _, v := range arr {
		id, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("policy script %s: step id %v is not a string", s.name, v)
		}
		st, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("policy script %s: unknown step id %q", s.name, id)
		}
		tail = append(tail, st)
	}
	if err := rem.Replace(tail); err != nil {
		return nil, err
	}
	return rem, nil
}
