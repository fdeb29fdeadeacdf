package tooling

import (
	"fmt"
	"sort"
	"sync"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// Adapter is the pluggable unit for one external tool: a ToolConfig
// template plus a pure normalization function.
type Adapter interface {
	// Name returns the unique tool identifier.
	Name() string

	// Template builds the concrete ToolConfig for one invocation.
	Template(in Input) ToolConfig

	// Normalize converts raw execution output into findings. It is
	// total: malformed or empty output yields zero findings, never an
	// error, since tool output unpredictability must not abort a run.
	Normalize(res ExecutionResult) []finding.Finding
}

// Registry is a closed mapping from tool name to adapter, populated at
// process start. Lookup of an unknown name is a configuration error,
// never a panic.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering the same name twice is a
// programmer error and panics at init time, before any run starts.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if _, dup := r.adapters[name]; dup {
		panic(fmt.Sprintf("tooling: adapter %q registered twice", name))
	}
	r.adapters[name] = a
}

// Lookup returns the adapter for name, or finding.ErrUnknownTool.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", finding.ErrUnknownTool, name, r.namesLocked())
	}
	return a, nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
