// Package sandbox runs tool invocations in isolated, resource-limited
// environments. A Provider creates Boxes; the Executor drives one
// invocation end to end: admission, file staging, bounded capture,
// timeout enforcement, output collection, and guaranteed teardown.
package sandbox

import (
	"context"
	"io"
)

// Spec describes the environment a Box must provide.
type Spec struct {
	// Image names the tool image (advisory for providers that run on
	// the host).
	Image string

	// Env is the complete environment; everything else is scrubbed.
	Env map[string]string

	// CPULimit is the CPU core allowance.
	CPULimit float64

	// MemoryLimitMB is the memory allowance in megabytes.
	MemoryLimitMB int

	// NetworkIsolated removes outbound network access.
	NetworkIsolated bool
}

// Box is one isolated execution environment. Paths given to ReadFile
// and WriteFile are relative to the box's working directory.
type Box interface {
	// ID identifies the box for logging.
	ID() string

	// Run executes cmd to completion, streaming output into stdout and
	// stderr. It returns the exit code, or -1 with an error when the
	// process could not run or was torn down early.
	Run(ctx context.Context, cmd []string, stdout, stderr io.Writer) (int, error)

	// ReadFile returns the contents of a file inside the box.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile stages a file inside the box before execution.
	WriteFile(ctx context.Context, path string, data []byte) error

	// Destroy tears the box down, killing anything still running.
	// Destroy is idempotent.
	Destroy(ctx context.Context) error
}

// Provider creates Boxes. Implementations decide what "isolated" means:
// a container runtime, a cloud sandbox, or a host subprocess in a
// scratch directory.
type Provider interface {
	Create(ctx context.Context, spec Spec) (Box, error)
}
