// Package tooling defines the uniform description of one external tool
// invocation: the immutable ToolConfig the sandbox executor honors, the
// ExecutionResult it returns, and the Adapter interface plus registry
// through which tools plug into the orchestration engine.
//
// The engine depends only on this package, never on a concrete tool.
// New tools are added by registering a (template, normalize) pair; no
// engine or executor code changes.
package tooling

import (
	"fmt"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// ToolConfig is the immutable description of one tool invocation.
// Created once per step by an adapter template, reused across runs,
// never mutated by the executor.
type ToolConfig struct {
	// Name identifies the tool (e.g. "subfinder", "nmap").
	Name string `json:"name" yaml:"name"`

	// Image is the sandbox image providing the tool.
	Image string `json:"image" yaml:"image"`

	// Command is the executable to run inside the sandbox.
	Command string `json:"command" yaml:"command"`

	// Args are the command arguments.
	Args []string `json:"args" yaml:"args"`

	// Env holds environment variables for the invocation. The sandbox
	// scrubs everything else; this is the complete environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// OutputFiles are workspace-relative paths the tool is declared to
	// write. The executor collects them after a normal exit.
	OutputFiles []string `json:"output_files,omitempty" yaml:"output_files,omitempty"`

	// Timeout is the wall-clock limit; exceeding it forces teardown.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// CPULimit is the CPU core allowance (e.g. 2.0).
	CPULimit float64 `json:"cpu_limit" yaml:"cpu_limit"`

	// MemoryLimitMB is the memory allowance in megabytes.
	MemoryLimitMB int `json:"memory_limit_mb" yaml:"memory_limit_mb"`

	// NetworkLimitMbps is the network bandwidth allowance.
	NetworkLimitMbps int `json:"network_limit_mbps,omitempty" yaml:"network_limit_mbps,omitempty"`

	// NetworkIsolated removes outbound network access entirely.
	NetworkIsolated bool `json:"network_isolated" yaml:"network_isolated"`

	// Sensitive marks the invocation as requiring human approval
	// before it may start.
	Sensitive bool `json:"sensitive" yaml:"sensitive"`

	// RiskLevel labels sensitive invocations for the approval UI
	// (LOW, MEDIUM, HIGH, CRITICAL).
	RiskLevel string `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
}

// Validate reports the first structural problem with the config.
// All failures wrap finding.ErrConfiguration.
func (c ToolConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: missing tool name", finding.ErrConfiguration)
	}
	if c.Command == "" {
		return fmt.Errorf("%w: tool %s has no command", finding.ErrConfiguration, c.Name)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: tool %s has no timeout", finding.ErrConfiguration, c.Name)
	}
	return nil
}

// WithDefaults returns a copy with unset limits filled in.
func (c ToolConfig) WithDefaults() ToolConfig {
	if c.Timeout == 0 {
		c.Timeout = duration.ToolDefault
	}
	if c.CPULimit == 0 {
		c.CPULimit = 2.0
	}
	if c.MemoryLimitMB == 0 {
		c.MemoryLimitMB = 4096
	}
	return c
}

// ExecutionResult is the outcome of one sandboxed invocation. Created by
// the executor, consumed immediately by the engine, never mutated after
// creation.
type ExecutionResult struct {
	// Success is true when the process exited zero within its limits.
	Success bool `json:"success"`

	// ExitCode is the process exit code (-1 if it never exited).
	ExitCode int `json:"exit_code"`

	// Stdout and Stderr are size-bounded captures. When truncated the
	// oldest bytes are dropped and the capture starts with a marker.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`

	// Outputs maps each declared output path to its captured bytes.
	Outputs map[string][]byte `json:"outputs,omitempty"`

	// Missing lists declared output paths the tool did not produce.
	// A missing output is recorded, not an error: some tools
	// legitimately write nothing.
	Missing []string `json:"missing,omitempty"`

	// Classification labels the failure mode, if any.
	Classification finding.Classification `json:"classification,omitempty"`

	// Err is the failure description, empty on success.
	Err string `json:"error,omitempty"`
}

// Failed reports whether the invocation failed for any reason.
func (r ExecutionResult) Failed() bool {
	return !r.Success
}

// Input carries the per-step values an adapter template needs to build
// a concrete ToolConfig: the target plus values resolved from prior
// findings by the step's input-selection rule.
type Input struct {
	// Target is the run's target (domain, IP, CIDR, URL).
	Target string

	// Values are resolved inputs, e.g. subdomains for a probing step
	// or live URLs for a vulnerability scan.
	Values []string

	// InputFile is the workspace-relative path where Values were
	// written for tools that read a list file.
	InputFile string

	// OutputFile is the workspace-relative path the tool should write.
	OutputFile string
}
