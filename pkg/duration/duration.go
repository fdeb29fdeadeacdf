// Package duration provides canonical time constants for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all time-based configuration.
//
// DO NOT use hardcoded time.Duration values like `30 * time.Second` in other
// packages. Reference the appropriate constant from this package instead.
package duration

import "time"

// ============================================================================
// TOOL EXECUTION TIMEOUTS
// ============================================================================
//
// Per-tool wall-clock limits enforced by the sandbox executor. Adapters may
// override these in their templates; these are the defaults.
// ============================================================================

const (
	// ToolDefault is the default sandbox execution limit (1h).
	ToolDefault = 1 * time.Hour

	// ToolEnumeration is for passive enumeration tools such as
	// subfinder (30min).
	ToolEnumeration = 30 * time.Minute

	// ToolProbing is for HTTP probing across many hosts (30min).
	ToolProbing = 30 * time.Minute

	// ToolScanning is for active scanners such as nmap and nuclei (1h).
	ToolScanning = 1 * time.Hour
)

// ============================================================================
// APPROVAL GATE
// ============================================================================

const (
	// ApprovalExpiry is how long a pending approval request stays
	// decidable before the sweep marks it expired (1h).
	ApprovalExpiry = 1 * time.Hour

	// ApprovalPollInit is the initial re-check interval while a run
	// waits at an approval gate (2s).
	ApprovalPollInit = 2 * time.Second

	// ApprovalPollMax caps the re-check interval (30s).
	ApprovalPollMax = 30 * time.Second
)

// ============================================================================
// RETRY / BACKOFF
// ============================================================================

const (
	// RetryInit is the base delay before the first retry (1s).
	RetryInit = 1 * time.Second

	// RetryMax caps any single backoff delay (30s).
	RetryMax = 30 * time.Second

	// StoreRetryInit is the base delay for workspace store retries (500ms).
	StoreRetryInit = 500 * time.Millisecond
)

// ============================================================================
// DECISION POLICY
// ============================================================================

const (
	// PolicyDecision bounds one decision-policy call. On timeout the
	// engine falls back to the unmodified remaining plan (30s).
	PolicyDecision = 30 * time.Second
)

// ============================================================================
// NOTIFICATIONS / HTTP
// ============================================================================

const (
	// WebhookTimeout bounds one outbound notification POST (10s).
	WebhookTimeout = 10 * time.Second

	// MetricsReadTimeout is the metrics server read timeout (5s).
	MetricsReadTimeout = 5 * time.Second

	// MetricsWriteTimeout is the metrics server write timeout (10s).
	MetricsWriteTimeout = 10 * time.Second
)

// ============================================================================
// SANDBOX LIFECYCLE
// ============================================================================

const (
	// TeardownGrace is how long a sandboxed process gets between
	// SIGTERM and SIGKILL during forced teardown (3s).
	TeardownGrace = 3 * time.Second
)
