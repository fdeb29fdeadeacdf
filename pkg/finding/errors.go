package finding

import "errors"

// Classification labels why a step or store operation failed. It travels
// on ExecutionResult and run-level errors so that callers branch on a
// closed set instead of matching error strings.
type Classification string

const (
	// ClassNone means no failure.
	ClassNone Classification = ""

	// ClassConfiguration is an unknown tool or malformed ToolConfig.
	// Fatal to the affected step, never retried.
	ClassConfiguration Classification = "configuration"

	// ClassTimeout means the sandbox exceeded its declared time limit.
	// Not a retry condition by default.
	ClassTimeout Classification = "timeout"

	// ClassResourceExhausted means sandbox admission was rejected at
	// capacity. Retried with backoff up to a bounded count.
	ClassResourceExhausted Classification = "resource-exhausted"

	// ClassRetryable is a generic transient sandbox/network failure.
	ClassRetryable Classification = "retryable"

	// ClassUnavailable means a load-bearing backing store (workspace,
	// approval) is unreachable. Retried; if it persists the run aborts.
	ClassUnavailable Classification = "unavailable"
)

// Sentinel errors for the failure modes above plus the approval gate's
// single-transition guarantee. Callers should use errors.Is().
var (
	// ErrUnknownTool indicates a registry lookup for a name that was
	// never registered.
	ErrUnknownTool = errors.New("finding: unknown tool")

	// ErrConfiguration indicates a malformed ToolConfig.
	ErrConfiguration = errors.New("finding: configuration error")

	// ErrTimeout indicates a sandbox execution exceeded its time limit.
	ErrTimeout = errors.New("finding: execution timeout")

	// ErrResourceExhausted indicates sandbox admission was rejected
	// because the concurrency ceiling is reached.
	ErrResourceExhausted = errors.New("finding: sandbox capacity exhausted")

	// ErrRetryable indicates a transient failure worth retrying.
	ErrRetryable = errors.New("finding: transient failure")

	// ErrUnavailable indicates a backing store is unreachable.
	ErrUnavailable = errors.New("finding: store unavailable")

	// ErrAlreadyDecided indicates a Decide call against an approval
	// request that already left pending.
	ErrAlreadyDecided = errors.New("finding: approval already decided")
)

// Classify maps an error to its Classification using errors.Is.
// Unrecognized errors classify as retryable: tool misbehavior is
// expected and must not abort a run.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrUnknownTool), errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	case errors.Is(err, ErrTimeout):
		return ClassTimeout
	case errors.Is(err, ErrResourceExhausted):
		return ClassResourceExhausted
	case errors.Is(err, ErrUnavailable):
		return ClassUnavailable
	default:
		return ClassRetryable
	}
}

// IsStepRetryable reports whether a failure with this classification
// should be retried by the engine's bounded step retry.
func (c Classification) IsStepRetryable() bool {
	return c == ClassRetryable || c == ClassResourceExhausted
}
