// Package workspace provides the versioned, path-addressed durable store
// shared by all tool runs of a target. It is the only channel by which
// sandboxed executions exchange files with the orchestration layer and
// with each other.
//
// The Store contract is backend-agnostic; the core never depends on a
// specific backend SDK. Every write creates a new generation of the path
// instead of destroying the prior one, which is what makes the
// "load most recent persisted handoff snapshot" read pattern safe.
//
// All operation failures wrap finding.ErrUnavailable; callers retry with
// bounded backoff before surfacing an aborted run.
package workspace

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// Store is the client contract used by the executor, the handoff layer,
// and the approval gate.
type Store interface {
	// Write stores data as a new generation of p.
	Write(ctx context.Context, p string, data []byte) error

	// Read returns the newest generation of p.
	Read(ctx context.Context, p string) ([]byte, error)

	// List returns all logical paths under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Versions returns the generation ids of p, oldest first.
	Versions(ctx context.Context, p string) ([]string, error)

	// ReadVersion returns one specific generation of p.
	ReadVersion(ctx context.Context, p, version string) ([]byte, error)
}

// ErrNotFound reports that a path has no generations. Absence is not an
// availability failure: a first run against a target has no prior
// snapshot and callers probe for this with errors.Is.
var ErrNotFound = fmt.Errorf("workspace: path not found")

// CleanPath normalizes a logical store path and rejects traversal.
// Paths are forward-slash relative paths under the store root.
func CleanPath(p string) (string, error) {
	p = strings.TrimPrefix(strings.TrimSpace(p), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path", finding.ErrConfiguration)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("%w: path %q escapes the store root", finding.ErrConfiguration, p)
	}
	return clean, nil
}

// Join composes a run-scoped path: {team}/{target}/{runID}/{parts...}.
// Team may be empty for single-tenant deployments.
func Join(team, target, runID string, parts ...string) string {
	segs := make([]string, 0, 3+len(parts))
	if team != "" {
		segs = append(segs, team)
	}
	segs = append(segs, target, runID)
	segs = append(segs, parts...)
	return path.Join(segs...)
}
