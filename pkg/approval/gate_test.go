package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/notify"
)

func newGate(t *testing.T) (*Gate, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewGate(store, notify.NewDispatcher(nil), nil), store
}

func sampleSpec() Spec {
	return Spec{
		RunID:       "run-1",
		StepID:      "step-sqlmap",
		Title:       "SQLMap data extraction for /api/login",
		Description: "Execute SQLMap to extract the users table",
		RiskLevel:   "HIGH",
		Action:      Action{Tool: "sqlmap", Args: []string{"--dump", "-T", "users"}},
	}
}

func TestRequestCreatesPending(t *testing.T) {
	t.Parallel()
	gate, _ := newGate(t)
	ctx := context.Background()

	r, err := gate.Request(ctx, sampleSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusPending, r.Status)
	assert.True(t, r.ExpiresAt.After(r.RequestedAt))
	assert.Equal(t, time.Hour, r.ExpiresAt.Sub(r.RequestedAt))

	pending, err := gate.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)
}

func TestDecideApprove(t *testing.T) {
	t.Parallel()
	gate, _ := newGate(t)
	ctx := context.Background()

	r, err := gate.Request(ctx, sampleSpec())
	require.NoError(t, err)

	decided, err := gate.Decide(ctx, r.ID, true, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, decided.Status)
	assert.Equal(t, "alice", decided.DecidedBy)
	assert.False(t, decided.DecidedAt.IsZero())
}

func TestDecideSingleTransition(t *testing.T) {
	t.Parallel()
	gate, _ := newGate(t)
	ctx := context.Background()

	r, err := gate.Request(ctx, sampleSpec())
	require.NoError(t, err)

	_, err = gate.Decide(ctx, r.ID, false, "bob", "policy")
	require.NoError(t, err)

	// A second decision of any kind must fail.
	_, err = gate.Decide(ctx, r.ID, true, "alice", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, finding.ErrAlreadyDecided))

	final, err := gate.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, final.Status)
	assert.Equal(t, "policy", final.Reason)
}

func TestDecideAfterExpiryExpires(t *testing.T) {
	t.Parallel()
	gate, _ := newGate(t)
	ctx := context.Background()

	r, err := gate.Request(ctx, sampleSpec())
	require.NoError(t, err)

	// Move the gate's clock past the expiry.
	gate.now = func() time.Time { return r.ExpiresAt.Add(time.Minute) }

	_, err = gate.Decide(ctx, r.ID, true, "alice", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, finding.ErrAlreadyDecided))

	final, err := gate.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, final.Status)
}

func TestExpireOverdueIdempotent(t *testing.T) {
	t.Parallel()
	gate, _ := newGate(t)
	ctx := context.Background()

	r, err := gate.Request(ctx, sampleSpec())
	require.NoError(t, err)

	gate.now = func() time.Time { return r.ExpiresAt.Add(time.Second) }

	first, err := gate.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, StatusExpired, first[0].Status)

	second, err := gate.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, second, "second sweep must be a no-op")
}

func TestExpireOverdueLeavesFreshPending(t *testing.T) {
	t.Parallel()
	gate, _ := newGate(t)
	ctx := context.Background()

	r, err := gate.Request(ctx, sampleSpec())
	require.NoError(t, err)

	expired, err := gate.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	got, err := gate.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestAwaitReturnsOnDecision(t *testing.T) {
	t.Parallel()
	gate, _ := newGate(t)
	ctx := context.Background()

	r, err := gate.Request(ctx, sampleSpec())
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		gate.Decide(ctx, r.ID, true, "alice", "")
	}()

	got, err := gate.Await(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestAwaitCancellationExpiresImmediately(t *testing.T) {
	t.Parallel()
	gate, _ := newGate(t)

	r, err := gate.Request(context.Background(), sampleSpec())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	got, err := gate.Await(ctx, r.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StatusExpired, got.Status)

	// The record is terminal now, not waiting out its timer.
	final, err := gate.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, final.Status)
	assert.Equal(t, "run cancelled", final.Reason)
}

func TestAwaitResumableAcrossGates(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	gate1 := NewGate(store, nil, nil)
	ctx := context.Background()

	r, err := gate1.Request(ctx, sampleSpec())
	require.NoError(t, err)

	// A different gate over the same backing store decides; the wait
	// observes it because all state is durable.
	gate2 := NewGate(store, nil, nil)
	go func() {
		time.Sleep(50 * time.Millisecond)
		gate2.Decide(ctx, r.ID, false, "carol", "nope")
	}()

	got, err := gate1.Await(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
}

func TestFileStoreTransitionUnknownID(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Transition(context.Background(), "missing", func(r *Request) {
		r.Status = StatusExpired
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}
