package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/notify"
)

func TestStepFinished(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	c.StepFinished("subfinder", "succeeded", 3*time.Second)
	c.StepFinished("subfinder", "succeeded", 5*time.Second)
	c.StepFinished("nuclei", "failed", time.Minute)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.stepsTotal.WithLabelValues("subfinder", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.stepsTotal.WithLabelValues("nuclei", "failed")))
}

func TestSandboxGaugeBalances(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	c.SandboxStarted()
	c.SandboxStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.activeSandboxes))

	c.SandboxFinished(finding.ClassNone)
	c.SandboxFinished(finding.ClassTimeout)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.activeSandboxes))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.sandboxTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.sandboxTotal.WithLabelValues("timeout")))
}

func TestRunFinished(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	c.RunFinished("completed")
	c.RunFinished("completed")
	c.RunFinished("aborted")
	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("aborted")))
}

func TestApprovalHookTracksPending(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	d := notify.NewDispatcher(nil)
	d.Register(NewApprovalHook(c))
	ctx := context.Background()

	d.Emit(ctx, notify.Event{Type: notify.EventRequestCreated, RequestID: "r1"})
	d.Emit(ctx, notify.Event{Type: notify.EventRequestCreated, RequestID: "r2"})
	assert.Equal(t, float64(2), testutil.ToFloat64(c.pendingApprovals))

	d.Emit(ctx, notify.Event{Type: notify.EventRequestDecided, RequestID: "r1", Decision: "approved"})
	assert.Equal(t, float64(1), testutil.ToFloat64(c.pendingApprovals))

	d.Emit(ctx, notify.Event{Type: notify.EventRequestExpired, RequestID: "r2"})
	assert.Equal(t, float64(0), testutil.ToFloat64(c.pendingApprovals))
}

func TestExposition(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	c.StepFinished("httpx", "succeeded", 2*time.Second)
	c.SetPendingApprovals(3)

	expected := strings.NewReader(`
# HELP threatweaver_pending_approvals Approval requests currently pending
# TYPE threatweaver_pending_approvals gauge
threatweaver_pending_approvals 3
`)
	err := testutil.GatherAndCompare(c.registry, expected, "threatweaver_pending_approvals")
	require.NoError(t, err)
}
