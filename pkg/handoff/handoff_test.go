package handoff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/workspace"
)

func sub(val string) finding.Finding {
	return finding.Finding{Kind: finding.KindSubdomain, Value: val, Tool: "subfinder", Severity: finding.Info}
}

func TestStateAccumulation(t *testing.T) {
	t.Parallel()
	st := New("team-a", "example.com", "run-1")
	st.Append(sub("a.example.com"), sub("b.example.com"))
	st.Append(finding.Finding{Kind: finding.KindLiveHost, Value: "https://a.example.com", Tool: "httpx"})

	assert.Equal(t, 2, st.CountByKind(finding.KindSubdomain))
	assert.Equal(t, 1, st.CountByKind(finding.KindLiveHost))
	assert.Len(t, st.ByKind(finding.KindSubdomain), 2)

	st.Prioritize([]string{"subdomain|a.example.com"})
	assert.Equal(t, []string{"subdomain|a.example.com"}, st.Prioritized)
}

func TestPersistAndLoadLatest(t *testing.T) {
	t.Parallel()
	store, err := workspace.NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	none, err := LoadLatest(ctx, store, "", "example.com")
	require.NoError(t, err)
	assert.Nil(t, none, "first run has no prior snapshot")

	run1 := New("", "example.com", "run-1")
	run1.Append(sub("a.example.com"), sub("b.example.com"))
	require.NoError(t, run1.Persist(ctx, store))

	loaded, err := LoadLatest(ctx, store, "", "example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Len(t, loaded.Findings, 2)
	assert.False(t, loaded.PersistedAt.IsZero())

	// A second run's snapshot becomes the latest without touching run 1's.
	run2 := New("", "example.com", "run-2")
	run2.Append(sub("a.example.com"), sub("b.example.com"), sub("c.example.com"))
	require.NoError(t, run2.Persist(ctx, store))

	latest, err := LoadLatest(ctx, store, "", "example.com")
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)

	prior, err := LoadRun(ctx, store, "", "example.com", "run-1")
	require.NoError(t, err)
	assert.Len(t, prior.Findings, 2)
}

func TestDiffSecondRun(t *testing.T) {
	t.Parallel()
	prev := New("", "example.com", "run-1")
	prev.Append(sub("a.example.com"), sub("b.example.com"))

	cur := New("", "example.com", "run-2")
	cur.Append(sub("a.example.com"), sub("b.example.com"), sub("c.example.com"))

	d := Compare(cur, prev)
	require.Len(t, d.New, 1)
	assert.Equal(t, "c.example.com", d.New[0].Value)
	assert.Empty(t, d.Removed)
	assert.Len(t, d.Unchanged, 2)
	assert.InDelta(t, 50.0, d.GrowthPercent, 0.01)
	assert.Equal(t, RecommendMinimalGrowth, d.Recommendation)
}

func TestDiffRecommendations(t *testing.T) {
	t.Parallel()
	mk := func(n int, prefix string) *State {
		st := New("", "example.com", "r")
		for i := 0; i < n; i++ {
			st.Append(sub(prefix + string(rune('a'+i%26)) + string(rune('a'+i/26)) + ".example.com"))
		}
		return st
	}

	cases := []struct {
		name   string
		curN   int
		prevN  int
		recomm Recommendation
	}{
		{"deep-osint", 30, 5, RecommendDeepOSINT},
		{"moderate", 12, 5, RecommendModerateGrowth},
		{"no-changes", 5, 5, RecommendNoChanges},
		{"minimal", 7, 5, RecommendMinimalGrowth},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// prev is a prefix of cur so overlap is exact.
			cur, prev := mk(tc.curN, "s"), mk(tc.prevN, "s")
			d := Compare(cur, prev)
			assert.Equal(t, tc.recomm, d.Recommendation)
		})
	}
}

func TestDiffNilPrevious(t *testing.T) {
	t.Parallel()
	cur := New("", "example.com", "run-1")
	cur.Append(sub("a.example.com"))

	d := Compare(cur, nil)
	assert.Len(t, d.New, 1)
	assert.Empty(t, d.Removed)
	assert.InDelta(t, 100.0, d.GrowthPercent, 0.01)
}

func TestDiffRemoved(t *testing.T) {
	t.Parallel()
	prev := New("", "example.com", "run-1")
	prev.Append(sub("gone.example.com"), sub("kept.example.com"))
	cur := New("", "example.com", "run-2")
	cur.Append(sub("kept.example.com"))

	d := Compare(cur, prev)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, "gone.example.com", d.Removed[0].Value)
	assert.Equal(t, RecommendNoChanges, d.Recommendation)
}
