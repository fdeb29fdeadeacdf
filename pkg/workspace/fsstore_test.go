package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

func newStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "example.com/run-1/subfinder/subdomains.txt", []byte("api.example.com\n")))
	got, err := s.Read(ctx, "example.com/run-1/subfinder/subdomains.txt")
	require.NoError(t, err)
	assert.Equal(t, "api.example.com\n", string(got))
}

func TestWritesAreVersionedNotDestructive(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()
	const p = "example.com/handoffs/state.json"

	require.NoError(t, s.Write(ctx, p, []byte("v1")))
	require.NoError(t, s.Write(ctx, p, []byte("v2")))

	versions, err := s.Versions(ctx, p)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	old, err := s.ReadVersion(ctx, p, versions[0])
	require.NoError(t, err)
	assert.Equal(t, "v1", string(old), "a later write must not alter the bytes of a prior generation")

	latest, err := s.Read(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(latest))
}

func TestReadMissingPath(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, err := s.Read(context.Background(), "example.com/absent.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, finding.ErrUnavailable), "absence is not unavailability")
}

func TestListReturnsLogicalPaths(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "t/run-1/subfinder/out.txt", []byte("a")))
	require.NoError(t, s.Write(ctx, "t/run-1/httpx/out.json", []byte("b")))
	require.NoError(t, s.Write(ctx, "t/run-2/nmap/out.xml", []byte("c")))

	paths, err := s.List(ctx, "t/run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t/run-1/httpx/out.json", "t/run-1/subfinder/out.txt"}, paths)

	empty, err := s.List(ctx, "t/run-9")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPathTraversalRejected(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	for _, p := range []string{"../outside", "a/../../b", ""} {
		err := s.Write(ctx, p, []byte("x"))
		require.Error(t, err, "path %q", p)
		assert.True(t, errors.Is(err, finding.ErrConfiguration), "path %q", p)
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "team-a/example.com/run-1/handoffs/state.json",
		Join("team-a", "example.com", "run-1", "handoffs", "state.json"))
	assert.Equal(t, "example.com/run-1/nmap",
		Join("", "example.com", "run-1", "nmap"))
}
