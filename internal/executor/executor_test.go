package executor

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"sunwell/internal/cache"
	"sunwell/internal/events"
	"sunwell/internal/graph"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "execution.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// Scenario 1: cache hit skips work.
func TestCacheHitSkipsWork(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Add(graph.Artifact{ID: "hello", Produces: []string{"hello_out"}}))

	c := newTestCache(t)
	bus := events.New("s")

	var invocations int32
	createFn := func(ctx context.Context, a graph.Artifact, inputHash string) ([]byte, error) {
		atomic.AddInt32(&invocations, 1)
		return []byte("content"), nil
	}

	ex1 := New(g, c, bus, createFn, 4, DefaultConfig())
	result1, err := ex1.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result1.Completed)
	require.Equal(t, int32(1), atomic.LoadInt32(&invocations))

	var cacheHits int
	bus.Subscribe(func(ev events.AgentEvent) {
		if ev.Type == events.TypeArtifactCacheMiss {
			t.Fatalf("unexpected cache miss on second run")
		}
	})

	ex2 := New(g, c, bus, createFn, 4, DefaultConfig())
	result2, err := ex2.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result2.Completed)
	require.Equal(t, 1, result2.Skipped)
	require.Equal(t, int32(1), atomic.LoadInt32(&invocations), "create fn must not run again")
	require.Equal(t, ReasonUnchanged, result2.Decisions["hello"].SkipReason)
	_ = cacheHits
}

// Scenario 5: failure propagates to dependents. Graph A -> B -> C; force
// A to fail; expect completed=0, skipped=2, failed=1.
func TestFailurePropagatesToDependents(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Add(graph.Artifact{ID: "a", Produces: []string{"out_a"}}))
	require.NoError(t, g.Add(graph.Artifact{ID: "b", Requires: []string{"out_a"}, Produces: []string{"out_b"}}))
	require.NoError(t, g.Add(graph.Artifact{ID: "c", Requires: []string{"out_b"}}))

	c := newTestCache(t)
	bus := events.New("s")

	createFn := func(ctx context.Context, a graph.Artifact, inputHash string) ([]byte, error) {
		if a.ID == "a" {
			return nil, errors.New("boom")
		}
		return []byte("ok"), nil
	}

	ex := New(g, c, bus, createFn, 4, DefaultConfig())
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Completed)
	require.Equal(t, 2, result.Skipped)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, ReasonUpstreamFailed, result.Decisions["b"].SkipReason)
	require.Equal(t, ReasonUpstreamFailed, result.Decisions["c"].SkipReason)
}

func TestInFlightDeduplication(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Add(graph.Artifact{ID: "a", Produces: []string{"x"}}))
	require.NoError(t, g.Add(graph.Artifact{ID: "b", Requires: []string{"x"}}))
	require.NoError(t, g.Add(graph.Artifact{ID: "c", Requires: []string{"x"}}))

	c := newTestCache(t)
	bus := events.New("s")
	var aInvocations int32
	createFn := func(ctx context.Context, a graph.Artifact, inputHash string) ([]byte, error) {
		if a.ID == "a" {
			atomic.AddInt32(&aInvocations, 1)
		}
		return []byte("ok"), nil
	}
	ex := New(g, c, bus, createFn, 4, DefaultConfig())
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.Completed)
	require.Equal(t, int32(1), atomic.LoadInt32(&aInvocations))
}
