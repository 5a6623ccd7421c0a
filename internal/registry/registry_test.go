package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndLifecycle(t *testing.T) {
	r := New(DefaultConfig())
	rec := r.Register("child-1", "parent-1", "do a thing", CleanupDelete, "worker", 0)
	require.True(t, rec.IsPending())

	r.MarkStarted(rec.RunID)
	require.Equal(t, 1, r.ActiveCount())

	half := 0.5
	r.Heartbeat(rec.RunID, &half, "halfway")

	r.MarkComplete(rec.RunID, OutcomeOK, "")
	require.Equal(t, 0, r.ActiveCount())

	all := r.ListForParent("parent-1")
	require.Len(t, all, 1)
	require.True(t, all[0].IsComplete())
	require.Equal(t, OutcomeOK, *all[0].Outcome)
}

// Scenario 3: stale subagent cancelled.
func TestCancelStale(t *testing.T) {
	r := New(DefaultConfig())
	rec := r.Register("child-1", "parent-1", "long task", CleanupDelete, "worker", 0)
	r.MarkStarted(rec.RunID)

	r.mu.Lock()
	r.records[rec.RunID].HeartbeatIntervalSec = 1
	r.records[rec.RunID].LastHeartbeat = time.Now().Add(-10 * time.Second)
	r.mu.Unlock()

	n := r.CancelStale("No heartbeat received")
	require.Equal(t, 1, n)

	got := r.ListForParent("parent-1")
	require.Len(t, got, 1)
	require.Equal(t, OutcomeCancelled, *got[0].Outcome)
	require.Equal(t, "No heartbeat received", got[0].ErrorMessage)
}

// Scenario 6: spawn depth limit.
func TestSpawnDepthExceeded(t *testing.T) {
	r := New(Config{MaxConcurrentSubagents: 10, MaxSubagentDepth: 2})
	_, err := r.SpawnParallel("parent", 2, []SpawnTask{{Task: "x"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "SpawnDepthExceeded")
	require.Empty(t, r.ListForParent("parent"))
}

func TestConcurrencyLimitExceeded(t *testing.T) {
	r := New(Config{MaxConcurrentSubagents: 1, MaxSubagentDepth: 4})
	recs, err := r.SpawnParallel("parent", 0, []SpawnTask{{Task: "a"}})
	require.NoError(t, err)
	r.MarkStarted(recs[0].RunID)

	_, err = r.SpawnParallel("parent", 0, []SpawnTask{{Task: "b"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ConcurrencyLimitExceeded")
}

func TestAwaitAllTimeout(t *testing.T) {
	r := New(DefaultConfig())
	rec := r.Register("child-1", "parent-1", "slow", CleanupDelete, "", 0)
	r.MarkStarted(rec.RunID)

	result := r.AwaitAll([]string{rec.RunID}, 30*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, OutcomeTimeout, result[rec.RunID])
}

func TestAwaitAllCompletesEarly(t *testing.T) {
	r := New(DefaultConfig())
	rec := r.Register("child-1", "parent-1", "fast", CleanupDelete, "", 0)
	r.MarkStarted(rec.RunID)
	go func() {
		time.Sleep(5 * time.Millisecond)
		r.MarkComplete(rec.RunID, OutcomeOK, "")
	}()
	result := r.AwaitAll([]string{rec.RunID}, time.Second, 2*time.Millisecond)
	require.Equal(t, OutcomeOK, result[rec.RunID])
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")

	r := New(DefaultConfig())
	r.EnablePersistence(path)
	rec := r.Register("child-1", "parent-1", "persisted", CleanupKeep, "", 0)
	r.MarkStarted(rec.RunID)
	r.MarkComplete(rec.RunID, OutcomeOK, "")

	r2 := New(DefaultConfig())
	require.NoError(t, r2.Restore(path))
	got := r2.ListForParent("parent-1")
	require.Len(t, got, 1)
	require.Equal(t, rec.RunID, got[0].RunID)
	require.Equal(t, OutcomeOK, *got[0].Outcome)
}

// Invariant 4: at any instant, |list_active()| <= max_concurrent_subagents.
func TestActiveCountNeverExceedsLimit(t *testing.T) {
	cfg := Config{MaxConcurrentSubagents: 3, MaxSubagentDepth: 4}
	r := New(cfg)
	recs, err := r.SpawnParallel("p", 0, []SpawnTask{{Task: "a"}, {Task: "b"}, {Task: "c"}})
	require.NoError(t, err)
	for _, rec := range recs {
		r.MarkStarted(rec.RunID)
	}
	require.LessOrEqual(t, len(r.ListActive()), cfg.MaxConcurrentSubagents)
}
