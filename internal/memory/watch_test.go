package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchJournalSyncsExternalAppend(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.jsonl")
	cachePath := filepath.Join(dir, "cache.db")

	m, err := Open(journalPath, cachePath, testK1, testB)
	require.NoError(t, err)
	defer m.Close()

	synced := make(chan error, 8)
	w, err := m.WatchJournal(func(err error) { synced <- err })
	require.NoError(t, err)
	defer w.Close()

	j, err := OpenJournal(journalPath)
	require.NoError(t, err)
	require.NoError(t, j.Append(NewLearning("external process wrote this", "fact", 0.9, "", 0)))

	select {
	case err := <-synced:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for journal sync notification")
	}

	learnings, err := m.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, learnings, 1)
}
