package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testK1, testB = 1.2, 0.75

func seedCorpus(t *testing.T, c *Cache) []Learning {
	t.Helper()
	learnings := []Learning{
		NewLearning("The executor dedups in-flight work by input hash", "architecture", 0.7, "executor.go", 10),
		NewLearning("The cache stores provenance alongside output hash", "architecture", 0.6, "cache.go", 20),
		NewLearning("Retries back off exponentially after a failure", "reliability", 0.5, "retry.go", 5),
		NewLearning("Hash collisions are not handled specially", "architecture", 0.4, "hash.go", 1),
	}
	for _, l := range learnings {
		require.NoError(t, c.Insert(l))
	}
	require.NoError(t, c.RebuildBM25Index())
	return learnings
}

// Invariant 6: BM25QueryFast's ranking matches a
// from-scratch O(n) reference implementation over the same corpus.
func TestBM25FastMatchesNaive(t *testing.T) {
	c := openTestCache(t)
	learnings := seedCorpus(t, c)

	fast, err := c.BM25QueryFast("hash", 10, testK1, testB)
	require.NoError(t, err)

	naive := BM25QueryNaive(learnings, "hash", 10, testK1, testB)

	require.Len(t, fast, len(naive))
	for i := range fast {
		require.Equal(t, naive[i].Learning.ID, fast[i].Learning.ID)
		require.InDelta(t, naive[i].Score, fast[i].Score, 1e-9)
	}
}

func TestBM25QueryRanksMoreRelevantHigher(t *testing.T) {
	c := openTestCache(t)
	seedCorpus(t, c)

	results, err := c.BM25QueryFast("hash", 10, testK1, testB)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "Hash collisions are not handled specially", results[0].Learning.Fact)
}

func TestBM25QueryNoMatches(t *testing.T) {
	c := openTestCache(t)
	seedCorpus(t, c)

	results, err := c.BM25QueryFast("nonexistentterm", 10, testK1, testB)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestBM25QueryEmptyCorpus(t *testing.T) {
	c := openTestCache(t)
	results, err := c.BM25QueryFast("anything", 10, testK1, testB)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestBM25QueryRespectsLimit(t *testing.T) {
	c := openTestCache(t)
	seedCorpus(t, c)

	results, err := c.BM25QueryFast("the", 1, testK1, testB)
	require.NoError(t, err)
	require.Len(t, results, 1)
}
