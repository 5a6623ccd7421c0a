package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustAdd(t *testing.T, g *ArtifactGraph, a Artifact) {
	t.Helper()
	require.NoError(t, g.Add(a))
}

func TestExecutionWavesLinearChain(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", Produces: []string{"out_a"}})
	mustAdd(t, g, Artifact{ID: "b", Requires: []string{"out_a"}, Produces: []string{"out_b"}})
	mustAdd(t, g, Artifact{ID: "c", Requires: []string{"out_b"}})

	waves, err := g.ExecutionWaves()
	require.NoError(t, err)
	require.Equal(t, []Wave{{"a"}, {"b"}, {"c"}}, waves)
}

func TestExecutionWavesParallelSiblings(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "root", Produces: []string{"base"}})
	mustAdd(t, g, Artifact{ID: "leaf-a", Requires: []string{"base"}})
	mustAdd(t, g, Artifact{ID: "leaf-b", Requires: []string{"base"}})

	waves, err := g.ExecutionWaves()
	require.NoError(t, err)
	require.Len(t, waves, 2)
	require.Equal(t, Wave{"root"}, waves[0])
	require.Equal(t, Wave{"leaf-a", "leaf-b"}, waves[1])
}

// Property 1: every artifact appears in exactly one wave, and every
// dependency of an artifact in wave n is in some wave < n.
func TestExecutionWavesCoverageInvariant(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", Produces: []string{"x"}})
	mustAdd(t, g, Artifact{ID: "b", Requires: []string{"x"}, Produces: []string{"y"}})
	mustAdd(t, g, Artifact{ID: "c", Requires: []string{"x"}})
	mustAdd(t, g, Artifact{ID: "d", Requires: []string{"y"}})

	waves, err := g.ExecutionWaves()
	require.NoError(t, err)

	waveOf := make(map[string]int)
	seen := make(map[string]bool)
	for n, w := range waves {
		for _, id := range w {
			waveOf[id] = n
			require.False(t, seen[id], "artifact %s appeared twice", id)
			seen[id] = true
		}
	}
	require.Len(t, seen, 4)

	for _, id := range g.order {
		a := g.byID[id]
		for _, req := range a.Requires {
			for _, dep := range g.providerOf(req) {
				require.Less(t, waveOf[dep], waveOf[id])
			}
		}
	}
}

func TestDuplicateArtifactID(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a"})
	err := g.Add(Artifact{ID: "a"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "DuplicateArtifactId")
}

func TestCycleDetected(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", Requires: []string{"b"}, Produces: []string{"out_a"}})
	mustAdd(t, g, Artifact{ID: "b", Requires: []string{"out_a"}})
	_, err := g.ExecutionWaves()
	require.Error(t, err)
	require.Contains(t, err.Error(), "CycleDetected")
}

func TestDanglingDependency(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", Requires: []string{"nonexistent"}})
	_, err := g.ExecutionWaves()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DanglingDependency")
}

func TestDanglingDependencyAllowedWhenExternal(t *testing.T) {
	g := New("prior_output")
	mustAdd(t, g, Artifact{ID: "a", Requires: []string{"prior_output"}})
	_, err := g.ExecutionWaves()
	require.NoError(t, err)
}

// Scenario 2: two artifacts with the same produces_file and no dependency
// between them raise FileConflict at construction time.
func TestFileConflictRejectedAtConstruction(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", ProducesFile: "src/main.py"})
	err := g.Add(Artifact{ID: "b", ProducesFile: "src/main.py"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "FileConflict")
}

func TestFileConflictAllowedWithSequencing(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", ProducesFile: "src/main.py", Produces: []string{"draft"}})
	require.NoError(t, g.Add(Artifact{ID: "b", ProducesFile: "src/main.py", Requires: []string{"draft"}}))
}

// Scenario 2 (spec.md §8, literal wording): "Planner emits two artifacts
// A,B both with modifies = [src/main.py] and no dependency. Expected:
// graph construction raises FileConflict."
func TestModifiesConflictRejectedAtConstruction(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", Modifies: []string{"src/main.py"}})
	err := g.Add(Artifact{ID: "b", Modifies: []string{"src/main.py"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "FileConflict")
}

func TestModifiesConflictAllowedWithSequencing(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", Modifies: []string{"src/main.py"}, Produces: []string{"draft"}})
	require.NoError(t, g.Add(Artifact{ID: "b", Modifies: []string{"src/main.py"}, Requires: []string{"draft"}}))
}

// Property 3 (spec.md §8): for any two artifacts in the same concurrent
// wave, their Modifies sets are disjoint. Here two artifacts with
// overlapping Modifies are kept out of conflict at construction only by
// an explicit dependency, so they land in different waves and never
// co-occur.
func TestModifiesNeverOverlapWithinAWave(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "a", Modifies: []string{"shared.go"}, Produces: []string{"draft"}})
	mustAdd(t, g, Artifact{ID: "b", Modifies: []string{"shared.go"}, Requires: []string{"draft"}})

	waves, err := g.ExecutionWaves()
	require.NoError(t, err)
	for _, w := range waves {
		for i, idA := range w {
			for _, idB := range w[i+1:] {
				aArt, _ := g.Get(idA)
				bArt, _ := g.Get(idB)
				_, overlap := modifiesOverlap(aArt, bArt)
				require.False(t, overlap, "wave %v has overlapping modifies between %s and %s", w, idA, idB)
			}
		}
	}
}

func TestLeavesRootsMaxDepth(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "root", Produces: []string{"base"}})
	mustAdd(t, g, Artifact{ID: "mid", Requires: []string{"base"}, Produces: []string{"mid_out"}})
	mustAdd(t, g, Artifact{ID: "leaf", Requires: []string{"mid_out"}})

	require.Equal(t, []string{"root"}, g.Roots())
	require.Equal(t, []string{"leaf"}, g.Leaves())
	depth, err := g.MaxDepth()
	require.NoError(t, err)
	require.Equal(t, 3, depth)
}

func TestModelTier(t *testing.T) {
	g := New()
	mustAdd(t, g, Artifact{ID: "leaf1", Produces: []string{"a"}})
	mustAdd(t, g, Artifact{ID: "leaf2", Produces: []string{"b"}})
	mustAdd(t, g, Artifact{ID: "leaf3", Produces: []string{"c"}})
	mustAdd(t, g, Artifact{ID: "hub", Requires: []string{"a", "b", "c"}})

	require.Equal(t, TierSmall, g.ModelTier("leaf1"))
	require.Equal(t, TierLarge, g.ModelTier("hub"))
}
