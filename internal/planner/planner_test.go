package planner

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"sunwell/internal/events"
	"sunwell/internal/graph"
)

// chainThenFan builds a graph shaped as a sequential chain of `depth`
// artifacts terminating in `leaves` parallel sibling artifacts that all
// depend on the chain's tail, giving an easily controlled depth/breadth
// shape for scoring tests.
func chainThenFan(t *testing.T, depth, leaves int, descWords string) *graph.ArtifactGraph {
	t.Helper()
	g := graph.New()
	prev := ""
	for i := 0; i < depth; i++ {
		id := fmt.Sprintf("step-%d", i)
		a := graph.Artifact{ID: id, Description: fmt.Sprintf("%s stage %d", descWords, i), Produces: []string{id}}
		if prev != "" {
			a.Requires = []string{prev}
		}
		require.NoError(t, g.Add(a))
		prev = id
	}
	for i := 0; i < leaves; i++ {
		id := fmt.Sprintf("leaf-%d", i)
		require.NoError(t, g.Add(graph.Artifact{
			ID:          id,
			Description: fmt.Sprintf("%s leaf %d", descWords, i),
			Produces:    []string{id},
			Requires:    []string{prev},
		}))
	}
	return g
}

func TestPlanWithMetricsScenario4(t *testing.T) {
	goal := "build a document ingestion pipeline with parsing validation enrichment and search indexing features"

	graphs := map[string]*graph.ArtifactGraph{
		"candidate-0": chainThenFan(t, 5, 1, "ingestion parsing validation enrichment search indexing"),
		"candidate-1": chainThenFan(t, 3, 3, "ingestion parsing validation enrichment search indexing"),
		"candidate-2": chainThenFan(t, 4, 2, "ingestion parsing validation enrichment search indexing"),
	}

	call := 0
	generate := func(ctx context.Context, goal string, planContext map[string]any, hint string) (string, error) {
		id := fmt.Sprintf("candidate-%d", call)
		call++
		return id, nil
	}
	parse := func(raw string) (*graph.ArtifactGraph, error) {
		g, ok := graphs[raw]
		require.True(t, ok, "unexpected raw candidate key %q", raw)
		return g, nil
	}

	bus := events.New("test-session")
	var winnerEvent events.AgentEvent
	bus.Subscribe(func(ev events.AgentEvent) {
		if ev.Type == events.TypePlanWinner {
			winnerEvent = ev
		}
	})

	cfg := DefaultConfig()
	cfg.ScoreVersion = ScoreV2
	cfg.Candidates = 3
	cfg.Variance = VarianceTemperature

	p := New(generate, parse, nil, bus, cfg)

	g, metrics, err := p.PlanWithMetrics(context.Background(), goal, nil)
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Equal(t, 3, metrics.ValidCandidates)

	require.Equal(t, "candidate-1", winnerEvent.Data["selected_candidate_id"])
	// candidate-1's 3-step chain still costs one execution wave per step,
	// plus one more wave for the 3-way fan-out at the tail.
	require.Equal(t, 4, metrics.Winner.Depth)
}

func TestPlanFailsWhenAllCandidatesInvalid(t *testing.T) {
	generate := func(ctx context.Context, goal string, planContext map[string]any, hint string) (string, error) {
		return "bogus", nil
	}
	parse := func(raw string) (*graph.ArtifactGraph, error) {
		return nil, fmt.Errorf("cannot parse")
	}
	bus := events.New("s")
	p := New(generate, parse, nil, bus, DefaultConfig())

	_, _, err := p.PlanWithMetrics(context.Background(), "goal", nil)
	require.Error(t, err)
}

func TestPlanSkipsTimedOutCandidateButSucceedsWithOthers(t *testing.T) {
	g := chainThenFan(t, 2, 2, "a b c")
	call := 0
	generate := func(ctx context.Context, goal string, planContext map[string]any, hint string) (string, error) {
		i := call
		call++
		if i == 0 {
			return "", fmt.Errorf("model timeout")
		}
		return "ok", nil
	}
	parse := func(raw string) (*graph.ArtifactGraph, error) {
		if raw != "ok" {
			return nil, fmt.Errorf("should not parse empty")
		}
		return g, nil
	}
	bus := events.New("s")
	cfg := DefaultConfig()
	cfg.Candidates = 3
	p := New(generate, parse, nil, bus, cfg)

	result, metrics, err := p.PlanWithMetrics(context.Background(), "goal", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 2, metrics.ValidCandidates)
}

func TestTemplateStrategyBypassesGeneration(t *testing.T) {
	g := chainThenFan(t, 1, 1, "x")
	called := false
	generate := func(ctx context.Context, goal string, planContext map[string]any, hint string) (string, error) {
		called = true
		return "", nil
	}
	parse := func(raw string) (*graph.ArtifactGraph, error) { return nil, fmt.Errorf("unused") }
	template := func(goal string, planContext map[string]any) (*graph.ArtifactGraph, bool) {
		return g, true
	}
	bus := events.New("s")
	cfg := DefaultConfig()
	cfg.Variance = VarianceTemplate
	p := New(generate, parse, template, bus, cfg)

	result, metrics, err := p.PlanWithMetrics(context.Background(), "goal", nil)
	require.NoError(t, err)
	require.Same(t, g, result)
	require.Equal(t, "template match", metrics.SelectionReason)
	require.False(t, called)
}

func TestSelectWinnerTieBreaksByDepthThenID(t *testing.T) {
	p := &Planner{}
	a := candidate{id: "candidate-0", metrics: Metrics{Score: 1.0, Depth: 3, FirstArtifactID: "b"}}
	b := candidate{id: "candidate-1", metrics: Metrics{Score: 1.0, Depth: 2, FirstArtifactID: "z"}}
	c := candidate{id: "candidate-2", metrics: Metrics{Score: 1.0, Depth: 2, FirstArtifactID: "a"}}

	winner, _ := p.selectWinner([]candidate{a, b, c})
	require.Equal(t, "candidate-2", winner.id)
}
