package planner

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"sunwell/internal/errs"
	"sunwell/internal/events"
	"sunwell/internal/graph"
)

// VarianceStrategy selects how candidates are diversified.
type VarianceStrategy string

const (
	VariancePrompting   VarianceStrategy = "prompting"
	VarianceTemperature VarianceStrategy = "temperature"
	VarianceTemplate    VarianceStrategy = "template"
)

// Weakness is a closed set of refinement triggers
type Weakness string

const (
	WeaknessDeepChain           Weakness = "deep_chain"
	WeaknessWaveImbalance       Weakness = "wave_imbalance"
	WeaknessMissingConvergence  Weakness = "missing_convergence"
	WeaknessLowKeywordCoverage  Weakness = "low_keyword_coverage"
	WeaknessLowDepthUtilization Weakness = "low_depth_utilization"
)

// weaknessPrompt is the human-readable re-prompt fragment for a weakness.
var weaknessPrompt = map[Weakness]string{
	WeaknessDeepChain:           "the plan is a long sequential chain; look for steps that can run in parallel",
	WeaknessWaveImbalance:       "execution waves are unevenly sized; redistribute independent work across waves",
	WeaknessMissingConvergence:  "the plan has multiple disconnected roots; find a shared starting artifact",
	WeaknessLowKeywordCoverage:  "artifact names and descriptions barely mention the goal; tie them more directly to it",
	WeaknessLowDepthUtilization: "the plan's depth isn't buying any parallelism; flatten it or fill waves out wider",
}

// GenerateFn produces one raw candidate from the model, given a goal,
// free-form context, and a variance hint (persona string for prompting,
// temperature value (as string) for temperature, or "" for template).
type GenerateFn func(ctx context.Context, goal string, planContext map[string]any, varianceHint string) (string, error)

// ParseFn parses raw model output into an ArtifactGraph.
type ParseFn func(raw string) (*graph.ArtifactGraph, error)

// TemplateFn attempts to resolve the goal directly against a memory
// template, skipping candidate generation entirely (step 1 "template"
// strategy). Returns ok=false if no high-confidence template matches.
type TemplateFn func(goal string, planContext map[string]any) (*graph.ArtifactGraph, bool)

// Config tunes planner behavior.
type Config struct {
	Candidates       int
	Variance         VarianceStrategy
	ScoreVersion     ScoreVersion
	RefinementRounds int
	MaxArtifacts     int
}

func DefaultConfig() Config {
	return Config{Candidates: 3, Variance: VarianceTemperature, ScoreVersion: ScoreAuto, RefinementRounds: 0, MaxArtifacts: 200}
}

// Planner produces an ArtifactGraph from a goal via multi-candidate
// generation, scoring, selection, and optional refinement.
type Planner struct {
	generate GenerateFn
	parse    ParseFn
	template TemplateFn
	bus      *events.Bus
	cfg      Config
}

func New(generate GenerateFn, parse ParseFn, template TemplateFn, bus *events.Bus, cfg Config) *Planner {
	return &Planner{generate: generate, parse: parse, template: template, bus: bus, cfg: cfg}
}

// PlanMetrics is the per-run planning summary returned by PlanWithMetrics.
type PlanMetrics struct {
	TotalCandidates int
	ValidCandidates int
	Winner          Metrics
	SelectionReason string
}

type candidate struct {
	id      string
	graph   *graph.ArtifactGraph
	metrics Metrics
}

// Plan runs the full algorithm and returns only the winning graph.
func (p *Planner) Plan(ctx context.Context, goal string, planContext map[string]any) (*graph.ArtifactGraph, error) {
	g, _, err := p.PlanWithMetrics(ctx, goal, planContext)
	return g, err
}

// PlanWithMetrics runs the full algorithm
func (p *Planner) PlanWithMetrics(ctx context.Context, goal string, planContext map[string]any) (*graph.ArtifactGraph, PlanMetrics, error) {
	if p.cfg.Variance == VarianceTemplate && p.template != nil {
		if g, ok := p.template(goal, planContext); ok {
			m, _ := Score(g, goal, p.cfg.ScoreVersion)
			return g, PlanMetrics{TotalCandidates: 1, ValidCandidates: 1, Winner: m, SelectionReason: "template match"}, nil
		}
	}

	n := p.cfg.Candidates
	if n <= 0 {
		n = 1
	}
	p.bus.Publish(events.TypePlanCandidateStart, 0, map[string]any{
		"total_candidates": n,
		"variance_strategy": string(p.cfg.Variance),
	})

	candidates := p.generateAll(ctx, goal, planContext, n)

	p.bus.Publish(events.TypePlanCandidatesComplete, 0, map[string]any{
		"succeeded": len(candidates),
		"failed":    n - len(candidates),
	})

	if len(candidates) == 0 {
		return nil, PlanMetrics{}, errs.ErrPlanningFailure
	}

	winner, reason := p.selectWinner(candidates)

	for round := 0; round < p.cfg.RefinementRounds; round++ {
		refined, improved := p.refine(ctx, goal, planContext, winner)
		if !improved {
			break
		}
		winner = refined
	}

	p.bus.Publish(events.TypePlanWinner, 0, map[string]any{
		"selected_candidate_id": winner.id,
		"score":                 winner.metrics.Score,
		"selection_reason":      reason,
	})

	return winner.graph, PlanMetrics{
		TotalCandidates: n,
		ValidCandidates: len(candidates),
		Winner:          winner.metrics,
		SelectionReason: reason,
	}, nil
}

func (p *Planner) generateAll(ctx context.Context, goal string, planContext map[string]any, n int) []candidate {
	results := make([]*candidate, n)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			hint := varianceHint(p.cfg.Variance, i)
			raw, err := p.generate(gctx, goal, planContext, hint)
			if err != nil {
				return nil // model timeout/failure: skip this candidate, others proceed
			}
			parsed, err := p.parse(raw)
			if err != nil {
				return nil
			}
			if parsed.DetectCycle() {
				return nil
			}
			if len(parsed.Artifacts()) > p.cfg.MaxArtifacts {
				return nil
			}
			id := fmt.Sprintf("candidate-%d", i)
			m, err := Score(parsed, goal, p.cfg.ScoreVersion)
			if err != nil {
				return nil
			}
			results[i] = &candidate{id: id, graph: parsed, metrics: m}
			p.bus.Publish(events.TypePlanCandidateGenerated, 0, map[string]any{"candidate_id": id})
			return nil
		})
	}
	_ = g.Wait()

	var out []candidate
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func varianceHint(strategy VarianceStrategy, index int) string {
	switch strategy {
	case VariancePrompting:
		personas := []string{"pragmatic engineer", "thorough architect", "speed-focused implementer"}
		return personas[index%len(personas)]
	case VarianceTemperature:
		temps := []float64{0.2, 0.6, 1.0}
		return fmt.Sprintf("%.2f", temps[index%len(temps)])
	default:
		return ""
	}
}

// selectWinner picks the highest-scoring candidate, tie-breaking by
// smaller depth then lexicographic first-artifact-id
func (p *Planner) selectWinner(candidates []candidate) (candidate, string) {
	sorted := append([]candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.metrics.Score != b.metrics.Score {
			return a.metrics.Score > b.metrics.Score
		}
		if a.metrics.Depth != b.metrics.Depth {
			return a.metrics.Depth < b.metrics.Depth
		}
		return a.metrics.FirstArtifactID < b.metrics.FirstArtifactID
	})
	return sorted[0], fmt.Sprintf("highest score %.3f among %d candidates", sorted[0].metrics.Score, len(candidates))
}

// detectWeaknesses identifies refinement triggers for the current winner,
// thresholds matched to naaru/planners/harmonic/refinement.py's
// identify_improvements.
func detectWeaknesses(c candidate) []Weakness {
	var out []Weakness
	if c.metrics.Depth > 3 {
		out = append(out, WeaknessDeepChain)
	}
	if c.metrics.BalanceFactor < 0.5 {
		out = append(out, WeaknessWaveImbalance)
	}
	if c.metrics.Version == ScoreV2 && !c.metrics.HasConvergence {
		out = append(out, WeaknessMissingConvergence)
	}
	if c.metrics.Version == ScoreV2 && c.metrics.KeywordCoverage < 0.5 {
		out = append(out, WeaknessLowKeywordCoverage)
	}
	if c.metrics.Version == ScoreV2 && c.metrics.DepthUtilization < 1.0 && c.metrics.Depth > 2 {
		out = append(out, WeaknessLowDepthUtilization)
	}
	return out
}

// refine re-prompts the model with the current plan plus weakness
// feedback, accepting the result only if its score improves.
func (p *Planner) refine(ctx context.Context, goal string, planContext map[string]any, current candidate) (candidate, bool) {
	weaknesses := detectWeaknesses(current)
	if len(weaknesses) == 0 {
		return current, false
	}
	feedback := ""
	for _, w := range weaknesses {
		feedback += weaknessPrompt[w] + "; "
	}
	refinedCtx := map[string]any{}
	for k, v := range planContext {
		refinedCtx[k] = v
	}
	refinedCtx["refinement_feedback"] = feedback
	refinedCtx["current_plan_first_artifact"] = current.metrics.FirstArtifactID

	raw, err := p.generate(ctx, goal, refinedCtx, "")
	if err != nil {
		return current, false
	}
	parsed, err := p.parse(raw)
	if err != nil || parsed.DetectCycle() {
		return current, false
	}
	m, err := Score(parsed, goal, p.cfg.ScoreVersion)
	if err != nil || m.Score <= current.metrics.Score {
		return current, false
	}
	return candidate{id: current.id, graph: parsed, metrics: m}, true
}
