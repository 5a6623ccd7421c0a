// Package planner implements the Harmonic Planner: generate N candidate
// plans in parallel, score them, select a winner, and optionally refine.
package planner

import (
	"math"
	"strings"

	"sunwell/internal/graph"
)

// ScoreVersion selects which metric formula to use.
type ScoreVersion string

const (
	ScoreV1   ScoreVersion = "v1"
	ScoreV2   ScoreVersion = "v2"
	ScoreAuto ScoreVersion = "auto"
)

// Metrics captures every component of the scoring formula, for
// plan_with_metrics and for test assertions.
type Metrics struct {
	Version ScoreVersion

	ParallelismFactor float64
	BalanceFactor     float64
	DepthPenalty      float64
	ConflictPenalty   float64

	ParallelWorkRatio float64
	WaveVariance      float64
	KeywordCoverage   float64
	HasConvergence    bool
	DepthUtilization  float64

	Width           int
	Depth           int
	FirstArtifactID string
	Score           float64
}

const (
	waveVarianceWeight   = 0.1
	convergenceBonus     = 0.5
	autoKeywordThreshold = 5
)

// resolveVersion implements the `auto` rule: v2 if the goal has >= 5
// meaningful keywords, else v1.
func resolveVersion(version ScoreVersion, goal string) ScoreVersion {
	if version != ScoreAuto {
		return version
	}
	if len(extractKeywords(goal)) >= autoKeywordThreshold {
		return ScoreV2
	}
	return ScoreV1
}

func extractKeywords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) > 2 && !stopword(f) {
			out = append(out, f)
		}
	}
	return out
}

var commonStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "have": true, "are": true,
}

func stopword(s string) bool { return commonStopwords[s] }

// Score computes Metrics for a candidate graph against a goal string.
//
// The constituent metrics (parallelism_factor, balance_factor,
// parallel_work_ratio, wave_variance, depth_utilization) mirror
// naaru/planners/harmonic/scoring.py's compute_metrics_v1/v2 exactly.
// The combination of those metrics into one scalar Score is this repo's
// own weighted sum: the original's final score/score_v2 weights live in
// a metrics.py module this port never had access to, so the weights here
// are a reasoned reconstruction rather than a port.
func Score(g *graph.ArtifactGraph, goal string, version ScoreVersion) (Metrics, error) {
	version = resolveVersion(version, goal)
	waves, err := g.ExecutionWaves()
	if err != nil {
		return Metrics{}, err
	}
	artifacts := g.Artifacts()
	total := float64(len(artifacts))
	numWaves := float64(len(waves))
	depth := len(waves)

	sizes := make([]float64, len(waves))
	width := 0
	for i, w := range waves {
		sizes[i] = float64(len(w))
		if len(w) > width {
			width = len(w)
		}
	}
	if width == 0 {
		width = 1
	}

	leaves := float64(len(g.Leaves()))
	conflicts := countFileConflicts(artifacts)

	m := Metrics{
		Version:           version,
		ParallelismFactor: safeDiv(leaves, total),
		BalanceFactor:     safeDiv(float64(width), float64(maxInt(depth, 1))),
		DepthPenalty:      safeDiv(numWaves, total),
		ConflictPenalty:   float64(conflicts),
		Width:             width,
		Depth:             depth,
	}
	if len(waves) > 0 && len(waves[0]) > 0 {
		m.FirstArtifactID = waves[0][0]
	}

	m.Score = m.ParallelismFactor + m.BalanceFactor - m.DepthPenalty - m.ConflictPenalty

	if version == ScoreV2 {
		avgWaveWidth := safeDiv(total, numWaves)
		m.ParallelWorkRatio = safeDiv(total-1, numWaves-1)
		m.WaveVariance = sampleStdDev(sizes)
		m.KeywordCoverage = keywordCoverage(g, goal)
		m.HasConvergence = len(g.Roots()) == 1
		m.DepthUtilization = safeDiv(avgWaveWidth, float64(maxInt(depth, 1)))

		convergence := 0.0
		if m.HasConvergence {
			convergence = convergenceBonus
		}
		m.Score += m.ParallelWorkRatio - waveVarianceWeight*m.WaveVariance + m.KeywordCoverage + convergence
	}
	return m, nil
}

// countFileConflicts mirrors scoring.py's conflict count: for every
// produces_file shared by n artifacts, n*(n-1)/2 combinations, regardless
// of whether the artifacts are sequenced. Add()/ExecutionWaves() already
// reject unsequenced conflicts at construction and per-wave, so in a
// successfully-built graph this only counts sequenced (allowed) overlaps
// — it feeds conflict_penalty as a tie-breaking signal, not a hard gate.
func countFileConflicts(artifacts []graph.Artifact) int {
	byFile := make(map[string]int)
	for _, a := range artifacts {
		if a.ProducesFile != "" {
			byFile[a.ProducesFile]++
		}
	}
	conflicts := 0
	for _, n := range byFile {
		if n > 1 {
			conflicts += n * (n - 1) / 2
		}
	}
	return conflicts
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// sampleStdDev is the sample standard deviation, matching Python's
// statistics.stdev (divides by n-1, not n). Returns 0 for fewer than two
// samples, matching scoring.py's wave_variance fallback.
func sampleStdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(n)
	var sumSq float64
	for _, x := range xs {
		sumSq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// keywordCoverage measures goal-artifact keyword overlap: the fraction of
// goal keywords that appear in some artifact id or description.
func keywordCoverage(g *graph.ArtifactGraph, goal string) float64 {
	keywords := extractKeywords(goal)
	if len(keywords) == 0 {
		return 0
	}
	haystack := strings.Builder{}
	for _, a := range g.Artifacts() {
		haystack.WriteString(strings.ToLower(a.ID))
		haystack.WriteString(" ")
		haystack.WriteString(strings.ToLower(a.Description))
		haystack.WriteString(" ")
	}
	text := haystack.String()
	hit := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			hit++
		}
	}
	return float64(hit) / float64(len(keywords))
}
