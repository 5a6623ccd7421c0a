package graph

import (
	"sort"

	"sunwell/internal/errs"
)

// ModelTier is the derived model-capability hint for an artifact. The
// registry's spawn requests do not carry it.
type ModelTier string

const (
	TierSmall  ModelTier = "small"
	TierMedium ModelTier = "medium"
	TierLarge  ModelTier = "large"
)

// ArtifactGraph is a collection of Artifacts with adjacency derived from
// requires/produces. It is built incrementally via Add and is immutable
// once execution_waves() has been computed successfully (callers should
// not Add after calling ExecutionWaves).
type ArtifactGraph struct {
	byID     map[string]Artifact
	order    []string // insertion order, for deterministic iteration
	external map[string]bool
}

// New returns an empty graph. external names pre-existing artifacts known
// to memory (e.g. produced by a prior run) so requires-references to them
// don't raise DanglingDependency.
func New(external ...string) *ArtifactGraph {
	g := &ArtifactGraph{
		byID:     make(map[string]Artifact),
		external: make(map[string]bool, len(external)),
	}
	for _, e := range external {
		g.external[e] = true
	}
	return g
}

// Add inserts an artifact, failing with DuplicateArtifactId if the id
// already exists, or FileConflict if another artifact already claims the
// same produces_file without an explicit sequencing dependency between
// them.
func (g *ArtifactGraph) Add(a Artifact) error {
	if _, exists := g.byID[a.ID]; exists {
		return errs.New(errs.CodeDuplicateArtifactID, "artifact id already present: "+a.ID).WithArtifact(a.ID)
	}
	if !requiresProducesDisjoint(a) {
		return errs.New(errs.CodeDanglingDependency, "artifact requires its own produced name: "+a.ID).WithArtifact(a.ID)
	}
	if a.ProducesFile != "" {
		for _, other := range g.byID {
			if other.ProducesFile == a.ProducesFile {
				if !sequenced(a, other) {
					return errs.New(errs.CodeFileConflict,
						"two artifacts produce the same file without a sequencing dependency: "+a.ProducesFile).
						WithArtifact(a.ID)
				}
			}
		}
	}
	for _, other := range g.byID {
		if path, overlap := modifiesOverlap(a, other); overlap {
			if !sequenced(a, other) {
				return errs.New(errs.CodeFileConflict,
					"two artifacts modify the same file without a sequencing dependency: "+path).
					WithArtifact(a.ID)
			}
		}
	}
	a = a.clone()
	g.byID[a.ID] = a
	g.order = append(g.order, a.ID)
	return nil
}

// sequenced reports whether a and b have an explicit ordering dependency
// between them (one requires something the other produces), which exempts
// them from FileConflict despite sharing a produces_file.
func sequenced(a, b Artifact) bool {
	for _, r := range a.Requires {
		if r == b.ID || contains(b.Produces, r) {
			return true
		}
	}
	for _, r := range b.Requires {
		if r == a.ID || contains(a.Produces, r) {
			return true
		}
	}
	return false
}

// modifiesOverlap reports whether a and b share any entry in Modifies,
// returning the first shared path for the error message.
func modifiesOverlap(a, b Artifact) (string, bool) {
	if a.ID == b.ID {
		return "", false
	}
	for _, path := range a.Modifies {
		if contains(b.Modifies, path) {
			return path, true
		}
	}
	return "", false
}

// Get returns the artifact with the given id.
func (g *ArtifactGraph) Get(id string) (Artifact, bool) {
	a, ok := g.byID[id]
	return a, ok
}

// Artifacts returns all artifacts in insertion order.
func (g *ArtifactGraph) Artifacts() []Artifact {
	out := make([]Artifact, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.byID[id])
	}
	return out
}

// providerOf resolves a required name (logical output name or artifact id)
// to the set of artifact ids that satisfy it.
func (g *ArtifactGraph) providerOf(name string) []string {
	var providers []string
	if _, ok := g.byID[name]; ok {
		providers = append(providers, name)
	}
	for _, id := range g.order {
		a := g.byID[id]
		if contains(a.Produces, name) && id != name {
			providers = append(providers, id)
		}
	}
	return providers
}

// ProvidersOf exposes providerOf to other packages (the executor needs it
// to resolve a requires entry — which may be a logical produces name
// rather than an artifact id — to the artifact id(s) that satisfy it).
func (g *ArtifactGraph) ProvidersOf(name string) []string {
	return g.providerOf(name)
}

// ValidateDependencies checks every requires entry resolves to a known
// artifact or an external (pre-existing) name. Returns DanglingDependency
// on the first unresolved reference.
func (g *ArtifactGraph) ValidateDependencies() error {
	for _, id := range g.order {
		a := g.byID[id]
		for _, req := range a.Requires {
			if len(g.providerOf(req)) > 0 {
				continue
			}
			if g.external[req] {
				continue
			}
			return errs.New(errs.CodeDanglingDependency,
				"requires entry resolves to no artifact: "+req).WithArtifact(a.ID)
		}
	}
	return nil
}

// DetectCycle runs a DFS-based cycle check over the requires graph. Must
// be called (directly or via ExecutionWaves) before execution.
func (g *ArtifactGraph) DetectCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		a := g.byID[id]
		for _, req := range a.Requires {
			for _, dep := range g.providerOf(req) {
				switch color[dep] {
				case gray:
					return true
				case white:
					if visit(dep) {
						return true
					}
				}
			}
		}
		color[id] = black
		return false
	}
	for _, id := range g.order {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// Wave is a maximal set of artifact ids that can execute concurrently.
type Wave = []string

// ExecutionWaves computes deterministic topological layering via Kahn's
// algorithm: wave n contains artifacts whose dependencies are all in
// waves < n. Ties within a wave are broken by lexicographic id order.
// Returns CycleDetected if the graph is not a DAG.
func (g *ArtifactGraph) ExecutionWaves() ([]Wave, error) {
	if g.DetectCycle() {
		return nil, errs.ErrCycleDetected
	}
	if err := g.ValidateDependencies(); err != nil {
		return nil, err
	}

	indegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string)
	for _, id := range g.order {
		a := g.byID[id]
		seen := make(map[string]bool)
		for _, req := range a.Requires {
			for _, dep := range g.providerOf(req) {
				if dep == id || seen[dep] {
					continue
				}
				seen[dep] = true
				indegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	remaining := make(map[string]bool, len(g.order))
	for _, id := range g.order {
		remaining[id] = true
	}

	var waves []Wave
	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			if indegree[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// Should be unreachable given the cycle check above.
			return nil, errs.ErrCycleDetected
		}
		sort.Strings(ready)
		if err := g.checkWaveModifies(ready); err != nil {
			return nil, err
		}
		waves = append(waves, ready)
		for _, id := range ready {
			delete(remaining, id)
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
	}
	return waves, nil
}

// checkWaveModifies re-validates, for a computed wave, that no two of its
// artifacts share a Modifies entry. Add() already rejects this at
// construction time for any two unsequenced artifacts, so this is a
// defense-in-depth re-check of spec.md §8 Testable Property 3 against the
// wave the scheduler is about to hand out, not a path expected to trigger
// in practice.
func (g *ArtifactGraph) checkWaveModifies(wave []string) error {
	for i, idA := range wave {
		a := g.byID[idA]
		for _, idB := range wave[i+1:] {
			b := g.byID[idB]
			if path, overlap := modifiesOverlap(a, b); overlap {
				return errs.New(errs.CodeFileConflict,
					"concurrent wave contains two artifacts modifying the same file: "+path).
					WithArtifact(a.ID)
			}
		}
	}
	return nil
}

// Leaves returns artifacts with no dependents (nothing requires them).
func (g *ArtifactGraph) Leaves() []string {
	required := make(map[string]bool)
	for _, id := range g.order {
		for _, req := range g.byID[id].Requires {
			for _, dep := range g.providerOf(req) {
				required[dep] = true
			}
		}
	}
	var leaves []string
	for _, id := range g.order {
		if !required[id] {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// Roots returns artifacts with no dependencies of their own.
func (g *ArtifactGraph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.byID[id].Requires) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// MaxDepth returns the length of the longest dependency chain, in waves.
func (g *ArtifactGraph) MaxDepth() (int, error) {
	waves, err := g.ExecutionWaves()
	if err != nil {
		return 0, err
	}
	return len(waves), nil
}

// ModelTier derives a capability hint from structural position: artifacts
// with no requirements of their own are small, high fan-in nodes (three or
// more providers across their requires) are large, everything else
// medium. Deterministic from graph structure per spec.md §4.1.
func (g *ArtifactGraph) ModelTier(id string) ModelTier {
	fanIn := 0
	a, ok := g.byID[id]
	if !ok {
		return TierMedium
	}
	for _, other := range g.order {
		if other == id {
			continue
		}
		for _, req := range a.Requires {
			for _, dep := range g.providerOf(req) {
				if dep == other {
					fanIn++
				}
			}
		}
	}
	switch {
	case len(a.Requires) == 0:
		return TierSmall
	case fanIn >= 3:
		return TierLarge
	default:
		return TierMedium
	}
}
