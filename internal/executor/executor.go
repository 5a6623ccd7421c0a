// Package executor implements the IncrementalExecutor: given an
// ArtifactGraph and an ExecutionCache, decides what to rebuild and drives
// execution wave by wave, dispatching each wave's uncached work
// concurrently with a bounded worker count and panic-safe goroutines.
package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sunwell/internal/cache"
	"sunwell/internal/errs"
	"sunwell/internal/events"
	"sunwell/internal/graph"
)

// SkipReason is the closed set of reason codes for a SkipDecision.
type SkipReason string

const (
	ReasonUnchanged            SkipReason = "unchanged"
	ReasonUpstreamFailed       SkipReason = "upstream_failed"
	ReasonPriorFailureCooldown SkipReason = "prior_failure_cooldown"
	ReasonForcedRebuild        SkipReason = "forced_rebuild"
	ReasonDisabled             SkipReason = "disabled"
)

// Decision is the outcome of the Plan phase for one artifact.
type Decision struct {
	ArtifactID string
	Execute    bool
	SkipReason SkipReason
	InputHash  string
}

// CreateArtifactFn performs the actual work for an artifact, typically by
// delegating to a subagent. It returns the produced content (hashed into
// output_hash) or an error.
type CreateArtifactFn func(ctx context.Context, a graph.Artifact, inputHash string) ([]byte, error)

// Config tunes executor behavior.
type Config struct {
	RetryCooldown time.Duration // spec.md §9 default: 1 hour
	ForceRebuild  map[string]bool
	Disabled      map[string]bool
	ToolVersion   string
	GoalHash      string
	RunID         string
	ModelID       string
}

func DefaultConfig() Config {
	return Config{RetryCooldown: time.Hour, ToolVersion: "v1"}
}

// Result summarizes one executor run
type Result struct {
	Completed int
	Skipped   int
	Failed    int
	Decisions map[string]Decision
}

// Executor drives wave-by-wave execution of an ArtifactGraph.
type Executor struct {
	graph     *graph.ArtifactGraph
	cache     *cache.Cache
	bus       *events.Bus
	createFn  CreateArtifactFn
	cfg       Config
	maxInFlight int

	mu       sync.Mutex
	inflight map[string]*inflightEntry // input_hash -> shared future
}

type inflightEntry struct {
	done chan struct{}
	err  error
}

// New constructs an Executor. maxInFlight bounds concurrent dispatch
// within a wave (enforced by the caller's registry in production; a local
// bound is still applied defensively).
func New(g *graph.ArtifactGraph, c *cache.Cache, bus *events.Bus, createFn CreateArtifactFn, maxInFlight int, cfg Config) *Executor {
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Executor{
		graph:       g,
		cache:       c,
		bus:         bus,
		createFn:    createFn,
		cfg:         cfg,
		maxInFlight: maxInFlight,
		inflight:    make(map[string]*inflightEntry),
	}
}

// Run executes the whole graph and returns the aggregate result.
func (e *Executor) Run(ctx context.Context) (Result, error) {
	waves, err := e.graph.ExecutionWaves()
	if err != nil {
		return Result{}, err
	}

	result := Result{Decisions: make(map[string]Decision)}
	hashes := make(map[string]string) // artifact id -> its computed input_hash
	failed := make(map[string]bool)

	for _, wave := range waves {
		decisions := make(map[string]Decision, len(wave))
		for _, id := range wave {
			a, _ := e.graph.Get(id)
			decisions[id] = e.planOne(a, hashes, failed)
		}
		e.bus.Publish(events.TypeExecutionPlanComputed, 0, map[string]any{
			"wave_size": len(wave),
			"to_execute": countExecute(decisions),
			"to_skip":    len(decisions) - countExecute(decisions),
		})

		if err := e.executeWave(ctx, wave, decisions, hashes, failed, &result); err != nil {
			return result, err
		}
		for id, d := range decisions {
			result.Decisions[id] = d
		}
	}
	return result, nil
}

func countExecute(decisions map[string]Decision) int {
	n := 0
	for _, d := range decisions {
		if d.Execute {
			n++
		}
	}
	return n
}

func (e *Executor) planOne(a graph.Artifact, hashes map[string]string, failed map[string]bool) Decision {
	if e.cfg.Disabled[a.ID] {
		return Decision{ArtifactID: a.ID, Execute: false, SkipReason: ReasonDisabled}
	}
	for _, req := range a.Requires {
		for _, depID := range e.graph.ProvidersOf(req) {
			if failed[depID] {
				return Decision{ArtifactID: a.ID, Execute: false, SkipReason: ReasonUpstreamFailed}
			}
		}
	}

	specJSON, _ := cache.CanonicalJSON(a)
	var depHashes []string
	for _, req := range a.Requires {
		for _, depID := range e.graph.ProvidersOf(req) {
			if h, ok := hashes[depID]; ok {
				depHashes = append(depHashes, h)
			}
		}
	}
	inputHash := cache.InputHash(specJSON, depHashes, e.cfg.ToolVersion)
	hashes[a.ID] = inputHash

	if e.cfg.ForceRebuild[a.ID] {
		return Decision{ArtifactID: a.ID, Execute: true, SkipReason: ReasonForcedRebuild, InputHash: inputHash}
	}

	entry, err := e.cache.Lookup(a.ID, inputHash)
	if err == nil {
		switch entry.Status {
		case cache.StatusSuccess:
			return Decision{ArtifactID: a.ID, Execute: false, SkipReason: ReasonUnchanged, InputHash: inputHash}
		case cache.StatusFailed:
			if time.Since(entry.Provenance.Timestamp) < e.cfg.RetryCooldown {
				return Decision{ArtifactID: a.ID, Execute: false, SkipReason: ReasonPriorFailureCooldown, InputHash: inputHash}
			}
		}
	}
	return Decision{ArtifactID: a.ID, Execute: true, InputHash: inputHash}
}

func (e *Executor) executeWave(ctx context.Context, wave []string, decisions map[string]Decision, hashes map[string]string, failed map[string]bool, result *Result) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxInFlight)

	var mu sync.Mutex

	for _, id := range wave {
		id := id
		d := decisions[id]
		if !d.Execute {
			mu.Lock()
			result.Skipped++
			if d.SkipReason == ReasonUpstreamFailed {
				failed[id] = true
			}
			mu.Unlock()
			e.bus.Publish(events.TypeArtifactSkipped, 0, map[string]any{"artifact_id": id, "reason": string(d.SkipReason)})
			continue
		}
		a, _ := e.graph.Get(id)
		g.Go(func() error {
			outcome := e.executeOne(gctx, a, d.InputHash)
			mu.Lock()
			if outcome {
				result.Completed++
			} else {
				result.Failed++
				failed[id] = true
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// executeOne runs CreateArtifactFn for a single artifact, with in-flight
// deduplication so two concurrent waves requesting the same input_hash
// share a single execution. Returns true on success.
func (e *Executor) executeOne(ctx context.Context, a graph.Artifact, inputHash string) bool {
	shared, isLeader := e.claim(inputHash)
	if !isLeader {
		<-shared.done
		return shared.err == nil
	}

	e.bus.Publish(events.TypeArtifactCacheMiss, 0, map[string]any{"artifact_id": a.ID, "input_hash": inputHash})
	start := time.Now()

	out, err := e.runCreateSafely(ctx, a, inputHash)
	duration := time.Since(start)

	if err != nil {
		_ = e.cache.Record(cache.Entry{
			ArtifactID: a.ID, InputHash: inputHash, Status: cache.StatusFailed,
			Provenance: cache.Provenance{RunID: e.cfg.RunID, GoalHash: e.cfg.GoalHash, Timestamp: time.Now(), DurationMS: duration.Milliseconds(), ModelID: e.cfg.ModelID},
		})
		e.bus.Publish(events.TypeTaskError, 0, map[string]any{"artifact_id": a.ID, "error": err.Error()})
		e.release(inputHash, err)
		return false
	}

	outputHash := cache.OutputHash(out)
	_ = e.cache.Record(cache.Entry{
		ArtifactID: a.ID, InputHash: inputHash, OutputHash: outputHash, Status: cache.StatusSuccess,
		Provenance: cache.Provenance{RunID: e.cfg.RunID, GoalHash: e.cfg.GoalHash, Timestamp: time.Now(), DurationMS: duration.Milliseconds(), ModelID: e.cfg.ModelID},
	})
	e.bus.Publish(events.TypeArtifactHashComputed, 0, map[string]any{"artifact_id": a.ID, "output_hash": outputHash})
	e.release(inputHash, nil)
	return true
}

func (e *Executor) runCreateSafely(ctx context.Context, a graph.Artifact, inputHash string) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Wrap(errs.CodeToolFailure, nil, "artifact creation panicked").WithArtifact(a.ID)
		}
	}()
	return e.createFn(ctx, a, inputHash)
}

func (e *Executor) claim(inputHash string) (*inflightEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.inflight[inputHash]; ok {
		return existing, false
	}
	entry := &inflightEntry{done: make(chan struct{})}
	e.inflight[inputHash] = entry
	return entry, true
}

func (e *Executor) release(inputHash string, err error) {
	e.mu.Lock()
	entry := e.inflight[inputHash]
	delete(e.inflight, inputHash)
	e.mu.Unlock()
	entry.err = err
	close(entry.done)
}
