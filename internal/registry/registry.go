package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sunwell/internal/errs"
)

// Config bounds the registry's concurrency and recursion behavior.
type Config struct {
	MaxConcurrentSubagents int
	MaxSubagentDepth       int
}

func DefaultConfig() Config {
	return Config{MaxConcurrentSubagents: 8, MaxSubagentDepth: 4}
}

// Listener receives lifecycle notifications. Invoked outside the
// registry's critical section so a slow or panicking listener can't
// hold up state transitions.
type Listener func(record *SubagentRecord, event ListenerEvent)

// Registry is the single owning authority for subagent lifecycle state.
type Registry struct {
	mu      sync.Mutex
	records map[string]*SubagentRecord
	active  map[string]bool // run_id -> currently running (not yet complete)

	listeners []Listener
	cfg       Config

	persist *persister
}

func New(cfg Config) *Registry {
	return &Registry{
		records: make(map[string]*SubagentRecord),
		active:  make(map[string]bool),
		cfg:     cfg,
	}
}

// AddListener registers a lifecycle observer.
func (r *Registry) AddListener(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

func (r *Registry) notify(rec *SubagentRecord, ev ListenerEvent) {
	r.mu.Lock()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()
	snap := rec.clone()
	for _, l := range listeners {
		l(snap, ev)
	}
}

// Register creates a new pending SubagentRecord with a fresh run_id.
func (r *Registry) Register(childSession, parentSession, task string, cleanup CleanupPolicy, label string, spawnDepth int) *SubagentRecord {
	rec := &SubagentRecord{
		RunID:                uuid.NewString(),
		ChildSessionID:       childSession,
		ParentSessionID:      parentSession,
		Task:                 task,
		CleanupPolicy:        cleanup,
		Label:                label,
		CreatedAt:            time.Now(),
		HeartbeatIntervalSec: defaultHeartbeatIntervalSeconds,
		SpawnDepth:           spawnDepth,
	}
	r.mu.Lock()
	r.records[rec.RunID] = rec
	r.mu.Unlock()
	r.save()
	r.notify(rec, EventRegister)
	return rec.clone()
}

func (r *Registry) MarkStarted(runID string) {
	r.mu.Lock()
	rec, ok := r.records[runID]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	rec.StartedAt = &now
	rec.LastHeartbeat = now
	r.active[runID] = true
	r.mu.Unlock()
	r.save()
	r.notify(rec, EventStart)
}

// MarkComplete finalizes a record with the given outcome.
func (r *Registry) MarkComplete(runID string, outcome Outcome, errMsg string) {
	r.mu.Lock()
	rec, ok := r.records[runID]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	rec.EndedAt = &now
	rec.Outcome = &outcome
	rec.ErrorMessage = errMsg
	delete(r.active, runID)
	r.mu.Unlock()
	r.save()
	r.notify(rec, EventComplete)
}

// Heartbeat updates last_heartbeat and optional progress/status. Fails
// silently if the record is not running.
func (r *Registry) Heartbeat(runID string, progress *float64, status string) {
	r.mu.Lock()
	rec, ok := r.records[runID]
	if !ok || !rec.IsRunning() {
		r.mu.Unlock()
		return
	}
	rec.LastHeartbeat = time.Now()
	if progress != nil {
		rec.Progress = *progress
	}
	if status != "" {
		rec.StatusMessage = status
	}
	r.mu.Unlock()
	r.notify(rec, EventHeartbeat)
}

func (r *Registry) countActiveLocked() int {
	return len(r.active)
}

// SpawnTask is one unit of a batch spawn_parallel request.
type SpawnTask struct {
	ChildSession string
	Task         string
	Cleanup      CleanupPolicy
	Label        string
}

// SpawnParallel batch-registers tasks under a parent, enforcing
// max_subagent_depth and max_concurrent_subagents before creating any
// record (all-or-nothing).
func (r *Registry) SpawnParallel(parentSession string, parentDepth int, tasks []SpawnTask) ([]*SubagentRecord, error) {
	if parentDepth >= r.cfg.MaxSubagentDepth {
		return nil, errs.ErrSpawnDepthExceeded.WithSuggestion("reduce recursive subagent nesting")
	}

	r.mu.Lock()
	if r.countActiveLocked()+len(tasks) > r.cfg.MaxConcurrentSubagents {
		r.mu.Unlock()
		return nil, errs.ErrConcurrencyExceeded.WithSuggestion("await existing subagents before spawning more")
	}
	r.mu.Unlock()

	out := make([]*SubagentRecord, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, r.Register(t.ChildSession, parentSession, t.Task, t.Cleanup, t.Label, parentDepth+1))
	}
	return out, nil
}

// AwaitAll polls at pollInterval until every record reaches a terminal
// state or timeout elapses; remaining entries are marked timeout and
// included in the result
func (r *Registry) AwaitAll(runIDs []string, timeout, pollInterval time.Duration) map[string]Outcome {
	deadline := time.Now().Add(timeout)
	result := make(map[string]Outcome, len(runIDs))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		remaining := 0
		for _, id := range runIDs {
			if _, done := result[id]; done {
				continue
			}
			r.mu.Lock()
			rec, ok := r.records[id]
			r.mu.Unlock()
			if ok && rec.IsComplete() {
				result[id] = *rec.Outcome
			} else {
				remaining++
			}
		}
		if remaining == 0 {
			return result
		}
		if time.Now().After(deadline) {
			for _, id := range runIDs {
				if _, done := result[id]; !done {
					r.MarkComplete(id, OutcomeTimeout, "await_all timeout")
					result[id] = OutcomeTimeout
				}
			}
			return result
		}
		<-ticker.C
	}
}

// GetStale lists running records past the heartbeat threshold (default:
// 2x each record's own interval, via IsStale).
func (r *Registry) GetStale() []*SubagentRecord {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []*SubagentRecord
	for _, rec := range r.records {
		if rec.IsStale(now) {
			stale = append(stale, rec.clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].RunID < stale[j].RunID })
	return stale
}

// CancelStale marks every stale running record cancelled and returns the
// count. Does not kill external processes — signalling is the caller's
// responsibility
func (r *Registry) CancelStale(reason string) int {
	stale := r.GetStale()
	for _, rec := range stale {
		r.MarkComplete(rec.RunID, OutcomeCancelled, reason)
	}
	return len(stale)
}

// ListForParent returns all records spawned (directly) under the given
// parent session.
func (r *Registry) ListForParent(parentSessionID string) []*SubagentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*SubagentRecord
	for _, rec := range r.records {
		if rec.ParentSessionID == parentSessionID {
			out = append(out, rec.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

func (r *Registry) listWhere(pred func(*SubagentRecord) bool) []*SubagentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*SubagentRecord
	for _, rec := range r.records {
		if pred(rec) {
			out = append(out, rec.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

func (r *Registry) ListActive() []*SubagentRecord {
	return r.listWhere(func(rec *SubagentRecord) bool { return rec.IsRunning() })
}

func (r *Registry) ListPending() []*SubagentRecord {
	return r.listWhere(func(rec *SubagentRecord) bool { return rec.IsPending() })
}

// CleanupCompleted garbage-collects terminal records older than maxAge.
func (r *Registry) CleanupCompleted(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	r.mu.Lock()
	removed := 0
	for id, rec := range r.records {
		if rec.IsComplete() && rec.EndedAt != nil && rec.EndedAt.Before(cutoff) {
			delete(r.records, id)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 {
		r.save()
	}
	return removed
}

// ActiveCount returns the current number of running subagents, for the
// property invariant |list_active()| <= max_concurrent_subagents.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countActiveLocked()
}
