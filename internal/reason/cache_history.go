package reason

import (
	"time"

	"sunwell/internal/cache"
)

// CacheHistory persists decisions to the execution cache's decisions
// table, so the fast path survives process restarts, per SPEC_FULL.md
// §12. It wraps a *cache.Cache rather than duplicating storage.
type CacheHistory struct {
	c *cache.Cache
}

func NewCacheHistory(c *cache.Cache) *CacheHistory {
	return &CacheHistory{c: c}
}

func (h *CacheHistory) Lookup(key string) (ReasonedDecision, bool) {
	rec, err := h.c.LookupDecision(key)
	if err != nil {
		return ReasonedDecision{}, false
	}
	return ReasonedDecision{Outcome: rec.Outcome, Confidence: rec.Confidence, Rationale: rec.Rationale}, true
}

func (h *CacheHistory) Record(key string, decisionType DecisionType, d ReasonedDecision) {
	_ = h.c.SaveDecision(cache.DecisionRecord{
		ContextKey:   key,
		DecisionType: string(decisionType),
		Outcome:      d.Outcome,
		Confidence:   d.Confidence,
		Rationale:    d.Rationale,
		Timestamp:    time.Now(),
	})
}
