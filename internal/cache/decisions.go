package cache

import (
	"database/sql"
	"errors"
	"time"
)

// DecisionRecord persists a Reasoner fast-path decision, SPEC_FULL.md
// §12 ("Decision history fast-path persistence"), grounded on the
// teacher's learning.go confidence-scored upsert.
type DecisionRecord struct {
	ContextKey   string
	DecisionType string
	Outcome      string
	Confidence   float64
	Rationale    string
	Timestamp    time.Time
}

func (c *Cache) SaveDecision(d DecisionRecord) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.db.Exec(`
		INSERT INTO decisions (context_key, decision_type, outcome, confidence, rationale, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_key) DO UPDATE SET
			outcome = excluded.outcome,
			confidence = excluded.confidence,
			rationale = excluded.rationale,
			timestamp = excluded.timestamp`,
		d.ContextKey, d.DecisionType, d.Outcome, d.Confidence, d.Rationale, d.Timestamp)
	return err
}

func (c *Cache) LookupDecision(contextKey string) (DecisionRecord, error) {
	row := c.db.QueryRow(`SELECT context_key, decision_type, outcome, confidence, rationale, timestamp
		FROM decisions WHERE context_key = ?`, contextKey)
	var d DecisionRecord
	err := row.Scan(&d.ContextKey, &d.DecisionType, &d.Outcome, &d.Confidence, &d.Rationale, &d.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return DecisionRecord{}, ErrMiss
	}
	return d, err
}
