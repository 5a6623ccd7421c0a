package cache

import (
	"database/sql"
	"errors"
	"time"
)

// ErrMiss indicates no entry exists for the given (artifact_id, input_hash).
var ErrMiss = errors.New("cache: miss")

// Lookup returns the entry for (artifactID, inputHash), or ErrMiss.
// Counted toward the persisted stats hit rate — it is the cache check the
// executor makes before (re)running an artifact.
func (c *Cache) Lookup(artifactID, inputHash string) (Entry, error) {
	e, err := c.lookup(artifactID, inputHash)
	if errors.Is(err, ErrMiss) {
		c.bumpStat("misses")
	} else if err == nil {
		c.bumpStat("hits")
	}
	return e, err
}

// bumpStat increments one of the single-row cache_stats counters. column
// is a fixed literal ("hits" or "misses"), never caller input.
func (c *Cache) bumpStat(column string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, _ = c.db.Exec(`UPDATE cache_stats SET ` + column + ` = ` + column + ` + 1 WHERE id = 1`)
}

// lookup is the uncounted primitive, used by Record's internal
// clobber-check so that bookkeeping reads don't skew the reported hit
// rate.
func (c *Cache) lookup(artifactID, inputHash string) (Entry, error) {
	row := c.db.QueryRow(`
		SELECT artifact_id, input_hash, output_hash, status, goal_hash, run_id,
		       duration_ms, timestamp, model_id, invalidated_at
		FROM executions WHERE input_hash = ? AND artifact_id = ?`, inputHash, artifactID)

	var e Entry
	var outputHash, goalHash, runID, modelID sql.NullString
	var durationMS sql.NullInt64
	var ts, invalidatedAt sql.NullTime

	err := row.Scan(&e.ArtifactID, &e.InputHash, &outputHash, &e.Status, &goalHash, &runID,
		&durationMS, &ts, &modelID, &invalidatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, err
	}
	e.OutputHash = outputHash.String
	e.Provenance = Provenance{
		RunID:      runID.String,
		GoalHash:   goalHash.String,
		Timestamp:  ts.Time,
		DurationMS: durationMS.Int64,
		ModelID:    modelID.String,
	}
	if invalidatedAt.Valid {
		t := invalidatedAt.Time
		e.InvalidatedAt = &t
	}
	return e, nil
}

// Record upserts an entry, keyed by input_hash. A successful entry is
// never silently overwritten by a failed one — callers must Invalidate
// first
func (c *Cache) Record(e Entry) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if e.Status == StatusFailed {
		existing, err := c.lookup(e.ArtifactID, e.InputHash)
		if err == nil && existing.Status == StatusSuccess && existing.InvalidatedAt == nil {
			return nil // do not clobber a standing success with a failure
		}
	}

	_, err := c.db.Exec(`
		INSERT INTO executions (input_hash, artifact_id, output_hash, status, goal_hash, run_id,
		                         duration_ms, timestamp, model_id, invalidated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(input_hash) DO UPDATE SET
			artifact_id = excluded.artifact_id,
			output_hash = excluded.output_hash,
			status = excluded.status,
			goal_hash = excluded.goal_hash,
			run_id = excluded.run_id,
			duration_ms = excluded.duration_ms,
			timestamp = excluded.timestamp,
			model_id = excluded.model_id,
			invalidated_at = NULL`,
		e.InputHash, e.ArtifactID, e.OutputHash, e.Status, e.Provenance.GoalHash, e.Provenance.RunID,
		e.Provenance.DurationMS, e.Provenance.Timestamp, e.Provenance.ModelID)
	return err
}

// Invalidate timestamp-marks all entries for an artifact id; does not
// delete, for audit.
func (c *Cache) Invalidate(artifactID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.db.Exec(`UPDATE executions SET invalidated_at = ? WHERE artifact_id = ? AND invalidated_at IS NULL`,
		time.Now(), artifactID)
	return err
}

// RecordGoalExecution records which artifacts were produced by a goal.
func (c *Cache) RecordGoalExecution(goalHash string, artifactIDs []string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	for _, id := range artifactIDs {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO goal_executions (goal_hash, artifact_id) VALUES (?, ?)`, goalHash, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ArtifactsForGoal returns artifact ids produced by a given goal hash.
func (c *Cache) ArtifactsForGoal(goalHash string) ([]string, error) {
	rows, err := c.db.Query(`SELECT artifact_id FROM goal_executions WHERE goal_hash = ?`, goalHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Stats summarizes cache usage. Hits/Misses are cumulative Lookup counts
// persisted in the database, so they survive process restarts and are
// visible to a separate `cache stats` invocation.
type Stats struct {
	Entries     int
	Hits        int64
	Misses      int64
	LastUpdated time.Time
}

// HitRate returns Hits/(Hits+Misses) as a percentage, or 0 with no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *Cache) GetStats() (Stats, error) {
	var s Stats
	var ts sql.NullTime
	err := c.db.QueryRow(`SELECT COUNT(*), MAX(timestamp) FROM executions`).Scan(&s.Entries, &ts)
	if err != nil {
		return Stats{}, err
	}
	if ts.Valid {
		s.LastUpdated = ts.Time
	}
	if err := c.db.QueryRow(`SELECT hits, misses FROM cache_stats WHERE id = 1`).Scan(&s.Hits, &s.Misses); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, err
	}
	return s, nil
}
