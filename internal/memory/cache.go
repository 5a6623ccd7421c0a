// Cache is the SQLite-backed query tier (learnings, entities, BM25
// index), versioned with the same schema-migration discipline the
// execution cache uses. It uses modernc.org/sqlite (pure Go, no cgo)
// rather than the execution cache's mattn/go-sqlite3, since this
// secondary store has no reason to pay the cgo build cost.
package memory

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const cacheSchemaVersion = 1

// Cache is the queryable tier over the append-only Journal: SQLite
// tables for learnings, entities, and the BM25 inverted index.
type Cache struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// OpenCache opens (creating if necessary) the learning cache database
// and runs migrations.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_versions (version INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS learnings (
			id TEXT PRIMARY KEY,
			fact TEXT NOT NULL,
			category TEXT NOT NULL,
			confidence REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			source_file TEXT,
			source_line INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS index_learnings_category ON learnings(category)`,
		`CREATE INDEX IF NOT EXISTS index_learnings_timestamp ON learnings(timestamp)`,
		`CREATE INDEX IF NOT EXISTS index_learnings_confidence ON learnings(confidence)`,
		`CREATE TABLE IF NOT EXISTS entities (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS learning_entities (
			learning_id TEXT NOT NULL,
			entity_name TEXT NOT NULL,
			PRIMARY KEY (learning_id, entity_name)
		)`,
		`CREATE TABLE IF NOT EXISTS bm25_index (
			term TEXT NOT NULL,
			learning_id TEXT NOT NULL,
			tf INTEGER NOT NULL,
			PRIMARY KEY (term, learning_id)
		)`,
		`CREATE INDEX IF NOT EXISTS index_bm25_term ON bm25_index(term)`,
		`CREATE TABLE IF NOT EXISTS bm25_doc_lengths (
			learning_id TEXT PRIMARY KEY,
			length INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bm25_metadata (
			key TEXT PRIMARY KEY,
			value REAL NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := c.db.Exec(s); err != nil {
			return fmt.Errorf("migrate memory cache: %w", err)
		}
	}
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM schema_versions`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := c.db.Exec(`INSERT INTO schema_versions (version) VALUES (?)`, cacheSchemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// Insert upserts a learning row. Entities are extracted from the fact
// text (capitalized-word heuristic) and linked for future entity-based
// queries.
func (c *Cache) Insert(l Learning) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.insertLocked(l)
}

func (c *Cache) insertLocked(l Learning) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO learnings (id, fact, category, confidence, timestamp, source_file, source_line)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fact = excluded.fact,
			category = excluded.category,
			confidence = excluded.confidence,
			timestamp = excluded.timestamp,
			source_file = excluded.source_file,
			source_line = excluded.source_line`,
		l.ID, l.Fact, l.Category, l.Confidence, l.Timestamp, l.SourceFile, l.SourceLine); err != nil {
		tx.Rollback()
		return err
	}
	for _, ent := range extractEntities(l.Fact) {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO entities (name) VALUES (?)`, ent); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO learning_entities (learning_id, entity_name) VALUES (?, ?)`, l.ID, ent); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// InsertBatch inserts multiple learnings in a single pass.
func (c *Cache) InsertBatch(ls []Learning) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, l := range ls {
		if err := c.insertLocked(l); err != nil {
			return err
		}
	}
	return nil
}

// GetByCategory returns up to limit learnings in a category, most
// recent first.
func (c *Cache) GetByCategory(category string, limit int) ([]Learning, error) {
	return c.query(`SELECT id, fact, category, confidence, timestamp, source_file, source_line
		FROM learnings WHERE category = ? ORDER BY timestamp DESC LIMIT ?`, category, limit)
}

// GetRecent returns up to limit learnings, most recent first.
func (c *Cache) GetRecent(limit int) ([]Learning, error) {
	return c.query(`SELECT id, fact, category, confidence, timestamp, source_file, source_line
		FROM learnings ORDER BY timestamp DESC LIMIT ?`, limit)
}

// GetHighConfidence returns up to limit learnings with confidence >= min,
// highest confidence first.
func (c *Cache) GetHighConfidence(min float64, limit int) ([]Learning, error) {
	return c.query(`SELECT id, fact, category, confidence, timestamp, source_file, source_line
		FROM learnings WHERE confidence >= ? ORDER BY confidence DESC LIMIT ?`, min, limit)
}

// SearchFacts does a simple substring match over fact text.
func (c *Cache) SearchFacts(q string, limit int) ([]Learning, error) {
	return c.query(`SELECT id, fact, category, confidence, timestamp, source_file, source_line
		FROM learnings WHERE fact LIKE ? ORDER BY timestamp DESC LIMIT ?`, "%"+q+"%", limit)
}

func (c *Cache) query(query string, args ...any) ([]Learning, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Learning
	for rows.Next() {
		var l Learning
		var sourceFile sql.NullString
		var sourceLine sql.NullInt64
		var ts time.Time
		if err := rows.Scan(&l.ID, &l.Fact, &l.Category, &l.Confidence, &ts, &sourceFile, &sourceLine); err != nil {
			return nil, err
		}
		l.Timestamp = ts
		l.SourceFile = sourceFile.String
		l.SourceLine = int(sourceLine.Int64)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Count returns the number of cached learnings.
func (c *Cache) Count() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM learnings`).Scan(&n)
	return n, err
}

// AllIDs returns every learning id currently in the cache, for the
// consistency check against the journal.
func (c *Cache) AllIDs() (map[string]bool, error) {
	rows, err := c.db.Query(`SELECT id FROM learnings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Clear deletes all cache rows (used by RebuildFromJournal), leaving
// the schema intact.
func (c *Cache) Clear() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, t := range []string{"learnings", "entities", "learning_entities", "bm25_index", "bm25_doc_lengths", "bm25_metadata"} {
		if _, err := c.db.Exec("DELETE FROM " + t); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes cache usage: entry count and latest entry timestamp.
// Unlike the execution cache's stats it has no hit/miss counters.
type Stats struct {
	Entries     int
	LastUpdated time.Time
}

func (c *Cache) GetStats() (Stats, error) {
	var s Stats
	var ts sql.NullTime
	err := c.db.QueryRow(`SELECT COUNT(*), MAX(timestamp) FROM learnings`).Scan(&s.Entries, &ts)
	if err != nil {
		return Stats{}, err
	}
	if ts.Valid {
		s.LastUpdated = ts.Time
	}
	return s, nil
}
