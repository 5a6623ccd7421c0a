package cache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const currentSchemaVersion = 1

// Status is the terminal status of a cache entry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Provenance records how an entry came to exist.
type Provenance struct {
	RunID      string
	GoalHash   string
	Timestamp  time.Time
	DurationMS int64
	ModelID    string
}

// Entry is an ExecutionCacheEntry
type Entry struct {
	ArtifactID    string
	InputHash     string
	OutputHash    string
	Status        Status
	Provenance    Provenance
	InvalidatedAt *time.Time
}

// Cache is a single-writer, multi-reader content-addressed store.
// Writes are serialized with an in-process mutex on top of the
// database's own transaction semantics
type Cache struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if necessary) a SQLite database at path in WAL
// mode and runs migrations.
func Open(path string) (*Cache, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open execution cache: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; SQLite serializes anyway
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
		`CREATE TABLE IF NOT EXISTS executions (
			input_hash TEXT PRIMARY KEY,
			artifact_id TEXT NOT NULL,
			output_hash TEXT,
			status TEXT NOT NULL,
			goal_hash TEXT,
			run_id TEXT,
			duration_ms INTEGER,
			timestamp DATETIME,
			model_id TEXT,
			invalidated_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS index_artifact_id ON executions(artifact_id)`,
		`CREATE INDEX IF NOT EXISTS index_goal_hash ON executions(goal_hash)`,
		`CREATE TABLE IF NOT EXISTS goal_executions (
			goal_hash TEXT NOT NULL,
			artifact_id TEXT NOT NULL,
			PRIMARY KEY (goal_hash, artifact_id)
		)`,
		// Decision history fast-path persistence
		`CREATE TABLE IF NOT EXISTS decisions (
			context_key TEXT PRIMARY KEY,
			decision_type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			confidence REAL NOT NULL,
			rationale TEXT,
			timestamp DATETIME
		)`,
		// Single-row hit/miss counters, persisted so `cache stats` reports
		// the real rate across separate CLI invocations rather than a
		// per-process count that always reads zero.
		`CREATE TABLE IF NOT EXISTS cache_stats (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			hits INTEGER NOT NULL DEFAULT 0,
			misses INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, s := range stmts {
		if _, err := c.db.Exec(s); err != nil {
			return fmt.Errorf("migrate execution cache: %w", err)
		}
	}
	if _, err := c.db.Exec(`INSERT OR IGNORE INTO cache_stats (id, hits, misses) VALUES (1, 0, 0)`); err != nil {
		return fmt.Errorf("migrate execution cache: %w", err)
	}
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM schema_versions`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := c.db.Exec(`INSERT INTO schema_versions (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return err
		}
	}
	return nil
}
