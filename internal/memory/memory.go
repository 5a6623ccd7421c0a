package memory

import "fmt"

// Memory ties the durable Journal to the queryable Cache: every write
// goes to the journal first (source of truth), then the cache, so a
// cache loss or corruption can always be repaired by replay.
type Memory struct {
	journal *Journal
	cache   *Cache
	k1, b   float64
}

// Open opens the journal and cache at the given paths and reconciles
// the cache against the journal once at startup.
func Open(journalPath, cachePath string, k1, b float64) (*Memory, error) {
	j, err := OpenJournal(journalPath)
	if err != nil {
		return nil, err
	}
	c, err := OpenCache(cachePath)
	if err != nil {
		return nil, err
	}
	m := &Memory{journal: j, cache: c, k1: k1, b: b}
	if err := m.SyncFromJournal(); err != nil {
		c.Close()
		return nil, err
	}
	return m, nil
}

func (m *Memory) Close() error { return m.cache.Close() }

// Add appends a learning to the journal, then upserts it and rebuilds
// the BM25 index. The journal write happens first: if the process dies
// before the cache update, the next SyncFromJournal call repairs it.
func (m *Memory) Add(l Learning) error {
	if err := m.journal.Append(l); err != nil {
		return fmt.Errorf("append learning: %w", err)
	}
	if err := m.cache.Insert(l); err != nil {
		return fmt.Errorf("insert learning into cache: %w", err)
	}
	return m.cache.RebuildBM25Index()
}

// AddBatch appends multiple learnings, journal first, then a single
// cache insert + index rebuild pass.
func (m *Memory) AddBatch(ls []Learning) error {
	for _, l := range ls {
		if err := m.journal.Append(l); err != nil {
			return fmt.Errorf("append learning: %w", err)
		}
	}
	if err := m.cache.InsertBatch(ls); err != nil {
		return fmt.Errorf("insert learnings into cache: %w", err)
	}
	return m.cache.RebuildBM25Index()
}

func (m *Memory) GetByCategory(category string, limit int) ([]Learning, error) {
	return m.cache.GetByCategory(category, limit)
}

func (m *Memory) GetRecent(limit int) ([]Learning, error) {
	return m.cache.GetRecent(limit)
}

func (m *Memory) GetHighConfidence(min float64, limit int) ([]Learning, error) {
	return m.cache.GetHighConfidence(min, limit)
}

func (m *Memory) SearchFacts(q string, limit int) ([]Learning, error) {
	return m.cache.SearchFacts(q, limit)
}

// BM25QueryFast ranks learnings against query using the cache's
// inverted index and this Memory's configured k1/b.
func (m *Memory) BM25QueryFast(query string, limit int) ([]BM25Result, error) {
	return m.cache.BM25QueryFast(query, limit, m.k1, m.b)
}

// Stats reports the current cache size.
func (m *Memory) Stats() (Stats, error) {
	return m.cache.GetStats()
}

// SyncFromJournal replays the journal and inserts into the cache any
// learning id the cache is missing. It is idempotent and cheap when the
// cache is already current, since Insert is an upsert.
func (m *Memory) SyncFromJournal() error {
	journaled, err := m.journal.ReadAll()
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(journaled) == 0 {
		return nil
	}

	cached, err := m.cache.AllIDs()
	if err != nil {
		return fmt.Errorf("list cached ids: %w", err)
	}

	var missing []Learning
	for _, l := range journaled {
		if !cached[l.ID] {
			missing = append(missing, l)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := m.cache.InsertBatch(missing); err != nil {
		return fmt.Errorf("sync missing learnings into cache: %w", err)
	}
	return m.cache.RebuildBM25Index()
}

// RebuildFromJournal discards the cache entirely and repopulates it
// from the journal from scratch, including a full BM25 index rebuild.
// Used when the cache is suspected corrupt rather than merely stale.
func (m *Memory) RebuildFromJournal() error {
	journaled, err := m.journal.ReadAll()
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if err := m.cache.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	if len(journaled) == 0 {
		return nil
	}
	if err := m.cache.InsertBatch(journaled); err != nil {
		return fmt.Errorf("rebuild cache from journal: %w", err)
	}
	return m.cache.RebuildBM25Index()
}
