package memory

import (
	"database/sql"
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases and splits on non-alphanumeric runs, the same
// normalization used for both indexing and querying so terms line up.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// RebuildBM25Index recomputes the entire inverted index from the
// learnings currently in the cache. Spec.md §4.8 notes the index is
// rebuilt in bulk since learnings are additive and rebuild is cheap;
// incremental updates are not required.
func (c *Cache) RebuildBM25Index() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	rows, err := c.db.Query(`SELECT id, fact FROM learnings`)
	if err != nil {
		return err
	}
	type doc struct {
		id   string
		toks []string
	}
	var docs []doc
	for rows.Next() {
		var id, fact string
		if err := rows.Scan(&id, &fact); err != nil {
			rows.Close()
			return err
		}
		docs = append(docs, doc{id: id, toks: tokenize(fact)})
	}
	rows.Close()

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	for _, t := range []string{"bm25_index", "bm25_doc_lengths", "bm25_metadata"} {
		if _, err := tx.Exec("DELETE FROM " + t); err != nil {
			tx.Rollback()
			return err
		}
	}

	var totalLength int
	for _, d := range docs {
		tf := make(map[string]int)
		for _, tok := range d.toks {
			tf[tok]++
		}
		for term, count := range tf {
			if _, err := tx.Exec(`INSERT INTO bm25_index (term, learning_id, tf) VALUES (?, ?, ?)`, term, d.id, count); err != nil {
				tx.Rollback()
				return err
			}
		}
		if _, err := tx.Exec(`INSERT INTO bm25_doc_lengths (learning_id, length) VALUES (?, ?)`, d.id, len(d.toks)); err != nil {
			tx.Rollback()
			return err
		}
		totalLength += len(d.toks)
	}

	avgDocLength := 0.0
	if len(docs) > 0 {
		avgDocLength = float64(totalLength) / float64(len(docs))
	}
	if _, err := tx.Exec(`INSERT INTO bm25_metadata (key, value) VALUES ('avg_doc_length', ?)`, avgDocLength); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO bm25_metadata (key, value) VALUES ('total_docs', ?)`, float64(len(docs))); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// BM25Result is one scored hit from a BM25 query.
type BM25Result struct {
	Learning Learning
	Score    float64
}

// BM25QueryFast ranks learnings against query using the inverted index:
// O(sum of postings lists for query terms) rather than a full table
// scan
func (c *Cache) BM25QueryFast(query string, limit int, k1, b float64) ([]BM25Result, error) {
	meta, err := c.bm25Metadata()
	if err != nil {
		return nil, err
	}
	if meta.totalDocs == 0 {
		return nil, nil
	}

	terms := uniqueTerms(tokenize(query))
	scores := make(map[string]float64)

	for _, term := range terms {
		df, postings, err := c.postingsFor(term)
		if err != nil {
			return nil, err
		}
		if df == 0 {
			continue
		}
		idf := idfOf(meta.totalDocs, df)
		for learningID, tf := range postings {
			length, ok := meta.docLengths[learningID]
			if !ok {
				length = meta.avgDocLength
			}
			scores[learningID] += idf * termScore(float64(tf), k1, b, length, meta.avgDocLength)
		}
	}
	return c.rankAndLoad(scores, limit)
}

type bm25Meta struct {
	totalDocs    int
	avgDocLength float64
	docLengths   map[string]float64
}

func (c *Cache) bm25Metadata() (bm25Meta, error) {
	meta := bm25Meta{docLengths: make(map[string]float64)}
	rows, err := c.db.Query(`SELECT key, value FROM bm25_metadata`)
	if err != nil {
		return meta, err
	}
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return meta, err
		}
		switch key {
		case "total_docs":
			meta.totalDocs = int(value)
		case "avg_doc_length":
			meta.avgDocLength = value
		}
	}
	rows.Close()

	lenRows, err := c.db.Query(`SELECT learning_id, length FROM bm25_doc_lengths`)
	if err != nil {
		return meta, err
	}
	defer lenRows.Close()
	for lenRows.Next() {
		var id string
		var length float64
		if err := lenRows.Scan(&id, &length); err != nil {
			return meta, err
		}
		meta.docLengths[id] = length
	}
	return meta, lenRows.Err()
}

// postingsFor returns the document frequency and learning_id->tf
// postings for one term.
func (c *Cache) postingsFor(term string) (int, map[string]int, error) {
	rows, err := c.db.Query(`SELECT learning_id, tf FROM bm25_index WHERE term = ?`, term)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	postings := make(map[string]int)
	for rows.Next() {
		var id string
		var tf int
		if err := rows.Scan(&id, &tf); err != nil {
			return 0, nil, err
		}
		postings[id] = tf
	}
	return len(postings), postings, rows.Err()
}

// idfOf computes IDF = log((N - df + 0.5) / (df + 0.5) + 1)
func idfOf(totalDocs, df int) float64 {
	n, d := float64(totalDocs), float64(df)
	return math.Log((n-d+0.5)/(d+0.5) + 1)
}

func termScore(tf, k1, b, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		avgDocLength = 1
	}
	denom := tf + k1*(1-b+b*(docLength/avgDocLength))
	if denom == 0 {
		return 0
	}
	return (tf * (k1 + 1)) / denom
}

func uniqueTerms(toks []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range toks {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func (c *Cache) rankAndLoad(scores map[string]float64, limit int) ([]BM25Result, error) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	var out []BM25Result
	for _, id := range ids {
		l, err := c.getByID(id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, BM25Result{Learning: l, Score: scores[id]})
	}
	return out, nil
}

func (c *Cache) getByID(id string) (Learning, error) {
	row := c.db.QueryRow(`SELECT id, fact, category, confidence, timestamp, source_file, source_line FROM learnings WHERE id = ?`, id)
	var l Learning
	var sourceFile sql.NullString
	var sourceLine sql.NullInt64
	if err := row.Scan(&l.ID, &l.Fact, &l.Category, &l.Confidence, &l.Timestamp, &sourceFile, &sourceLine); err != nil {
		return Learning{}, err
	}
	l.SourceFile = sourceFile.String
	l.SourceLine = int(sourceLine.Int64)
	return l, nil
}

// BM25QueryNaive is the reference O(n) implementation (full scan,
// scoring every learning directly) used to validate BM25QueryFast's
// ranking in tests
func BM25QueryNaive(learnings []Learning, query string, limit int, k1, b float64) []BM25Result {
	if len(learnings) == 0 {
		return nil
	}
	terms := uniqueTerms(tokenize(query))

	docTokens := make([][]string, len(learnings))
	var totalLength int
	for i, l := range learnings {
		docTokens[i] = tokenize(l.Fact)
		totalLength += len(docTokens[i])
	}
	avgDocLength := float64(totalLength) / float64(len(learnings))

	df := make(map[string]int)
	for _, toks := range docTokens {
		present := make(map[string]bool)
		for _, tok := range toks {
			present[tok] = true
		}
		for _, term := range terms {
			if present[term] {
				df[term]++
			}
		}
	}

	var results []BM25Result
	for i, l := range learnings {
		tf := make(map[string]int)
		for _, tok := range docTokens[i] {
			tf[tok]++
		}
		var score float64
		for _, term := range terms {
			if df[term] == 0 {
				continue
			}
			idf := idfOf(len(learnings), df[term])
			score += idf * termScore(float64(tf[term]), k1, b, float64(len(docTokens[i])), avgDocLength)
		}
		if score > 0 {
			results = append(results, BM25Result{Learning: l, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Learning.ID < results[j].Learning.ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
