package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Journal is the append-only JSONL source of truth for learnings. All
// writes go through an OS-level advisory lock (see journal_flock_*.go)
// so two sunwell processes sharing a workspace don't interleave
// partial lines.
type Journal struct {
	mu   sync.Mutex
	path string
}

// OpenJournal ensures the journal's parent directory exists and
// returns a handle to it. The file itself is created lazily on first
// Append.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	return &Journal{path: path}, nil
}

// Append writes one learning as a single JSON line, holding an
// exclusive advisory lock for the duration of the write.
func (j *Journal) Append(l Learning) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	defer unlock(f)

	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal learning: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return f.Sync()
}

// ReadAll replays the journal, applying the duplicate-id merge
// invariant (highest confidence wins, earliest timestamp retained) and
// returning entries in first-seen order.
func (j *Journal) ReadAll() ([]Learning, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if err := lockShared(f); err != nil {
		return nil, fmt.Errorf("lock journal: %w", err)
	}
	defer unlock(f)

	byID := make(map[string]Learning)
	var order []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var l Learning
		if err := json.Unmarshal(line, &l); err != nil {
			continue // tolerate a truncated trailing line from a crash mid-append
		}
		if existing, ok := byID[l.ID]; ok {
			byID[l.ID] = mergePreferring(existing, l)
			continue
		}
		byID[l.ID] = l
		order = append(order, l.ID)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	out := make([]Learning, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}
