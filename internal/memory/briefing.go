package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BriefingStatus is the closed set of Briefing.status values
type BriefingStatus string

const (
	StatusReady      BriefingStatus = "ready"
	StatusInProgress BriefingStatus = "in_progress"
	StatusBlocked    BriefingStatus = "blocked"
	StatusComplete   BriefingStatus = "complete"
)

// maxHotFiles bounds Briefing.hot_files to the most-recently-modified
// files rather than letting the list grow without bound across a run.
const maxHotFiles = 20

// Briefing is the rolling project snapshot:
// created on the first goal, updated at the end of each execution
// wave, and overwritten atomically (write-temp, rename).
type Briefing struct {
	Mission    string         `json:"mission"`
	Status     BriefingStatus `json:"status"`
	Progress   float64        `json:"progress"`
	LastAction string         `json:"last_action"`
	NextAction string         `json:"next_action"`
	Hazards    []string       `json:"hazards"`
	Blockers   []string       `json:"blockers"`
	HotFiles   []string       `json:"hot_files"`
	GoalHash   string         `json:"goal_hash"`
	SessionID  string         `json:"session_id"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewBriefing creates the initial briefing for a freshly planned goal.
func NewBriefing(mission, goalHash, sessionID string) *Briefing {
	return &Briefing{
		Mission:   mission,
		Status:    StatusReady,
		GoalHash:  goalHash,
		SessionID: sessionID,
		UpdatedAt: time.Now(),
	}
}

// RecordWave folds one completed execution wave's results into the
// briefing: progress, last/next action, and hot files. modifiedFiles
// are pushed to the front of hot_files, most-recent-first, deduped and
// bounded to maxHotFiles.
func (b *Briefing) RecordWave(progress float64, lastAction, nextAction string, modifiedFiles []string) {
	b.Progress = progress
	b.LastAction = lastAction
	b.NextAction = nextAction
	b.UpdatedAt = time.Now()

	if progress >= 1.0 {
		b.Status = StatusComplete
	} else if b.Status == StatusReady {
		b.Status = StatusInProgress
	}

	seen := make(map[string]bool, len(modifiedFiles)+len(b.HotFiles))
	merged := make([]string, 0, len(modifiedFiles)+len(b.HotFiles))
	for _, f := range modifiedFiles {
		if seen[f] {
			continue
		}
		seen[f] = true
		merged = append(merged, f)
	}
	for _, f := range b.HotFiles {
		if seen[f] {
			continue
		}
		seen[f] = true
		merged = append(merged, f)
	}
	if len(merged) > maxHotFiles {
		merged = merged[:maxHotFiles]
	}
	b.HotFiles = merged
}

// AddHazard appends a hazard if it is not already present.
func (b *Briefing) AddHazard(hazard string) {
	for _, h := range b.Hazards {
		if h == hazard {
			return
		}
	}
	b.Hazards = append(b.Hazards, hazard)
}

// Block marks the briefing blocked with a reason tracked as a blocker.
func (b *Briefing) Block(reason string) {
	b.Status = StatusBlocked
	for _, blk := range b.Blockers {
		if blk == reason {
			return
		}
	}
	b.Blockers = append(b.Blockers, reason)
	b.UpdatedAt = time.Now()
}

// Unblock clears blocked status once every blocker has been resolved.
func (b *Briefing) Unblock(resolved string) {
	var remaining []string
	for _, blk := range b.Blockers {
		if blk != resolved {
			remaining = append(remaining, blk)
		}
	}
	b.Blockers = remaining
	if len(b.Blockers) == 0 && b.Status == StatusBlocked {
		b.Status = StatusInProgress
	}
}

// SaveBriefing writes b to path via write-temp-then-rename so readers
// never observe a partial file/§5.
func SaveBriefing(path string, b *Briefing) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create briefing directory: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal briefing: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write briefing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename briefing temp file: %w", err)
	}
	return nil
}

// LoadBriefing reads a briefing from path, returning (nil, nil) if it
// does not exist yet (no goal planned for this workspace).
func LoadBriefing(path string) (*Briefing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read briefing: %w", err)
	}
	var b Briefing
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse briefing: %w", err)
	}
	return &b, nil
}
