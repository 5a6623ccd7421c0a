package events

import (
	"path/filepath"
	"strings"
)

// ToolCallRecord captures one tool invocation observed on the bus.
type ToolCallRecord struct {
	Name    string
	Args    map[string]any
	Success bool
}

// FileChange captures one file-modifying event observed on the bus.
type FileChange struct {
	Path   string
	Action string
}

// GateResult captures a validation gate pass/fail event.
type GateResult struct {
	GateType string
	Passed   bool
}

// ReliabilityIssue captures a reliability_warning/reliability_hallucination event.
type ReliabilityIssue struct {
	Type    string
	Message string
}

// TurnSnapshot is an immutable archive of everything observed during one
// turn, plus derived structured views
type TurnSnapshot struct {
	TurnID      int
	Events      []AgentEvent
	ToolCalls   []ToolCallRecord
	FileChanges []FileChange
	Gates       []GateResult
	Reliability []ReliabilityIssue
	Outputs     []string
}

// JourneyRecorder subscribes to a Bus and accumulates per-turn snapshots
// for the journey test harness's assertion API.
type JourneyRecorder struct {
	current  TurnSnapshot
	history  []TurnSnapshot
	turnSeq  int
	unsub    func()
}

// Attach subscribes the recorder to bus and begins collecting turn 0.
func Attach(bus *Bus) *JourneyRecorder {
	jr := &JourneyRecorder{}
	jr.unsub = bus.Subscribe(jr.observe)
	return jr
}

// Detach unsubscribes the recorder from its bus.
func (jr *JourneyRecorder) Detach() {
	if jr.unsub != nil {
		jr.unsub()
	}
}

func (jr *JourneyRecorder) observe(ev AgentEvent) {
	jr.current.Events = append(jr.current.Events, ev)
	jr.current.TurnID = ev.TurnID

	switch ev.Type {
	case TypeToolStart, TypeToolComplete, TypeToolError:
		name, _ := ev.Data["tool_name"].(string)
		args, _ := ev.Data["args"].(map[string]any)
		jr.current.ToolCalls = append(jr.current.ToolCalls, ToolCallRecord{
			Name:    name,
			Args:    args,
			Success: ev.Type == TypeToolComplete,
		})
	case TypeArtifactHashComputed, TypeArtifactCacheMiss:
		if path, ok := ev.Data["path"].(string); ok {
			jr.current.FileChanges = append(jr.current.FileChanges, FileChange{Path: path, Action: string(ev.Type)})
		}
	case TypeGatePass, TypeGateFail:
		gateType, _ := ev.Data["gate_type"].(string)
		jr.current.Gates = append(jr.current.Gates, GateResult{GateType: gateType, Passed: ev.Type == TypeGatePass})
	case TypeReliabilityWarning, TypeReliabilityHallucination:
		msg, _ := ev.Data["message"].(string)
		jr.current.Reliability = append(jr.current.Reliability, ReliabilityIssue{Type: string(ev.Type), Message: msg})
	case TypeModelComplete, TypeTaskComplete, TypeComplete:
		if out, ok := ev.Data["output"].(string); ok {
			jr.current.Outputs = append(jr.current.Outputs, out)
		}
	}
}

// NewTurn archives the current turn into an immutable TurnSnapshot and
// resets collection state for the next turn.
func (jr *JourneyRecorder) NewTurn() TurnSnapshot {
	snap := jr.current
	jr.history = append(jr.history, snap)
	jr.turnSeq++
	jr.current = TurnSnapshot{TurnID: jr.turnSeq}
	return snap
}

// History returns all archived turn snapshots.
func (jr *JourneyRecorder) History() []TurnSnapshot {
	return append([]TurnSnapshot(nil), jr.history...)
}

// Current returns the in-progress (not yet archived) turn.
func (jr *JourneyRecorder) Current() TurnSnapshot {
	return jr.current
}

// --- Assertion API ---

// HasToolCall reports whether the snapshot observed a call to the named tool.
func (s TurnSnapshot) HasToolCall(name string) bool {
	for _, c := range s.ToolCalls {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ToolCallArgsMatch reports whether some call to name matches partialArgs,
// where string values in partialArgs may use glob patterns (via
// filepath.Match) against the corresponding recorded argument.
func (s TurnSnapshot) ToolCallArgsMatch(name string, partialArgs map[string]any) bool {
	for _, c := range s.ToolCalls {
		if c.Name != name {
			continue
		}
		if argsMatch(c.Args, partialArgs) {
			return true
		}
	}
	return false
}

func argsMatch(actual, partial map[string]any) bool {
	for k, want := range partial {
		got, ok := actual[k]
		if !ok {
			return false
		}
		wantStr, wIsStr := want.(string)
		gotStr, gIsStr := got.(string)
		if wIsStr && gIsStr {
			if ok, _ := filepath.Match(wantStr, gotStr); !ok && wantStr != gotStr {
				return false
			}
			continue
		}
		if want != got {
			return false
		}
	}
	return true
}

// HasFileChange reports whether a file change matches pattern (glob) or
// an exact path.
func (s TurnSnapshot) HasFileChange(pattern string) bool {
	for _, fc := range s.FileChanges {
		if fc.Path == pattern {
			return true
		}
		if ok, _ := filepath.Match(pattern, fc.Path); ok {
			return true
		}
	}
	return false
}

// OutputContains reports whether any recorded output contains substr.
func (s TurnSnapshot) OutputContains(substr string) bool {
	for _, o := range s.Outputs {
		if strings.Contains(o, substr) {
			return true
		}
	}
	return false
}

// ValidationPassed reports whether a gate of the given type (or any gate
// if gateType is empty) passed.
func (s TurnSnapshot) ValidationPassed(gateType string) bool {
	for _, g := range s.Gates {
		if gateType == "" || g.GateType == gateType {
			if g.Passed {
				return true
			}
		}
	}
	return false
}

// HasReliabilityIssue reports whether a reliability issue of the given
// type (or any, if empty) was recorded.
func (s TurnSnapshot) HasReliabilityIssue(issueType string) bool {
	for _, r := range s.Reliability {
		if issueType == "" || r.Type == issueType {
			return true
		}
	}
	return false
}
