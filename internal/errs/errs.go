// Package errs defines the Sunwell error taxonomy: a small set of kinds
// (Structural, Limit, Execution, Data, Cancellation) rather than a large
// type hierarchy, so callers can branch on Kind() instead of string
// matching or type switches.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy purposes.
type Kind string

const (
	Structural   Kind = "structural"
	Limit        Kind = "limit"
	Execution    Kind = "execution"
	Data         Kind = "data"
	Cancellation Kind = "cancellation"
)

// Code enumerates the specific error codes named in the taxonomy.
type Code string

const (
	CodeDuplicateArtifactID   Code = "DuplicateArtifactId"
	CodeCycleDetected         Code = "CycleDetected"
	CodeDanglingDependency    Code = "DanglingDependency"
	CodeFileConflict          Code = "FileConflict"
	CodeSpawnDepthExceeded    Code = "SpawnDepthExceeded"
	CodeConcurrencyExceeded   Code = "ConcurrencyLimitExceeded"
	CodeToolFailure           Code = "ToolInvocationFailure"
	CodeModelTimeout          Code = "ModelTimeout"
	CodeValidationGateFailure Code = "ValidationGateFailure"
	CodeCacheCorruption       Code = "CacheRowCorruption"
	CodeJournalMalformed      Code = "JournalEntryMalformed"
	CodePersistenceUnreadable Code = "PersistenceFileUnreadable"
	CodeCancelled             Code = "Cancelled"
	CodeTrustViolation        Code = "TrustViolation"
	CodePlanningFailure       Code = "PlanningFailure"
)

var kindByCode = map[Code]Kind{
	CodeDuplicateArtifactID:   Structural,
	CodeCycleDetected:         Structural,
	CodeDanglingDependency:    Structural,
	CodeFileConflict:          Structural,
	CodeTrustViolation:        Structural,
	CodeSpawnDepthExceeded:    Limit,
	CodeConcurrencyExceeded:   Limit,
	CodeToolFailure:           Execution,
	CodeModelTimeout:          Execution,
	CodeValidationGateFailure: Execution,
	CodePlanningFailure:       Execution,
	CodeCacheCorruption:       Data,
	CodeJournalMalformed:      Data,
	CodePersistenceUnreadable: Data,
	CodeCancelled:             Cancellation,
}

// SunwellError is the concrete error type carried through the system.
// The event bus (internal/events) renders it as a single `error` event
// keyed by kind, per spec.
type SunwellError struct {
	Code            Code
	Message         string
	ArtifactID      string
	RunID           string
	SuggestedAction string
	Cause           error
}

func (e *SunwellError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SunwellError) Unwrap() error { return e.Cause }

// Kind returns the propagation-policy kind for this error's code.
func (e *SunwellError) Kind() Kind {
	if k, ok := kindByCode[e.Code]; ok {
		return k
	}
	return Execution
}

// New constructs a SunwellError with the given code and message.
func New(code Code, message string) *SunwellError {
	return &SunwellError{Code: code, Message: message}
}

// Wrap constructs a SunwellError wrapping an underlying cause.
func Wrap(code Code, cause error, message string) *SunwellError {
	return &SunwellError{Code: code, Message: message, Cause: cause}
}

// WithArtifact attaches an artifact id for event rendering.
func (e *SunwellError) WithArtifact(id string) *SunwellError {
	e.ArtifactID = id
	return e
}

// WithRun attaches a run id for event rendering.
func (e *SunwellError) WithRun(id string) *SunwellError {
	e.RunID = id
	return e
}

// WithSuggestion attaches a suggested_action string.
func (e *SunwellError) WithSuggestion(s string) *SunwellError {
	e.SuggestedAction = s
	return e
}

// KindOf extracts the Kind of an error, defaulting to Execution for
// errors outside the taxonomy and Cancellation for context cancellation.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancellation
	}
	var se *SunwellError
	if errors.As(err, &se) {
		return se.Kind()
	}
	return Execution
}

// IsCancellation reports whether err represents expected cancellation
// flow, which the propagation policy says must not be logged as error.
func IsCancellation(err error) bool {
	return KindOf(err) == Cancellation
}

// RecoveryStrategy is the Reasoner's typed output for ExecutionErrors.
type RecoveryStrategy string

const (
	StrategyRetry          RecoveryStrategy = "retry"
	StrategyRetryDifferent RecoveryStrategy = "retry_different"
	StrategyEscalate       RecoveryStrategy = "escalate"
	StrategyAbort          RecoveryStrategy = "abort"
)

// Sentinel errors mirroring the registry/cache/planner limit conditions,
// usable with errors.Is the way a fixed set of queue-state sentinels
// (full, timeout, stopped) would be.
var (
	ErrSpawnDepthExceeded  = New(CodeSpawnDepthExceeded, "subagent spawn depth limit exceeded")
	ErrConcurrencyExceeded = New(CodeConcurrencyExceeded, "concurrent subagent limit exceeded")
	ErrCycleDetected       = New(CodeCycleDetected, "artifact graph contains a cycle")
	ErrPlanningFailure     = New(CodePlanningFailure, "no valid plan candidates were produced")
)
