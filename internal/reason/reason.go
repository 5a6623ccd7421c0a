// Package reason implements the Reasoner: typed, context-aware decisions
// backed by an LLM with a rule-based fallback below a confidence
// threshold.
package reason

import (
	"context"
	"sync"
)

// DecisionType is the closed set of decision types the Reasoner dispatches.
type DecisionType string

const (
	SeverityAssessment DecisionType = "severity_assessment"
	RecoveryStrategy   DecisionType = "recovery_strategy"
	SemanticApproval   DecisionType = "semantic_approval"
	AutoFixable        DecisionType = "auto_fixable"
	RootCauseAnalysis  DecisionType = "root_cause_analysis"
	RiskAssessment     DecisionType = "risk_assessment"
)

// ReasonedDecision is the parsed structured output of a model call.
type ReasonedDecision struct {
	Outcome        string
	Confidence     float64
	Rationale      string
	ContextFactors map[string]any
}

// Model is the minimal LLM surface the Reasoner needs. The model itself
// is an external collaborator reached only through this interface.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RuleFunc produces a conservative decision without the model, used as
// a fallback when confidence is low or the model call fails.
type RuleFunc func(ctx context.Context, decisionType DecisionType, context map[string]any) ReasonedDecision

// StructuredParser turns raw model output into a ReasonedDecision. The
// core treats prompt construction and response parsing as pluggable so a
// caller can supply a tool-call/JSON-schema backed implementation without
// the Reasoner depending on any concrete model SDK.
type StructuredParser func(decisionType DecisionType, raw string) (ReasonedDecision, error)

// DecisionHistory is a structural-similarity keyed store for the fast
// path in step 2 of the algorithm. Implementations may be in-memory or
// cache-backed.
type DecisionHistory interface {
	Lookup(key string) (ReasonedDecision, bool)
	Record(key string, decisionType DecisionType, d ReasonedDecision)
}

// Config tunes Reasoner behavior.
type Config struct {
	ConfidenceThreshold float64 // default 0.7
	FastPathThreshold   float64 // default 0.90
}

func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.7, FastPathThreshold: 0.90}
}

// Reasoner makes typed decisions, preferring a model call parsed into a
// structured decision, falling back to rule functions below threshold.
type Reasoner struct {
	mu      sync.Mutex
	model   Model
	parse   StructuredParser
	history DecisionHistory
	rules   map[DecisionType]RuleFunc
	cfg     Config
}

func New(model Model, parse StructuredParser, history DecisionHistory, cfg Config) *Reasoner {
	return &Reasoner{
		model:   model,
		parse:   parse,
		history: history,
		rules:   make(map[DecisionType]RuleFunc),
		cfg:     cfg,
	}
}

// RegisterRule installs the rule-based fallback for a decision type.
func (r *Reasoner) RegisterRule(t DecisionType, fn RuleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[t] = fn
}

// Decide runs the full algorithm from spec.md §4.6: fast-path reuse,
// model call, confidence-gated fallback, history recording.
func (r *Reasoner) Decide(ctx context.Context, decisionType DecisionType, historyKey, prompt string, contextData map[string]any) ReasonedDecision {
	if r.history != nil {
		if prior, ok := r.history.Lookup(historyKey); ok && prior.Confidence >= r.cfg.FastPathThreshold {
			return prior
		}
	}

	decision, ok := r.tryModel(ctx, decisionType, prompt)
	if !ok || decision.Confidence < r.cfg.ConfidenceThreshold {
		decision = r.fallback(ctx, decisionType, contextData)
	}

	if r.history != nil {
		r.history.Record(historyKey, decisionType, decision)
	}
	return decision
}

func (r *Reasoner) tryModel(ctx context.Context, decisionType DecisionType, prompt string) (ReasonedDecision, bool) {
	if r.model == nil || r.parse == nil {
		return ReasonedDecision{}, false
	}
	raw, err := r.model.Complete(ctx, prompt)
	if err != nil {
		return ReasonedDecision{}, false
	}
	decision, err := r.parse(decisionType, raw)
	if err != nil {
		return ReasonedDecision{}, false
	}
	return decision, true
}

func (r *Reasoner) fallback(ctx context.Context, decisionType DecisionType, contextData map[string]any) ReasonedDecision {
	r.mu.Lock()
	fn := r.rules[decisionType]
	r.mu.Unlock()
	if fn == nil {
		return conservativeDefault(decisionType)
	}
	return fn(ctx, decisionType, contextData)
}

// conservativeDefault is returned when no model and no rule are
// available("below threshold,
// callers should escalate or downgrade to a conservative default").
func conservativeDefault(decisionType DecisionType) ReasonedDecision {
	switch decisionType {
	case SeverityAssessment:
		return ReasonedDecision{Outcome: "medium", Confidence: 0, Rationale: "no model or rule available"}
	case RecoveryStrategy:
		return ReasonedDecision{Outcome: "escalate", Confidence: 0, Rationale: "no model or rule available"}
	default:
		return ReasonedDecision{Outcome: "unknown", Confidence: 0, Rationale: "no model or rule available"}
	}
}
