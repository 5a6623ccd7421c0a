package reason

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubModel struct {
	response string
	err      error
}

func (m stubModel) Complete(ctx context.Context, prompt string) (string, error) {
	return m.response, m.err
}
func (m stubModel) CompleteWithSystem(ctx context.Context, sys, user string) (string, error) {
	return m.response, m.err
}

func TestDecideUsesModelWhenConfident(t *testing.T) {
	model := stubModel{response: "high-conf"}
	parse := func(dt DecisionType, raw string) (ReasonedDecision, error) {
		return ReasonedDecision{Outcome: "escalate", Confidence: 0.95, Rationale: raw}, nil
	}
	r := New(model, parse, NewMemoryHistory(), DefaultConfig())

	d := r.Decide(context.Background(), RecoveryStrategy, "key-1", "prompt", nil)
	require.Equal(t, "escalate", d.Outcome)
	require.Equal(t, 0.95, d.Confidence)
}

func TestDecideFallsBackBelowThreshold(t *testing.T) {
	model := stubModel{response: "low-conf"}
	parse := func(dt DecisionType, raw string) (ReasonedDecision, error) {
		return ReasonedDecision{Outcome: "retry", Confidence: 0.2}, nil
	}
	r := New(model, parse, NewMemoryHistory(), DefaultConfig())
	r.RegisterRule(RecoveryStrategy, func(ctx context.Context, dt DecisionType, c map[string]any) ReasonedDecision {
		return ReasonedDecision{Outcome: "abort", Confidence: 1.0, Rationale: "rule"}
	})

	d := r.Decide(context.Background(), RecoveryStrategy, "key-2", "prompt", nil)
	require.Equal(t, "abort", d.Outcome)
}

func TestDecideFallsBackOnModelError(t *testing.T) {
	model := stubModel{err: errors.New("down")}
	r := New(model, func(DecisionType, string) (ReasonedDecision, error) { return ReasonedDecision{}, nil }, NewMemoryHistory(), DefaultConfig())
	r.RegisterRule(SeverityAssessment, func(ctx context.Context, dt DecisionType, c map[string]any) ReasonedDecision {
		return ReasonedDecision{Outcome: "high", Confidence: 1.0}
	})
	d := r.Decide(context.Background(), SeverityAssessment, "key-3", "p", nil)
	require.Equal(t, "high", d.Outcome)
}

func TestDecideConservativeDefaultWithNoModelNoRule(t *testing.T) {
	r := New(nil, nil, NewMemoryHistory(), DefaultConfig())
	d := r.Decide(context.Background(), RecoveryStrategy, "key-4", "p", nil)
	require.Equal(t, "escalate", d.Outcome)
	require.Equal(t, 0.0, d.Confidence)
}

func TestDecideFastPathReusesHighConfidenceHistory(t *testing.T) {
	history := NewMemoryHistory()
	history.Record("key-5", RecoveryStrategy, ReasonedDecision{Outcome: "retry", Confidence: 0.99})

	callCount := 0
	parse := func(dt DecisionType, raw string) (ReasonedDecision, error) {
		callCount++
		return ReasonedDecision{Outcome: "escalate", Confidence: 0.99}, nil
	}
	r := New(stubModel{response: "x"}, parse, history, DefaultConfig())

	d := r.Decide(context.Background(), RecoveryStrategy, "key-5", "p", nil)
	require.Equal(t, "retry", d.Outcome)
	require.Equal(t, 0, callCount, "model should not be called on fast path")
}
