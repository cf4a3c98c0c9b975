package healing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testmaster-ai/testmaster/internal/healing/store"
)

func testContext() *Context {
	return &Context{
		FailedLocator: "#old-btn",
		ObjectID:      "obj-submit",
		TestCaseID:    "tc-1",
		TestResultID:  "tr-1",
		StepIndex:     2,
		ErrorMessage:  "element not found",
	}
}

func TestHealDisabledShortCircuits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	strat := &stubStrategy{name: StrategyFallback, result: &Result{Strategy: StrategyFallback, NewLocator: "#new", Confidence: 0.99}}

	c := NewCoordinator(cfg, nil, strat)
	res, err := c.Heal(context.Background(), testContext())

	require.Nil(t, res)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, ReasonDisabled, failure.Reason)
	assert.Equal(t, int32(0), strat.calls.Load(), "no strategy should run while healing is disabled")
}

func TestHealAutoApply(t *testing.T) {
	cfg := DefaultConfig()
	strat := &stubStrategy{name: StrategyFallback, result: &Result{Strategy: StrategyFallback, NewLocator: "#new", Confidence: 0.95}}

	c := NewCoordinator(cfg, nil, strat)
	res, err := c.Heal(context.Background(), testContext())

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "#new", res.NewLocator)
	assert.True(t, res.AutoApplied)
	assert.Nil(t, res.Approved)
	assert.Contains(t, res.Metadata, "executionTimeMs")
}

func TestHealSuggestionBand(t *testing.T) {
	cfg := DefaultConfig()
	strat := &stubStrategy{name: StrategySimilarity, result: &Result{Strategy: StrategySimilarity, NewLocator: ".btn-primary", Confidence: 0.8}}

	c := NewCoordinator(cfg, nil, strat)
	res, err := c.Heal(context.Background(), testContext())

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.AutoApplied, "confidence in the suggestion band must not auto-apply")
	assert.Nil(t, res.Approved, "suggestions start pending review")
}

func TestHealRejectsBelowSuggestionMin(t *testing.T) {
	cfg := DefaultConfig()
	strat := &stubStrategy{name: StrategySimilarity, result: &Result{Strategy: StrategySimilarity, NewLocator: ".weak", Confidence: 0.5}}

	c := NewCoordinator(cfg, nil, strat)
	res, err := c.Heal(context.Background(), testContext())

	require.Nil(t, res)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNoCandidate, failure.Reason)
}

func TestHealRanksByConfidence(t *testing.T) {
	cfg := DefaultConfig()
	low := &stubStrategy{name: StrategyFallback, result: &Result{Strategy: StrategyFallback, NewLocator: "#fallback", Confidence: 0.8}}
	high := &stubStrategy{name: StrategySimilarity, result: &Result{Strategy: StrategySimilarity, NewLocator: "#similar", Confidence: 0.95}}

	c := NewCoordinator(cfg, nil, low, high)
	res, err := c.Heal(context.Background(), testContext())

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "#similar", res.NewLocator)
	assert.Equal(t, StrategySimilarity, res.Strategy)
	assert.Contains(t, res.Metadata, "runner_up_candidates")
}

func TestHealTieBreaksByStrategyOrder(t *testing.T) {
	cfg := DefaultConfig()
	similarity := &stubStrategy{name: StrategySimilarity, result: &Result{Strategy: StrategySimilarity, NewLocator: "#similar", Confidence: 0.8}}
	fallback := &stubStrategy{name: StrategyFallback, result: &Result{Strategy: StrategyFallback, NewLocator: "#fallback", Confidence: 0.8}}

	// Strategy registration order must not matter for the tie-break.
	c := NewCoordinator(cfg, nil, similarity, fallback)
	res, err := c.Heal(context.Background(), testContext())

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StrategyFallback, res.Strategy)
}

func TestHealTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHealingTime = 50 * time.Millisecond
	slow := &stubStrategy{
		name:   StrategyFallback,
		delay:  time.Second,
		result: &Result{Strategy: StrategyFallback, NewLocator: "#late", Confidence: 0.99},
	}

	c := NewCoordinator(cfg, nil, slow)
	res, err := c.Heal(context.Background(), testContext())

	require.Nil(t, res)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, ReasonTimeout, failure.Reason)
}

func TestHealDeadlineWithPartialResponses(t *testing.T) {
	// One strategy misses quickly, one never answers in time. At least one
	// strategy responded, so the failure is no_candidate, not timeout.
	cfg := DefaultConfig()
	cfg.MaxHealingTime = 50 * time.Millisecond
	miss := &stubStrategy{name: StrategyFallback}
	slow := &stubStrategy{
		name:   StrategySimilarity,
		delay:  time.Second,
		result: &Result{Strategy: StrategySimilarity, NewLocator: "#late", Confidence: 0.99},
	}

	c := NewCoordinator(cfg, nil, miss, slow)
	res, err := c.Heal(context.Background(), testContext())

	require.Nil(t, res)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNoCandidate, failure.Reason)
}

func TestHealDisabledStrategiesNotLaunched(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledStrategies = []StrategyName{StrategyFallback}
	fallback := &stubStrategy{name: StrategyFallback, result: &Result{Strategy: StrategyFallback, NewLocator: "#new", Confidence: 0.95}}
	similarity := &stubStrategy{name: StrategySimilarity, result: &Result{Strategy: StrategySimilarity, NewLocator: "#other", Confidence: 0.99}}

	c := NewCoordinator(cfg, nil, fallback, similarity)
	res, err := c.Heal(context.Background(), testContext())

	require.NoError(t, err)
	assert.Equal(t, "#new", res.NewLocator)
	assert.Equal(t, int32(1), fallback.calls.Load())
	assert.Equal(t, int32(0), similarity.calls.Load())
}

func TestHealStrategyErrorDoesNotAbort(t *testing.T) {
	cfg := DefaultConfig()
	broken := &stubStrategy{name: StrategyFallback, err: context.DeadlineExceeded}
	good := &stubStrategy{name: StrategySimilarity, result: &Result{Strategy: StrategySimilarity, NewLocator: "#good", Confidence: 0.92}}

	c := NewCoordinator(cfg, nil, broken, good)
	res, err := c.Heal(context.Background(), testContext())

	require.NoError(t, err)
	assert.Equal(t, "#good", res.NewLocator)
}

func TestHealRecordsEvent(t *testing.T) {
	cfg := DefaultConfig()
	st := store.NewMemoryStore()
	strat := &stubStrategy{name: StrategyFallback, result: &Result{Strategy: StrategyFallback, NewLocator: "#new", Confidence: 0.95}}

	c := NewCoordinator(cfg, st, strat)
	_, err := c.Heal(context.Background(), testContext())
	require.NoError(t, err)

	events, err := st.Query(context.Background(), store.Filter{TestCaseID: "tc-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "#old-btn", events[0].FailedLocator)
	assert.Equal(t, "#new", events[0].HealedLocator)
	assert.Equal(t, string(StrategyFallback), events[0].Strategy)
	assert.True(t, events[0].AutoApplied)
	assert.Nil(t, events[0].Approved)
}

func TestHealRecordsFailedAttempt(t *testing.T) {
	cfg := DefaultConfig()
	st := store.NewMemoryStore()
	miss := &stubStrategy{name: StrategyFallback}

	c := NewCoordinator(cfg, st, miss)
	_, err := c.Heal(context.Background(), testContext())
	require.Error(t, err)

	events, qerr := st.Query(context.Background(), store.Filter{TestCaseID: "tc-1"})
	require.NoError(t, qerr)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].HealedLocator)
	assert.False(t, events[0].AutoApplied)
}
