package healing

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/testmaster-ai/testmaster/internal/healing/store"
)

// Coordinator runs the enabled strategies against a failure context, ranks
// whatever they return, applies the auto-apply/suggest/reject policy and
// records the outcome.
type Coordinator struct {
	config     *Config
	strategies []Strategy
	events     store.Store
}

// NewCoordinator wires a coordinator. Strategies are invoked in the order
// given; callers pass them in the canonical FALLBACK, SIMILARITY, VISUAL,
// HISTORICAL order. events may be nil in which case outcomes are not
// persisted.
func NewCoordinator(cfg *Config, events store.Store, strategies ...Strategy) *Coordinator {
	return &Coordinator{
		config:     cfg,
		strategies: strategies,
		events:     events,
	}
}

// Heal attempts to find a replacement for the failed locator in hctx. On
// success the returned Result is classified (AutoApplied set per the
// confidence bands); otherwise the error is a *Failure carrying the reason.
func (c *Coordinator) Heal(ctx context.Context, hctx *Context) (*Result, error) {
	if !c.config.Enabled {
		return nil, &Failure{Reason: ReasonDisabled}
	}

	started := time.Now()
	budget := c.config.MaxHealingTime
	if budget <= 0 {
		budget = 10 * time.Second
	}
	healCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type attempt struct {
		name   StrategyName
		result *Result
	}
	resultCh := make(chan attempt, len(c.strategies))

	launched := 0
	for _, strat := range c.strategies {
		if !c.config.StrategyEnabled(strat.Name()) {
			continue
		}
		launched++
		go func(strat Strategy) {
			res, err := strat.AttemptHeal(healCtx, hctx, c.config)
			if err != nil {
				// A strategy miss, even a noisy one, never stops the others.
				slog.Debug("healing strategy miss",
					"strategy", strat.Name(),
					"failed_locator", hctx.FailedLocator,
					"error", err)
				res = nil
			}
			resultCh <- attempt{name: strat.Name(), result: res}
		}(strat)
	}
	if launched == 0 {
		failure := &Failure{Reason: ReasonNoCandidate}
		c.record(ctx, hctx, nil, started)
		return nil, failure
	}

	// Wait for everything or the deadline, whichever is first; late
	// strategies are abandoned and their results ignored.
	var results []*Result
	received := 0
collect:
	for received < launched {
		select {
		case att := <-resultCh:
			received++
			if att.result != nil && att.result.NewLocator != "" {
				results = append(results, att.result)
			}
		case <-healCtx.Done():
			break collect
		}
	}

	timedOut := healCtx.Err() != nil && received < launched

	// Discard rejects, rank by confidence, tie-break by strategy order.
	usable := results[:0]
	for _, r := range results {
		if r.Confidence >= c.config.SuggestionMin {
			usable = append(usable, r)
		}
	}
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Confidence != usable[j].Confidence {
			return usable[i].Confidence > usable[j].Confidence
		}
		return strategyOrder[usable[i].Strategy] < strategyOrder[usable[j].Strategy]
	})

	if len(usable) == 0 {
		reason := ReasonNoCandidate
		if timedOut && received == 0 {
			reason = ReasonTimeout
		}
		c.record(ctx, hctx, nil, started)
		return nil, &Failure{Reason: reason}
	}

	chosen := *usable[0]
	if chosen.Metadata == nil {
		chosen.Metadata = make(map[string]any)
	}
	chosen.Metadata["executionTimeMs"] = time.Since(started).Milliseconds()
	if len(usable) > 1 {
		var runnersUp []map[string]any
		for _, r := range usable[1:] {
			runnersUp = append(runnersUp, map[string]any{
				"strategy":   string(r.Strategy),
				"locator":    r.NewLocator,
				"confidence": r.Confidence,
			})
		}
		chosen.Metadata["runner_up_candidates"] = runnersUp
	}

	chosen.AutoApplied = chosen.Confidence >= c.config.AutoApplyThreshold
	chosen.Approved = nil

	c.record(ctx, hctx, &chosen, started)

	slog.Info("locator healed",
		"strategy", chosen.Strategy,
		"failed_locator", hctx.FailedLocator,
		"new_locator", chosen.NewLocator,
		"confidence", chosen.Confidence,
		"auto_applied", chosen.AutoApplied)
	return &chosen, nil
}

// record persists the outcome of a healing attempt, successful or not. A
// persistence failure must never reverse the decision already made for the
// in-flight step, so it is only logged.
func (c *Coordinator) record(ctx context.Context, hctx *Context, res *Result, started time.Time) {
	if c.events == nil {
		return
	}

	ev := &store.Event{
		TestResultID:  hctx.TestResultID,
		TestCaseID:    hctx.TestCaseID,
		ObjectID:      hctx.ObjectID,
		StepIndex:     hctx.StepIndex,
		FailedLocator: hctx.FailedLocator,
	}
	if res != nil {
		ev.HealedLocator = res.NewLocator
		ev.Strategy = string(res.Strategy)
		ev.Confidence = res.Confidence
		ev.AutoApplied = res.AutoApplied
		ev.Metadata = res.Metadata
	} else {
		ev.Metadata = map[string]any{
			"executionTimeMs": time.Since(started).Milliseconds(),
			"error_message":   hctx.ErrorMessage,
		}
	}

	// The healing deadline may already be spent; give the write its own
	// small budget.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := c.events.Save(saveCtx, ev); err != nil {
		slog.Error("failed to persist healing event",
			"test_case_id", hctx.TestCaseID,
			"failed_locator", hctx.FailedLocator,
			"error", err)
	}
}
