package healing

import (
	"context"
	"fmt"
	"time"

	"github.com/testmaster-ai/testmaster/internal/healing/store"
)

// HistoricalStrategy replays past decisions: if this locator (or object) has
// been healed successfully before, the most recent replacement is proposed
// again with the pair's historical success rate as confidence. It consumes
// the same event store the coordinator writes to, so every successful heal
// becomes training data for the next one.
type HistoricalStrategy struct {
	store store.Store
}

func NewHistoricalStrategy(st store.Store) *HistoricalStrategy {
	return &HistoricalStrategy{store: st}
}

func (s *HistoricalStrategy) Name() StrategyName {
	return StrategyHistorical
}

func (s *HistoricalStrategy) AttemptHeal(ctx context.Context, hctx *Context, cfg *Config) (*Result, error) {
	if s.store == nil {
		return nil, nil
	}

	lookback := cfg.Historical.LookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	minSuccess := cfg.Historical.MinSuccessCount
	if minSuccess <= 0 {
		minSuccess = 2
	}

	events, err := s.store.Query(ctx, store.Filter{
		FailedLocator: hctx.FailedLocator,
		ObjectID:      hctx.ObjectID,
		Since:         time.Now().UTC().AddDate(0, 0, -lookback),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query healing history: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	// Events come back newest first; count outcomes per replacement locator
	// and remember the most recent success.
	type pairStats struct {
		successes int
		attempts  int
		lastSeen  time.Time
	}
	stats := make(map[string]*pairStats)
	for i := range events {
		ev := &events[i]
		if ev.HealedLocator == "" {
			continue
		}
		ps, ok := stats[ev.HealedLocator]
		if !ok {
			ps = &pairStats{}
			stats[ev.HealedLocator] = ps
		}
		ps.attempts++
		if ev.Succeeded() {
			ps.successes++
			if ev.CreatedAt.After(ps.lastSeen) {
				ps.lastSeen = ev.CreatedAt
			}
		}
	}

	var (
		bestLocator string
		best        *pairStats
	)
	for locator, ps := range stats {
		if ps.successes < minSuccess {
			continue
		}
		if best == nil || ps.lastSeen.After(best.lastSeen) {
			bestLocator, best = locator, ps
		}
	}
	if best == nil {
		return nil, nil
	}

	confidence := float64(best.successes) / float64(best.attempts)
	return &Result{
		Strategy:   StrategyHistorical,
		NewLocator: bestLocator,
		Confidence: confidence,
		Metadata: map[string]any{
			"reason":         fmt.Sprintf("%d prior successful heals of this locator in the last %d days", best.successes, lookback),
			"prior_attempts": best.attempts,
		},
	}, nil
}

var _ Strategy = (*HistoricalStrategy)(nil)
