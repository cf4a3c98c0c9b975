package healing

import "context"

// Strategy is one pluggable healing heuristic. A nil result with a nil error
// means the strategy found nothing; that is an expected outcome, not a
// failure. Strategies must honor ctx cancellation; the coordinator enforces
// the session's healing time budget through it.
type Strategy interface {
	Name() StrategyName
	AttemptHeal(ctx context.Context, hctx *Context, cfg *Config) (*Result, error)
}
