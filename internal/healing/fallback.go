package healing

import (
	"context"
	"fmt"
	"sort"

	"github.com/testmaster-ai/testmaster/internal/browser"
)

// FallbackStrategy walks the object's known alternate locators, cheapest
// heuristic first: if the object repository already knows another way to find
// the element, probing those beats any guessing.
type FallbackStrategy struct {
	driver browser.Driver
}

func NewFallbackStrategy(driver browser.Driver) *FallbackStrategy {
	return &FallbackStrategy{driver: driver}
}

func (s *FallbackStrategy) Name() StrategyName {
	return StrategyFallback
}

func (s *FallbackStrategy) AttemptHeal(ctx context.Context, hctx *Context, cfg *Config) (*Result, error) {
	if s.driver == nil || len(hctx.AlternateLocators) == 0 {
		return nil, nil
	}

	options := make([]LocatorOption, len(hctx.AlternateLocators))
	copy(options, hctx.AlternateLocators)
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Priority < options[j].Priority
	})

	maxTry := cfg.Fallback.MaxLocatorsToTry
	if maxTry <= 0 {
		maxTry = 5
	}
	if len(options) > maxTry {
		options = options[:maxTry]
	}

	var tried []string
	for _, opt := range options {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opt.Value == "" || opt.Value == hctx.FailedLocator {
			continue
		}
		tried = append(tried, opt.Value)

		el, err := s.driver.FindElement(ctx, string(opt.Type), opt.Value)
		if err != nil || el == nil || !el.Visible {
			continue
		}

		confidence := cfg.Fallback.DefaultConfidence
		if confidence <= 0 {
			confidence = 0.75
		}
		if opt.SuccessRate != nil {
			confidence = *opt.SuccessRate
		}
		return &Result{
			Strategy:   StrategyFallback,
			NewLocator: el.Selector,
			Confidence: confidence,
			Metadata: map[string]any{
				"reason":       fmt.Sprintf("alternate locator %q (%s) resolved to one visible element", opt.Value, opt.Type),
				"locator_type": string(opt.Type),
				"tried":        tried,
			},
		}, nil
	}
	return nil, nil
}

var _ Strategy = (*FallbackStrategy)(nil)
