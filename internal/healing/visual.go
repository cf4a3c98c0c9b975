package healing

import (
	"context"
	"fmt"

	"github.com/testmaster-ai/testmaster/internal/ai"
	"github.com/testmaster-ai/testmaster/internal/browser"
)

// VisualStrategy matches the failed element against the current page by
// appearance: it ships the current screenshot (plus what is known about the
// failed element) to the inference collaborator and asks for the selector of
// the visually matching element. The only strategy with an external model
// dependency; it self-excludes when no client is wired.
type VisualStrategy struct {
	driver browser.Driver
	client ai.Client
}

func NewVisualStrategy(driver browser.Driver, client ai.Client) *VisualStrategy {
	return &VisualStrategy{driver: driver, client: client}
}

func (s *VisualStrategy) Name() StrategyName {
	return StrategyVisual
}

const visualSystemPrompt = `You locate UI elements in screenshots. Respond with a single JSON object:
{"selector": "<css selector of the matching element>", "confidence": <0..1>, "reason": "<short>"}
Respond with {"selector": "", "confidence": 0} when no element matches.`

func (s *VisualStrategy) AttemptHeal(ctx context.Context, hctx *Context, cfg *Config) (*Result, error) {
	if s.driver == nil || s.client == nil {
		return nil, nil
	}

	shot, err := s.driver.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	prompt := fmt.Sprintf(
		"A test step could not find the element previously located by %q.",
		hctx.FailedLocator,
	)
	if hctx.PreviousSuccessfulLocator != "" {
		prompt += fmt.Sprintf(" It was last found via %q.", hctx.PreviousSuccessfulLocator)
	}
	if hctx.ErrorMessage != "" {
		prompt += fmt.Sprintf(" Failure: %s.", hctx.ErrorMessage)
	}
	prompt += " Find the element in the attached screenshot of the current page and return the best CSS selector for it."

	resp, err := s.client.Complete(ctx, ai.Request{
		System:    visualSystemPrompt,
		Prompt:    prompt,
		ImagePNG:  shot,
		MaxTokens: 300,
	})
	if err != nil {
		return nil, fmt.Errorf("visual inference failed: %w", err)
	}
	if resp.JSON == nil {
		return nil, nil
	}

	selector, _ := resp.JSON["selector"].(string)
	confidence, _ := resp.JSON["confidence"].(float64)
	threshold := cfg.Visual.MatchThreshold
	if threshold <= 0 {
		threshold = 0.85
	}
	if selector == "" || confidence < threshold {
		return nil, nil
	}

	// The proposed selector must still resolve on the live page.
	el, err := s.driver.FindElement(ctx, "css", selector)
	if err != nil || el == nil || !el.Visible {
		return nil, nil
	}

	reason, _ := resp.JSON["reason"].(string)
	return &Result{
		Strategy:   StrategyVisual,
		NewLocator: selector,
		Confidence: confidence,
		Metadata: map[string]any{
			"reason": reason,
		},
	}, nil
}

var _ Strategy = (*VisualStrategy)(nil)
