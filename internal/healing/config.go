package healing

import (
	"fmt"
	"time"
)

// Config controls the healing engine for one session. It is supplied whole at
// session start and never mutated mid-run.
type Config struct {
	Enabled            bool           `json:"enabled" yaml:"enabled"`
	AutoApplyThreshold float64        `json:"auto_apply_threshold" yaml:"auto_apply_threshold"`
	SuggestionMin      float64        `json:"suggestion_min" yaml:"suggestion_min"`
	SuggestionMax      float64        `json:"suggestion_max" yaml:"suggestion_max"`
	MaxHealingTime     time.Duration  `json:"max_healing_time" yaml:"max_healing_time"`
	EnabledStrategies  []StrategyName `json:"enabled_strategies" yaml:"enabled_strategies"`

	Fallback   FallbackConfig   `json:"fallback" yaml:"fallback"`
	Similarity SimilarityConfig `json:"similarity" yaml:"similarity"`
	Visual     VisualConfig     `json:"visual" yaml:"visual"`
	Historical HistoricalConfig `json:"historical" yaml:"historical"`
}

type FallbackConfig struct {
	MaxLocatorsToTry  int     `json:"max_locators_to_try" yaml:"max_locators_to_try"`
	DefaultConfidence float64 `json:"default_confidence" yaml:"default_confidence"`
}

type SimilarityConfig struct {
	MinSimilarityScore float64 `json:"min_similarity_score" yaml:"min_similarity_score"`
}

type VisualConfig struct {
	MatchThreshold float64 `json:"match_threshold" yaml:"match_threshold"`
}

type HistoricalConfig struct {
	LookbackDays    int `json:"lookback_days" yaml:"lookback_days"`
	MinSuccessCount int `json:"min_success_count" yaml:"min_success_count"`
}

// DefaultConfig returns the production defaults: auto-apply at 0.9, suggest
// between 0.7 and 0.9, a 10s budget, all four strategies enabled.
func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		AutoApplyThreshold: 0.9,
		SuggestionMin:      0.7,
		SuggestionMax:      0.9,
		MaxHealingTime:     10 * time.Second,
		EnabledStrategies: []StrategyName{
			StrategyFallback,
			StrategySimilarity,
			StrategyVisual,
			StrategyHistorical,
		},
		Fallback:   FallbackConfig{MaxLocatorsToTry: 5, DefaultConfidence: 0.75},
		Similarity: SimilarityConfig{MinSimilarityScore: 0.8},
		Visual:     VisualConfig{MatchThreshold: 0.85},
		Historical: HistoricalConfig{LookbackDays: 30, MinSuccessCount: 2},
	}
}

// Validate checks that the three confidence bands (reject / suggest /
// auto-apply) are ordered and non-overlapping and that the time budget is
// positive. Called once at config load; a config that fails here never
// reaches the coordinator.
func (c *Config) Validate() error {
	if c.SuggestionMin < 0 || c.SuggestionMin > 1 {
		return fmt.Errorf("suggestion_min must be in [0,1], got %v", c.SuggestionMin)
	}
	if c.AutoApplyThreshold < 0 || c.AutoApplyThreshold > 1 {
		return fmt.Errorf("auto_apply_threshold must be in [0,1], got %v", c.AutoApplyThreshold)
	}
	if c.SuggestionMin >= c.AutoApplyThreshold {
		return fmt.Errorf("suggestion_min (%v) must be below auto_apply_threshold (%v)", c.SuggestionMin, c.AutoApplyThreshold)
	}
	if c.SuggestionMax != 0 && c.SuggestionMax != c.AutoApplyThreshold {
		return fmt.Errorf("suggestion_max (%v) must equal auto_apply_threshold (%v)", c.SuggestionMax, c.AutoApplyThreshold)
	}
	if c.MaxHealingTime <= 0 {
		return fmt.Errorf("max_healing_time must be positive, got %v", c.MaxHealingTime)
	}
	for _, s := range c.EnabledStrategies {
		if _, ok := strategyOrder[s]; !ok {
			return fmt.Errorf("unknown healing strategy %q", s)
		}
	}
	return nil
}

// StrategyEnabled reports whether the named strategy is in the enabled set.
func (c *Config) StrategyEnabled(name StrategyName) bool {
	for _, s := range c.EnabledStrategies {
		if s == name {
			return true
		}
	}
	return false
}
