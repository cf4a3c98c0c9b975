// Package config loads and validates an autonomous testing session file.
// Files are YAML, checked against an embedded JSON Schema before any field
// touches the runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/testmaster-ai/testmaster/internal/healing"
	"github.com/testmaster-ai/testmaster/internal/orchestrator"
)

// AIConfig is the inference endpoint section of a session file.
type AIConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Model     string `json:"model" yaml:"model"`
	TimeoutMS int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// StoreConfig selects the healing event store backend.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // sqlite or postgres
	DSN    string `json:"dsn" yaml:"dsn"`
}

// healingFile is the healing section as written in a session file. Times are
// milliseconds; the runtime config carries durations.
type healingFile struct {
	Enabled            *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	AutoApplyThreshold *float64 `json:"auto_apply_threshold,omitempty" yaml:"auto_apply_threshold,omitempty"`
	SuggestionMin      *float64 `json:"suggestion_min,omitempty" yaml:"suggestion_min,omitempty"`
	MaxHealingTimeMS   *int     `json:"max_healing_time_ms,omitempty" yaml:"max_healing_time_ms,omitempty"`
	Strategies         []string `json:"strategies,omitempty" yaml:"strategies,omitempty"`

	MaxLocatorsToTry   *int     `json:"max_locators_to_try,omitempty" yaml:"max_locators_to_try,omitempty"`
	MinSimilarityScore *float64 `json:"min_similarity_score,omitempty" yaml:"min_similarity_score,omitempty"`
	VisualThreshold    *float64 `json:"visual_threshold,omitempty" yaml:"visual_threshold,omitempty"`
	LookbackDays       *int     `json:"lookback_days,omitempty" yaml:"lookback_days,omitempty"`
	MinSuccessCount    *int     `json:"min_success_count,omitempty" yaml:"min_success_count,omitempty"`
}

// file is the full session file shape.
type file struct {
	TargetURL          string `json:"target_url" yaml:"target_url"`
	APIURL             string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	Depth              string `json:"depth,omitempty" yaml:"depth,omitempty"`
	AutoRegister       bool   `json:"auto_register,omitempty" yaml:"auto_register,omitempty"`
	TestRBAC           bool   `json:"test_rbac,omitempty" yaml:"test_rbac,omitempty"`
	EnableHealing      *bool  `json:"enable_healing,omitempty" yaml:"enable_healing,omitempty"`
	ParallelWorkers    int    `json:"parallel_workers,omitempty" yaml:"parallel_workers,omitempty"`
	CaptureScreenshots bool   `json:"capture_screenshots,omitempty" yaml:"capture_screenshots,omitempty"`
	OutputDir          string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Headless           *bool  `json:"headless,omitempty" yaml:"headless,omitempty"`

	Healing *healingFile `json:"healing,omitempty" yaml:"healing,omitempty"`
	AI      *AIConfig    `json:"ai,omitempty" yaml:"ai,omitempty"`
	Store   *StoreConfig `json:"store,omitempty" yaml:"store,omitempty"`

	Panels *panelsFile `json:"panels,omitempty" yaml:"panels,omitempty"`
}

type panelsFile struct {
	Landing panelFile  `json:"landing" yaml:"landing"`
	User    *panelFile `json:"user,omitempty" yaml:"user,omitempty"`
	Admin   panelFile  `json:"admin" yaml:"admin"`
}

type panelFile struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Session is the fully resolved configuration for one run.
type Session struct {
	Orchestrator orchestrator.Config
	Healing      *healing.Config
	AI           *AIConfig
	Store        *StoreConfig
	Panels       *orchestrator.MultiPanelConfig
}

// Load reads, schema-validates and resolves a session file.
func Load(path string) (*Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse resolves session YAML. Defaults are applied after schema validation,
// and the healing threshold bands are checked here so an inverted band never
// reaches the coordinator.
func Parse(raw []byte) (*Session, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	healingCfg := healing.DefaultConfig()
	if f.Healing != nil {
		applyHealing(healingCfg, f.Healing)
	}
	if err := healingCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid healing config: %w", err)
	}

	enableHealing := healingCfg.Enabled
	if f.EnableHealing != nil {
		enableHealing = *f.EnableHealing
	}
	headless := true
	if f.Headless != nil {
		headless = *f.Headless
	}
	depth := orchestrator.Depth(f.Depth)
	if depth == "" {
		depth = orchestrator.DepthShallow
	}

	s := &Session{
		Orchestrator: orchestrator.Config{
			TargetURL:          f.TargetURL,
			APIURL:             f.APIURL,
			Depth:              depth,
			AutoRegister:       f.AutoRegister,
			TestRBAC:           f.TestRBAC,
			EnableHealing:      enableHealing,
			ParallelWorkers:    f.ParallelWorkers,
			CaptureScreenshots: f.CaptureScreenshots,
			OutputDir:          f.OutputDir,
			Headless:           headless,
			Healing:            healingCfg,
		},
		Healing: healingCfg,
		AI:      f.AI,
		Store:   f.Store,
	}
	if s.Store == nil {
		s.Store = &StoreConfig{Driver: "sqlite", DSN: "file:testmaster-healing.db?_pragma=busy_timeout(5000)"}
	}
	if f.Panels != nil {
		s.Panels = &orchestrator.MultiPanelConfig{
			Landing: toPanel(f.Panels.Landing),
			Admin:   toPanel(f.Panels.Admin),
			Base:    s.Orchestrator,
		}
		if f.Panels.User != nil {
			user := toPanel(*f.Panels.User)
			s.Panels.User = &user
		}
	}
	return s, nil
}

func toPanel(p panelFile) orchestrator.PanelTarget {
	target := orchestrator.PanelTarget{Name: p.Name, URL: p.URL}
	if p.Username != "" || p.Password != "" {
		target.Credentials = &orchestrator.Credentials{Username: p.Username, Password: p.Password}
	}
	return target
}

func applyHealing(cfg *healing.Config, f *healingFile) {
	if f.Enabled != nil {
		cfg.Enabled = *f.Enabled
	}
	if f.AutoApplyThreshold != nil {
		cfg.AutoApplyThreshold = *f.AutoApplyThreshold
		cfg.SuggestionMax = *f.AutoApplyThreshold
	}
	if f.SuggestionMin != nil {
		cfg.SuggestionMin = *f.SuggestionMin
	}
	if f.MaxHealingTimeMS != nil {
		cfg.MaxHealingTime = time.Duration(*f.MaxHealingTimeMS) * time.Millisecond
	}
	if len(f.Strategies) > 0 {
		cfg.EnabledStrategies = cfg.EnabledStrategies[:0]
		for _, s := range f.Strategies {
			cfg.EnabledStrategies = append(cfg.EnabledStrategies, healing.StrategyName(s))
		}
	}
	if f.MaxLocatorsToTry != nil {
		cfg.Fallback.MaxLocatorsToTry = *f.MaxLocatorsToTry
	}
	if f.MinSimilarityScore != nil {
		cfg.Similarity.MinSimilarityScore = *f.MinSimilarityScore
	}
	if f.VisualThreshold != nil {
		cfg.Visual.MatchThreshold = *f.VisualThreshold
	}
	if f.LookbackDays != nil {
		cfg.Historical.LookbackDays = *f.LookbackDays
	}
	if f.MinSuccessCount != nil {
		cfg.Historical.MinSuccessCount = *f.MinSuccessCount
	}
}
