package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/testmaster-ai/testmaster/internal/ai"
	"github.com/testmaster-ai/testmaster/internal/browser"
	"github.com/testmaster-ai/testmaster/internal/config"
	"github.com/testmaster-ai/testmaster/internal/healing"
	"github.com/testmaster-ai/testmaster/internal/healing/store"
	"github.com/testmaster-ai/testmaster/internal/orchestrator"
)

// NewRunCmd creates a new run command
func NewRunCmd() *cobra.Command {
	var target string
	var depth string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "run [session.yaml]",
		Short: "Run an autonomous testing session",
		Long: `Run an autonomous testing session against a target application.
The session discovers the application, generates tests, executes them with
self-healing locators, analyzes failures and writes a report.

Examples:
  testmaster run session.yaml            # Run a session file
  testmaster run --target http://localhost:3000   # Quick run with defaults`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := resolveSession(args, target, depth, outputDir)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), sess)
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "Target URL (runs with defaults, no session file needed)")
	cmd.Flags().StringVarP(&depth, "depth", "d", "", "Exploration depth: shallow, deep or exhaustive")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for report artifacts")

	return cmd
}

func resolveSession(args []string, target, depth, outputDir string) (*config.Session, error) {
	var sess *config.Session
	var err error

	switch {
	case len(args) == 1:
		sess, err = config.Load(args[0])
		if err != nil {
			return nil, err
		}
	case target != "":
		healingCfg := healing.DefaultConfig()
		sess = &config.Session{
			Orchestrator: orchestrator.Config{
				TargetURL:     target,
				Depth:         orchestrator.DepthShallow,
				EnableHealing: true,
				Headless:      true,
				Healing:       healingCfg,
			},
			Healing: healingCfg,
			Store:   &config.StoreConfig{Driver: "sqlite", DSN: "file:testmaster-healing.db?_pragma=busy_timeout(5000)"},
		}
	default:
		return nil, fmt.Errorf("please specify a session file or --target URL")
	}

	// Flag overrides apply after the file so a session can be re-run with a
	// different depth without editing it.
	if depth != "" {
		sess.Orchestrator.Depth = orchestrator.Depth(depth)
	}
	if outputDir != "" {
		sess.Orchestrator.OutputDir = outputDir
	}
	return sess, nil
}

func runSession(ctx context.Context, sess *config.Session) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, sess.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	aiClient := buildAIClient(sess.AI)
	if aiClient == nil {
		Logger.Info("no AI endpoint configured, visual healing and failure analysis disabled")
	}

	newDriver := func(ctx context.Context) (browser.Driver, error) {
		opts := browser.DefaultOptions()
		opts.Headless = sess.Orchestrator.Headless
		return browser.NewChromeDriver(ctx, opts)
	}

	healingCfg := sess.Healing
	newHealer := func(driver browser.Driver) orchestrator.Healer {
		return healing.NewCoordinator(healingCfg, st,
			healing.NewFallbackStrategy(driver),
			healing.NewSimilarityStrategy(driver),
			healing.NewVisualStrategy(driver, aiClient),
			healing.NewHistoricalStrategy(st),
		)
	}

	opts := []orchestrator.Option{
		orchestrator.WithHealerFactory(newHealer),
		orchestrator.WithProgress(printProgress),
	}
	if aiClient != nil {
		opts = append(opts, orchestrator.WithAIClient(aiClient))
	}

	start := time.Now()
	if sess.Panels != nil {
		mp := orchestrator.NewMultiPanel(*sess.Panels, newDriver, opts...)
		report, err := mp.Run(ctx)
		if err != nil {
			return err
		}
		printMultiPanelSummary(report, time.Since(start))
		return nil
	}

	orch := orchestrator.New(sess.Orchestrator, newDriver, opts...)
	report, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(report, time.Since(start))
	return nil
}

func openStore(ctx context.Context, cfg *config.StoreConfig) (store.Store, func(), error) {
	if cfg == nil || cfg.Driver == "" || cfg.Driver == "memory" {
		return store.NewMemoryStore(), func() {}, nil
	}
	st, err := store.OpenSQL(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open healing store: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}

func buildAIClient(cfg *config.AIConfig) ai.Client {
	if cfg == nil || cfg.BaseURL == "" {
		return nil
	}
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			Logger.Warn("AI API key env var is empty", "env", cfg.APIKeyEnv)
		}
	}
	return ai.NewHTTPClient(ai.HTTPConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  apiKey,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	})
}

func printProgress(u orchestrator.ProgressUpdate) {
	phase := color.CyanString("%-12s", string(u.Phase))
	if u.Phase == orchestrator.PhaseError {
		phase = color.RedString("%-12s", string(u.Phase))
	}
	fmt.Printf("%s %3d%%  %s\n", phase, u.Progress, u.Message)
}

func printSummary(r *orchestrator.Report, elapsed time.Duration) {
	fmt.Printf("\n%s\n", color.New(color.Bold).Sprint("Session complete"))
	fmt.Printf("  Target:   %s\n", r.TargetURL)
	fmt.Printf("  Tests:    %d total, %s, %s, %s\n",
		r.Summary.Total,
		color.GreenString("%d passed", r.Summary.Passed),
		color.RedString("%d failed", r.Summary.Failed),
		color.YellowString("%d healed", r.Summary.Healed))
	fmt.Printf("  Coverage: %.1f%%\n", r.Summary.CoveragePercent())
	fmt.Printf("  Duration: %s\n", elapsed.Round(time.Millisecond))
	if r.JSONPath != "" {
		fmt.Printf("  Report:   %s, %s\n", r.JSONPath, r.HTMLPath)
	}
}

func printMultiPanelSummary(r *orchestrator.MultiPanelReport, elapsed time.Duration) {
	fmt.Printf("\n%s\n", color.New(color.Bold).Sprint("Multi-panel session complete"))
	for name, report := range r.PanelReports {
		fmt.Printf("  %s: %d total, %s, %s, %s\n",
			color.CyanString(name),
			report.Summary.Total,
			color.GreenString("%d passed", report.Summary.Passed),
			color.RedString("%d failed", report.Summary.Failed),
			color.YellowString("%d healed", report.Summary.Healed))
	}
	violations := 0
	for _, f := range r.RBACFindings {
		if f.Violation {
			violations++
		}
	}
	if violations > 0 {
		fmt.Printf("  RBAC: %s across %d checks\n", color.RedString("%d violations", violations), len(r.RBACFindings))
	} else {
		fmt.Printf("  RBAC: %s (%d checks)\n", color.GreenString("no violations"), len(r.RBACFindings))
	}
	fmt.Printf("  Consistency findings: %d\n", len(r.ConsistencyFindings))
	fmt.Printf("  Duration: %s\n", elapsed.Round(time.Millisecond))
}
