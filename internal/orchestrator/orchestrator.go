// Package orchestrator drives the autonomous testing pipeline: discover the
// target application, generate tests for what was found, execute them with
// self-healing locators, analyze failures and assemble a report.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/testmaster-ai/testmaster/internal/ai"
	"github.com/testmaster-ai/testmaster/internal/browser"
	"github.com/testmaster-ai/testmaster/internal/fakedata"
	"github.com/testmaster-ai/testmaster/internal/healing"
)

// DriverFactory opens a browser for one phase. The phase that calls it owns
// the driver and must Close it on every path.
type DriverFactory func(ctx context.Context) (browser.Driver, error)

// Healer is the healing coordinator's contract as the orchestrator sees it.
type Healer interface {
	Heal(ctx context.Context, hctx *healing.Context) (*healing.Result, error)
}

// HealerFactory builds a healer bound to the browser the failing test owns.
type HealerFactory func(driver browser.Driver) Healer

// Orchestrator runs one autonomous testing session.
type Orchestrator struct {
	cfg       Config
	sessionID string
	newDriver DriverFactory
	newHealer HealerFactory
	aiClient  ai.Client
	faker     *fakedata.Generator
	progress  ProgressFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithHealerFactory(f HealerFactory) Option {
	return func(o *Orchestrator) { o.newHealer = f }
}
func WithAIClient(c ai.Client) Option      { return func(o *Orchestrator) { o.aiClient = c } }
func WithProgress(p ProgressFunc) Option   { return func(o *Orchestrator) { o.progress = p } }
func WithSessionID(id string) Option       { return func(o *Orchestrator) { o.sessionID = id } }
func WithFaker(g *fakedata.Generator) Option {
	return func(o *Orchestrator) { o.faker = g }
}

// New builds an orchestrator for one session.
func New(cfg Config, newDriver DriverFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		newDriver: newDriver,
		faker:     fakedata.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	return o
}

func (o *Orchestrator) emit(phase Phase, progress int, message string, details map[string]any) {
	if o.progress == nil {
		return
	}
	o.progress(ProgressUpdate{Phase: phase, Progress: progress, Message: message, Details: details})
}

// fail reports a phase failure exactly once through the progress sink and
// wraps the error with the phase it died in. No later phase runs after this.
func (o *Orchestrator) fail(phase Phase, err error) error {
	slog.Error("phase failed", "session_id", o.sessionID, "phase", phase, "error", err)
	o.emit(PhaseError, 100, fmt.Sprintf("%s phase failed: %v", phase, err), map[string]any{
		"failed_phase": string(phase),
	})
	return fmt.Errorf("%s phase: %w", phase, err)
}

// Run executes the full pipeline. Phases run strictly in sequence; each
// consumes only its predecessors' artifacts. Cancelling ctx stops the run at
// the next phase or step boundary and surfaces as a phase failure.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	slog.Info("autonomous session starting",
		"session_id", o.sessionID,
		"target", o.cfg.TargetURL,
		"depth", o.cfg.Depth)

	// Discovery.
	o.emit(PhaseDiscovery, 0, "starting discovery", nil)
	appMap, err := o.discover(ctx)
	if err != nil {
		return nil, o.fail(PhaseDiscovery, err)
	}
	o.emit(PhaseDiscovery, 100, fmt.Sprintf("discovered %d pages", len(appMap.Pages)), map[string]any{
		"pages":     len(appMap.Pages),
		"endpoints": len(appMap.APIEndpoints),
	})

	// Optional registration sub-step.
	if o.cfg.AutoRegister {
		if form, page := findRegistrationForm(appMap); form != nil {
			o.emit(PhaseRegistration, 0, "registering test account", nil)
			if err := o.register(ctx, page, form); err != nil {
				return nil, o.fail(PhaseRegistration, err)
			}
			o.emit(PhaseRegistration, 100, "test account registered", nil)
		}
	}

	// Generation.
	o.emit(PhaseGeneration, 0, "generating tests", nil)
	tests, err := o.generate(ctx, appMap)
	if err != nil {
		return nil, o.fail(PhaseGeneration, err)
	}
	o.emit(PhaseGeneration, 100, fmt.Sprintf("generated %d tests", len(tests)), map[string]any{
		"tests": len(tests),
	})

	// Execution.
	o.emit(PhaseExecution, 0, "executing tests", nil)
	results, err := o.execute(ctx, tests)
	if err != nil {
		return nil, o.fail(PhaseExecution, err)
	}
	o.emit(PhaseExecution, 100,
		fmt.Sprintf("%d/%d passed, %d healed, %d failed", results.Passed, results.Total, results.Healed, results.Failed),
		map[string]any{"passed": results.Passed, "failed": results.Failed, "healed": results.Healed})

	// Analysis.
	o.emit(PhaseAnalysis, 0, "analyzing failures", nil)
	analysis, err := o.analyze(ctx, results)
	if err != nil {
		return nil, o.fail(PhaseAnalysis, err)
	}
	o.emit(PhaseAnalysis, 100, fmt.Sprintf("%d findings", len(analysis.Findings)), nil)

	// Report.
	o.emit(PhaseReport, 0, "writing report", nil)
	report, err := o.report(appMap, results, analysis, time.Since(started))
	if err != nil {
		return nil, o.fail(PhaseReport, err)
	}
	o.emit(PhaseReport, 100, "report written", nil)

	o.emit(PhaseCompleted, 100, "session completed", map[string]any{
		"passed": results.Passed,
		"failed": results.Failed,
		"healed": results.Healed,
	})
	slog.Info("autonomous session completed",
		"session_id", o.sessionID,
		"passed", results.Passed,
		"failed", results.Failed,
		"healed", results.Healed,
		"duration", time.Since(started))
	return report, nil
}
