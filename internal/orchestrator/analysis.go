package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/testmaster-ai/testmaster/internal/ai"
)

const analysisSystemPrompt = `You classify automated web test failures. Respond with a single JSON object:
{"category": "<locator|timing|data|environment|application-bug|unknown>",
 "root_cause": "<one sentence>",
 "suggested_fix": "<one sentence>",
 "confidence": <0..1>}`

// analyze asks the inference collaborator to classify every failed or healed
// test. Inference errors degrade individual tests to unanalyzed; they never
// abort the phase.
func (o *Orchestrator) analyze(ctx context.Context, results *ExecutionResults) (*AnalysisResult, error) {
	analysis := &AnalysisResult{}

	var candidates []*TestResult
	for i := range results.Results {
		r := &results.Results[i]
		if r.Status == StatusFailed || r.Status == StatusHealed {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return analysis, nil
	}
	if o.aiClient == nil {
		analysis.Unanalyzed = len(candidates)
		return analysis, nil
	}

	for i, r := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		finding, err := o.analyzeOne(ctx, r)
		if err != nil {
			slog.Warn("failure analysis skipped", "test_id", r.TestID, "error", err)
			analysis.Unanalyzed++
		} else {
			analysis.Findings = append(analysis.Findings, *finding)
		}
		pct := (i + 1) * 100 / len(candidates)
		if pct > 99 {
			pct = 99
		}
		o.emit(PhaseAnalysis, pct, fmt.Sprintf("analyzed %s", r.Name), nil)
	}
	return analysis, nil
}

func (o *Orchestrator) analyzeOne(ctx context.Context, r *TestResult) (*Finding, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Test %q (%s) finished with status %s.\n", r.Name, r.Type, r.Status)
	if r.Error != "" {
		fmt.Fprintf(&sb, "Failure: %s\n", r.Error)
	}
	for _, step := range r.Steps {
		if step.Status == StatusPassed {
			continue
		}
		fmt.Fprintf(&sb, "Step %d (%s): %s", step.Index, step.Action, step.Status)
		if step.Error != "" {
			fmt.Fprintf(&sb, ": %s", step.Error)
		}
		if step.HealedLocator != "" {
			fmt.Fprintf(&sb, " (healed to %q)", step.HealedLocator)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Classify the failure.")

	resp, err := o.aiClient.Complete(ctx, ai.Request{
		System:    analysisSystemPrompt,
		Prompt:    sb.String(),
		MaxTokens: 400,
	})
	if err != nil {
		return nil, err
	}
	if resp.JSON == nil {
		return nil, fmt.Errorf("analysis response was not JSON")
	}

	finding := &Finding{TestID: r.TestID, Category: "unknown"}
	if v, ok := resp.JSON["category"].(string); ok && v != "" {
		finding.Category = v
	}
	finding.RootCause, _ = resp.JSON["root_cause"].(string)
	finding.SuggestedFix, _ = resp.JSON["suggested_fix"].(string)
	finding.Confidence, _ = resp.JSON["confidence"].(float64)
	return finding, nil
}
