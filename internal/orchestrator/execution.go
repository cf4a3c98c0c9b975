package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/gojq"
	"golang.org/x/sync/errgroup"

	"github.com/testmaster-ai/testmaster/internal/browser"
	"github.com/testmaster-ai/testmaster/internal/healing"
)

// execute runs every generated test, sequentially or with bounded
// parallelism. A single test failing never aborts the phase; only
// infrastructure errors (no browser at all, cancellation) do.
func (o *Orchestrator) execute(ctx context.Context, tests []GeneratedTest) (*ExecutionResults, error) {
	started := time.Now()
	results := &ExecutionResults{Total: len(tests)}

	workers := o.cfg.ParallelWorkers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, runCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	ordered := make([]TestResult, len(tests))
	for i := range tests {
		test := tests[i]
		idx := i
		g.Go(func() error {
			if err := runCtx.Err(); err != nil {
				return err
			}
			res := o.runTest(runCtx, &test)
			mu.Lock()
			ordered[idx] = *res
			done++
			pct := done * 100 / len(tests)
			if pct > 99 {
				pct = 99
			}
			// Emitted under the lock so progress values stay monotonic even
			// with parallel workers.
			o.emit(PhaseExecution, pct, fmt.Sprintf("%s: %s", test.Name, res.Status), map[string]any{
				"test_id": test.ID,
				"status":  string(res.Status),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results.Results = ordered
	for _, r := range ordered {
		switch r.Status {
		case StatusPassed:
			results.Passed++
		case StatusHealed:
			results.Healed++
		default:
			results.Failed++
		}
	}
	results.Duration = time.Since(started)
	return results, nil
}

// runTest executes one generated test. Browser tests get their own driver;
// its lifetime is scoped to this call on both success and failure paths.
func (o *Orchestrator) runTest(ctx context.Context, test *GeneratedTest) *TestResult {
	started := time.Now()
	result := &TestResult{TestID: test.ID, Name: test.Name, Type: test.Type, Status: StatusPassed}
	defer func() { result.Duration = time.Since(started) }()

	var driver browser.Driver
	if needsBrowser(test) {
		var err error
		driver, err = o.newDriver(ctx)
		if err != nil {
			result.Status = StatusFailed
			result.Error = fmt.Sprintf("failed to open browser: %v", err)
			return result
		}
		defer func() { _ = driver.Close() }()
	}

	healed := false
	for i, step := range test.Steps {
		stepRes := StepResult{Index: i, Action: step.Action, Status: StatusPassed}

		err := o.runStep(ctx, driver, test, i, &step)
		if err != nil && o.cfg.EnableHealing && o.newHealer != nil && step.Locator != "" {
			newLocator, healErr := o.tryHeal(ctx, driver, test, i, &step, err)
			if healErr == nil && newLocator != "" {
				// Retry exactly once with the healed locator.
				retry := step
				retry.Locator = newLocator
				retry.LocatorType = "css"
				if retryErr := o.runStep(ctx, driver, test, i, &retry); retryErr == nil {
					stepRes.HealedLocator = newLocator
					stepRes.Status = StatusHealed
					healed = true
					err = nil
				}
			}
		}

		if err == nil && step.Action == ActionNavigate {
			result.VisitedURLs = append(result.VisitedURLs, step.Value)
		}

		if err != nil {
			stepRes.Status = StatusFailed
			stepRes.Error = err.Error()
			if o.cfg.CaptureScreenshots && driver != nil {
				stepRes.ScreenshotPath = o.captureFailureScreenshot(ctx, driver, test.ID, i)
			}
			result.Steps = append(result.Steps, stepRes)
			result.Status = StatusFailed
			result.Error = fmt.Sprintf("step %d (%s): %v", i, step.Action, err)
			return result
		}
		result.Steps = append(result.Steps, stepRes)
	}

	if healed {
		result.Status = StatusHealed
	}
	return result
}

func needsBrowser(test *GeneratedTest) bool {
	for _, s := range test.Steps {
		if s.Action != ActionAPIRequest {
			return true
		}
	}
	return false
}

func (o *Orchestrator) runStep(ctx context.Context, driver browser.Driver, test *GeneratedTest, index int, step *TestStep) error {
	switch step.Action {
	case ActionNavigate:
		return driver.Navigate(ctx, step.Value)
	case ActionClick:
		el, err := o.resolve(ctx, driver, step)
		if err != nil {
			return err
		}
		return driver.Click(ctx, el.Selector)
	case ActionFill:
		el, err := o.resolve(ctx, driver, step)
		if err != nil {
			return err
		}
		return driver.Fill(ctx, el.Selector, step.Value)
	case ActionSelect:
		el, err := o.resolve(ctx, driver, step)
		if err != nil {
			return err
		}
		return driver.Select(ctx, el.Selector, step.Value)
	case ActionAssertText:
		html, err := driver.PageHTML(ctx)
		if err != nil {
			return err
		}
		found := strings.Contains(strings.ToLower(html), strings.ToLower(step.Value))
		if step.Expected == "absent" && found {
			return fmt.Errorf("text %q unexpectedly present", step.Value)
		}
		if step.Expected != "absent" && !found {
			return fmt.Errorf("text %q not found on page", step.Value)
		}
		return nil
	case ActionAPIRequest:
		return o.runAPIStep(ctx, step)
	default:
		return fmt.Errorf("unknown step action %q", step.Action)
	}
}

// resolve finds the step's element, failing with a locator error that the
// healing path can act on.
func (o *Orchestrator) resolve(ctx context.Context, driver browser.Driver, step *TestStep) (*browser.Element, error) {
	locatorType := step.LocatorType
	if locatorType == "" {
		locatorType = browser.GuessLocatorType(step.Locator)
	}
	el, err := driver.FindElement(ctx, locatorType, step.Locator)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("locator %q matched no element", step.Locator)
	}
	if !el.Visible {
		return nil, fmt.Errorf("locator %q matched an invisible element", step.Locator)
	}
	return el, nil
}

// tryHeal asks the coordinator for a replacement locator. Only auto-applied
// results are used for the in-flight retry; suggestions wait for review.
func (o *Orchestrator) tryHeal(ctx context.Context, driver browser.Driver, test *GeneratedTest, stepIndex int, step *TestStep, stepErr error) (string, error) {
	var snapshot string
	if driver != nil {
		snapshot, _ = driver.PageHTML(ctx)
	}
	hctx := &healing.Context{
		FailedLocator:     step.Locator,
		ObjectID:          step.ObjectID,
		StepIndex:         stepIndex,
		TestCaseID:        test.ID,
		PageSnapshot:      snapshot,
		ErrorMessage:      stepErr.Error(),
		AlternateLocators: step.Alternates,
	}
	res, err := o.newHealer(driver).Heal(ctx, hctx)
	if err != nil {
		return "", err
	}
	if !res.AutoApplied {
		return "", nil
	}
	return res.NewLocator, nil
}

func (o *Orchestrator) runAPIStep(ctx context.Context, step *TestStep) error {
	client := &http.Client{Timeout: 15 * time.Second}
	req, err := http.NewRequestWithContext(ctx, step.Method, step.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if step.WantStatus != 0 && resp.StatusCode != step.WantStatus {
		return fmt.Errorf("got status %d, want %d", resp.StatusCode, step.WantStatus)
	}
	if step.JQ == "" {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	return assertJQ(step.JQ, step.Expected, decoded)
}

// assertJQ evaluates a gojq expression against a decoded response and
// compares the first produced value with the expectation.
func assertJQ(expr, expected string, input any) error {
	query, err := gojq.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	iter := query.Run(input)
	v, ok := iter.Next()
	if !ok {
		return fmt.Errorf("jq expression %q produced no value", expr)
	}
	if err, isErr := v.(error); isErr {
		return fmt.Errorf("jq expression %q failed: %w", expr, err)
	}
	actual := fmt.Sprintf("%v", v)
	if actual != expected {
		return fmt.Errorf("jq %q: got %q, want %q", expr, actual, expected)
	}
	return nil
}

func (o *Orchestrator) captureFailureScreenshot(ctx context.Context, driver browser.Driver, testID string, stepIndex int) string {
	shot, err := driver.Screenshot(ctx)
	if err != nil {
		return ""
	}
	dir := o.cfg.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("failure-%s-step%d.png", testID, stepIndex))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		return ""
	}
	return path
}
