package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testmaster-ai/testmaster/internal/browser"
)

const (
	homeHTML  = `<html><head><title>App</title></head><body><a href="/about">About</a></body></html>`
	aboutHTML = `<html><head><title>About</title></head><body><p>All about the app.</p></body></html>`
)

func twoPageSite() map[string]string {
	return map[string]string{
		"http://app.test":       homeHTML,
		"http://app.test/about": aboutHTML,
	}
}

func TestRunFullPipeline(t *testing.T) {
	rec := &progressRecorder{}
	o := New(Config{TargetURL: "http://app.test", Depth: DepthShallow},
		siteFactory(twoPageSite(), nil),
		WithProgress(rec.record),
		WithSessionID("sess-1"))

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "sess-1", report.SessionID)
	assert.Equal(t, "http://app.test", report.TargetURL)
	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 0, report.Summary.Failed)
	assert.InDelta(t, 1.0, report.Summary.Coverage, 0.001)
	assert.Empty(t, report.JSONPath, "no output directory configured")

	phases := rec.phases()
	require.NotEmpty(t, phases)
	assert.Equal(t, []Phase{
		PhaseDiscovery, PhaseGeneration, PhaseExecution,
		PhaseAnalysis, PhaseReport, PhaseCompleted,
	}, phases)
}

func TestRunDriverFactoryFailure(t *testing.T) {
	rec := &progressRecorder{}
	factory := func(ctx context.Context) (browser.Driver, error) {
		return nil, fmt.Errorf("chrome not installed")
	}
	o := New(Config{TargetURL: "http://app.test"}, factory, WithProgress(rec.record))

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery phase")

	errorUpdates := 0
	for _, u := range rec.all() {
		if u.Phase == PhaseError {
			errorUpdates++
		}
	}
	assert.Equal(t, 1, errorUpdates, "a phase failure is reported exactly once")
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := New(Config{TargetURL: "http://app.test"}, siteFactory(twoPageSite(), nil))

	_, err := o.Run(ctx)
	require.Error(t, err)
}
