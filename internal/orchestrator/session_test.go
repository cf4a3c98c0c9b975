package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testmaster-ai/testmaster/internal/browser"
)

func siteService(pages map[string]string) *Service {
	return NewService(func(cfg Config, sessionID string, progress ProgressFunc) *Orchestrator {
		return New(cfg, siteFactory(pages, nil), WithSessionID(sessionID), WithProgress(progress))
	})
}

func waitForSession(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func TestStartSessionCompletes(t *testing.T) {
	svc := siteService(twoPageSite())

	id, err := svc.StartSession(context.Background(), Config{TargetURL: "http://app.test"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := svc.Session(id)
	require.NoError(t, err)
	waitForSession(t, sess)

	state, phase, report, runErr := sess.Snapshot()
	require.NoError(t, runErr)
	assert.Equal(t, SessionCompleted, state)
	assert.Equal(t, PhaseCompleted, phase)
	require.NotNil(t, report)
	assert.Equal(t, id, report.SessionID)
	assert.Equal(t, 1, report.Summary.Passed)
}

func TestStartSessionRequiresTarget(t *testing.T) {
	svc := siteService(nil)

	_, err := svc.StartSession(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target URL")
}

func TestSessionNotFound(t *testing.T) {
	svc := siteService(nil)

	_, err := svc.Session("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestListenReplaysAndStreams(t *testing.T) {
	svc := siteService(twoPageSite())

	id, err := svc.StartSession(context.Background(), Config{TargetURL: "http://app.test"})
	require.NoError(t, err)

	sess, err := svc.Session(id)
	require.NoError(t, err)
	waitForSession(t, sess)

	// Attached after the run finished, so everything arrives as replay.
	ch, remove, err := svc.Listen(id)
	require.NoError(t, err)
	defer remove()

	var phases []Phase
	for {
		select {
		case u := <-ch:
			phases = append(phases, u.Phase)
			if u.Phase == PhaseCompleted {
				assert.Contains(t, phases, PhaseDiscovery)
				assert.Contains(t, phases, PhaseExecution)
				return
			}
		case <-time.After(time.Second):
			t.Fatal("replay did not deliver the completed update")
		}
	}
}

func TestListenRemoveIsIdempotent(t *testing.T) {
	svc := siteService(twoPageSite())

	id, err := svc.StartSession(context.Background(), Config{TargetURL: "http://app.test"})
	require.NoError(t, err)

	_, remove, err := svc.Listen(id)
	require.NoError(t, err)
	remove()
	remove()

	sess, err := svc.Session(id)
	require.NoError(t, err)
	waitForSession(t, sess)
}

func TestListenUnknownSession(t *testing.T) {
	svc := siteService(nil)

	_, _, err := svc.Listen("nope")
	require.Error(t, err)
}

func TestCancelStopsRunningSession(t *testing.T) {
	svc := NewService(func(cfg Config, sessionID string, progress ProgressFunc) *Orchestrator {
		factory := func(ctx context.Context) (browser.Driver, error) {
			return &fakeDriver{blockNav: true}, nil
		}
		return New(cfg, factory, WithSessionID(sessionID), WithProgress(progress))
	})

	id, err := svc.StartSession(context.Background(), Config{TargetURL: "http://slow.test"})
	require.NoError(t, err)

	sess, err := svc.Session(id)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(id))
	waitForSession(t, sess)

	state, phase, _, runErr := sess.Snapshot()
	assert.Equal(t, SessionError, state)
	assert.Equal(t, PhaseError, phase)
	require.Error(t, runErr)
}
