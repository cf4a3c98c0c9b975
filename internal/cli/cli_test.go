package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testmaster-ai/testmaster/internal/healing/store"
	"github.com/testmaster-ai/testmaster/internal/orchestrator"
)

func TestResolveSessionRequiresInput(t *testing.T) {
	_, err := resolveSession(nil, "", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session file or --target")
}

func TestResolveSessionFromTarget(t *testing.T) {
	sess, err := resolveSession(nil, "http://localhost:3000", "", "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", sess.Orchestrator.TargetURL)
	assert.Equal(t, orchestrator.DepthShallow, sess.Orchestrator.Depth)
	assert.True(t, sess.Orchestrator.EnableHealing)
	assert.True(t, sess.Orchestrator.Headless)
	require.NotNil(t, sess.Store)
	assert.Equal(t, "sqlite", sess.Store.Driver)
}

func TestResolveSessionFlagOverrides(t *testing.T) {
	sess, err := resolveSession(nil, "http://localhost:3000", "deep", "/tmp/reports")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DepthDeep, sess.Orchestrator.Depth)
	assert.Equal(t, "/tmp/reports", sess.Orchestrator.OutputDir)
}

func TestResolveSessionFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_url: https://app.example.com\ndepth: deep\n"), 0o644))

	sess, err := resolveSession([]string{path}, "", "", "exhaustive")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", sess.Orchestrator.TargetURL)
	// Flags still win over the file.
	assert.Equal(t, orchestrator.DepthExhaustive, sess.Orchestrator.Depth)
}

func TestEventStatus(t *testing.T) {
	approved := true
	rejected := false

	tests := []struct {
		name string
		ev   store.Event
		want string
	}{
		{name: "auto-applied", ev: store.Event{AutoApplied: true}, want: "auto-applied"},
		{name: "pending", ev: store.Event{}, want: "pending"},
		{name: "approved", ev: store.Event{Approved: &approved}, want: "approved"},
		{name: "rejected", ev: store.Event{Approved: &rejected}, want: "rejected"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eventStatus(tc.ev))
		})
	}
}

func TestValidateCommand(t *testing.T) {
	InitLogging()
	dir := t.TempDir()
	valid := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(valid, []byte("target_url: https://app.example.com\n"), 0o644))

	cmd := NewValidateCmd()
	cmd.SetArgs([]string{valid})
	require.NoError(t, cmd.Execute())

	invalid := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("depth: bottomless\n"), 0o644))

	cmd = NewValidateCmd()
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation")
}
