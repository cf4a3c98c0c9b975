package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "healing.db") + "?_pragma=busy_timeout(5000)"
	st, err := OpenSQL(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLStoreRoundTrip(t *testing.T) {
	st := openSQLiteStore(t)
	ctx := context.Background()

	ev := &Event{
		TestCaseID:    "tc-1",
		ObjectID:      "obj-1",
		StepIndex:     2,
		FailedLocator: "#old",
		HealedLocator: "#new",
		Strategy:      "SIMILARITY",
		Confidence:    0.82,
		Metadata:      map[string]any{"tag": "button", "score": 0.82},
	}
	id, err := st.Save(ctx, ev)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, ev.ID)

	events, err := st.Query(ctx, Filter{TestCaseID: "tc-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "obj-1", got.ObjectID)
	assert.Equal(t, 2, got.StepIndex)
	assert.Equal(t, "#new", got.HealedLocator)
	assert.InDelta(t, 0.82, got.Confidence, 0.001)
	assert.False(t, got.AutoApplied)
	assert.Nil(t, got.Approved)
	assert.Nil(t, got.ApprovedAt)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, "button", got.Metadata["tag"])
	assert.InDelta(t, 0.82, got.Metadata["score"], 0.001)
}

func TestSQLStoreMigrateIsIdempotent(t *testing.T) {
	st := openSQLiteStore(t)
	require.NoError(t, st.migrate(context.Background()))
}

func TestSQLStoreQueryNewestFirst(t *testing.T) {
	st := openSQLiteStore(t)
	ctx := context.Background()

	first := &Event{TestCaseID: "tc-1", FailedLocator: "#a", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	second := &Event{TestCaseID: "tc-1", FailedLocator: "#b"}
	_, err := st.Save(ctx, first)
	require.NoError(t, err)
	_, err = st.Save(ctx, second)
	require.NoError(t, err)

	events, err := st.Query(ctx, Filter{TestCaseID: "tc-1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "#b", events[0].FailedLocator)
	assert.Equal(t, "#a", events[1].FailedLocator)
}

func TestSQLStoreQueryFilters(t *testing.T) {
	st := openSQLiteStore(t)
	ctx := context.Background()
	approved := true

	seed := []Event{
		{TestCaseID: "tc-1", ObjectID: "obj-1", Strategy: "FALLBACK", FailedLocator: "#a", HealedLocator: "#a2", AutoApplied: true},
		{TestCaseID: "tc-1", ObjectID: "obj-2", Strategy: "SIMILARITY", FailedLocator: "#b", HealedLocator: "#b2"},
		{TestCaseID: "tc-2", ObjectID: "obj-1", Strategy: "SIMILARITY", FailedLocator: "#a", HealedLocator: "#a3", Approved: &approved},
	}
	for i := range seed {
		_, err := st.Save(ctx, &seed[i])
		require.NoError(t, err)
	}

	byCase, err := st.Query(ctx, Filter{TestCaseID: "tc-1"})
	require.NoError(t, err)
	assert.Len(t, byCase, 2)

	byLocator, err := st.Query(ctx, Filter{FailedLocator: "#a"})
	require.NoError(t, err)
	assert.Len(t, byLocator, 2)

	// The review queue holds suggestions only; the auto-applied event keeps a
	// NULL approved column but is not pending.
	pending, err := st.Query(ctx, Filter{Pending: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "obj-2", pending[0].ObjectID)

	wasApproved, err := st.Query(ctx, Filter{Approved: &approved})
	require.NoError(t, err)
	require.Len(t, wasApproved, 1)
	assert.Equal(t, "tc-2", wasApproved[0].TestCaseID)

	auto := true
	autoApplied, err := st.Query(ctx, Filter{AutoApplied: &auto})
	require.NoError(t, err)
	assert.Len(t, autoApplied, 1)

	limited, err := st.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLStoreApprove(t *testing.T) {
	st := openSQLiteStore(t)
	ctx := context.Background()

	ev := &Event{TestCaseID: "tc-1", FailedLocator: "#a", HealedLocator: "#a2", Strategy: "SIMILARITY", Confidence: 0.8}
	id, err := st.Save(ctx, ev)
	require.NoError(t, err)

	require.NoError(t, st.Approve(ctx, id, "reviewer", false))

	events, err := st.Query(ctx, Filter{TestCaseID: "tc-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Approved)
	assert.False(t, *events[0].Approved)
	assert.Equal(t, "reviewer", events[0].ApprovedBy)
	require.NotNil(t, events[0].ApprovedAt)

	// Review decisions are final.
	err = st.Approve(ctx, id, "someone-else", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not awaiting review")
}

func TestSQLStoreApproveGuards(t *testing.T) {
	st := openSQLiteStore(t)
	ctx := context.Background()

	autoApplied := &Event{TestCaseID: "tc-1", FailedLocator: "#a", HealedLocator: "#a2", Strategy: "FALLBACK", AutoApplied: true}
	id, err := st.Save(ctx, autoApplied)
	require.NoError(t, err)

	err = st.Approve(ctx, id, "reviewer", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not awaiting review")

	err = st.Approve(ctx, "missing", "reviewer", true)
	require.Error(t, err)
}

func TestSQLStoreStatisticsWindow(t *testing.T) {
	st := openSQLiteStore(t)
	ctx := context.Background()
	approved := true

	seed := []Event{
		{ObjectID: "obj-1", FailedLocator: "#a", HealedLocator: "#a2", Strategy: "FALLBACK", AutoApplied: true},
		{ObjectID: "obj-2", FailedLocator: "#b", HealedLocator: "#b2", Strategy: "SIMILARITY", Approved: &approved},
		{ObjectID: "obj-3", FailedLocator: "#c", Strategy: "VISUAL"},
		// Outside the 30-day window.
		{ObjectID: "obj-4", FailedLocator: "#d", HealedLocator: "#d2", Strategy: "FALLBACK", AutoApplied: true,
			CreatedAt: time.Now().UTC().AddDate(0, 0, -40)},
	}
	for i := range seed {
		_, err := st.Save(ctx, &seed[i])
		require.NoError(t, err)
	}

	stats, err := st.Statistics(ctx, 30)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 2, stats.SuccessfulHeals)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 0.001)

	fallback := stats.ByStrategy["FALLBACK"]
	assert.Equal(t, 1, fallback.Attempts)
	assert.Equal(t, 1, fallback.Successes)
}
