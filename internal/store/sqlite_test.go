package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	run, err := s.StartRun(ctx, "geocode", map[string]any{"concurrency": 100, "input": "corp.csv"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "geocode", got.Stage)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, "corp.csv", got.Params["input"])
	assert.EqualValues(t, 100, got.Params["concurrency"])

	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusFailed, "interrupted"))
	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "interrupted", got.Error)
	require.NotNil(t, got.FinishedAt)
}

func TestSQLiteStore_FinishUnknownRun(t *testing.T) {
	s := newTestSQLite(t)
	err := s.FinishRun(context.Background(), "missing", model.RunStatusComplete, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_GetUnknownRun(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	for _, stage := range []string{"geocode", "retry", "cascade", "retry"} {
		_, err := s.StartRun(ctx, stage, nil)
		require.NoError(t, err)
	}

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	retries, err := s.ListRuns(ctx, RunFilter{Stage: "retry"})
	require.NoError(t, err)
	assert.Len(t, retries, 2)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_ChunkEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	run, err := s.StartRun(ctx, "geocode", nil)
	require.NoError(t, err)

	require.NoError(t, s.RecordChunk(ctx, model.ChunkEvent{
		RunID: run.ID, Part: 2, Action: model.ChunkSkipped,
	}))
	require.NoError(t, s.RecordChunk(ctx, model.ChunkEvent{
		RunID: run.ID, Part: 1, Action: model.ChunkWritten, Targets: 3, Resolved: 1,
		Counts:     map[model.Status]int{model.StatusSuccess: 1, model.StatusNotFound: 2},
		DurationMs: 42,
	}))

	events, err := s.ListChunkEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Part)
	assert.Equal(t, model.ChunkWritten, events[0].Action)
	assert.Equal(t, 2, events[0].Counts[model.StatusNotFound])
	assert.Equal(t, int64(42), events[0].DurationMs)
	assert.Equal(t, model.ChunkSkipped, events[1].Action)
	assert.Empty(t, events[1].Counts)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "none", "")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)

	s, err = Open(ctx, "sqlite", filepath.Join(t.TempDir(), "l.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "mysql", "x")
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var s Store = Nop{}

	run, err := s.StartRun(ctx, "cascade", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	require.NoError(t, s.RecordChunk(ctx, model.ChunkEvent{RunID: run.ID}))
	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusComplete, ""))

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
