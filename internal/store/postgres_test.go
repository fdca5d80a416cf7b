package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS geocode_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StartRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO geocode_runs`).
		WithArgs(pgxmock.AnyArg(), "retry", "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.StartRun(context.Background(), "retry", map[string]any{"kind": "timeout"})
	require.NoError(t, err)
	assert.Equal(t, "retry", run.Stage)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE geocode_runs SET status = \$1`).
		WithArgs("complete", "", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FinishRun(context.Background(), "run-1", model.RunStatusComplete, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE geocode_runs`).
		WithArgs("failed", "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "missing", model.RunStatusFailed, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, stage, status, params, error, started_at, finished_at FROM geocode_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	cols := []string{"id", "stage", "status", "params", "error", "started_at", "finished_at"}
	mock.ExpectQuery(`FROM geocode_runs WHERE stage = \$1 ORDER BY started_at DESC LIMIT \$2`).
		WithArgs("cascade", 10).
		WillReturnRows(mock.NewRows(cols).
			AddRow("run-2", "cascade", "running", []byte(`{"stages":"ward_rename"}`), "", started, nil))

	runs, err := s.ListRuns(context.Background(), RunFilter{Stage: "cascade", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, model.RunStatusRunning, runs[0].Status)
	assert.Equal(t, "ward_rename", runs[0].Params["stages"])
	assert.Nil(t, runs[0].FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordChunk(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO geocode_chunk_events`).
		WithArgs("run-1", 3, "written", 10, 4, pgxmock.AnyArg(), int64(1500), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordChunk(context.Background(), model.ChunkEvent{
		RunID: "run-1", Part: 3, Action: model.ChunkWritten, Targets: 10, Resolved: 4, DurationMs: 1500,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListChunkEvents(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)

	cols := []string{"run_id", "part", "action", "targets", "resolved", "counts", "duration_ms", "created_at"}
	mock.ExpectQuery(`FROM geocode_chunk_events WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows(cols).
			AddRow("run-1", 1, "written", 5, 2, []byte(`{"timeout":3}`), int64(900), at))

	events, err := s.ListChunkEvents(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Counts[model.StatusTimeout])
	assert.Equal(t, at, events[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
