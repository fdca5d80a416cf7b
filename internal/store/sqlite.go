package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck,gosec
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	params      TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS chunk_events (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	part        INTEGER NOT NULL,
	action      TEXT NOT NULL,
	targets     INTEGER NOT NULL DEFAULT 0,
	resolved    INTEGER NOT NULL DEFAULT 0,
	counts      TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_chunk_events_run_id ON chunk_events(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartRun(ctx context.Context, stage string, params map[string]any) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, status, params, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, stage, string(model.RunStatusRunning), string(paramsJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Stage:     stage,
		Status:    model.RunStatusRunning,
		Params:    params,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, stage, status, params, error, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, stage, status, params, error, started_at, finished_at FROM runs`
	var (
		where []string
		args  []any
	)
	if filter.Stage != "" {
		where = append(where, "stage = ?")
		args = append(args, filter.Stage)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, listLimit(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) RecordChunk(ctx context.Context, ev model.ChunkEvent) error {
	countsJSON, err := json.Marshal(ev.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunk_events (run_id, part, action, targets, resolved, counts, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Part, ev.Action, ev.Targets, ev.Resolved, string(countsJSON), ev.DurationMs, ev.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert chunk event %s/%d", ev.RunID, ev.Part)
}

func (s *SQLiteStore) ListChunkEvents(ctx context.Context, runID string) ([]model.ChunkEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, part, action, targets, resolved, counts, duration_ms, created_at
		 FROM chunk_events WHERE run_id = ? ORDER BY part, created_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list chunk events")
	}
	defer rows.Close() //nolint:errcheck

	var events []model.ChunkEvent
	for rows.Next() {
		var (
			ev         model.ChunkEvent
			countsJSON sql.NullString
		)
		if err := rows.Scan(&ev.RunID, &ev.Part, &ev.Action, &ev.Targets, &ev.Resolved, &countsJSON, &ev.DurationMs, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chunk event")
		}
		if err := unmarshalCounts(countsJSON.String, &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: iterate chunk events")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r          model.Run
		paramsJSON sql.NullString
		finished   sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Stage, &r.Status, &paramsJSON, &r.Error, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if err := unmarshalParams(paramsJSON.String, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func unmarshalParams(raw string, r *model.Run) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return eris.Wrap(json.Unmarshal([]byte(raw), &r.Params), "store: unmarshal params")
}

func unmarshalCounts(raw string, ev *model.ChunkEvent) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return eris.Wrap(json.Unmarshal([]byte(raw), &ev.Counts), "store: unmarshal counts")
}
