package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

// Nop is a Store that records nothing. It backs ledger.driver=none.
type Nop struct{}

func (Nop) StartRun(_ context.Context, stage string, params map[string]any) (*model.Run, error) {
	return &model.Run{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    model.RunStatusRunning,
		Params:    params,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (Nop) FinishRun(context.Context, string, model.RunStatus, string) error { return nil }

func (Nop) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return nil, eris.Errorf("run not found: %s (ledger disabled)", runID)
}

func (Nop) ListRuns(context.Context, RunFilter) ([]model.Run, error) { return nil, nil }

func (Nop) RecordChunk(context.Context, model.ChunkEvent) error { return nil }

func (Nop) ListChunkEvents(context.Context, string) ([]model.ChunkEvent, error) { return nil, nil }

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }

// Open returns the Store for a configured driver: sqlite, postgres or none.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck,gosec
		return nil, err
	}
	return s, nil
}
