// Package store keeps the run ledger: an audit trail of every pipeline
// stage invocation and what it did to each chunk. Result files remain the
// source of truth; the ledger only records history.
package store

import (
	"context"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Stage  string          `json:"stage,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	StartRun(ctx context.Context, stage string, params map[string]any) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Chunk events
	RecordChunk(ctx context.Context, ev model.ChunkEvent) error
	ListChunkEvents(ctx context.Context, runID string) ([]model.ChunkEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
