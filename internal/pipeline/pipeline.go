// Package pipeline runs the geocoding stages over chunked result files:
// the first pass, the retry pass, the normalization cascade and the final
// consolidation. Every stage is resumable and records its progress in the
// run ledger.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/chunk"
	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/store"
)

// Stage names recorded in the ledger.
const (
	StageGeocode     = "geocode"
	StageRetry       = "retry"
	StageCascade     = "cascade"
	StageConsolidate = "consolidate"
)

// Pipeline owns the result directory. Only one Pipeline may write to a
// directory at a time.
type Pipeline struct {
	results *chunk.Store
	ledger  store.Store
}

// New creates a Pipeline over a result store. A nil ledger records nothing.
func New(results *chunk.Store, ledger store.Store) *Pipeline {
	if ledger == nil {
		ledger = store.Nop{}
	}
	return &Pipeline{results: results, ledger: ledger}
}

// Results returns the result store.
func (p *Pipeline) Results() *chunk.Store {
	return p.results
}

// track wraps one stage invocation in a ledger run. Ledger failures are
// logged and never fail the stage.
func (p *Pipeline) track(ctx context.Context, stage string, params map[string]any, fn func(runID string) error) error {
	log := zap.L().With(zap.String("stage", stage))

	runID := ""
	run, err := p.ledger.StartRun(ctx, stage, params)
	if err != nil {
		log.Warn("pipeline: failed to start run", zap.Error(err))
	} else {
		runID = run.ID
		log = log.With(zap.String("run_id", runID))
	}

	start := time.Now()
	log.Info("pipeline: stage starting")
	fnErr := fn(runID)
	duration := time.Since(start)

	status, msg := model.RunStatusComplete, ""
	if fnErr != nil {
		status, msg = model.RunStatusFailed, fnErr.Error()
		log.Error("pipeline: stage failed", zap.Duration("duration", duration), zap.Error(fnErr))
	} else {
		log.Info("pipeline: stage complete", zap.Duration("duration", duration))
	}

	if runID != "" {
		// The stage context may already be cancelled; the ledger still
		// needs to hear how the run ended.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := p.ledger.FinishRun(fctx, runID, status, msg); err != nil {
			log.Warn("pipeline: failed to finish run", zap.Error(err))
		}
	}
	return fnErr
}

// record stores a chunk event, logging instead of failing.
func (p *Pipeline) record(ctx context.Context, ev model.ChunkEvent) {
	if ev.RunID == "" {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if err := p.ledger.RecordChunk(ctx, ev); err != nil {
		zap.L().Warn("pipeline: failed to record chunk event",
			zap.String("run_id", ev.RunID),
			zap.Int("part", ev.Part),
			zap.Error(err),
		)
	}
}

// cleanTemp removes temp files left behind by an interrupted write.
func (p *Pipeline) cleanTemp() error {
	n, err := p.results.CleanTemp()
	if err != nil {
		return err
	}
	if n > 0 {
		zap.L().Info("pipeline: removed leftover temp files", zap.Int("count", n))
	}
	return nil
}

// selectParts returns the requested parts, or every existing part when none
// are requested. Requested parts must exist.
func (p *Pipeline) selectParts(parts []int) ([]int, error) {
	existing, err := p.results.Parts()
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return existing, nil
	}

	have := make(map[int]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}
	for _, n := range parts {
		if !have[n] {
			return nil, eris.Wrapf(ErrMissingPart, "pipeline: part %d", n)
		}
	}
	return parts, nil
}

// PartRange expands 1..n into a part list.
func PartRange(n int) []int {
	parts := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, i)
	}
	return parts
}
