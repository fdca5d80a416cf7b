package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/chunk"
	"github.com/sells-group/gsi-geocoder/internal/engine"
	"github.com/sells-group/gsi-geocoder/internal/model"
)

// GeocodeReport summarizes a first pass.
type GeocodeReport struct {
	Parts   int                  `json:"parts" yaml:"parts"`
	Written int                  `json:"written" yaml:"written"`
	Skipped int                  `json:"skipped" yaml:"skipped"`
	Records int                  `json:"records" yaml:"records"`
	Counts  map[model.Status]int `json:"counts" yaml:"counts"`
}

// Geocode resolves every chunk of in that has no complete result file.
// Complete chunks are left untouched, so an interrupted run resumes where it
// stopped. A chunk is saved only after every record in it has an outcome.
func (p *Pipeline) Geocode(ctx context.Context, in *chunk.Input, eng *engine.Engine) (*GeocodeReport, error) {
	report := &GeocodeReport{Counts: make(map[model.Status]int)}

	params := map[string]any{
		"input":       in.Path(),
		"encoding":    in.Encoding(),
		"chunk_size":  in.ChunkSize(),
		"concurrency": eng.Concurrency(),
		"output_dir":  p.results.Dir(),
	}

	err := p.track(ctx, StageGeocode, params, func(runID string) error {
		return p.geocode(ctx, runID, in, eng, report)
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) geocode(ctx context.Context, runID string, in *chunk.Input, eng *engine.Engine, report *GeocodeReport) error {
	if err := p.cleanTemp(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, errs := in.Chunks(ctx)
	for c := range chunks {
		report.Parts++
		log := zap.L().With(zap.Int("part", c.Part), zap.Int("records", len(c.Records)))

		state, err := p.results.Check(c)
		if err != nil {
			return err
		}
		if state == chunk.StateComplete {
			report.Skipped++
			log.Debug("pipeline: chunk already complete")
			p.record(ctx, model.ChunkEvent{RunID: runID, Part: c.Part, Action: model.ChunkSkipped})
			continue
		}

		start := time.Now()
		rows, err := resolveChunk(ctx, eng, c)
		if err != nil {
			return eris.Wrapf(err, "pipeline: geocode part %d", c.Part)
		}
		if err := p.results.Save(c.Part, rows); err != nil {
			return err
		}

		counts := model.CountStatuses(rows)
		for st, n := range counts {
			report.Counts[st] += n
		}
		report.Written++
		report.Records += len(rows)

		elapsed := time.Since(start)
		log.Info("pipeline: chunk written",
			zap.Int("success", counts[model.StatusSuccess]),
			zap.Int("not_found", counts[model.StatusNotFound]),
			zap.Int("communication_error", counts[model.StatusCommunicationError]),
			zap.Int("timeout", counts[model.StatusTimeout]),
			zap.Duration("elapsed", elapsed),
		)
		p.record(ctx, model.ChunkEvent{
			RunID:      runID,
			Part:       c.Part,
			Action:     model.ChunkWritten,
			Targets:    len(rows),
			Resolved:   counts[model.StatusSuccess],
			Counts:     counts,
			DurationMs: elapsed.Milliseconds(),
		})
	}

	if err := <-errs; err != nil {
		return err
	}
	return ctx.Err()
}

func resolveChunk(ctx context.Context, eng *engine.Engine, c model.Chunk) ([]model.Row, error) {
	addrs := make([]string, len(c.Records))
	for i, rec := range c.Records {
		addrs[i] = rec.Address
	}

	outs, err := eng.Resolve(ctx, addrs)
	if err != nil {
		return nil, err
	}

	rows := make([]model.Row, len(c.Records))
	for i, rec := range c.Records {
		rows[i] = model.NewRow(rec, outs[i])
	}
	return rows, nil
}
