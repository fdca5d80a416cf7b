package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/chunk"
	"github.com/sells-group/gsi-geocoder/internal/model"
)

// ErrMissingPart means the chunk sequence has a gap, so a consolidated table
// would silently drop records.
var ErrMissingPart = eris.New("pipeline: result part missing")

// MissRecord lists a record that ended without coordinates.
type MissRecord struct {
	ID      string       `csv:"id"`
	Address string       `csv:"address"`
	Status  model.Status `csv:"status"`
}

// ConsolidateOptions configures Consolidate.
type ConsolidateOptions struct {
	// Input is the table the results were produced from. When set, K is
	// its chunk count and every part must line up with its input chunk.
	Input *chunk.Input
	// Parts is the expected chunk count K. Zero takes K from Input, or
	// consolidates every existing part, which must then be numbered 1..max
	// without gaps.
	Parts int
	// Output is the consolidated table path.
	Output string
	// Misses optionally receives the permanent misses.
	Misses string
}

// Consolidate merges every result file, in part order, into one table with a
// single final coordinate pair per record. Each file is read once and the
// output is replaced atomically. A part that cannot be reconciled with its
// input chunk aborts the run with chunk.ErrChunkMismatch and leaves any
// previous output in place.
func (p *Pipeline) Consolidate(ctx context.Context, opts ConsolidateOptions) (*Summary, error) {
	if opts.Output == "" {
		return nil, eris.New("pipeline: consolidate needs an output path")
	}

	if opts.Input != nil {
		k, err := opts.Input.PartCount(ctx)
		if err != nil {
			return nil, err
		}
		if k == 0 {
			return nil, eris.Errorf("pipeline: input %s has no records", opts.Input.Path())
		}
		if opts.Parts > 0 && opts.Parts != k {
			return nil, eris.Errorf("pipeline: %d parts requested but the input splits into %d", opts.Parts, k)
		}
		opts.Parts = k
	}

	parts, err := p.expectedParts(opts.Parts)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"parts":      len(parts),
		"output":     opts.Output,
		"misses":     opts.Misses,
		"output_dir": p.results.Dir(),
	}

	var summary *Summary
	err = p.track(ctx, StageConsolidate, params, func(runID string) error {
		s, err := p.consolidate(ctx, runID, parts, opts)
		summary = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (p *Pipeline) consolidate(ctx context.Context, runID string, parts []int, opts ConsolidateOptions) (*Summary, error) {
	if err := p.cleanTemp(); err != nil {
		return nil, err
	}

	final, err := chunk.Create[model.FinalRecord](opts.Output, p.results.BOM())
	if err != nil {
		return nil, err
	}
	defer final.Abort()

	var misses *chunk.Writer[MissRecord]
	if opts.Misses != "" {
		misses, err = chunk.Create[MissRecord](opts.Misses, p.results.BOM())
		if err != nil {
			return nil, err
		}
		defer misses.Abort()
	}

	s := newSummary()
	emit := func(part int, rows []model.Row) error {
		recs := make([]model.FinalRecord, len(rows))
		var missed []MissRecord
		for i, r := range rows {
			recs[i] = model.Finalize(r)
			if recs[i].PermanentMiss() {
				missed = append(missed, MissRecord{ID: r.ID, Address: r.Address, Status: r.Status})
			}
		}
		if err := final.Write(recs...); err != nil {
			return err
		}
		if misses != nil {
			if err := misses.Write(missed...); err != nil {
				return err
			}
		}
		s.add(part, rows)

		zap.L().Debug("pipeline: consolidated part", zap.Int("part", part), zap.Int("rows", len(rows)))
		p.record(ctx, model.ChunkEvent{
			RunID:  runID,
			Part:   part,
			Action: model.ChunkUnchanged,
			Counts: model.CountStatuses(rows),
		})
		return nil
	}

	if opts.Input != nil {
		err = p.consolidateInput(ctx, opts.Input, emit)
	} else {
		err = p.consolidateParts(ctx, parts, emit)
	}
	if err != nil {
		return nil, err
	}

	if err := final.Commit(); err != nil {
		return nil, err
	}
	if misses != nil {
		if err := misses.Commit(); err != nil {
			return nil, err
		}
	}

	zap.L().Info("pipeline: consolidated",
		zap.String("output", filepath.Base(opts.Output)),
		zap.Int("records", final.Rows()),
		zap.Int("with_final", s.WithFinal),
		zap.Int("permanent_misses", s.PermanentMisses),
	)
	return s, nil
}

// consolidateInput walks the input chunks alongside the result files and
// verifies each part against its chunk before it is merged.
func (p *Pipeline) consolidateInput(ctx context.Context, in *chunk.Input, emit func(int, []model.Row) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, errs := in.Chunks(ctx)
	for c := range chunks {
		rows, err := p.results.Load(c.Part)
		if err != nil {
			return err
		}
		if err := chunk.Verify(c, rows); err != nil {
			return err
		}
		if err := emit(c.Part, rows); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil {
		return err
	}
	return ctx.Err()
}

// consolidateParts merges parts without an input to compare against. Every
// row must still carry exactly one well-formed outcome.
func (p *Pipeline) consolidateParts(ctx context.Context, parts []int, emit func(int, []model.Row) error) error {
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := p.results.LoadValid(part)
		if err != nil {
			return err
		}
		if err := emit(part, rows); err != nil {
			return err
		}
	}
	return nil
}

// expectedParts returns 1..k after checking every part exists. With k == 0
// the highest existing part sets k.
func (p *Pipeline) expectedParts(k int) ([]int, error) {
	existing, err := p.results.Parts()
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		if len(existing) == 0 {
			return nil, eris.Wrapf(ErrMissingPart, "pipeline: no result files in %s", p.results.Dir())
		}
		k = existing[len(existing)-1]
	}

	have := make(map[int]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}
	for n := 1; n <= k; n++ {
		if !have[n] {
			return nil, eris.Wrapf(ErrMissingPart, "pipeline: part %d of %d", n, k)
		}
	}
	return PartRange(k), nil
}
