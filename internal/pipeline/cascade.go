package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/engine"
	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/normalize"
)

// StageReport counts what one normalization stage did.
type StageReport struct {
	Stage     string `json:"stage" yaml:"stage"`
	Entered   int    `json:"entered" yaml:"entered"`
	Recovered int    `json:"recovered" yaml:"recovered"`
}

// CascadeReport summarizes a cascade pass. Stages are in execution order.
type CascadeReport struct {
	Parts   int           `json:"parts" yaml:"parts"`
	Written int           `json:"written" yaml:"written"`
	Stages  []StageReport `json:"stages" yaml:"stages"`
}

// Recovered returns the total recovered across stages.
func (r *CascadeReport) Recovered() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Recovered
	}
	return n
}

// Remaining returns how many rows left the last stage unresolved.
func (r *CascadeReport) Remaining() int {
	if len(r.Stages) == 0 {
		return 0
	}
	last := r.Stages[len(r.Stages)-1]
	return last.Entered - last.Recovered
}

// Cascade runs the normalization stages in order over every not_found row
// without a near match. Each stage sees only the rows earlier stages left
// unresolved. A rewrite that resolves is stored as the row's near match;
// the direct outcome is never changed. Parts where nothing was recovered are
// not rewritten.
func (p *Pipeline) Cascade(ctx context.Context, eng *engine.Engine, stages []normalize.Stage, parts []int) (*CascadeReport, error) {
	if len(stages) == 0 {
		return nil, eris.New("pipeline: cascade needs at least one stage")
	}

	selected, err := p.selectParts(parts)
	if err != nil {
		return nil, err
	}

	report := &CascadeReport{Stages: make([]StageReport, len(stages))}
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
		report.Stages[i].Stage = s.Name()
	}
	params := map[string]any{
		"stages":      names,
		"parts":       len(selected),
		"concurrency": eng.Concurrency(),
		"output_dir":  p.results.Dir(),
	}

	err = p.track(ctx, StageCascade, params, func(runID string) error {
		if err := p.cleanTemp(); err != nil {
			return err
		}
		for _, part := range selected {
			if err := p.cascadePart(ctx, runID, eng, stages, part, report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) cascadePart(ctx context.Context, runID string, eng *engine.Engine, stages []normalize.Stage, part int, report *CascadeReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rows, err := p.results.LoadValid(part)
	if err != nil {
		return err
	}
	report.Parts++

	start := time.Now()
	entered, recovered := 0, 0
	for si, stage := range stages {
		var targets []int
		for i, r := range rows {
			if r.Unresolved() {
				targets = append(targets, i)
			}
		}
		if si == 0 {
			entered = len(targets)
		}
		if len(targets) == 0 {
			break
		}

		n, err := runStage(ctx, eng, stage, rows, targets)
		if err != nil {
			return eris.Wrapf(err, "pipeline: cascade part %d stage %s", part, stage.Name())
		}
		report.Stages[si].Entered += len(targets)
		report.Stages[si].Recovered += n
		recovered += n
	}

	log := zap.L().With(zap.Int("part", part))
	if recovered == 0 {
		p.record(ctx, model.ChunkEvent{RunID: runID, Part: part, Action: model.ChunkUnchanged, Targets: entered})
		return nil
	}

	if err := p.results.Save(part, rows); err != nil {
		return err
	}
	report.Written++

	elapsed := time.Since(start)
	log.Info("pipeline: cascade recovered rows",
		zap.Int("entered", entered),
		zap.Int("recovered", recovered),
		zap.Duration("elapsed", elapsed),
	)
	p.record(ctx, model.ChunkEvent{
		RunID:      runID,
		Part:       part,
		Action:     model.ChunkWritten,
		Targets:    entered,
		Resolved:   recovered,
		Counts:     model.CountStatuses(rows),
		DurationMs: elapsed.Milliseconds(),
	})
	return nil
}

// runStage tries the stage's rewrites for each target row and stores the
// first candidate that resolves. Each row is written by exactly one worker.
func runStage(ctx context.Context, eng *engine.Engine, stage normalize.Stage, rows []model.Row, targets []int) (int, error) {
	var recovered atomic.Int64
	err := eng.ForEach(ctx, len(targets), func(ctx context.Context, j int) error {
		row := &rows[targets[j]]
		cands := stage.Rewrite(row.Address)
		if len(cands) == 0 {
			return nil
		}

		cand, out, ok, err := eng.First(ctx, cands)
		if err != nil || !ok {
			return err
		}
		row.SetNear(model.NearMatch{
			Address:   cand,
			Latitude:  *out.Latitude,
			Longitude: *out.Longitude,
			Stage:     stage.Name(),
		})
		recovered.Add(1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(recovered.Load()), nil
}
