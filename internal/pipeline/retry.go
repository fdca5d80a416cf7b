package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/engine"
	"github.com/sells-group/gsi-geocoder/internal/model"
)

// ErrNotRetryable is returned when a retry pass is asked to target a status
// that a repeated request cannot change.
var ErrNotRetryable = eris.New("pipeline: status is not retryable")

// RetryReport summarizes a retry pass.
type RetryReport struct {
	Parts    int                  `json:"parts" yaml:"parts"`
	Written  int                  `json:"written" yaml:"written"`
	Targets  int                  `json:"targets" yaml:"targets"`
	Resolved int                  `json:"resolved" yaml:"resolved"`
	After    map[model.Status]int `json:"after" yaml:"after"`
}

// ParseKinds converts status names into retry targets. Only transient
// statuses are accepted. An empty list selects both transient statuses.
func ParseKinds(names []string) ([]model.Status, error) {
	if len(names) == 0 {
		return []model.Status{model.StatusCommunicationError, model.StatusTimeout}, nil
	}
	kinds := make([]model.Status, 0, len(names))
	seen := make(map[model.Status]bool, len(names))
	for _, name := range names {
		st, err := model.ParseStatus(name)
		if err != nil {
			return nil, err
		}
		if !st.Transient() {
			return nil, eris.Wrapf(ErrNotRetryable, "pipeline: retry %s", st)
		}
		if !seen[st] {
			seen[st] = true
			kinds = append(kinds, st)
		}
	}
	return kinds, nil
}

// Retry re-resolves every row whose status is in kinds, across the given
// parts (all existing parts when parts is empty). A retried row takes
// whatever outcome the new attempt produces. Parts with no targets are not
// rewritten, so repeating the pass once nothing is transient changes
// nothing.
func (p *Pipeline) Retry(ctx context.Context, eng *engine.Engine, kinds []model.Status, parts []int) (*RetryReport, error) {
	for _, k := range kinds {
		if !k.Transient() {
			return nil, eris.Wrapf(ErrNotRetryable, "pipeline: retry %s", k)
		}
	}
	if len(kinds) == 0 {
		return nil, eris.New("pipeline: retry needs at least one status")
	}

	selected, err := p.selectParts(parts)
	if err != nil {
		return nil, err
	}

	report := &RetryReport{After: make(map[model.Status]int)}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	params := map[string]any{
		"kinds":       names,
		"parts":       len(selected),
		"concurrency": eng.Concurrency(),
		"output_dir":  p.results.Dir(),
	}

	err = p.track(ctx, StageRetry, params, func(runID string) error {
		if err := p.cleanTemp(); err != nil {
			return err
		}
		for _, part := range selected {
			if err := p.retryPart(ctx, runID, eng, kinds, part, report); err != nil {
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

func (p *Pipeline) retryPart(ctx context.Context, runID string, eng *engine.Engine, kinds []model.Status, part int, report *RetryReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := zap.L().With(zap.Int("part", part))

	rows, err := p.results.LoadValid(part)
	if err != nil {
		return err
	}
	report.Parts++

	want := make(map[model.Status]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var targets []int
	for i, r := range rows {
		if want[r.Status] {
			targets = append(targets, i)
		}
	}

	if len(targets) == 0 {
		for st, n := range model.CountStatuses(rows) {
			report.After[st] += n
		}
		p.record(ctx, model.ChunkEvent{RunID: runID, Part: part, Action: model.ChunkUnchanged})
		return nil
	}

	start := time.Now()
	addrs := make([]string, len(targets))
	for j, i := range targets {
		addrs[j] = rows[i].Address
	}
	outs, err := eng.Resolve(ctx, addrs)
	if err != nil {
		return eris.Wrapf(err, "pipeline: retry part %d", part)
	}

	resolved := 0
	for j, i := range targets {
		rows[i].SetOutcome(outs[j])
		if outs[j].Status == model.StatusSuccess {
			resolved++
		}
	}
	if err := p.results.Save(part, rows); err != nil {
		return err
	}

	counts := model.CountStatuses(rows)
	for st, n := range counts {
		report.After[st] += n
	}
	report.Written++
	report.Targets += len(targets)
	report.Resolved += resolved

	elapsed := time.Since(start)
	log.Info("pipeline: retried chunk",
		zap.Int("targets", len(targets)),
		zap.Int("resolved", resolved),
		zap.Duration("elapsed", elapsed),
	)
	p.record(ctx, model.ChunkEvent{
		RunID:      runID,
		Part:       part,
		Action:     model.ChunkWritten,
		Targets:    len(targets),
		Resolved:   resolved,
		Counts:     counts,
		DurationMs: elapsed.Milliseconds(),
	})
	return nil
}
