package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/pipeline"
)

// writeStructured encodes v as json or yaml.
func writeStructured(out io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

func pct(r float64) string {
	return fmt.Sprintf("%.2f%%", r*100)
}

// formatSummary writes the per-part table and the overall figures.
func formatSummary(out io.Writer, s *pipeline.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, "PART\tROWS\tSUCCESS\tEMPTY\tNOT FOUND\tRECOVERED\tOTHER\t")
	for _, p := range s.PerPart {
		_, _ = fmt.Fprintf(w, "%03d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			p.Part,
			humanize.Comma(int64(p.Rows)),
			humanize.Comma(int64(p.Success)),
			humanize.Comma(int64(p.Empty)),
			humanize.Comma(int64(p.NotFound)),
			humanize.Comma(int64(p.Recovered)),
			humanize.Comma(int64(p.Other())),
		)
	}
	_ = w.Flush()

	notFound := s.Counts[model.StatusNotFound]
	other := s.Counts[model.StatusCommunicationError] + s.Counts[model.StatusTimeout]

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "Records:          %s\n", humanize.Comma(int64(s.Total)))
	_, _ = fmt.Fprintf(out, "  success:        %s (%s)\n", humanize.Comma(int64(s.Counts[model.StatusSuccess])), pct(s.SuccessRate()))
	_, _ = fmt.Fprintf(out, "  empty address:  %s (no input, not a failure)\n", humanize.Comma(int64(s.Empty())))
	_, _ = fmt.Fprintf(out, "  not found:      %s\n", humanize.Comma(int64(notFound)))
	_, _ = fmt.Fprintf(out, "  other errors:   %s\n", humanize.Comma(int64(other)))
	if notFound > 0 {
		_, _ = fmt.Fprintf(out, "Recovered:        %s of not found (%s)\n", humanize.Comma(int64(s.Recovered)), pct(s.RecoveredRate()))
	}
	_, _ = fmt.Fprintf(out, "Final coverage:   %s (%s)\n", humanize.Comma(int64(s.WithFinal)), pct(s.Coverage()))
	_, _ = fmt.Fprintf(out, "Permanent misses: %s\n", humanize.Comma(int64(s.PermanentMisses)))
}

// formatCascade writes the per-stage funnel of a cascade pass.
func formatCascade(out io.Writer, r *pipeline.CascadeReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tENTERED\tRECOVERED")
	for _, s := range r.Stages {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Stage, humanize.Comma(int64(s.Entered)), humanize.Comma(int64(s.Recovered)))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "Recovered %s, still not found %s\n",
		humanize.Comma(int64(r.Recovered())), humanize.Comma(int64(r.Remaining())))
}

// formatRunsList writes a tabular list of ledger runs.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tSTATUS\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = humanize.RelTime(r.StartedAt, *r.FinishedAt, "", "")
			dur = strings.TrimSpace(dur)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Stage,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

// formatChunkEvents writes the per-chunk events of one run.
func formatChunkEvents(out io.Writer, events []model.ChunkEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PART\tACTION\tTARGETS\tRESOLVED\tDURATION")
	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%03d\t%s\t%s\t%s\t%dms\n",
			ev.Part,
			ev.Action,
			humanize.Comma(int64(ev.Targets)),
			humanize.Comma(int64(ev.Resolved)),
			ev.DurationMs,
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
