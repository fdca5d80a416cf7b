package pipeline

import (
	"context"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

// PartSummary counts outcomes in one result file.
type PartSummary struct {
	Part               int `json:"part" yaml:"part"`
	Rows               int `json:"rows" yaml:"rows"`
	Success            int `json:"success" yaml:"success"`
	Empty              int `json:"empty_address" yaml:"empty_address"`
	NotFound           int `json:"not_found" yaml:"not_found"`
	Recovered          int `json:"recovered" yaml:"recovered"`
	CommunicationError int `json:"communication_error" yaml:"communication_error"`
	Timeout            int `json:"timeout" yaml:"timeout"`
}

// Other returns the rows that ended in a transient error.
func (p PartSummary) Other() int {
	return p.CommunicationError + p.Timeout
}

// Summary is the overall outcome of a batch. Empty-address records are
// counted apart from failures.
type Summary struct {
	Parts           int                  `json:"parts" yaml:"parts"`
	Total           int                  `json:"total" yaml:"total"`
	Counts          map[model.Status]int `json:"counts" yaml:"counts"`
	Recovered       int                  `json:"recovered" yaml:"recovered"`
	WithFinal       int                  `json:"with_final" yaml:"with_final"`
	PermanentMisses int                  `json:"permanent_misses" yaml:"permanent_misses"`
	PerPart         []PartSummary        `json:"per_part,omitempty" yaml:"per_part,omitempty"`
}

func newSummary() *Summary {
	return &Summary{Counts: make(map[model.Status]int, len(model.Statuses))}
}

func (s *Summary) add(part int, rows []model.Row) {
	ps := PartSummary{Part: part, Rows: len(rows)}
	for _, r := range rows {
		s.Counts[r.Status]++
		switch r.Status {
		case model.StatusSuccess:
			ps.Success++
		case model.StatusEmptyAddress:
			ps.Empty++
		case model.StatusNotFound:
			ps.NotFound++
			if r.HasNear() {
				ps.Recovered++
			}
		case model.StatusCommunicationError:
			ps.CommunicationError++
		case model.StatusTimeout:
			ps.Timeout++
		}

		f := model.Finalize(r)
		if f.HasFinal() {
			s.WithFinal++
		}
		if f.PermanentMiss() {
			s.PermanentMisses++
		}
	}
	s.Parts++
	s.Total += len(rows)
	s.Recovered += ps.Recovered
	s.PerPart = append(s.PerPart, ps)
}

// Empty returns the number of records with no address.
func (s *Summary) Empty() int {
	return s.Counts[model.StatusEmptyAddress]
}

// SuccessRate is the share of records resolved directly.
func (s *Summary) SuccessRate() float64 {
	return ratio(s.Counts[model.StatusSuccess], s.Total)
}

// RecoveredRate is the share of not_found records the cascade recovered.
func (s *Summary) RecoveredRate() float64 {
	return ratio(s.Recovered, s.Counts[model.StatusNotFound])
}

// Coverage is the share of records with final coordinates.
func (s *Summary) Coverage() float64 {
	return ratio(s.WithFinal, s.Total)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Status summarizes the given parts (every existing part when empty)
// without modifying anything.
func (p *Pipeline) Status(ctx context.Context, parts []int) (*Summary, error) {
	selected, err := p.selectParts(parts)
	if err != nil {
		return nil, err
	}

	s := newSummary()
	for _, part := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := p.results.Load(part)
		if err != nil {
			return nil, err
		}
		s.add(part, rows)
	}
	return s, nil
}
