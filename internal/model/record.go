package model

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one input entity: a stable identifier and a free-text address.
type Record struct {
	ID      string
	Address string
}

// Chunk is a contiguous, fixed-size partition of the input records.
// Parts are numbered from 1.
type Chunk struct {
	Part    int
	Records []Record
}

// Row is one line of a chunk result file. Coordinates are kept as text so
// a file round-trips byte for byte.
type Row struct {
	ID             string `csv:"id"`
	Address        string `csv:"address"`
	MatchedAddress string `csv:"matched_address"`
	Latitude       string `csv:"latitude"`
	Longitude      string `csv:"longitude"`
	Status         Status `csv:"status"`
	Detail         string `csv:"detail"`
	NearAddress    string `csv:"near_address"`
	NearLatitude   string `csv:"near_latitude"`
	NearLongitude  string `csv:"near_longitude"`
	NearStage      string `csv:"near_stage"`
}

// NewRow builds a result row from a record and its outcome.
func NewRow(rec Record, out Outcome) Row {
	r := Row{ID: rec.ID, Address: rec.Address}
	r.SetOutcome(out)
	return r
}

// SetOutcome overwrites the direct-resolution fields of the row. Near-match
// fields are left untouched.
func (r *Row) SetOutcome(out Outcome) {
	r.MatchedAddress = out.MatchedAddress
	r.Latitude = formatCoord(out.Latitude)
	r.Longitude = formatCoord(out.Longitude)
	r.Status = out.Status
	r.Detail = out.Detail
}

// Outcome returns the direct-resolution outcome stored in the row.
func (r Row) Outcome() (Outcome, error) {
	lat, err := parseCoord(r.Latitude)
	if err != nil {
		return Outcome{}, eris.Wrapf(err, "model: row %s latitude", r.ID)
	}
	lon, err := parseCoord(r.Longitude)
	if err != nil {
		return Outcome{}, eris.Wrapf(err, "model: row %s longitude", r.ID)
	}
	return Outcome{
		MatchedAddress: r.MatchedAddress,
		Latitude:       lat,
		Longitude:      lon,
		Status:         r.Status,
		Detail:         r.Detail,
	}, nil
}

// SetNear records a cascade-recovered match.
func (r *Row) SetNear(n NearMatch) {
	r.NearAddress = n.Address
	r.NearLatitude = strconv.FormatFloat(n.Latitude, 'f', -1, 64)
	r.NearLongitude = strconv.FormatFloat(n.Longitude, 'f', -1, 64)
	r.NearStage = n.Stage
}

// HasNear reports whether the cascade already recovered this row.
func (r Row) HasNear() bool {
	return r.NearLatitude != "" && r.NearLongitude != ""
}

// Unresolved reports whether the row is still waiting for the cascade.
func (r Row) Unresolved() bool {
	return r.Status == StatusNotFound && !r.HasNear()
}

// Validate checks that the row carries exactly one well-formed outcome.
func (r Row) Validate() error {
	if !r.Status.Valid() {
		return eris.Errorf("model: row %s has no outcome (status %q)", r.ID, r.Status)
	}
	out, err := r.Outcome()
	if err != nil {
		return err
	}
	switch {
	case r.Status == StatusSuccess && !out.HasCoordinates():
		return eris.Errorf("model: row %s succeeded without coordinates", r.ID)
	case r.Status != StatusSuccess && (out.Latitude != nil || out.Longitude != nil):
		return eris.Errorf("model: row %s has coordinates with status %s", r.ID, r.Status)
	case r.Status == StatusEmptyAddress && strings.TrimSpace(r.Address) != "":
		return eris.Errorf("model: row %s marked empty but has an address", r.ID)
	}
	if r.HasNear() && r.Status != StatusNotFound {
		return eris.Errorf("model: row %s has a near match with status %s", r.ID, r.Status)
	}
	if _, err := parseCoord(r.NearLatitude); err != nil {
		return eris.Wrapf(err, "model: row %s near latitude", r.ID)
	}
	if _, err := parseCoord(r.NearLongitude); err != nil {
		return eris.Wrapf(err, "model: row %s near longitude", r.ID)
	}
	return nil
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseCoord(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
