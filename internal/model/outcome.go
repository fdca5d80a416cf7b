package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Status is the closed set of per-record resolution outcomes.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusEmptyAddress       Status = "empty_address"       // no input to resolve, not a failure
	StatusNotFound           Status = "not_found"           // service reached, zero candidates
	StatusCommunicationError Status = "communication_error" // malformed or unexpected response
	StatusTimeout            Status = "timeout"             // no response within the deadline
)

// Statuses lists every Status in report order.
var Statuses = []Status{
	StatusSuccess,
	StatusEmptyAddress,
	StatusNotFound,
	StatusCommunicationError,
	StatusTimeout,
}

// ParseStatus converts a persisted status string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.Valid() {
		return "", eris.Errorf("model: unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusEmptyAddress, StatusNotFound, StatusCommunicationError, StatusTimeout:
		return true
	default:
		return false
	}
}

// IsError reports whether s is an error outcome. An empty address is a
// terminal state of its own, not an error.
func (s Status) IsError() bool {
	return s == StatusNotFound || s == StatusCommunicationError || s == StatusTimeout
}

// Transient reports whether a later attempt might change the outcome
// without rewriting the address.
func (s Status) Transient() bool {
	return s == StatusCommunicationError || s == StatusTimeout
}

// Outcome is the result of resolving one address.
type Outcome struct {
	MatchedAddress string
	Latitude       *float64
	Longitude      *float64
	Status         Status
	Detail         string // diagnostic for error outcomes, e.g. "HTTP 503"
}

// HasCoordinates reports whether both coordinates are present.
func (o Outcome) HasCoordinates() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// Success builds a successful outcome for the given candidate.
func Success(matched string, lat, lon float64) Outcome {
	return Outcome{
		MatchedAddress: matched,
		Latitude:       &lat,
		Longitude:      &lon,
		Status:         StatusSuccess,
	}
}

// Failure builds an error outcome with a diagnostic detail.
func Failure(status Status, detail string) Outcome {
	return Outcome{Status: status, Detail: detail}
}

// EmptyAddress is the terminal outcome for records with no address.
func EmptyAddress() Outcome {
	return Outcome{Status: StatusEmptyAddress}
}

// NearMatch is a cascade-recovered location for a record whose original
// address was not found. It never replaces the direct Outcome.
type NearMatch struct {
	Address   string // the rewritten address that resolved
	Latitude  float64
	Longitude float64
	Stage     string // cascade stage that produced the rewrite
}
