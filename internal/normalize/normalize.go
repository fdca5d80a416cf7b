// Package normalize rewrites addresses the service could not find into
// candidate forms it is more likely to recognise. Every stage is a pure
// function of its input.
package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Stage names, in default cascade order.
const (
	WardRename       = "ward_rename"
	StreetConvention = "street_convention"
	MergerMapping    = "merger_mapping"
	LocalityMarker   = "locality_marker"
)

// Stage rewrites an address into an ordered list of candidates. The list
// never contains the input itself or duplicates, and is empty when the
// stage does not apply.
type Stage interface {
	Name() string
	Rewrite(address string) []string
}

type rule struct {
	name    string
	rewrite func(addr string) []string
}

func (r rule) Name() string { return r.name }

func (r rule) Rewrite(address string) []string {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return nil
	}
	return distinct(addr, r.rewrite(addr))
}

var registry = []Stage{
	rule{name: WardRename, rewrite: wardRename},
	rule{name: StreetConvention, rewrite: streetConvention},
	rule{name: MergerMapping, rewrite: mergerMapping},
	rule{name: LocalityMarker, rewrite: localityMarker},
}

// Names returns every stage name in default order.
func Names() []string {
	names := make([]string, len(registry))
	for i, s := range registry {
		names[i] = s.Name()
	}
	return names
}

// Default returns all stages in default order.
func Default() []Stage {
	return append([]Stage(nil), registry...)
}

// ByName returns the named stages in the given order.
func ByName(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return Default(), nil
	}

	seen := make(map[string]bool, len(names))
	stages := make([]Stage, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if seen[n] {
			return nil, eris.Errorf("normalize: stage %q listed twice", n)
		}
		seen[n] = true

		s := lookup(n)
		if s == nil {
			return nil, eris.Errorf("normalize: unknown stage %q (known: %s)", n, strings.Join(Names(), ", "))
		}
		stages = append(stages, s)
	}
	return stages, nil
}

func lookup(name string) Stage {
	for _, s := range registry {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// distinct trims candidates and drops blanks, repeats and the original.
func distinct(orig string, cands []string) []string {
	if len(cands) == 0 {
		return nil
	}
	seen := map[string]bool{orig: true}
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
