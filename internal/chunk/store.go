// Package chunk partitions the input table into fixed-size chunks and
// persists one result file per chunk.
package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

// ErrChunkMismatch reports a result file whose rows do not line up with the
// input chunk it claims to hold. The file is left untouched.
var ErrChunkMismatch = eris.New("chunk: result file does not match input chunk")

// State is the persistence state of one chunk.
type State int

const (
	// StateMissing means no result file exists yet.
	StateMissing State = iota
	// StateComplete means the result file holds one valid row per record.
	StateComplete
)

func (s State) String() string {
	if s == StateComplete {
		return "complete"
	}
	return "missing"
}

// Store maps part numbers to result files named
// result_<base>_part<NNN>.csv inside dir.
type Store struct {
	dir     string
	base    string
	bom     bool
	partsRe *regexp.Regexp
}

// NewStore creates a Store. bom controls whether saved files start with a
// UTF-8 byte order mark.
func NewStore(dir, base string, bom bool) *Store {
	return &Store{
		dir:     dir,
		base:    base,
		bom:     bom,
		partsRe: regexp.MustCompile(`^result_` + regexp.QuoteMeta(base) + `_part(\d{3,})\.csv$`),
	}
}

// Dir returns the result directory.
func (s *Store) Dir() string { return s.dir }

// Base returns the base name shared by all result files.
func (s *Store) Base() string { return s.base }

// BOM reports whether written files carry a byte order mark.
func (s *Store) BOM() bool { return s.bom }

// Path returns the result file path for a part.
func (s *Store) Path(part int) string {
	return filepath.Join(s.dir, fmt.Sprintf("result_%s_part%03d.csv", s.base, part))
}

// Exists reports whether the result file for part is present.
func (s *Store) Exists(part int) (bool, error) {
	_, err := os.Stat(s.Path(part))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, eris.Wrapf(err, "chunk: stat part %d", part)
}

// Parts lists the part numbers that have a result file, ascending.
func (s *Store) Parts() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "chunk: list %s", s.dir)
	}

	var parts []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := s.partsRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		parts = append(parts, n)
	}
	sort.Ints(parts)
	return parts, nil
}

// Load reads the rows of a part.
func (s *Store) Load(part int) ([]model.Row, error) {
	rows, err := ReadFile[model.Row](s.Path(part))
	if err != nil {
		return nil, eris.Wrapf(err, "chunk: load part %d", part)
	}
	return rows, nil
}

// LoadValid reads the rows of a part and checks that each carries exactly
// one well-formed outcome. A bad row yields ErrChunkMismatch.
func (s *Store) LoadValid(part int) ([]model.Row, error) {
	rows, err := s.Load(part)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return nil, eris.Wrapf(ErrChunkMismatch, "part %d row %d: %v", part, i+1, err)
		}
	}
	return rows, nil
}

// Save atomically writes the rows of a part. Rows must be in input order.
func (s *Store) Save(part int, rows []model.Row) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "chunk: create %s", s.dir)
	}
	if err := WriteFile(s.Path(part), rows, s.bom); err != nil {
		return eris.Wrapf(err, "chunk: save part %d", part)
	}
	return nil
}

// Check compares the stored result of a chunk with its input records. A
// file that exists but disagrees with the input yields ErrChunkMismatch.
func (s *Store) Check(c model.Chunk) (State, error) {
	ok, err := s.Exists(c.Part)
	if err != nil || !ok {
		return StateMissing, err
	}

	rows, err := s.Load(c.Part)
	if err != nil {
		return StateMissing, err
	}
	if err := Verify(c, rows); err != nil {
		return StateMissing, err
	}
	return StateComplete, nil
}

// Verify checks that rows hold exactly one valid outcome per record of c,
// in input order.
func Verify(c model.Chunk, rows []model.Row) error {
	if len(rows) != len(c.Records) {
		return eris.Wrapf(ErrChunkMismatch, "part %d: %d rows for %d records", c.Part, len(rows), len(c.Records))
	}
	for i, rec := range c.Records {
		if rows[i].ID != rec.ID {
			return eris.Wrapf(ErrChunkMismatch, "part %d row %d: id %q, want %q", c.Part, i+1, rows[i].ID, rec.ID)
		}
		if err := rows[i].Validate(); err != nil {
			return eris.Wrapf(ErrChunkMismatch, "part %d row %d: %v", c.Part, i+1, err)
		}
	}
	return nil
}

// CleanTemp removes leftover temporary files from the result directory.
func (s *Store) CleanTemp() (int, error) {
	return CleanTemp(s.dir)
}
