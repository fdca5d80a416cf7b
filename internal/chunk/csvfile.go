package chunk

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// tempPrefix marks in-progress writes. Files with this prefix are never
// treated as results and are removed by CleanTemp.
const tempPrefix = ".tmp-"

// Writer streams typed rows into a temporary file and atomically moves it
// into place on Commit. A reader never observes a partially written file.
type Writer[T any] struct {
	path   string
	tmp    *os.File
	bw     *bufio.Writer
	cw     *csv.Writer
	enc    *csvutil.Encoder
	rows   int
	closed bool
}

// Create starts writing a CSV file that will replace path on Commit.
func Create[T any](path string, bom bool) (*Writer[T], error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return nil, eris.Wrapf(err, "chunk: create temp for %s", filepath.Base(path))
	}

	bw := bufio.NewWriterSize(tmp, 256<<10)
	if bom {
		if _, err := bw.Write(utf8BOM); err != nil {
			tmp.Close()           //nolint:errcheck,gosec
			os.Remove(tmp.Name()) //nolint:errcheck,gosec
			return nil, eris.Wrapf(err, "chunk: write %s", tmp.Name())
		}
	}
	cw := csv.NewWriter(bw)
	return &Writer[T]{path: path, tmp: tmp, bw: bw, cw: cw, enc: csvutil.NewEncoder(cw)}, nil
}

// Write appends rows.
func (w *Writer[T]) Write(rows ...T) error {
	for i := range rows {
		if err := w.enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "chunk: encode row %d of %s", w.rows+1, filepath.Base(w.path))
		}
		w.rows++
	}
	return nil
}

// Rows returns the number of rows written so far.
func (w *Writer[T]) Rows() int { return w.rows }

// Commit flushes the file and renames it over the destination.
func (w *Writer[T]) Commit() error {
	if w.closed {
		return eris.Errorf("chunk: %s already closed", filepath.Base(w.path))
	}
	w.closed = true
	tmpName := w.tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if w.rows == 0 {
		var zero T
		if err := w.enc.EncodeHeader(zero); err != nil {
			w.tmp.Close() //nolint:errcheck,gosec
			return eris.Wrapf(err, "chunk: encode header %s", filepath.Base(w.path))
		}
	}
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		w.tmp.Close() //nolint:errcheck,gosec
		return eris.Wrapf(err, "chunk: flush %s", filepath.Base(w.path))
	}
	if err := w.bw.Flush(); err != nil {
		w.tmp.Close() //nolint:errcheck,gosec
		return eris.Wrapf(err, "chunk: flush %s", filepath.Base(w.path))
	}
	if err := w.tmp.Sync(); err != nil {
		w.tmp.Close() //nolint:errcheck,gosec
		return eris.Wrapf(err, "chunk: sync %s", tmpName)
	}
	if err := w.tmp.Close(); err != nil {
		return eris.Wrapf(err, "chunk: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "chunk: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return eris.Wrapf(err, "chunk: rename %s", filepath.Base(w.path))
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (w *Writer[T]) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.tmp.Close()           //nolint:errcheck,gosec
	os.Remove(w.tmp.Name()) //nolint:errcheck,gosec
}

// WriteFile encodes rows as CSV with a header and atomically replaces path.
func WriteFile[T any](path string, rows []T, bom bool) error {
	w, err := Create[T](path, bom)
	if err != nil {
		return err
	}
	if err := w.Write(rows...); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}

// ReadFile decodes a CSV file written by WriteFile. A leading BOM is
// ignored.
func ReadFile[T any](path string) ([]T, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, eris.Wrapf(err, "chunk: open %s", filepath.Base(path))
	}
	defer f.Close() //nolint:errcheck

	rows, err := decodeAll[T](skipBOM(f))
	if err != nil {
		return nil, eris.Wrapf(err, "chunk: decode %s", filepath.Base(path))
	}
	return rows, nil
}

func decodeAll[T any](r io.Reader) ([]T, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []T
	for {
		var row T
		err := dec.Decode(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// CleanTemp removes leftover temporary files in dir, which only exist when a
// previous process died mid-write. It returns the number removed.
func CleanTemp(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, eris.Wrapf(err, "chunk: list %s", dir)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, eris.Wrapf(err, "chunk: remove %s", e.Name())
		}
		removed++
	}
	return removed, nil
}
