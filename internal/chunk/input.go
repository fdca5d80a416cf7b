package chunk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

// ErrNoAddressColumn reports an input table without the configured address
// column.
var ErrNoAddressColumn = eris.New("chunk: address column not found")

// Supported input encodings.
const (
	EncodingAuto     = "auto"
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"
	EncodingEUCJP    = "euc-jp"
)

// sniffBytes is how much of the file encoding detection looks at.
const sniffBytes = 64 << 10

// InputOptions describes how to read the input table.
type InputOptions struct {
	IDColumn      string
	AddressColumn string
	Encoding      string // auto, utf-8, shift_jis or euc-jp
	HasHeader     bool
	ChunkSize     int
}

// Input is an opened, validated input table.
type Input struct {
	path     string
	opts     InputOptions
	encoding string
	header   []string
	idIdx    int // -1 uses the 1-based record number
	addrIdx  int
}

// OpenInput validates the input table: it detects the encoding and locates
// the id and address columns. The file is re-read for every pass.
func OpenInput(path string, opts InputOptions) (*Input, error) {
	if opts.ChunkSize <= 0 {
		return nil, eris.Errorf("chunk: chunk size must be positive, got %d", opts.ChunkSize)
	}

	enc, err := resolveEncoding(path, opts.Encoding)
	if err != nil {
		return nil, err
	}

	in := &Input{path: path, opts: opts, encoding: enc, idIdx: 0, addrIdx: 1}
	if !opts.HasHeader {
		return in, nil
	}

	f, r, err := in.open()
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	header, err := r.Read()
	if err == io.EOF {
		return nil, eris.Errorf("chunk: input %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "chunk: read header of %s", path)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	in.header = header

	in.addrIdx = indexOf(header, opts.AddressColumn)
	if in.addrIdx < 0 {
		return nil, eris.Wrapf(ErrNoAddressColumn, "%q not in columns [%s]", opts.AddressColumn, strings.Join(header, ", "))
	}
	in.idIdx = indexOf(header, opts.IDColumn)
	if in.idIdx < 0 {
		zap.L().Warn("chunk: id column not found, using record numbers",
			zap.String("id_column", opts.IDColumn),
			zap.Strings("columns", header),
		)
	}
	return in, nil
}

// Path returns the input file path.
func (in *Input) Path() string { return in.path }

// Encoding returns the detected or configured encoding.
func (in *Input) Encoding() string { return in.encoding }

// Header returns the header row, or nil for header-less tables.
func (in *Input) Header() []string { return in.header }

// ChunkSize returns the configured chunk size.
func (in *Input) ChunkSize() int { return in.opts.ChunkSize }

// Chunks streams the input as consecutive chunks numbered from 1. Both
// channels are closed when the input is exhausted or ctx is cancelled.
func (in *Input) Chunks(ctx context.Context) (<-chan model.Chunk, <-chan error) {
	chunkCh := make(chan model.Chunk)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		stopped := false
		send := func(c model.Chunk) bool {
			select {
			case chunkCh <- c:
				return true
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "chunk: context cancelled")
				stopped = true
				return false
			}
		}

		cur := model.Chunk{Part: 1, Records: make([]model.Record, 0, in.opts.ChunkSize)}
		err := in.scan(ctx, func(rec model.Record) bool {
			cur.Records = append(cur.Records, rec)
			if len(cur.Records) < in.opts.ChunkSize {
				return true
			}
			if !send(cur) {
				return false
			}
			cur = model.Chunk{Part: cur.Part + 1, Records: make([]model.Record, 0, in.opts.ChunkSize)}
			return true
		})
		if err != nil {
			errCh <- err
			return
		}
		if !stopped && len(cur.Records) > 0 {
			send(cur)
		}
	}()

	return chunkCh, errCh
}

// Count returns the number of records in the input.
func (in *Input) Count(ctx context.Context) (int, error) {
	n := 0
	err := in.scan(ctx, func(model.Record) bool {
		n++
		return true
	})
	return n, err
}

// PartCount returns K, the number of chunks the input splits into.
func (in *Input) PartCount(ctx context.Context) (int, error) {
	n, err := in.Count(ctx)
	if err != nil {
		return 0, err
	}
	return (n + in.opts.ChunkSize - 1) / in.opts.ChunkSize, nil
}

// scan calls fn for every record in order until fn returns false.
func (in *Input) scan(ctx context.Context, fn func(model.Record) bool) error {
	f, r, err := in.open()
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if in.opts.HasHeader {
		if _, err := r.Read(); err != nil {
			if err == io.EOF {
				return nil
			}
			return eris.Wrapf(err, "chunk: read header of %s", in.path)
		}
	}

	n := 0
	for {
		if n%1024 == 0 && ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "chunk: context cancelled")
		}
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "chunk: read %s", in.path)
		}
		n++
		if !fn(in.record(row, n)) {
			return nil
		}
	}
}

func (in *Input) record(row []string, n int) model.Record {
	rec := model.Record{ID: strconv.Itoa(n)}
	if in.idIdx >= 0 && in.idIdx < len(row) {
		rec.ID = strings.TrimSpace(row[in.idIdx])
	}
	if in.addrIdx < len(row) {
		rec.Address = row[in.addrIdx]
	}
	return rec
}

func (in *Input) open() (*os.File, *csv.Reader, error) {
	f, err := os.Open(in.path) //nolint:gosec
	if err != nil {
		return nil, nil, eris.Wrapf(err, "chunk: open input %s", in.path)
	}

	var r io.Reader = f
	switch in.encoding {
	case EncodingShiftJIS:
		r = transform.NewReader(f, japanese.ShiftJIS.NewDecoder())
	case EncodingEUCJP:
		r = transform.NewReader(f, japanese.EUCJP.NewDecoder())
	default:
		r = skipBOM(f)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return f, cr, nil
}

func resolveEncoding(path, enc string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", EncodingAuto:
		return detectEncoding(path)
	case EncodingUTF8, "utf8", "utf-8-sig":
		return EncodingUTF8, nil
	case EncodingShiftJIS, "sjis", "cp932", "windows-31j":
		return EncodingShiftJIS, nil
	case EncodingEUCJP, "eucjp":
		return EncodingEUCJP, nil
	default:
		return "", eris.Errorf("chunk: unsupported encoding %q", enc)
	}
}

// detectEncoding treats a file as UTF-8 when it has a BOM or its leading
// bytes are valid UTF-8, and as Shift_JIS otherwise.
func detectEncoding(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return "", eris.Wrapf(err, "chunk: open input %s", path)
	}
	defer f.Close() //nolint:errcheck

	buf := make([]byte, sniffBytes)
	n, err := io.ReadFull(bufio.NewReader(f), buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", eris.Wrapf(err, "chunk: sniff %s", path)
	}
	sample := buf[:n]

	if bytes.HasPrefix(sample, utf8BOM) {
		return EncodingUTF8, nil
	}
	if n == sniffBytes {
		sample = trimPartialRune(sample)
	}
	if utf8.Valid(sample) {
		return EncodingUTF8, nil
	}
	return EncodingShiftJIS, nil
}

// trimPartialRune drops an incomplete UTF-8 sequence cut off at the end of
// a sample.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

func indexOf(header []string, name string) int {
	name = strings.TrimSpace(name)
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
