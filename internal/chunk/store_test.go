package chunk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

func sampleChunk() model.Chunk {
	return model.Chunk{Part: 1, Records: []model.Record{
		{ID: "A", Address: "東京都千代田区丸の内1-9-1"},
		{ID: "B", Address: ""},
		{ID: "C", Address: "静岡県浜松市天竜区Y"},
	}}
}

func sampleRows() []model.Row {
	c := sampleChunk()
	return []model.Row{
		model.NewRow(c.Records[0], model.Success("東京都千代田区丸の内一丁目", 35.681236, 139.767125)),
		model.NewRow(c.Records[1], model.EmptyAddress()),
		model.NewRow(c.Records[2], model.Failure(model.StatusNotFound, "")),
	}
}

func TestStore_Path(t *testing.T) {
	s := NewStore("/data/out", "corporations", true)
	assert.Equal(t, filepath.Join("/data/out", "result_corporations_part001.csv"), s.Path(1))
	assert.Equal(t, filepath.Join("/data/out", "result_corporations_part042.csv"), s.Path(42))
	assert.Equal(t, filepath.Join("/data/out", "result_corporations_part1234.csv"), s.Path(1234))
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir(), "input", true)
	rows := sampleRows()

	require.NoError(t, s.Save(1, rows))

	raw, err := os.ReadFile(s.Path(1))
	require.NoError(t, err)
	assert.Equal(t, utf8BOM, raw[:3])

	got, err := s.Load(1)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestStore_SaveIsDeterministic(t *testing.T) {
	s := NewStore(t.TempDir(), "input", false)
	require.NoError(t, s.Save(1, sampleRows()))
	first, err := os.ReadFile(s.Path(1))
	require.NoError(t, err)

	require.NoError(t, s.Save(1, sampleRows()))
	second, err := os.ReadFile(s.Path(1))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, utf8BOM, first[:3])
}

func TestStore_Parts(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "in.put", false)

	require.NoError(t, s.Save(3, sampleRows()))
	require.NoError(t, s.Save(1, sampleRows()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "result_inXput_part002.csv"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "result_other_part002.csv"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-result_in.put_part002.csv-123"), nil, 0o644))

	parts, err := s.Parts()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, parts)
}

func TestStore_PartsMissingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"), "x", false)
	parts, err := s.Parts()
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestStore_Check(t *testing.T) {
	s := NewStore(t.TempDir(), "input", true)
	c := sampleChunk()

	st, err := s.Check(c)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, st)

	require.NoError(t, s.Save(1, sampleRows()))
	st, err = s.Check(c)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, st)
	assert.Equal(t, "complete", st.String())
}

func TestStore_CheckMismatch(t *testing.T) {
	tests := []struct {
		name string
		rows func() []model.Row
	}{
		{"too few rows", func() []model.Row { return sampleRows()[:2] }},
		{"reordered", func() []model.Row {
			r := sampleRows()
			r[0], r[2] = r[2], r[0]
			return r
		}},
		{"missing outcome", func() []model.Row {
			r := sampleRows()
			r[2].Status = ""
			return r
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(t.TempDir(), "input", true)
			require.NoError(t, s.Save(1, tt.rows()))
			before, err := os.ReadFile(s.Path(1))
			require.NoError(t, err)

			_, err = s.Check(sampleChunk())
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrChunkMismatch))

			after, err := os.ReadFile(s.Path(1))
			require.NoError(t, err)
			assert.Equal(t, before, after, "mismatched file must be left untouched")
		})
	}
}

func TestStore_LoadValid(t *testing.T) {
	s := NewStore(t.TempDir(), "input", true)
	require.NoError(t, s.Save(1, sampleRows()))

	rows, err := s.LoadValid(1)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), rows)

	bad := sampleRows()
	bad[1].Status = "garbage"
	require.NoError(t, s.Save(2, bad))

	_, err = s.LoadValid(2)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrChunkMismatch))
	assert.Contains(t, err.Error(), "row 2")
}

func TestStore_CleanTemp(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "input", true)
	require.NoError(t, s.Save(1, sampleRows()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-result_input_part002.csv-99"), []byte("id,addr"), 0o644))

	n, err := s.CleanTemp()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := s.Exists(1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteFile_EmptyHasHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteFile[model.FinalRecord](path, nil, false))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "final_latitude")

	rows, err := ReadFile[model.FinalRecord](path)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWriter_AbortLeavesDestination(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "final.csv")

	w, err := Create[model.Row](path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRows()...))
	assert.Equal(t, len(sampleRows()), w.Rows())
	w.Abort()

	assert.NoFileExists(t, path)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
