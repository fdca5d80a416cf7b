package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewrite(t *testing.T, stage, addr string) []string {
	t.Helper()
	stages, err := ByName([]string{stage})
	require.NoError(t, err)
	return stages[0].Rewrite(addr)
}

func TestByName(t *testing.T) {
	stages, err := ByName(nil)
	require.NoError(t, err)
	require.Len(t, stages, 4)
	assert.Equal(t, []string{WardRename, StreetConvention, MergerMapping, LocalityMarker}, Names())

	stages, err = ByName([]string{"locality_marker", " ward_rename "})
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, LocalityMarker, stages[0].Name())
	assert.Equal(t, WardRename, stages[1].Name())

	_, err = ByName([]string{"spellcheck"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ward_rename")

	_, err = ByName([]string{"ward_rename", "ward_rename"})
	require.Error(t, err)
}

func TestDefaultIsACopy(t *testing.T) {
	d := Default()
	d[0] = nil
	assert.NotNil(t, Default()[0])
}

func TestStages_PureAndDeterministic(t *testing.T) {
	inputs := []string{
		"静岡県浜松市中区元城町103-2",
		"京都府京都市中京区烏丸通御池下る虎屋町577番地",
		"愛知県愛知郡長久手町大字岩作字城の内60番地1",
		"東京都港区芝公園４丁目２－８",
		"",
		"   ",
	}
	for _, s := range Default() {
		for _, in := range inputs {
			first := s.Rewrite(in)
			second := s.Rewrite(in)
			assert.Equal(t, first, second, "%s(%q)", s.Name(), in)
			for _, c := range first {
				assert.NotEqual(t, in, c, "%s must not echo its input", s.Name())
				assert.NotEmpty(t, c)
			}
		}
	}
}

func TestStages_EmptyInput(t *testing.T) {
	for _, s := range Default() {
		assert.Nil(t, s.Rewrite(""), s.Name())
		assert.Nil(t, s.Rewrite(" \t"), s.Name())
	}
}

func TestDistinct(t *testing.T) {
	got := distinct("a", []string{"b", " a ", "", "b", "c "})
	assert.Equal(t, []string{"b", "c"}, got)
	assert.Nil(t, distinct("a", []string{"a", " "}))
}
