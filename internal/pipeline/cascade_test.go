package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gsi-geocoder/internal/chunk"
	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/normalize"
)

func geocoded(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, sampleInput, 2)
	_, err := f.p.Geocode(context.Background(), f.in, f.engine(4))
	require.NoError(t, err)
	return f
}

func TestCascade_RecoversNearMatch(t *testing.T) {
	f := geocoded(t)
	part1 := f.readPart(t, 1)

	report, err := f.p.Cascade(context.Background(), f.engine(4), normalize.Default(), nil)
	require.NoError(t, err)

	require.Len(t, report.Stages, 4)
	assert.Equal(t, normalize.WardRename, report.Stages[0].Stage)
	assert.Equal(t, 2, report.Stages[0].Entered)
	assert.Equal(t, 1, report.Stages[0].Recovered)
	for _, s := range report.Stages[1:] {
		assert.Equal(t, 1, s.Entered, s.Stage)
		assert.Equal(t, 0, s.Recovered, s.Stage)
	}
	assert.Equal(t, 1, report.Recovered())
	assert.Equal(t, 1, report.Remaining())
	assert.Equal(t, 1, report.Written)

	rows := f.loadPart(t, 2)
	near := rows[0]
	assert.Equal(t, model.StatusNotFound, near.Status, "direct outcome is never replaced")
	assert.Empty(t, near.Latitude)
	assert.Equal(t, addrTenryuFix, near.NearAddress)
	assert.Equal(t, "34.8728", near.NearLatitude)
	assert.Equal(t, "137.8167", near.NearLongitude)
	assert.Equal(t, normalize.WardRename, near.NearStage)

	assert.Equal(t, part1, f.readPart(t, 1), "resolved rows are never reprocessed")
}

func TestCascade_SkipsResolvedRows(t *testing.T) {
	f := geocoded(t)
	_, err := f.p.Cascade(context.Background(), f.engine(4), normalize.Default(), nil)
	require.NoError(t, err)
	before := f.readPart(t, 2)

	report, err := f.p.Cascade(context.Background(), f.engine(4), normalize.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Written)
	assert.Equal(t, 1, report.Stages[0].Entered, "only the unrecoverable row enters again")
	assert.Equal(t, before, f.readPart(t, 2))
	assert.Equal(t, 1, f.res.callCount(addrTenryuFix), "recovered row is not resolved twice")
}

func TestCascade_StageOrderAndSubset(t *testing.T) {
	f := geocoded(t)
	stages, err := normalize.ByName([]string{normalize.LocalityMarker})
	require.NoError(t, err)

	report, err := f.p.Cascade(context.Background(), f.engine(2), stages, []int{2})
	require.NoError(t, err)
	require.Len(t, report.Stages, 1)
	assert.Equal(t, 1, report.Parts)
	assert.Equal(t, 0, report.Recovered())

	rows := f.loadPart(t, 2)
	assert.False(t, rows[0].HasNear())
}

func TestCascade_NeedsStages(t *testing.T) {
	f := geocoded(t)
	_, err := f.p.Cascade(context.Background(), f.engine(1), nil, nil)
	assert.Error(t, err)
}

func TestCascade_CancelledContext(t *testing.T) {
	f := geocoded(t)
	before := f.readPart(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.p.Cascade(ctx, f.engine(1), normalize.Default(), nil)
	require.Error(t, err)
	assert.Equal(t, before, f.readPart(t, 2))
}

func TestCascade_RejectsMalformedRows(t *testing.T) {
	f := geocoded(t)

	rows, err := f.p.Results().Load(3)
	require.NoError(t, err)
	rows[0].Latitude = "35.0"
	require.NoError(t, f.p.Results().Save(3, rows))
	before := f.readPart(t, 3)

	_, err = f.p.Cascade(context.Background(), f.engine(2), normalize.Default(), nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, chunk.ErrChunkMismatch))
	assert.Equal(t, before, f.readPart(t, 3))
}
