package s1_universe

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/testutil"
	"github.com/wonny/factorlab/pkg/logger"
)

func testConfig() *projectconfig.Config {
	return &projectconfig.Config{
		Universe: map[string]projectconfig.Instrument{
			"A": {SectorL0: "COM", SectorL1: "MTL"},
			"B": {SectorL0: "COM", SectorL1: "AUG"},
			"C": {SectorL0: "COM", SectorL1: "MTL"},
		},
		Available: projectconfig.AvailableConfig{Win: 2, AmountThreshold: 100, WinVol: 3, WinVolMin: 2},
	}
}

func seed(t *testing.T, b store.Backend, inst string, dates []string, ret, amt []float64) {
	t.Helper()
	rows := make([]store.Record, len(dates))
	for i, d := range dates {
		rows[i] = store.NewRecord(d)
		rows[i].Labels["ticker_major"] = inst
		rows[i].Values["return_c_major"] = ret[i]
		rows[i].Values["amount_major"] = amt[i]
	}
	testutil.Write(t, b, s0_data.PreprocessSchema("preprocess", inst), rows)
}

func newBuilder(t *testing.T) (*Builder, store.Backend) {
	t.Helper()
	cal := testutil.Calendar(t, 12)
	b := testutil.Store(t)
	dates := cal.IterList("20240101", "20240110")
	require.Len(t, dates, 7)

	nan := math.NaN()
	ret := []float64{0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07}
	seed(t, b, "A", dates, ret, []float64{200, 200, 200, 200, 200, 200, 200})
	seed(t, b, "B", dates, ret, []float64{200, nan, 200, 200, 200, 200, 200})
	seed(t, b, "C", dates, ret, []float64{0, 0, 0, 0, 300, 300, 300})

	src := s0_data.NewSources(b, testutil.Sources)
	return NewBuilder(src, b, cal, testConfig(), nil, logger.Nop()), b
}

func TestBuildAdmissionStartsAtCrossingDate(t *testing.T) {
	builder, _ := newBuilder(t)
	rows, _, err := builder.Build(context.Background(), "20240103", "20240110")
	require.NoError(t, err)
	require.Len(t, rows, 13)

	var cDates []string
	for _, r := range rows {
		if r.Label(ColInstrument) == "C" {
			cDates = append(cDates, r.TradeDate)
		}
	}
	assert.Equal(t, []string{"20240105", "20240108", "20240109"}, cDates)

	// sorted by (trade_date, sectorL1)
	assert.Equal(t, "20240103", rows[0].TradeDate)
	assert.Equal(t, "B", rows[0].Label(ColInstrument))
	assert.Equal(t, "A", rows[1].Label(ColInstrument))
	assert.Equal(t, "AUG", rows[2].Label(ColSectorL1))

	first := rows[0]
	assert.Equal(t, "COM", first.Label(ColSectorL0))
	assert.InDelta(t, 0.03, first.Value(ColReturn), 1e-12)
	assert.InDelta(t, 200, first.Value(ColAmount), 1e-12)
	assert.InDelta(t, 0.01, first.Value(ColVolatility), 1e-12)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	builder, b := newBuilder(t)

	sum, err := builder.Run(ctx, "20240103", "20240108")
	require.NoError(t, err)
	assert.True(t, sum.Written)
	assert.Equal(t, 7, sum.Rows)
	assert.Equal(t, map[string]string{}, sum.Excluded)

	sum, err = builder.Run(ctx, "20240103", "20240108")
	require.NoError(t, err)
	assert.False(t, sum.Written)

	sum, err = builder.Run(ctx, "20240108", "20240110")
	require.NoError(t, err)
	assert.True(t, sum.Written)

	repo := NewRepository(b, testutil.Calendar(t, 12))
	rows, err := repo.Load(ctx, "20240101", "20240110")
	require.NoError(t, err)
	assert.Len(t, rows, 13)

	insts, err := repo.Instruments(ctx, "20240104")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, insts)

	_, err = repo.Instruments(ctx, "20240106")
	require.ErrorIs(t, err, calendar.ErrDateNotFound)

	dates, byDate := Index(rows)
	assert.Equal(t, []string{"20240103", "20240104", "20240105", "20240108", "20240109"}, dates)
	assert.Len(t, byDate["20240105"], 3)
}

func TestCheckExclusion(t *testing.T) {
	builder := &Builder{cfg: testConfig()}
	tests := []struct {
		amt  float64
		want string
	}{
		{150, ""},
		{100, ""},
		{99, "average amount below threshold (99)"},
		{math.NaN(), "amount history shorter than window"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, builder.checkExclusion(tt.amt))
	}
}
