package market

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/testutil"
	"github.com/wonny/factorlab/pkg/logger"
)

func cssReturn(day, k int) float64 { return 0.01 * float64((day*7+k*3)%5-2) }

var cssInstruments = []avlbRow{{inst: "A", sector: "X"}, {inst: "B", sector: "X"}, {inst: "C", sector: "Y"}, {inst: "D", sector: "Y"}}

func newCrossSection(t *testing.T) (*CrossSection, []string) {
	t.Helper()
	ctx := context.Background()
	cal := testutil.Calendar(t, 8)
	b := testutil.Store(t)
	dates := cal.IterList("20240101", "20240201")

	days := map[string][]avlbRow{}
	for i, d := range dates {
		for k, a := range cssInstruments {
			a.ret = cssReturn(i, k)
			a.amt = 100 * float64(k+1)
			days[d] = append(days[d], a)
		}
	}
	writeAvailable(t, b, days)

	cfg := &projectconfig.Config{
		Universe: map[string]projectconfig.Instrument{
			"A": {SectorL1: "X"}, "B": {SectorL1: "X"}, "C": {SectorL1: "Y"}, "D": {SectorL1: "Y"},
		},
		CSS: projectconfig.CSSConfig{VMAWin: 2, VMAThreshold: 1, VMAWgt: 0.5, SEVWin: 3},
	}
	require.NoError(t, NewMarket(b, cal, cfg, nil, logger.Nop()).Run(ctx, dates[0], "20240201"))
	return NewCrossSection(b, cal, cfg, nil, logger.Nop()), dates
}

func TestCrossSectionBuild(t *testing.T) {
	css, dates := newCrossSection(t)
	rows, err := css.Build(context.Background(), dates[0], "20240201")
	require.NoError(t, err)
	require.Len(t, rows, 8)

	day := func(i int) ([]float64, []float64) {
		rets := make([]float64, 4)
		amts := make([]float64, 4)
		for k := range rets {
			rets[k], amts[k] = cssReturn(i, k), 100*float64(k+1)
		}
		return rets, amts
	}
	r0, a0 := day(0)
	r1, a1 := day(1)
	vol0, vol1 := stats.WeightedVolatility(r0, a0), stats.WeightedVolatility(r1, a1)
	assert.InDelta(t, vol0, rows[0].Value(ColVolatility), 1e-12)
	assert.InDelta(t, stats.Skew(r0), rows[0].Value(ColSkewness), 1e-12)

	assert.True(t, math.IsNaN(rows[0].Value(ColVMA)))
	assert.InDelta(t, (vol0+vol1)/2, rows[1].Value(ColVMA), 1e-12)
	assert.Equal(t, 0.5, rows[0].Value(ColTotWgt), "undefined vma takes vma_wgt")
	assert.Equal(t, 1.0, rows[1].Value(ColTotWgt))

	wantX := (stats.WeightedVolatility(r0[:2], a0[:2]) + stats.WeightedVolatility(r1[:2], a1[:2])) / 2
	assert.InDelta(t, wantX, rows[1].Value(SectorVolatilityColumn("X")), 1e-12)

	for i := 0; i < 2; i++ {
		assert.True(t, math.IsNaN(rows[i].Value(ColDCov)))
	}
	assert.Equal(t, 0.0, rows[2].Value(ColDCov), "first window has no previous covariance")
	assert.False(t, math.IsNaN(rows[3].Value(ColDCov)))

	for i := 0; i < 7; i++ {
		assert.True(t, math.IsNaN(rows[i].Value(ColSEV)), "row %d", i)
	}
	assert.False(t, math.IsNaN(rows[7].Value(ColSEV)))

	for i := 0; i < 4; i++ {
		assert.True(t, math.IsNaN(rows[i].Value(ColVolatilitySector)))
	}
	assert.False(t, math.IsNaN(rows[4].Value(ColVolatilitySector)))
}

func TestCrossSectionTruncatesToBgn(t *testing.T) {
	ctx := context.Background()
	css, dates := newCrossSection(t)
	full, err := css.Build(ctx, dates[0], "20240201")
	require.NoError(t, err)

	rows, err := css.Build(ctx, dates[3], "20240201")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, dates[3], rows[0].TradeDate)
	// the buffer covers max(vma_win, sev_win) days, enough for the rolling means
	assert.InDelta(t, full[3].Value(ColVMA), rows[0].Value(ColVMA), 1e-12)
	assert.InDelta(t, full[3].Value(ColDMA), rows[0].Value(ColDMA), 1e-12)

	require.NoError(t, css.Run(ctx, dates[3], "20240201"))
	require.NoError(t, css.Run(ctx, dates[3], "20240201"))
	stored, err := css.Load(ctx, dates[0], "20240201")
	require.NoError(t, err)
	assert.Len(t, stored, 5)
	assert.Contains(t, CSSSchema(css.cfg).Values, "volatility_Y")
}

func TestComputeDayDispersion(t *testing.T) {
	var rows []store.Record
	for i, g := range []string{"a", "b", "b", "c", "c", "c", "d", "d"} {
		r := store.NewRecord("20240102")
		r.Labels["sectorL1"] = g
		r.Values["return"] = float64(i + 1)
		r.Values["amount"] = 1
		rows = append(rows, r)
	}
	ds, err := ComputeDay(rows)
	require.NoError(t, err)
	assert.InDelta(t, 3.0/42, ds.Dispersion, 1e-12)
	assert.Len(t, ds.SectorVolatility, 4)
	assert.Equal(t, 0.0, ds.SectorVolatility["a"])
}

func TestSignificantEigenRatio(t *testing.T) {
	// two perfectly correlated columns: eigenvalues 2 and 0
	x := mat.NewDense(4, 3, []float64{
		1, 2, 5,
		2, 4, 5,
		3, 6, 5,
		1, 2, 5,
	})
	assert.InDelta(t, 1.0, SignificantEigenRatio(x), 1e-9, "constant column is ignored")

	flat := mat.NewDense(3, 1, []float64{1, 1, 1})
	assert.True(t, math.IsNaN(SignificantEigenRatio(flat)))
}

func TestCovDiff(t *testing.T) {
	cur := map[[2]string]float64{{"A", "A"}: 3, {"A", "B"}: 1, {"B", "A"}: 1, {"B", "B"}: 2}
	prev := map[[2]string]float64{{"A", "A"}: 1}
	assert.InDelta(t, 2.0, covDiff(cur, prev, []string{"A", "B"}, map[string]bool{"A": true}), 1e-12)
	assert.True(t, math.IsNaN(covDiff(cur, prev, []string{"B"}, map[string]bool{"A": true})), "no shared instrument")
	assert.True(t, math.IsNaN(covDiff(cur, nil, nil, nil)))
}

func TestSevDCovWithoutSharedInstruments(t *testing.T) {
	dates := []string{"20240102", "20240103", "20240104", "20240105"}
	members := [][]string{{"A", "B"}, {"A", "B"}, {"A", "B"}, {"C", "D"}}
	byDate := map[string][]store.Record{}
	for i, d := range dates {
		for k, inst := range members[i] {
			r := store.NewRecord(d)
			r.Labels[s1_universe.ColInstrument] = inst
			r.Values[s1_universe.ColReturn] = cssReturn(i, k)
			byDate[d] = append(byDate[d], r)
		}
	}

	_, dcov := sevDCov(dates, byDate, 2)
	require.Len(t, dcov, 4)
	assert.True(t, math.IsNaN(dcov[0]))
	assert.Equal(t, 0.0, dcov[1])
	assert.False(t, math.IsNaN(dcov[2]))
	assert.True(t, math.IsNaN(dcov[3]), "universe fully replaced")
}
