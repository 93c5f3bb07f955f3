package s4_tests

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/s3_signals"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/testutil"
)

func record(date string, v float64) store.Record {
	r := store.NewRecord(date)
	r.Values["F"] = v
	return r
}

func TestSummarizeVT(t *testing.T) {
	rows := []store.Record{
		record("20231228", 0.01),
		record("20231229", 0.03),
		record("20240102", 0.02),
	}
	out := Summarize(KindVT, []string{"F"}, rows)
	require.Len(t, out, 2)

	assert.Equal(t, "2023", out[0].Year)
	v := out[0].Values
	assert.InDelta(t, 2, v[0], 1e-9)
	assert.InDelta(t, math.Sqrt2, v[1], 1e-9)
	assert.InDelta(t, 500, v[2], 1e-9)
	assert.InDelta(t, math.Sqrt2*math.Sqrt(250), v[3], 1e-9)
	assert.InDelta(t, 500/(math.Sqrt2*math.Sqrt(250)), v[4], 1e-9)

	assert.Equal(t, "2024", out[1].Year)
	assert.True(t, math.IsNaN(out[1].Values[1]), "one observation has no std")
}

func TestSummarizeIC(t *testing.T) {
	rows := []store.Record{record("20240102", 0.2), record("20240103", 0.4)}
	out := Summarize(KindIC, []string{"F"}, rows)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.3, out[0].Values[0], 1e-12)
	assert.InDelta(t, 0.3/math.Sqrt(0.02), out[0].Values[1], 1e-9)
}

func TestWriteReportCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vt_tests", "sig", "x.csv")
	err := WriteReport(path, KindVT, []ReportRow{
		{Factor: "F", Year: "2024", Values: []float64{1, 2, 3, 4, math.NaN()}},
	})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "factor,trade_year,mean,std,ann_ret,ann_vol,sharpe\n"+
		"F,2024,1.000000,2.000000,3.000000,4.000000,\n", string(data))
}

func TestFactorCorr(t *testing.T) {
	ctx := context.Background()
	e := newQTestEnv(t)
	cfg := qtestConfig()

	// day 3: REOCDIF = 2x+1, day 4: REOCDIF = -x, day 5: only A
	var rows []store.Record
	for i, pairs := range [][][2]float64{
		{{1, 3}, {2, 5}, {3, 7}},
		{{1, -1}, {2, -2}, {3, -3}},
		{{1, 1}},
	} {
		for k, p := range pairs {
			r := store.NewRecord(e.dates[3+i])
			r.Labels[s1_universe.ColInstrument] = []string{"A", "B", "C"}[k]
			r.Labels[s1_universe.ColSectorL1] = "S"
			r.Values["REOC001"] = p[0]
			r.Values["REOCDIF"] = p[1]
			rows = append(rows, r)
		}
	}
	testutil.Write(t, e.backend, s3_signals.Schema(store.StageEWA, "REOC", qtestNames), rows)

	fc := NewFactorCorr(cfg, e.signals, e.reports)
	out, err := fc.Compute(ctx, "REOC001", "REOCDIF", store.StageEWA, e.dates[0], e.dates[14])
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.InDelta(t, 1, out[0].IC, 1e-12)
	assert.InDelta(t, -1, out[1].IC, 1e-12)
	assert.InDelta(t, 0, out[1].CumSum, 1e-12)
	assert.True(t, math.IsNaN(out[2].IC))

	path, err := fc.Run(ctx, "REOC001", "REOCDIF", store.StageEWA, e.dates[0], e.dates[14])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.reports, "corr", "ic_REOC001_REOCDIF_ema.csv"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "trade_date,ic,ic_cumsum\n")
	assert.Contains(t, string(data), e.dates[5]+",,\n")

	_, err = fc.Compute(ctx, "REOC001", "REOCDIF", store.StageSig, e.dates[0], e.dates[14])
	assert.ErrorIs(t, err, s3_signals.ErrUnknownStage)

	_, err = fc.Compute(ctx, "NOPE", "REOCDIF", store.StageEWA, e.dates[0], e.dates[14])
	assert.Error(t, err)
}
