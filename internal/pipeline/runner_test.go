package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/s0_data/quality"
	"github.com/wonny/factorlab/internal/s2_factors"
	"github.com/wonny/factorlab/internal/s4_tests"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/testutil"
	"github.com/wonny/factorlab/pkg/logger"
)

func runnerConfig(reports string) *projectconfig.Config {
	return &projectconfig.Config{
		Path:    projectconfig.PathConfig{ReportsDir: reports},
		Sources: testutil.Sources,
		Universe: map[string]projectconfig.Instrument{
			"A": {SectorL0: "COM", SectorL1: "MTL"},
			"B": {SectorL0: "COM", SectorL1: "MTL"},
			"C": {SectorL0: "COM", SectorL1: "AUG"},
		},
		Available:          projectconfig.AvailableConfig{Win: 2, AmountThreshold: 50, WinVol: 3, WinVolMin: 2},
		CSS:                projectconfig.CSSConfig{VMAWin: 2, VMAThreshold: 1, VMAWgt: 0.5, SEVWin: 3},
		ICov:               projectconfig.ICovConfig{Win: 3},
		Tst:                projectconfig.TstConfig{Wins: []int{1}, WinsIC: []int{1}, WinsVT: []int{1}},
		FactorDecayDefault: projectconfig.DecayConfig{Rate: 0.5, Win: 3},
		Factors: map[string]projectconfig.FactorConfig{
			"CORR": {Args: projectconfig.ArgsConfig{Wins: []int{3}, Lbds: []float64{0.5}}},
		},
	}
}

// newRunner seeds 20 days of preprocess data for A, B and C
func newRunner(t *testing.T) (*Runner, []string) {
	t.Helper()
	cal := testutil.Calendar(t, 20)
	b := testutil.Store(t)
	dates := cal.IterList("20240101", "20240201")
	require.Len(t, dates, 20)

	for k, inst := range []string{"A", "B", "C"} {
		rows := make([]store.Record, len(dates))
		for i, d := range dates {
			r := store.NewRecord(d)
			r.Labels["ticker_major"] = inst + "2406"
			r.Values["close_major"] = 10 + float64(i)
			r.Values["return_c_major"] = 0.01 * float64((i*3+k*5)%7-3)
			r.Values["return_o_major"] = 0.005 * float64((i*2+k)%5-2)
			r.Values["vol_major"] = 100 + 10*float64((i*5+k)%9)
			r.Values["amount_major"] = 1000 * float64(k+1)
			rows[i] = r
		}
		testutil.Write(t, b, s0_data.PreprocessSchema("preprocess", inst), rows)
	}

	r := NewRunner(Options{
		Backend: b,
		Cal:     cal,
		Config:  runnerConfig(t.TempDir()),
		Pool:    s2_factors.PoolConfig{Workers: 2},
		Quality: quality.DefaultConfig(),
		Logger:  logger.Nop(),
	})
	return r, dates
}

func TestDailyRunsEveryStage(t *testing.T) {
	ctx := context.Background()
	r, dates := newRunner(t)

	result, err := r.Daily(ctx, dates[10], dates[15])
	require.NoError(t, err)
	assert.Equal(t, []string{"avlb", "mkt", "css", "icov", "factor:CORR", "signals:CORR"}, result.CompletedStages)
	assert.False(t, result.Quality.Passed, "minute bars are configured but empty")
	assert.Equal(t, 3, result.Report.Total)
	assert.Zero(t, result.Report.Failed())

	avlb, err := r.AvailableAt(ctx, dates[10])
	require.NoError(t, err)
	assert.Len(t, avlb, 3)
	for _, row := range avlb {
		assert.Equal(t, dates[10], row.TradeDate)
	}

	_, err = r.AvailableAt(ctx, "20240106")
	require.ErrorIs(t, err, calendar.ErrDateNotFound, "weekend")

	raw, names, err := r.FactorsAt(ctx, store.StageRaw, "CORR", dates[12])
	require.NoError(t, err)
	assert.Len(t, raw, 3)
	assert.NotEmpty(t, names)

	css, err := r.CSSRange(ctx, dates[10], dates[15])
	require.NoError(t, err)
	assert.Len(t, css, 5)

	insts, cov, err := r.ICovAt(ctx, dates[12])
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, insts)
	n, _ := cov.Dims()
	assert.Equal(t, 3, n)
	assert.Equal(t, cov.At(0, 2), cov.At(2, 0))

	// re-running the same range only hits continuity skips
	_, err = r.Daily(ctx, dates[10], dates[15])
	require.NoError(t, err)
	avlb, err = r.AvailableAt(ctx, dates[10])
	require.NoError(t, err)
	assert.Len(t, avlb, 3)
}

func TestTestReturnsAndQTests(t *testing.T) {
	ctx := context.Background()
	r, dates := newRunner(t)
	_, err := r.Daily(ctx, dates[10], dates[15])
	require.NoError(t, err)

	rets := s4_tests.Rets(r.Config().Tst.Wins)
	report, err := r.TestReturns(ctx, rets, dates[10], dates[15])
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 6, report.Total)

	cls := []s4_tests.Ret{{Class: s4_tests.ClassCls, Win: 1, Lag: 1}}
	report, err = r.QTests(ctx, s4_tests.KindIC, "CORR", cls, nil, dates[12], dates[15])
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.Total)

	data, err := os.ReadFile(filepath.Join(r.Config().Path.ReportsDir, "ic_tests", "ewa", "CORR-Cls001L1-CDecayR05W03.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "factor,trade_year,IC,IR\n"))
}

func TestQualityStoresDailyScores(t *testing.T) {
	ctx := context.Background()
	r, dates := newRunner(t)

	snap, err := r.Quality(ctx, dates[0], dates[5])
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Dates)
	assert.InDelta(t, 1.0, snap.Coverage[s0_data.KindPreprocess], 1e-12)

	rows, err := r.backend.Table(quality.Schema()).ReadByRange(ctx, dates[0], dates[19])
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestFactorsUnknownClass(t *testing.T) {
	r, dates := newRunner(t)
	_, err := r.Factors(context.Background(), "NOPE", dates[10], dates[15])
	assert.ErrorIs(t, err, s2_factors.ErrUnknownClass)
}
