package s4_tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/testutil"
	"github.com/wonny/factorlab/internal/workerpool"
	"github.com/wonny/factorlab/pkg/logger"
)

func TestParseRet(t *testing.T) {
	r, err := ParseRet("Cls001L1")
	require.NoError(t, err)
	assert.Equal(t, Ret{Class: ClassCls, Win: 1, Lag: 1}, r)
	assert.Equal(t, "Cls001L1", r.Name())
	assert.Equal(t, 2, r.Shift())
	assert.Equal(t, "return_c_major", r.Column())

	r, err = ParseRet("Opn010L1")
	require.NoError(t, err)
	assert.Equal(t, 11, r.Shift())
	assert.Equal(t, "return_o_major", r.Column())

	for _, bad := range []string{"", "Cls1L1", "Xyz001L1", "Cls00aL1", "Cls001X1"} {
		_, err := ParseRet(bad)
		assert.ErrorIs(t, err, ErrBadReturnName, bad)
	}
}

func TestRets(t *testing.T) {
	names := []string{}
	for _, r := range Rets([]int{1, 10}) {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"Opn001L1", "Opn010L1", "Cls001L1", "Cls010L1"}, names)
}

func workerOpts() workerpool.Options { return workerpool.Options{Workers: 2} }

type env struct {
	backend store.Backend
	dates   []string
	tr      *TestReturns
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cal := testutil.Calendar(t, 15)
	b := testutil.Store(t)
	dates := cal.IterList("20240101", "20240201")
	require.Len(t, dates, 15)

	for k, inst := range []string{"A", "B"} {
		rows := make([]store.Record, len(dates))
		for i, d := range dates {
			rows[i] = store.NewRecord(d)
			rows[i].Labels["ticker_major"] = inst + "2406"
			rows[i].Values["return_c_major"] = 0.01 * float64(i+1) * float64(k+1)
			rows[i].Values["return_o_major"] = 0.02
		}
		testutil.Write(t, b, s0_data.PreprocessSchema("preprocess", inst), rows)
	}

	var avlb []store.Record
	for i, d := range dates {
		for _, inst := range []string{"B", "A"} {
			if inst == "B" && i == 3 {
				continue
			}
			r := store.NewRecord(d)
			r.Labels[s1_universe.ColInstrument] = inst
			r.Labels[s1_universe.ColSectorL0] = "COM"
			r.Labels[s1_universe.ColSectorL1] = map[string]string{"A": "MTL", "B": "AUG"}[inst]
			avlb = append(avlb, r)
		}
	}
	testutil.Write(t, b, s1_universe.Schema(), avlb)

	src := s0_data.NewSources(b, testutil.Sources)
	return &env{backend: b, dates: dates, tr: NewTestReturns(src, b, cal, nil, logger.Nop())}
}

func TestComputeInstrument(t *testing.T) {
	e := newEnv(t)
	ret := Ret{Class: ClassCls, Win: 1, Lag: 1}

	rows, err := e.tr.ComputeInstrument(context.Background(), ret, "A", e.dates[4], e.dates[8])
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, e.dates[2], rows[0].TradeDate)
	assert.Equal(t, e.dates[5], rows[3].TradeDate)
	assert.Equal(t, "A2406", rows[0].Label(ColTicker))
	assert.InDelta(t, 0.05, rows[0].Value("Cls001L1"), 1e-12)
	assert.InDelta(t, 0.08, rows[3].Value("Cls001L1"), 1e-12)
}

func TestComputeInstrumentRollingWindow(t *testing.T) {
	e := newEnv(t)
	ret := Ret{Class: ClassCls, Win: 2, Lag: 1}

	rows, err := e.tr.ComputeInstrument(context.Background(), ret, "B", e.dates[6], e.dates[8])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// signal on day 3 holds through the closes of days 5 and 6
	assert.Equal(t, e.dates[3], rows[0].TradeDate)
	assert.InDelta(t, 0.12+0.14, rows[0].Value("Cls002L1"), 1e-12)
	assert.Equal(t, e.dates[4], rows[1].TradeDate)
	assert.InDelta(t, 0.14+0.16, rows[1].Value("Cls002L1"), 1e-12)
}

func TestTestReturnsPipeline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ret := Ret{Class: ClassCls, Win: 1, Lag: 1}

	report := e.tr.RunByInstrument(ctx, []Ret{ret}, []string{"A", "B"}, e.dates[4], e.dates[8], workerOpts())
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.Total)

	// re-run skips on continuity
	report = e.tr.RunByInstrument(ctx, []Ret{ret}, []string{"A", "B"}, e.dates[4], e.dates[8], workerOpts())
	require.NoError(t, report.Err())

	require.NoError(t, e.tr.RunAvailable(ctx, ret, e.dates[4], e.dates[8]))
	rows, err := e.tr.LoadAvailable(ctx, ret, e.dates[0], e.dates[14])
	require.NoError(t, err)
	require.Len(t, rows, 7, "B is unavailable on day 4")

	assert.Equal(t, e.dates[2], rows[0].TradeDate)
	assert.Equal(t, "B", rows[0].Label(s1_universe.ColInstrument), "AUG sorts first")
	assert.InDelta(t, 0.10, rows[0].Value("Cls001L1"), 1e-12)
	assert.InDelta(t, 0.05, rows[1].Value("Cls001L1"), 1e-12)
	assert.Equal(t, e.dates[3], rows[2].TradeDate)
	assert.Equal(t, "A", rows[2].Label(s1_universe.ColInstrument))
}
