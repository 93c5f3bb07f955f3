package s3_signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/s2_factors"
	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/testutil"
	"github.com/wonny/factorlab/pkg/logger"
)

func pipelineConfig() *projectconfig.Config {
	return &projectconfig.Config{
		Universe: map[string]projectconfig.Instrument{
			"A": {SectorL0: "COM", SectorL1: "MTL"},
			"B": {SectorL0: "COM", SectorL1: "AUG"},
			"C": {SectorL0: "COM", SectorL1: "MTL"},
		},
		FactorDecayDefault: projectconfig.DecayConfig{Rate: 0.5, Win: 3},
		Factors: map[string]projectconfig.FactorConfig{
			"REOC": {Args: projectconfig.ArgsConfig{Wins: []int{1}}},
		},
	}
}

// factorValue is the stored value of name for the k-th instrument on day i
type factorValue func(i, k int, name string) float64

// seedWith writes days of factor rows for every configured instrument and the
// available universe for the (day, instrument) pairs available accepts
func seedWith(t *testing.T, cfg *projectconfig.Config, days int, value factorValue, available func(i int, inst string) bool) (*Pipeline, []string) {
	t.Helper()
	cal := testutil.Calendar(t, days+2)
	b := testutil.Store(t)
	dates := cal.IterList("20240101", "20240201")[:days]

	calc, err := s2_factors.New("REOC", cfg.Factors["REOC"])
	require.NoError(t, err)

	var avlb []store.Record
	factorRows := map[string][]store.Record{}
	for i, d := range dates {
		for k, inst := range cfg.Instruments() {
			f := store.NewRecord(d)
			f.Labels[s2_factors.ColTicker] = inst
			for _, name := range calc.Names() {
				f.Values[name] = value(i, k, name)
			}
			factorRows[inst] = append(factorRows[inst], f)

			if !available(i, inst) {
				continue
			}
			a := store.NewRecord(d)
			a.Labels[s1_universe.ColInstrument] = inst
			a.Labels[s1_universe.ColSectorL0] = cfg.Universe[inst].SectorL0
			a.Labels[s1_universe.ColSectorL1] = cfg.Universe[inst].SectorL1
			avlb = append(avlb, a)
		}
	}
	store.SortRecords(avlb, s1_universe.ColSectorL1)
	testutil.Write(t, b, s1_universe.Schema(), avlb)
	for inst, rows := range factorRows {
		testutil.Write(t, b, s2_factors.Schema(calc, inst), rows)
	}
	return NewPipeline(b, cal, cfg, nil, logger.Nop()), dates
}

// seedPipeline writes 3 instruments over 10 days; C is unavailable on days 1-5
func seedPipeline(t *testing.T) (*Pipeline, []string) {
	t.Helper()
	value := func(i, k int, name string) float64 {
		if name != "REOC001" {
			return math.NaN()
		}
		return float64((i+1)*(k+1)) + float64(k)
	}
	return seedWith(t, pipelineConfig(), 10, value, func(i int, inst string) bool {
		return inst != "C" || i >= 5
	})
}

// byInstrument maps the rows of date to their instrument
func byInstrument(rows []store.Record, date string) map[string]store.Record {
	out := map[string]store.Record{}
	for _, r := range rows {
		if r.TradeDate == date {
			out[r.Label(s1_universe.ColInstrument)] = r
		}
	}
	return out
}

func instrumentsOf(rows map[string]store.Record) []string {
	out := make([]string, 0, len(rows))
	for inst := range rows {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	p, dates := seedPipeline(t)

	st, names, err := p.Build(ctx, "REOC", dates[0], "20240113")
	require.NoError(t, err)
	assert.Equal(t, []string{"REOC001", "REOC001VOL", "REOCDIF"}, names)
	assert.Len(t, st.Joined, 25)
	assert.Len(t, st.Raw, 25)
	assert.Len(t, st.EWA, 25)
	assert.Len(t, st.Sig, 25)

	for _, r := range st.Joined {
		if r.Label(s1_universe.ColInstrument) == "C" {
			assert.GreaterOrEqual(t, r.TradeDate, dates[5])
		}
	}
	// (trade_date, sectorL1) order
	assert.Equal(t, "B", st.Joined[0].Label(s1_universe.ColInstrument))
	assert.Equal(t, "AUG", st.Joined[0].Label(s1_universe.ColSectorL1))

	// C enters on day 6; values rise A < B < C, so B sits on the mean rank
	day6 := byInstrument(st.Sig, dates[5])
	assert.Equal(t, []string{"A", "B", "C"}, instrumentsOf(day6))
	assert.InDelta(t, -0.5, day6["A"].Value("REOC001"), 1e-12)
	assert.InDelta(t, 0, day6["B"].Value("REOC001"), 1e-12)
	assert.InDelta(t, 0.5, day6["C"].Value("REOC001"), 1e-12)
	assert.True(t, math.IsNaN(day6["A"].Value("REOCDIF")), "no DIF values stored")

	raw6 := byInstrument(st.Raw, dates[5])
	assert.InDelta(t, -1, raw6["A"].Value("REOC001"), 1e-12)
	assert.InDelta(t, 0, raw6["B"].Value("REOC001"), 1e-12)
	assert.InDelta(t, 1, raw6["C"].Value("REOC001"), 1e-12)

	day5 := byInstrument(st.Sig, dates[4])
	assert.Equal(t, []string{"A", "B"}, instrumentsOf(day5))
	assert.InDelta(t, -0.5, day5["A"].Value("REOC001"), 1e-12)
	assert.InDelta(t, 0.5, day5["B"].Value("REOC001"), 1e-12)

	sum, err := p.Run(ctx, "REOC", dates[0], "20240113")
	require.NoError(t, err)
	assert.Equal(t, 25, sum.Rows)
	assert.Equal(t, map[string]bool{store.StageRaw: true, store.StageEWA: true, store.StageSig: true}, sum.Written)

	sig, _, err := p.Load(ctx, store.StageSig, "REOC", dates[9], "20240113")
	require.NoError(t, err)
	require.Len(t, sig, 3)
	gross := 0.0
	for _, r := range sig {
		v := r.Value("REOC001")
		if v < 0 {
			v = -v
		}
		gross += v
	}
	assert.InDelta(t, 1, gross, 1e-12)

	sum, err = p.Run(ctx, "REOC", dates[0], "20240113")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{store.StageRaw: false, store.StageEWA: false, store.StageSig: false}, sum.Written)
}

func TestPipelineSeveralWindows(t *testing.T) {
	ctx := context.Background()
	cfg := &projectconfig.Config{
		Universe:           map[string]projectconfig.Instrument{},
		FactorDecayDefault: projectconfig.DecayConfig{Rate: 0.5, Win: 3},
		Factors: map[string]projectconfig.FactorConfig{
			"REOC": {Args: projectconfig.ArgsConfig{Wins: []int{1, 2}}},
		},
	}
	for k := 0; k < 10; k++ {
		sector := "S1"
		if k >= 5 {
			sector = "S2"
		}
		cfg.Universe[fmt.Sprintf("I%02d", k)] = projectconfig.Instrument{SectorL0: "COM", SectorL1: sector}
	}

	// constant per instrument: I09 is an outlier on REOC001, I03 misses REOC002,
	// VOL columns run opposite to the instrument order
	value := func(i, k int, name string) float64 {
		switch name {
		case "REOC001":
			if k == 9 {
				return 30
			}
			return float64(k)
		case "REOC002":
			if k == 3 {
				return math.NaN()
			}
			return float64(k)
		case "REOC001VOL", "REOC002VOL":
			return -float64(k)
		default:
			return float64(k * k)
		}
	}
	p, dates := seedWith(t, cfg, 5, value, func(int, string) bool { return true })

	st, names, err := p.Build(ctx, "REOC", dates[0], "20240201")
	require.NoError(t, err)
	assert.Equal(t, []string{"REOC001", "REOC002", "REOC001VOL", "REOC002VOL", "REOCDIF"}, names)
	require.Len(t, st.Sig, 50)

	last := dates[4]
	joined := byInstrument(st.Joined, last)
	raw := byInstrument(st.Raw, last)
	sig := byInstrument(st.Sig, last)
	require.Len(t, sig, 10)

	// sector fill takes the S1 mean (0+1+2+4)/4 before normalizing
	assert.True(t, math.IsNaN(joined["I03"].Value("REOC002")))
	assert.InDelta(t, -0.8411222449894205, raw["I03"].Value("REOC002"), 1e-9)

	// the outlier is clipped to mean + k*std before z-scoring; unclipped it would be 2.7153
	assert.InDelta(t, 2.703286101557299, raw["I09"].Value("REOC001"), 1e-9)

	for _, name := range names {
		xs := make([]float64, 0, len(raw))
		for _, r := range raw {
			xs = append(xs, r.Value(name))
		}
		assert.InDelta(t, 0, stats.Mean(xs), 1e-9, name)
		assert.InDelta(t, 1, stats.Std(xs), 1e-9, name)
	}

	for k := 0; k < 10; k++ {
		inst := fmt.Sprintf("I%02d", k)
		want := 0.1
		if k < 5 {
			want = -0.1
		}
		assert.InDelta(t, want, sig[inst].Value("REOC001"), 1e-12, inst)
		assert.InDelta(t, want, sig[inst].Value("REOCDIF"), 1e-12, inst)
		assert.InDelta(t, -want, sig[inst].Value("REOC001VOL"), 1e-12, inst)
		assert.InDelta(t, -want, sig[inst].Value("REOC002VOL"), 1e-12, inst)
	}
	// the filled I03 ranks between I01 and I02, below the mean rank
	assert.InDelta(t, -0.1, sig["I03"].Value("REOC002"), 1e-12)
	assert.InDelta(t, -0.1, sig["I04"].Value("REOC002"), 1e-12)
	assert.InDelta(t, 0.1, sig["I05"].Value("REOC002"), 1e-12)
}

func TestPipelineTruncatesToBgn(t *testing.T) {
	ctx := context.Background()
	p, dates := seedPipeline(t)

	sum, err := p.Run(ctx, "REOC", dates[5], "20240113")
	require.NoError(t, err)
	assert.Equal(t, 15, sum.Rows)

	raw, _, err := p.Load(ctx, store.StageRaw, "REOC", dates[0], "20240113")
	require.NoError(t, err)
	require.Len(t, raw, 15)
	assert.Equal(t, dates[5], raw[0].TradeDate)
}

func TestPipelineErrors(t *testing.T) {
	ctx := context.Background()
	p, dates := seedPipeline(t)

	_, err := p.Run(ctx, "MOM", dates[0], "20240113")
	assert.ErrorIs(t, err, s2_factors.ErrUnknownClass)

	_, _, err = p.Load(ctx, "final", "REOC", dates[0], "20240113")
	assert.ErrorIs(t, err, ErrUnknownStage)

	var inv *InvariantError
	assert.False(t, errors.As(err, &inv))
}
