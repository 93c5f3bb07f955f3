package market

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// css columns
const (
	ColVolatility       = "volatility"
	ColDispersion       = "dispersion"
	ColSkewness         = "skewness"
	ColKurtosis         = "kurtosis"
	ColVMA              = "vma"
	ColDMA              = "dma"
	ColSMA              = "sma"
	ColKMA              = "kma"
	ColTotWgt           = "tot_wgt"
	ColVolatilitySector = "volatility_sector"
	ColSEV              = "sev"
	ColDCov             = "dcov"
)

const sectorVolWin = 5

// SectorVolatilityColumn names the rolling volatility of one sector
func SectorVolatilityColumn(sector string) string { return "volatility_" + sector }

// CSSSchema lists the css columns for the configured sectors
func CSSSchema(cfg *projectconfig.Config) store.Schema {
	values := []string{ColVolatility, ColDispersion, ColSkewness, ColKurtosis}
	for _, s := range cfg.Sectors() {
		values = append(values, SectorVolatilityColumn(s))
	}
	values = append(values, ColVMA, ColDMA, ColSMA, ColKMA, ColTotWgt, ColVolatilitySector, ColSEV, ColDCov)
	return store.Schema{Name: store.CSSTable, Values: values}
}

// CrossSection computes the daily cross-section statistics
type CrossSection struct {
	backend store.Backend
	cal     *calendar.Calendar
	cfg     *projectconfig.Config
	avlb    *s1_universe.Repository
	market  *Market
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewCrossSection(backend store.Backend, cal *calendar.Calendar, cfg *projectconfig.Config, m *metrics.Metrics, log *logger.Logger) *CrossSection {
	return &CrossSection{
		backend: backend,
		cal:     cal,
		cfg:     cfg,
		avlb:    s1_universe.NewRepository(backend, cal),
		market:  NewMarket(backend, cal, cfg, m, log),
		metrics: m,
		log:     log.WithComponent("css"),
	}
}

// DayStats are the statistics of one date before any rolling
type DayStats struct {
	Volatility       float64
	Dispersion       float64
	Skewness         float64
	Kurtosis         float64
	SectorVolatility map[string]float64
}

// ComputeDay summarizes the available rows of one date
func ComputeDay(rows []store.Record) (DayStats, error) {
	rets := make([]float64, len(rows))
	amts := make([]float64, len(rows))
	sectors := make([]string, len(rows))
	type group struct{ rets, amts []float64 }
	bySector := map[string]*group{}
	for i, r := range rows {
		rets[i] = r.Value(s1_universe.ColReturn)
		amts[i] = r.Value(s1_universe.ColAmount)
		sectors[i] = r.Label(s1_universe.ColSectorL1)
		g, ok := bySector[sectors[i]]
		if !ok {
			g = &group{}
			bySector[sectors[i]] = g
		}
		g.rets = append(g.rets, rets[i])
		g.amts = append(g.amts, amts[i])
	}

	total, within, _, err := stats.DecomposeDispersion(rets, sectors)
	if err != nil {
		return DayStats{}, err
	}
	ds := DayStats{
		Volatility:       stats.WeightedVolatility(rets, amts),
		Dispersion:       within / total,
		Skewness:         stats.Skew(rets),
		Kurtosis:         stats.ExKurtosis(rets),
		SectorVolatility: make(map[string]float64, len(bySector)),
	}
	for s, g := range bySector {
		ds.SectorVolatility[s] = stats.WeightedVolatility(g.rets, g.amts)
	}
	return ds, nil
}

// SignificantEigenRatio is the sum of correlation eigenvalues above 1 over the number of
// instruments with a defined correlation. x is observations × instruments.
func SignificantEigenRatio(x *mat.Dense) float64 {
	_, p := x.Dims()
	var keep []int
	for j := 0; j < p; j++ {
		if stat.Variance(mat.Col(nil, j, x), nil) > 0 {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return math.NaN()
	}
	n, _ := x.Dims()
	sub := mat.NewDense(n, len(keep), nil)
	for k, j := range keep {
		sub.SetCol(k, mat.Col(nil, j, x))
	}

	corr := mat.NewSymDense(len(keep), nil)
	stat.CorrelationMatrix(corr, sub, nil)
	var eig mat.EigenSym
	if !eig.Factorize(corr, false) {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range eig.Values(nil) {
		if v > 1 {
			sum += v
		}
	}
	return sum / float64(len(keep))
}

// covDiff is the mean absolute change of the scaled covariance over the instruments in both windows.
// It is NaN when the windows share no instrument.
func covDiff(cur, prev map[[2]string]float64, curInsts []string, prevSet map[string]bool) float64 {
	var n int
	s := 0.0
	for _, a := range curInsts {
		if !prevSet[a] {
			continue
		}
		for _, b := range curInsts {
			if !prevSet[b] {
				continue
			}
			k := [2]string{a, b}
			s += math.Abs(cur[k] - prev[k])
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}

// sevDCov scans sev_win windows of the pivoted returns. Each window uses the instruments
// available on its last date. Results are aligned on dates; NaN before the first full window.
func sevDCov(dates []string, byDate map[string][]store.Record, win int) (sev, dcov []float64) {
	var insts []string
	col := map[string]int{}
	for _, d := range dates {
		for _, r := range byDate[d] {
			inst := r.Label(s1_universe.ColInstrument)
			if _, ok := col[inst]; !ok {
				col[inst] = len(insts)
				insts = append(insts, inst)
			}
		}
	}
	pivot := mat.NewDense(max(len(dates), 1), max(len(insts), 1), nil)
	for i, d := range dates {
		for _, r := range byDate[d] {
			v := r.Value(s1_universe.ColReturn)
			if math.IsNaN(v) {
				v = 0
			}
			pivot.Set(i, col[r.Label(s1_universe.ColInstrument)], v)
		}
	}

	sev = make([]float64, len(dates))
	dcov = make([]float64, len(dates))
	var ratios []float64
	var prev map[[2]string]float64
	var prevSet map[string]bool
	for i := range dates {
		if i < win-1 {
			sev[i], dcov[i] = math.NaN(), math.NaN()
			continue
		}
		var cur []string
		for _, r := range byDate[dates[i]] {
			cur = append(cur, r.Label(s1_universe.ColInstrument))
		}
		x := mat.NewDense(win, len(cur), nil)
		for k, inst := range cur {
			for t := 0; t < win; t++ {
				x.Set(t, k, pivot.At(i-win+1+t, col[inst]))
			}
		}
		ratios = append(ratios, SignificantEigenRatio(x))

		cov := mat.NewSymDense(len(cur), nil)
		stat.CovarianceMatrix(cov, x, nil)
		this := make(map[[2]string]float64, len(cur)*len(cur))
		thisSet := make(map[string]bool, len(cur))
		for a, ia := range cur {
			thisSet[ia] = true
			for b, ib := range cur {
				this[[2]string{ia, ib}] = cov.At(a, b) * 1e6
			}
		}
		if prev == nil {
			dcov[i] = 0
		} else {
			dcov[i] = covDiff(this, prev, cur, prevSet)
		}
		prev, prevSet = this, thisSet
	}

	smoothed := stats.RollingMean(absAll(stats.Diff(ratios)), sectorVolWin, sectorVolWin)
	for k, v := range smoothed {
		sev[win-1+k] = v
	}
	return sev, dcov
}

func absAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Abs(x)
	}
	return out
}

// volatilitySector is the std across the market table's sector columns, rolling 5 mean
func volatilitySector(rows []store.Record, sectors []string) map[string]float64 {
	xs := make([]float64, len(rows))
	for i, r := range rows {
		v := make([]float64, len(sectors))
		for k, s := range sectors {
			v[k] = r.Value(s)
		}
		xs[i] = stats.Std(v)
	}
	ma := stats.RollingMean(xs, sectorVolWin, sectorVolWin)
	out := make(map[string]float64, len(rows))
	for i, r := range rows {
		out[r.TradeDate] = ma[i]
	}
	return out
}

// Build computes the css rows of [bgn, stp)
func (c *CrossSection) Build(ctx context.Context, bgn, stp string) ([]store.Record, error) {
	cc := c.cfg.CSS
	buffer, err := c.cal.BufferStart(bgn, cc.BufferWin())
	if err != nil {
		return nil, err
	}
	avlb, err := c.avlb.Load(ctx, buffer, stp)
	if err != nil {
		return nil, err
	}
	mkt, err := c.market.Load(ctx, buffer, stp)
	if err != nil {
		return nil, err
	}
	sectors := c.cfg.Sectors()
	volSector := volatilitySector(mkt, sectors)

	dates, byDate := s1_universe.Index(avlb)
	n := len(dates)
	vol, disp, skew, kurt := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	secVol := make(map[string][]float64, len(sectors))
	for _, s := range sectors {
		secVol[s] = make([]float64, n)
	}
	for i, d := range dates {
		ds, err := ComputeDay(byDate[d])
		if err != nil {
			return nil, fmt.Errorf("css at %s: %w", d, err)
		}
		vol[i], disp[i], skew[i], kurt[i] = ds.Volatility, ds.Dispersion, ds.Skewness, ds.Kurtosis
		for _, s := range sectors {
			v, ok := ds.SectorVolatility[s]
			if !ok {
				v = math.NaN()
			}
			secVol[s][i] = v
		}
	}

	w := cc.VMAWin
	vma := stats.RollingMean(vol, w, w)
	dma := stats.RollingMean(disp, w, w)
	sma := stats.RollingMean(skew, w, w)
	kma := stats.RollingMean(kurt, w, w)
	for _, s := range sectors {
		secVol[s] = stats.RollingMean(secVol[s], w, w)
	}
	sev, dcov := sevDCov(dates, byDate, cc.SEVWin)

	var out []store.Record
	for i, d := range dates {
		if d < bgn {
			continue
		}
		r := store.NewRecord(d)
		r.Values[ColVolatility] = vol[i]
		r.Values[ColDispersion] = disp[i]
		r.Values[ColSkewness] = skew[i]
		r.Values[ColKurtosis] = kurt[i]
		for _, s := range sectors {
			r.Values[SectorVolatilityColumn(s)] = secVol[s][i]
		}
		r.Values[ColVMA] = vma[i]
		r.Values[ColDMA] = dma[i]
		r.Values[ColSMA] = sma[i]
		r.Values[ColKMA] = kma[i]
		r.Values[ColTotWgt] = cc.VMAWgt
		if vma[i] < cc.VMAThreshold {
			r.Values[ColTotWgt] = 1
		}
		vs, ok := volSector[d]
		if !ok {
			vs = math.NaN()
		}
		r.Values[ColVolatilitySector] = vs
		r.Values[ColSEV] = sev[i]
		r.Values[ColDCov] = dcov[i]
		out = append(out, r)
	}
	return out, nil
}

// Run builds [bgn, stp) and appends it when the table continues at bgn
func (c *CrossSection) Run(ctx context.Context, bgn, stp string) error {
	log := c.log.WithFields(map[string]interface{}{"stage": "css", "bgn": bgn, "stp": stp})
	rows, err := c.Build(ctx, bgn, stp)
	if err != nil {
		return err
	}
	written, err := store.AppendIfContinuousAt(ctx, c.backend.Table(CSSSchema(c.cfg)), bgn, rows, c.cal, c.metrics, log)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{"rows": len(rows), "written": written}).Info("cross section stats done")
	return nil
}

// Load reads stored css rows
func (c *CrossSection) Load(ctx context.Context, bgn, stp string) ([]store.Record, error) {
	rows, err := c.backend.Table(CSSSchema(c.cfg)).ReadByRange(ctx, bgn, stp)
	if err != nil {
		return nil, fmt.Errorf("load css: %w", err)
	}
	return rows, nil
}
