package s4_tests

import (
	"context"
	"fmt"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/workerpool"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// ColTicker labels per-instrument test-return rows
const ColTicker = "ticker"

// ByInstrumentSchema is the per-instrument test-return table
func ByInstrumentSchema(ret Ret, instrument string) store.Schema {
	return store.Schema{
		Name:   store.TestReturnsByInstrumentTable(ret.Name(), instrument),
		Labels: []string{ColTicker},
		Values: []string{ret.Name()},
	}
}

// AvailableSchema is the test-return table over the available universe
func AvailableSchema(ret Ret) store.Schema {
	return store.Schema{
		Name:   store.TestReturnsAvailableTable(ret.Name()),
		Labels: []string{s1_universe.ColInstrument, s1_universe.ColSectorL1},
		Values: []string{ret.Name()},
	}
}

// baseRange maps [bgn, stp) to the signal dates whose returns are complete by stp
func baseRange(cal *calendar.Calendar, ret Ret, bgn, stp string) (baseBgn, baseEnd string, err error) {
	iter := cal.IterList(bgn, stp)
	if len(iter) == 0 {
		return "", "", fmt.Errorf("no trading days in [%s, %s)", bgn, stp)
	}
	if baseBgn, err = cal.NextDate(iter[0], -ret.Shift()); err != nil {
		return "", "", err
	}
	if baseEnd, err = cal.NextDate(iter[len(iter)-1], -ret.Shift()); err != nil {
		return "", "", err
	}
	return baseBgn, baseEnd, nil
}

// TestReturns builds forward returns by instrument and joins them with the available universe
type TestReturns struct {
	sources *s0_data.Sources
	backend store.Backend
	cal     *calendar.Calendar
	avlb    *s1_universe.Repository
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewTestReturns(sources *s0_data.Sources, backend store.Backend, cal *calendar.Calendar, m *metrics.Metrics, log *logger.Logger) *TestReturns {
	return &TestReturns{
		sources: sources,
		backend: backend,
		cal:     cal,
		avlb:    s1_universe.NewRepository(backend, cal),
		metrics: m,
		log:     log.WithComponent("tstret"),
	}
}

// ComputeInstrument returns ret for the base dates of [bgn, stp), labelled with the signal date
func (tr *TestReturns) ComputeInstrument(ctx context.Context, ret Ret, instrument, bgn, stp string) ([]store.Record, error) {
	baseBgn, baseEnd, err := baseRange(tr.cal, ret, bgn, stp)
	if err != nil {
		return nil, err
	}
	daily, err := tr.sources.Preprocess(ctx, instrument, baseBgn, stp, "ticker_major", ret.Column())
	if err != nil {
		return nil, err
	}
	xs := make([]float64, len(daily))
	for i, d := range daily {
		xs[i] = d.Value(ret.Column())
	}
	fwd := stats.Shift(stats.RollingSum(xs, ret.Win, ret.Win), -ret.Shift())

	var out []store.Record
	for i, d := range daily {
		if d.TradeDate < baseBgn || d.TradeDate > baseEnd {
			continue
		}
		r := store.NewRecord(d.TradeDate)
		r.Labels[ColTicker] = d.Label("ticker_major")
		r.Values[ret.Name()] = fwd[i]
		out = append(out, r)
	}
	return out, nil
}

// ProcessInstrument computes and appends one instrument when its table continues at the base start
func (tr *TestReturns) ProcessInstrument(ctx context.Context, ret Ret, instrument, bgn, stp string) error {
	baseBgn, _, err := baseRange(tr.cal, ret, bgn, stp)
	if err != nil {
		return err
	}
	log := tr.log.WithFields(map[string]interface{}{"ret": ret.Name(), "instrument": instrument, "bgn": bgn, "stp": stp})
	t := tr.backend.Table(ByInstrumentSchema(ret, instrument))
	c, err := t.CheckContinuity(ctx, baseBgn, tr.cal)
	if err != nil {
		return err
	}
	if c != store.ContinuityOK {
		log.WithField("continuity", c.String()).Info("continuity check failed, write skipped")
		tr.metrics.SkipWrite(t.Schema().Name)
		return nil
	}
	rows, err := tr.ComputeInstrument(ctx, ret, instrument, bgn, stp)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Info("no test returns computed")
		return nil
	}
	_, err = store.AppendIfContinuous(ctx, t, rows, tr.cal, tr.metrics, log)
	return err
}

// RunByInstrument runs every (ret, instrument) pair in the pool
func (tr *TestReturns) RunByInstrument(ctx context.Context, rets []Ret, instruments []string, bgn, stp string, opts workerpool.Options) *workerpool.Report {
	var tasks []workerpool.Task
	for _, ret := range rets {
		for _, inst := range instruments {
			tasks = append(tasks, workerpool.Task{
				ID: ret.Name() + "/" + inst,
				Run: func(ctx context.Context) error {
					return tr.ProcessInstrument(ctx, ret, inst, bgn, stp)
				},
			})
		}
	}
	opts.Name = "tstret"
	opts.Metrics = tr.metrics
	opts.Logger = tr.log
	return workerpool.Run(ctx, tasks, opts)
}

// BuildAvailable left-joins the available universe over the base range with the per-instrument returns
func (tr *TestReturns) BuildAvailable(ctx context.Context, ret Ret, bgn, stp string) ([]store.Record, error) {
	baseBgn, baseEnd, err := baseRange(tr.cal, ret, bgn, stp)
	if err != nil {
		return nil, err
	}
	baseStp, err := tr.cal.NextDate(baseEnd, 1)
	if err != nil {
		return nil, err
	}
	avlb, err := tr.avlb.Load(ctx, baseBgn, baseStp, s1_universe.ColInstrument, s1_universe.ColSectorL1)
	if err != nil {
		return nil, err
	}

	refs := map[string]map[string]float64{}
	out := make([]store.Record, len(avlb))
	for i, a := range avlb {
		inst := a.Label(s1_universe.ColInstrument)
		byDate, ok := refs[inst]
		if !ok {
			rows, err := tr.backend.Table(ByInstrumentSchema(ret, inst)).ReadByRange(ctx, baseBgn, baseStp)
			if err != nil {
				return nil, fmt.Errorf("load %s %s: %w", ret.Name(), inst, err)
			}
			byDate = make(map[string]float64, len(rows))
			for _, r := range rows {
				byDate[r.TradeDate] = r.Value(ret.Name())
			}
			refs[inst] = byDate
		}
		r := store.NewRecord(a.TradeDate)
		r.Labels[s1_universe.ColInstrument] = inst
		r.Labels[s1_universe.ColSectorL1] = a.Label(s1_universe.ColSectorL1)
		v, ok := byDate[a.TradeDate]
		if !ok {
			v = stats.NaN()
		}
		r.Values[ret.Name()] = v
		out[i] = r
	}
	store.SortRecords(out, s1_universe.ColSectorL1)
	return out, nil
}

// RunAvailable builds and appends the available test returns of ret
func (tr *TestReturns) RunAvailable(ctx context.Context, ret Ret, bgn, stp string) error {
	log := tr.log.WithFields(map[string]interface{}{"stage": "tstret_avlb", "ret": ret.Name(), "bgn": bgn, "stp": stp})
	rows, err := tr.BuildAvailable(ctx, ret, bgn, stp)
	if err != nil {
		return err
	}
	written, err := store.AppendIfContinuous(ctx, tr.backend.Table(AvailableSchema(ret)), rows, tr.cal, tr.metrics, log)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{"rows": len(rows), "written": written}).Info("available test returns done")
	return nil
}

// LoadAvailable reads persisted available test returns
func (tr *TestReturns) LoadAvailable(ctx context.Context, ret Ret, bgn, stp string) ([]store.Record, error) {
	rows, err := tr.backend.Table(AvailableSchema(ret)).ReadByRange(ctx, bgn, stp)
	if err != nil {
		return nil, fmt.Errorf("load test returns %s: %w", ret.Name(), err)
	}
	return rows, nil
}
