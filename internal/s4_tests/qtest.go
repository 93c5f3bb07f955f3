package s4_tests

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/s2_factors"
	"github.com/wonny/factorlab/internal/s3_signals"
	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/workerpool"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// Kind is the test type
type Kind string

const (
	KindIC Kind = "ic"
	KindVT Kind = "vt"
)

// DefaultStages are the factor stages each kind scores when none are given
func DefaultStages(kind Kind) []string {
	if kind == KindVT {
		return []string{store.StageSig}
	}
	return []string{store.StageRaw, store.StageEWA}
}

// JoinError reports factor and return rows that did not pair up one to one
type JoinError struct {
	SaveID           string
	Factors, Returns int
	Joined           int
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("%s: len of factor data = %d, len of return data = %d, len of input data = %d",
		e.SaveID, e.Factors, e.Returns, e.Joined)
}

// QTest scores one factor class at one stage against one test return
type QTest struct {
	Kind     Kind
	Class    string
	Names    []string
	Decay    s2_factors.Decay
	Ret      Ret
	Stage    string
	CostRate float64
}

// SaveID names the stored test, like "REOC-Cls001L1-CDecayR02W10"
func (q QTest) SaveID() string {
	return fmt.Sprintf("%s-%s-%s", q.Class, q.Ret.Name(), q.Decay)
}

// Schema is the table the daily test values go to
func (q QTest) Schema() store.Schema {
	name := store.ICTestTable(q.Stage, q.SaveID())
	if q.Kind == KindVT {
		name = store.VTTestTable(q.Stage, q.SaveID())
	}
	return store.Schema{Name: name, Values: q.Names}
}

// QTests runs IC and VT tests
type QTests struct {
	backend    store.Backend
	cal        *calendar.Calendar
	cfg        *projectconfig.Config
	signals    *s3_signals.Pipeline
	returns    *TestReturns
	reportsDir string
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func NewQTests(backend store.Backend, cal *calendar.Calendar, cfg *projectconfig.Config, signals *s3_signals.Pipeline, returns *TestReturns, reportsDir string, m *metrics.Metrics, log *logger.Logger) *QTests {
	return &QTests{
		backend:    backend,
		cal:        cal,
		cfg:        cfg,
		signals:    signals,
		returns:    returns,
		reportsDir: reportsDir,
		metrics:    m,
		log:        log.WithComponent("qtest"),
	}
}

// New describes the test of class at stage against ret
func (qt *QTests) New(kind Kind, class, stage string, ret Ret) (QTest, error) {
	names, err := s2_factors.FactorNames(qt.cfg, class)
	if err != nil {
		return QTest{}, err
	}
	return QTest{
		Kind:     kind,
		Class:    class,
		Names:    names,
		Decay:    s2_factors.NewDecay(qt.cfg.DecayFor(class)),
		Ret:      ret,
		Stage:    stage,
		CostRate: qt.cfg.Const.CostRate,
	}, nil
}

type joined struct {
	date       string
	instrument string
	ret        float64
	factors    []float64
}

// Compute returns one row per save date of [bgn, stp). Row i scores the base date that lies ret.Shift() days earlier.
func (qt *QTests) Compute(ctx context.Context, q QTest, bgn, stp string) ([]store.Record, error) {
	shift := q.Ret.Shift()
	buffer, err := qt.cal.BufferStart(bgn, shift)
	if err != nil {
		return nil, err
	}
	iter := qt.cal.IterList(buffer, stp)
	if len(iter) <= shift {
		return nil, nil
	}
	baseDates := iter[:len(iter)-shift]
	saveDates := iter[shift:]
	baseBgn, baseStp := iter[0], iter[len(iter)-shift]

	rets, err := qt.returns.LoadAvailable(ctx, q.Ret, baseBgn, baseStp)
	if err != nil {
		return nil, err
	}
	facs, _, err := qt.signals.Load(ctx, q.Stage, q.Class, baseBgn, baseStp)
	if err != nil {
		return nil, err
	}
	input := innerJoin(rets, facs, q)
	if len(input) != len(rets) || len(input) != len(facs) {
		return nil, &JoinError{SaveID: q.SaveID(), Factors: len(facs), Returns: len(rets), Joined: len(input)}
	}

	byDate := map[string][]joined{}
	for _, j := range input {
		byDate[j.date] = append(byDate[j.date], j)
	}

	var turnover map[string][]float64
	if q.Kind == KindVT {
		turnover = turnoverByDate(input, baseDates, len(q.Names))
	}

	out := make([]store.Record, len(baseDates))
	for i, d := range baseDates {
		r := store.NewRecord(saveDates[i])
		day := byDate[d]
		for k, name := range q.Names {
			if len(day) == 0 {
				r.Values[name] = math.NaN()
				continue
			}
			x := make([]float64, len(day))
			y := make([]float64, len(day))
			for n, j := range day {
				x[n] = j.factors[k]
				y[n] = j.ret
			}
			switch q.Kind {
			case KindVT:
				r.Values[name] = stats.Dot(y, x)/float64(q.Ret.Win) - turnover[d][k]*q.CostRate
			default:
				r.Values[name] = stats.Spearman(x, y)
			}
		}
		out[i] = r
	}
	return out, nil
}

func innerJoin(rets, facs []store.Record, q QTest) []joined {
	type key struct{ date, inst string }
	retByKey := make(map[key]float64, len(rets))
	for _, r := range rets {
		retByKey[key{r.TradeDate, r.Label(s1_universe.ColInstrument)}] = r.Value(q.Ret.Name())
	}
	var out []joined
	for _, f := range facs {
		k := key{f.TradeDate, f.Label(s1_universe.ColInstrument)}
		ret, ok := retByKey[k]
		if !ok {
			continue
		}
		j := joined{date: k.date, instrument: k.inst, ret: ret, factors: make([]float64, len(q.Names))}
		for i, n := range q.Names {
			j.factors[i] = f.Value(n)
		}
		out = append(out, j)
	}
	return out
}

// turnoverByDate is Σ|Δweight| over the date × instrument weight pivot, missing weights as 0.
// The first date has no turnover.
func turnoverByDate(input []joined, dates []string, factors int) map[string][]float64 {
	instSet := map[string]int{}
	for _, j := range input {
		if _, ok := instSet[j.instrument]; !ok {
			instSet[j.instrument] = 0
		}
	}
	insts := make([]string, 0, len(instSet))
	for i := range instSet {
		insts = append(insts, i)
	}
	sort.Strings(insts)
	for i, inst := range insts {
		instSet[inst] = i
	}

	// pivot[date][factor][instrument]
	pivot := make(map[string][][]float64, len(dates))
	for _, d := range dates {
		m := make([][]float64, factors)
		for k := range m {
			m[k] = make([]float64, len(insts))
		}
		pivot[d] = m
	}
	for _, j := range input {
		m, ok := pivot[j.date]
		if !ok {
			continue
		}
		for k, v := range j.factors {
			if !math.IsNaN(v) {
				m[k][instSet[j.instrument]] = v
			}
		}
	}

	out := make(map[string][]float64, len(dates))
	for i, d := range dates {
		t := make([]float64, factors)
		if i > 0 {
			prev, cur := pivot[dates[i-1]], pivot[d]
			for k := range t {
				for n := range insts {
					t[k] += math.Abs(cur[k][n] - prev[k][n])
				}
			}
		}
		out[d] = t
	}
	return out
}

// Run computes, saves and reports one test
func (qt *QTests) Run(ctx context.Context, q QTest, bgn, stp string) error {
	log := qt.log.WithFields(map[string]interface{}{
		"stage": q.Stage, "kind": string(q.Kind), "save_id": q.SaveID(), "bgn": bgn, "stp": stp,
	})
	rows, err := qt.Compute(ctx, q, bgn, stp)
	if err != nil {
		return err
	}
	if _, err := store.AppendIfContinuous(ctx, qt.backend.Table(q.Schema()), rows, qt.cal, qt.metrics, log); err != nil {
		return err
	}
	path, err := qt.Report(ctx, q, bgn, stp)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{"rows": len(rows), "report": path}).Info("test finished")
	return nil
}

// RunAll runs every (ret, stage) combination of class in the pool
func (qt *QTests) RunAll(ctx context.Context, kind Kind, class string, rets []Ret, stages []string, bgn, stp string, opts workerpool.Options) (*workerpool.Report, error) {
	if len(stages) == 0 {
		stages = DefaultStages(kind)
	}
	var tasks []workerpool.Task
	for _, ret := range rets {
		for _, stage := range stages {
			q, err := qt.New(kind, class, stage, ret)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, workerpool.Task{
				ID:  stage + "/" + q.SaveID(),
				Run: func(ctx context.Context) error { return qt.Run(ctx, q, bgn, stp) },
			})
		}
	}
	opts.Name = fmt.Sprintf("%s-%s", kind, class)
	opts.Metrics = qt.metrics
	opts.Logger = qt.log
	return workerpool.Run(ctx, tasks, opts), nil
}

// Load reads the stored daily values of q
func (qt *QTests) Load(ctx context.Context, q QTest, bgn, stp string) ([]store.Record, error) {
	rows, err := qt.backend.Table(q.Schema()).ReadByRange(ctx, bgn, stp)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", q.SaveID(), err)
	}
	return rows, nil
}
