// Package pipeline wires the research stages together and runs them in order.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/market"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/s0_data/quality"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/s2_factors"
	"github.com/wonny/factorlab/internal/s3_signals"
	"github.com/wonny/factorlab/internal/s4_tests"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/workerpool"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// Options configures a Runner
type Options struct {
	Backend store.Backend
	Cal     *calendar.Calendar
	Config  *projectconfig.Config
	Pool    s2_factors.PoolConfig
	Quality quality.Config
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Runner owns every stage component
// All stage entry points go through here so the CLI, the scheduler and the API share one graph.
type Runner struct {
	backend store.Backend
	cal     *calendar.Calendar
	cfg     *projectconfig.Config
	pool    s2_factors.PoolConfig
	metrics *metrics.Metrics

	sources  *s0_data.Sources
	importer *s0_data.Importer
	gate     *quality.Gate
	avlb     *s1_universe.Builder
	avlbRepo *s1_universe.Repository
	market   *market.Market
	css      *market.CrossSection
	icov     *market.ICov
	engine   *s2_factors.Engine
	signals  *s3_signals.Pipeline
	returns  *s4_tests.TestReturns
	qtests   *s4_tests.QTests
	corr     *s4_tests.FactorCorr

	logger *logger.Logger
}

// RunResult holds the outcome of a Daily run
type RunResult struct {
	Bgn             string
	Stp             string
	CompletedStages []string
	Quality         *quality.Snapshot
	// Report collects the per-instrument failures of the pooled stages
	Report   *workerpool.Report
	Duration time.Duration
}

// NewRunner builds the stage graph
func NewRunner(opts Options) *Runner {
	b, cal, cfg, m, log := opts.Backend, opts.Cal, opts.Config, opts.Metrics, opts.Logger
	sources := s0_data.NewSources(b, cfg.Sources).WithMarket(market.MarketSchema(cfg))
	signals := s3_signals.NewPipeline(b, cal, cfg, m, log)
	returns := s4_tests.NewTestReturns(sources, b, cal, m, log)
	return &Runner{
		backend:  b,
		cal:      cal,
		cfg:      cfg,
		pool:     opts.Pool,
		metrics:  m,
		sources:  sources,
		importer: s0_data.NewImporter(sources, cal, m, log),
		gate:     quality.NewGate(sources, cal, cfg.Instruments(), opts.Quality),
		avlb:     s1_universe.NewBuilder(sources, b, cal, cfg, m, log),
		avlbRepo: s1_universe.NewRepository(b, cal),
		market:   market.NewMarket(b, cal, cfg, m, log),
		css:      market.NewCrossSection(b, cal, cfg, m, log),
		icov:     market.NewICov(sources, b, cal, cfg, m, log),
		engine:   s2_factors.NewEngine(s2_factors.Env{Sources: sources, Cal: cal}, b, m, log),
		signals:  signals,
		returns:  returns,
		qtests:   s4_tests.NewQTests(b, cal, cfg, signals, returns, cfg.Path.ReportsDir, m, log),
		corr:     s4_tests.NewFactorCorr(cfg, signals, cfg.Path.ReportsDir),
		logger:   log.WithComponent("pipeline"),
	}
}

// Calendar returns the trading calendar
func (r *Runner) Calendar() *calendar.Calendar { return r.cal }

// Config returns the project config
func (r *Runner) Config() *projectconfig.Config { return r.cfg }

func (r *Runner) workerOptions() workerpool.Options {
	return workerpool.Options{Workers: r.pool.Workers, Sequential: r.pool.Sequential}
}

// Import loads one CSV into a source table
func (r *Runner) Import(ctx context.Context, kind, instrument string, in io.Reader) (*s0_data.ImportResult, error) {
	return r.importer.Import(ctx, kind, instrument, in)
}

// Quality checks source coverage over [bgn, stp) and stores the daily scores
func (r *Runner) Quality(ctx context.Context, bgn, stp string) (*quality.Snapshot, error) {
	snap, err := r.gate.Check(ctx, bgn, stp)
	if err != nil {
		return nil, fmt.Errorf("quality gate: %w", err)
	}
	log := r.logger.WithFields(map[string]interface{}{"stage": "quality", "bgn": bgn, "stp": stp})
	if _, err := store.AppendIfContinuousAt(ctx, r.backend.Table(quality.Schema()), bgn, snap.Records(), r.cal, r.metrics, log); err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{"score": snap.Score, "passed": snap.Passed}).Info("quality checked")
	return snap, nil
}

func (r *Runner) Available(ctx context.Context, bgn, stp string) (*s1_universe.Summary, error) {
	return r.avlb.Run(ctx, bgn, stp)
}

func (r *Runner) runAvailable(ctx context.Context, bgn, stp string) error {
	_, err := r.Available(ctx, bgn, stp)
	return err
}

func (r *Runner) Market(ctx context.Context, bgn, stp string) error {
	return r.market.Run(ctx, bgn, stp)
}

func (r *Runner) CSS(ctx context.Context, bgn, stp string) error {
	return r.css.Run(ctx, bgn, stp)
}

func (r *Runner) ICov(ctx context.Context, bgn, stp string) error {
	return r.icov.Run(ctx, bgn, stp)
}

// Factors runs one configured class over the universe
func (r *Runner) Factors(ctx context.Context, class, bgn, stp string) (*workerpool.Report, error) {
	fc, ok := r.cfg.Factors[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", s2_factors.ErrUnknownClass, class)
	}
	c, err := s2_factors.New(class, fc)
	if err != nil {
		return nil, err
	}
	return r.engine.Run(ctx, c, r.cfg.Instruments(), bgn, stp, r.pool), nil
}

func (r *Runner) Signals(ctx context.Context, class, bgn, stp string) (*s3_signals.Summary, error) {
	return r.signals.Run(ctx, class, bgn, stp)
}

// TestReturns builds the per-instrument returns in the pool, then their available tables
func (r *Runner) TestReturns(ctx context.Context, rets []s4_tests.Ret, bgn, stp string) (*workerpool.Report, error) {
	report := r.returns.RunByInstrument(ctx, rets, r.cfg.Instruments(), bgn, stp, r.workerOptions())
	for _, ret := range rets {
		if err := r.returns.RunAvailable(ctx, ret, bgn, stp); err != nil {
			return report, fmt.Errorf("%s: %w", ret.Name(), err)
		}
	}
	return report, nil
}

// QTests runs kind for class over every (ret, stage) combination
func (r *Runner) QTests(ctx context.Context, kind s4_tests.Kind, class string, rets []s4_tests.Ret, stages []string, bgn, stp string) (*workerpool.Report, error) {
	return r.qtests.RunAll(ctx, kind, class, rets, stages, bgn, stp, r.workerOptions())
}

// Corr writes the correlation report of two factors and returns its path
func (r *Runner) Corr(ctx context.Context, f0, f1, stage, bgn, stp string) (string, error) {
	return r.corr.Run(ctx, f0, f1, stage, bgn, stp)
}

// Daily runs avlb → mkt → css → icov → factors → signals over [bgn, stp).
// A failed quality check is logged and does not stop the run; pooled failures are
// collected into the result and returned as the error once every stage ran.
func (r *Runner) Daily(ctx context.Context, bgn, stp string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{Bgn: bgn, Stp: stp, Report: &workerpool.Report{Name: "daily"}}
	log := r.logger.WithFields(map[string]interface{}{"bgn": bgn, "stp": stp})
	log.Info("starting daily pipeline")

	snap, err := r.gate.Check(ctx, bgn, stp)
	if err != nil {
		return result, fmt.Errorf("quality: %w", err)
	}
	result.Quality = snap
	if !snap.Passed {
		log.WithFields(map[string]interface{}{"score": snap.Score, "missing": len(snap.Missing)}).Warn("quality pre-check failed")
	}

	steps := []struct {
		name string
		run  func(context.Context, string, string) error
	}{
		{"avlb", r.runAvailable},
		{"mkt", r.Market},
		{"css", r.CSS},
		{"icov", r.ICov},
	}
	for _, s := range steps {
		if err := s.run(ctx, bgn, stp); err != nil {
			return result, fmt.Errorf("%s failed: %w", s.name, err)
		}
		result.CompletedStages = append(result.CompletedStages, s.name)
	}

	for _, class := range r.cfg.FactorClasses() {
		report, err := r.Factors(ctx, class, bgn, stp)
		if err != nil {
			return result, fmt.Errorf("factor %s failed: %w", class, err)
		}
		result.Report.Merge(report)
		result.CompletedStages = append(result.CompletedStages, "factor:"+class)

		if _, err := r.Signals(ctx, class, bgn, stp); err != nil {
			return result, fmt.Errorf("signals %s failed: %w", class, err)
		}
		result.CompletedStages = append(result.CompletedStages, "signals:"+class)
	}

	result.Duration = time.Since(start)
	log.WithFields(map[string]interface{}{
		"stages":   len(result.CompletedStages),
		"failed":   result.Report.Failed(),
		"duration": result.Duration.Seconds(),
	}).Info("daily pipeline finished")
	return result, result.Report.Err()
}

// AvailableAt lists the available rows of one date
func (r *Runner) AvailableAt(ctx context.Context, date string) ([]store.Record, error) {
	return r.avlbRepo.At(ctx, date)
}

// FactorsAt reads one stage of class on one date
func (r *Runner) FactorsAt(ctx context.Context, stage, class, date string) ([]store.Record, []string, error) {
	stp, err := r.cal.DayStop(date)
	if err != nil {
		return nil, nil, err
	}
	return r.signals.Load(ctx, stage, class, date, stp)
}

// CSSRange reads stored cross-section statistics
func (r *Runner) CSSRange(ctx context.Context, bgn, stp string) ([]store.Record, error) {
	return r.css.Load(ctx, bgn, stp)
}

// ICovAt rebuilds the covariance matrix of date over the instruments stored for it
func (r *Runner) ICovAt(ctx context.Context, date string) ([]string, *mat.SymDense, error) {
	stp, err := r.cal.DayStop(date)
	if err != nil {
		return nil, nil, err
	}
	rows, err := r.icov.Load(ctx, date, stp)
	if err != nil {
		return nil, nil, err
	}
	seen := map[string]bool{}
	var insts []string
	for _, row := range rows {
		for _, c := range []string{market.ColInstrument0, market.ColInstrument1} {
			if inst := row.Label(c); !seen[inst] {
				seen[inst] = true
				insts = append(insts, inst)
			}
		}
	}
	sort.Strings(insts)
	return insts, market.CovAtTradeDate(rows, date, insts), nil
}
