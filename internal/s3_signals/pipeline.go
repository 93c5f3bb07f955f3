// Package s3_signals runs the cross-sectional availability pipeline of a factor class:
// join with the available universe, sector fill, normalize, smooth and turn into signals.
package s3_signals

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/s2_factors"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// Schema is the table of class at stage
func Schema(stage, class string, names []string) store.Schema {
	return store.Schema{
		Name:   store.FactorsAvailableTable(stage, class),
		Labels: []string{s1_universe.ColInstrument, s1_universe.ColSectorL1},
		Values: names,
	}
}

// Summary reports one class run
type Summary struct {
	Class   string
	Rows    int
	Written map[string]bool
}

// Pipeline builds the raw, ewa and sig tables of a class
type Pipeline struct {
	backend store.Backend
	avlb    *s1_universe.Repository
	cal     *calendar.Calendar
	cfg     *projectconfig.Config
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewPipeline(backend store.Backend, cal *calendar.Calendar, cfg *projectconfig.Config, m *metrics.Metrics, log *logger.Logger) *Pipeline {
	return &Pipeline{
		backend: backend,
		avlb:    s1_universe.NewRepository(backend, cal),
		cal:     cal,
		cfg:     cfg,
		metrics: m,
		log:     log.WithComponent("signals"),
	}
}

// Stages are the outputs of Build, all aligned to Joined
type Stages struct {
	Joined []store.Record
	Raw    []store.Record
	EWA    []store.Record
	Sig    []store.Record
}

// Build computes every stage over [NextDate(bgn, -decay.win+1), stp)
func (p *Pipeline) Build(ctx context.Context, class, bgn, stp string) (*Stages, []string, error) {
	fc, ok := p.cfg.Factors[class]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s is not configured", s2_factors.ErrUnknownClass, class)
	}
	calc, err := s2_factors.New(class, fc)
	if err != nil {
		return nil, nil, err
	}
	names := calc.Names()
	decay := s2_factors.NewDecay(p.cfg.DecayFor(class))

	buffer, err := p.cal.BufferStart(bgn, decay.Win-1)
	if err != nil {
		return nil, nil, err
	}
	joined, err := p.join(ctx, calc, buffer, stp)
	if err != nil {
		return nil, nil, err
	}

	st := &Stages{Joined: joined}
	st.Raw = Normalize(SectorFill(joined, names), names)
	st.EWA = EWA(st.Raw, names, decay.Weights())
	st.Sig = Signal(st.EWA, names)

	for stage, rows := range map[string][]store.Record{
		store.StageRaw: st.Raw,
		store.StageEWA: st.EWA,
		store.StageSig: st.Sig,
	} {
		if len(rows) != len(joined) {
			return nil, nil, &InvariantError{Class: class, Stage: stage, Want: len(joined), Got: len(rows)}
		}
	}
	return st, names, nil
}

// join left-joins the available universe with the per-instrument factor rows
func (p *Pipeline) join(ctx context.Context, calc s2_factors.Calculator, bgn, stp string) ([]store.Record, error) {
	avlb, err := p.avlb.Load(ctx, bgn, stp, s1_universe.ColInstrument, s1_universe.ColSectorL1)
	if err != nil {
		return nil, err
	}

	factors := map[string]map[string]store.Record{}
	for _, r := range avlb {
		inst := r.Label(s1_universe.ColInstrument)
		if _, ok := factors[inst]; ok {
			continue
		}
		rows, err := p.backend.Table(s2_factors.Schema(calc, inst)).ReadByRange(ctx, bgn, stp)
		if err != nil {
			return nil, fmt.Errorf("load %s %s: %w", calc.Class(), inst, err)
		}
		byDate := make(map[string]store.Record, len(rows))
		for _, fr := range rows {
			byDate[fr.TradeDate] = fr
		}
		factors[inst] = byDate
	}

	names := calc.Names()
	out := make([]store.Record, len(avlb))
	for i, r := range avlb {
		inst := r.Label(s1_universe.ColInstrument)
		row := store.NewRecord(r.TradeDate)
		row.Labels[s1_universe.ColInstrument] = inst
		row.Labels[s1_universe.ColSectorL1] = r.Label(s1_universe.ColSectorL1)
		fr := factors[inst][r.TradeDate]
		for _, n := range names {
			row.Values[n] = fr.Value(n)
		}
		out[i] = row
	}
	store.SortRecords(out, s1_universe.ColSectorL1)
	return out, nil
}

// Run builds class over [bgn, stp) and saves each stage from bgn on
func (p *Pipeline) Run(ctx context.Context, class, bgn, stp string) (*Summary, error) {
	log := p.log.WithFields(map[string]interface{}{"stage": "signals", "class": class, "bgn": bgn, "stp": stp})
	log.Info("building availability stages")

	st, names, err := p.Build(ctx, class, bgn, stp)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Class: class, Written: map[string]bool{}}
	for _, stage := range []struct {
		name string
		rows []store.Record
	}{
		{store.StageRaw, st.Raw},
		{store.StageEWA, st.EWA},
		{store.StageSig, st.Sig},
	} {
		rows := fromDate(stage.rows, bgn)
		sum.Rows = len(rows)
		written, err := store.AppendIfContinuous(ctx, p.backend.Table(Schema(stage.name, class, names)), rows, p.cal, p.metrics, log)
		if err != nil {
			return nil, err
		}
		sum.Written[stage.name] = written
	}
	log.WithField("rows", sum.Rows).Info("availability stages done")
	return sum, nil
}

// ErrUnknownStage is returned for a stage other than raw, ewa and sig
var ErrUnknownStage = errors.New("unknown factor stage")

// Load reads a persisted stage of class
func (p *Pipeline) Load(ctx context.Context, stage, class, bgn, stp string) ([]store.Record, []string, error) {
	switch stage {
	case store.StageRaw, store.StageEWA, store.StageSig:
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	names, err := s2_factors.FactorNames(p.cfg, class)
	if err != nil {
		return nil, nil, err
	}
	rows, err := p.backend.Table(Schema(stage, class, names)).ReadByRange(ctx, bgn, stp)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s %s: %w", stage, class, err)
	}
	return rows, names, nil
}

func fromDate(rows []store.Record, bgn string) []store.Record {
	for i, r := range rows {
		if r.TradeDate >= bgn {
			return rows[i:]
		}
	}
	return nil
}
