package market

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// icov columns
const (
	ColInstrument0 = "instrument0"
	ColInstrument1 = "instrument1"
	ColCov         = "cov"
)

const icovScale = 1e4

func ICovSchema() store.Schema {
	return store.Schema{
		Name:   store.ICovTable,
		Labels: []string{ColInstrument0, ColInstrument1},
		Values: []string{ColCov},
	}
}

// ICov computes rolling covariances between universe instruments
type ICov struct {
	sources *s0_data.Sources
	backend store.Backend
	cal     *calendar.Calendar
	cfg     *projectconfig.Config
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewICov(sources *s0_data.Sources, backend store.Backend, cal *calendar.Calendar, cfg *projectconfig.Config, m *metrics.Metrics, log *logger.Logger) *ICov {
	return &ICov{
		sources: sources,
		backend: backend,
		cal:     cal,
		cfg:     cfg,
		metrics: m,
		log:     log.WithComponent("icov"),
	}
}

// Build returns the upper-triangular covariance rows of [bgn, stp), sorted by
// (trade_date, instrument0, instrument1). Dates without a full window get 0.
func (ic *ICov) Build(ctx context.Context, bgn, stp string) ([]store.Record, error) {
	win := ic.cfg.ICov.Win
	buffer, err := ic.cal.BufferStart(bgn, win-1)
	if err != nil {
		return nil, err
	}
	dates := ic.cal.IterList(buffer, stp)
	insts := ic.cfg.Instruments()
	if len(dates) == 0 || len(insts) == 0 {
		return nil, nil
	}

	rets := mat.NewDense(len(dates), len(insts), nil)
	for j, inst := range insts {
		raw, err := ic.sources.Preprocess(ctx, inst, buffer, stp, "return_c_major")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", inst, err)
		}
		for i, v := range s0_data.Align(raw, dates, "return_c_major") {
			if math.IsNaN(v) {
				v = 0
			}
			rets.Set(i, j, v)
		}
	}

	cov := mat.NewSymDense(len(insts), nil)
	var out []store.Record
	for i, d := range dates {
		if d < bgn {
			continue
		}
		full := i >= win-1
		if full {
			stat.CovarianceMatrix(cov, rets.Slice(i-win+1, i+1, 0, len(insts)), nil)
		}
		for a := range insts {
			for b := a; b < len(insts); b++ {
				r := store.NewRecord(d)
				r.Labels[ColInstrument0] = insts[a]
				r.Labels[ColInstrument1] = insts[b]
				r.Values[ColCov] = 0
				if full {
					r.Values[ColCov] = cov.At(a, b) * icovScale
				}
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// Run builds [bgn, stp) and appends it when the table continues at bgn
func (ic *ICov) Run(ctx context.Context, bgn, stp string) error {
	log := ic.log.WithFields(map[string]interface{}{"stage": "icov", "bgn": bgn, "stp": stp})
	rows, err := ic.Build(ctx, bgn, stp)
	if err != nil {
		return err
	}
	written, err := store.AppendIfContinuousAt(ctx, ic.backend.Table(ICovSchema()), bgn, rows, ic.cal, ic.metrics, log)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{"rows": len(rows), "written": written}).Info("instrument covariance done")
	return nil
}

// Load reads stored covariance rows
func (ic *ICov) Load(ctx context.Context, bgn, stp string) ([]store.Record, error) {
	rows, err := ic.backend.Table(ICovSchema()).ReadByRange(ctx, bgn, stp)
	if err != nil {
		return nil, fmt.Errorf("load icov: %w", err)
	}
	return rows, nil
}

// CovAtTradeDate rebuilds the symmetric matrix of instruments at date from upper-triangular rows.
// Pairs without a row are 0; no instruments gives nil.
func CovAtTradeDate(rows []store.Record, date string, instruments []string) *mat.SymDense {
	if len(instruments) == 0 {
		return nil
	}
	pos := make(map[string]int, len(instruments))
	for i, inst := range instruments {
		pos[inst] = i
	}
	n := len(instruments)
	p := mat.NewDense(n, n, nil)
	for _, r := range rows {
		if r.TradeDate != date {
			continue
		}
		i, ok := pos[r.Label(ColInstrument0)]
		if !ok {
			continue
		}
		j, ok := pos[r.Label(ColInstrument1)]
		if !ok {
			continue
		}
		p.Set(i, j, r.Value(ColCov))
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := p.At(i, j) + p.At(j, i)
			if i == j {
				v -= p.At(i, i)
			}
			out.SetSym(i, j, v)
		}
	}
	return out
}
