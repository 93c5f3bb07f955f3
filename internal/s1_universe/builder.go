// Package s1_universe builds the available universe: the instruments liquid enough to trade on each date.
package s1_universe

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// Columns of the available table
const (
	ColInstrument = "instrument"
	ColSectorL0   = "sectorL0"
	ColSectorL1   = "sectorL1"
	ColReturn     = "return"
	ColAmount     = "amount"
	ColVolatility = "volatility"
)

// Schema is the available table
func Schema() store.Schema {
	return store.Schema{
		Name:   store.AvailableTable,
		Labels: []string{ColInstrument, ColSectorL0, ColSectorL1},
		Values: []string{ColReturn, ColAmount, ColVolatility},
	}
}

// Builder constructs the available universe
type Builder struct {
	sources *s0_data.Sources
	backend store.Backend
	cal     *calendar.Calendar
	cfg     *projectconfig.Config
	metrics *metrics.Metrics
	log     *logger.Logger
}

// Summary reports one build
type Summary struct {
	Rows    int
	Written bool
	// Excluded holds, per instrument, the reason it was left out on the last computed date
	Excluded map[string]string
}

// NewBuilder creates a new available-universe Builder
func NewBuilder(sources *s0_data.Sources, backend store.Backend, cal *calendar.Calendar, cfg *projectconfig.Config, m *metrics.Metrics, log *logger.Logger) *Builder {
	return &Builder{
		sources: sources,
		backend: backend,
		cal:     cal,
		cfg:     cfg,
		metrics: m,
		log:     log.WithComponent("avlb"),
	}
}

// Build computes the available rows for [bgn, stp), sorted by (trade_date, sectorL1)
func (b *Builder) Build(ctx context.Context, bgn, stp string) ([]store.Record, map[string]string, error) {
	a := b.cfg.Available
	start, err := b.cal.BufferStart(bgn, a.BufferWin()-1)
	if err != nil {
		return nil, nil, err
	}
	dates := b.cal.IterList(start, stp)

	var rows []store.Record
	excluded := map[string]string{}
	for _, inst := range b.cfg.Instruments() {
		raw, err := b.sources.Preprocess(ctx, inst, start, stp, "return_c_major", "amount_major")
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", inst, err)
		}
		ret := s0_data.Align(raw, dates, "return_c_major")
		amt := stats.FillNaN(s0_data.Align(raw, dates, "amount_major"), 0)
		amtMA := stats.RollingMean(amt, a.Win, a.Win)
		vol := stats.RollingStd(ret, a.WinVol, a.WinVolMin)

		sector := b.cfg.Universe[inst]
		for i, d := range dates {
			if d < bgn {
				continue
			}
			if reason := b.checkExclusion(amtMA[i]); reason != "" {
				excluded[inst] = reason
				continue
			}
			delete(excluded, inst)
			r := store.NewRecord(d)
			r.Labels[ColInstrument] = inst
			r.Labels[ColSectorL0] = sector.SectorL0
			r.Labels[ColSectorL1] = sector.SectorL1
			r.Values[ColReturn] = ret[i]
			r.Values[ColAmount] = amt[i]
			r.Values[ColVolatility] = vol[i]
			rows = append(rows, r)
		}
	}
	store.SortRecords(rows, ColSectorL1)
	return rows, excluded, nil
}

// checkExclusion returns why an instrument is not available, "" when it is
func (b *Builder) checkExclusion(amtMA float64) string {
	if math.IsNaN(amtMA) {
		return "amount history shorter than window"
	}
	if amtMA < b.cfg.Available.AmountThreshold {
		return fmt.Sprintf("average amount below threshold (%.0f)", amtMA)
	}
	return ""
}

// Run builds [bgn, stp) and appends it when the table continues at bgn
func (b *Builder) Run(ctx context.Context, bgn, stp string) (*Summary, error) {
	log := b.log.WithFields(map[string]interface{}{"stage": "avlb", "bgn": bgn, "stp": stp})
	log.Info("building available universe")

	rows, excluded, err := b.Build(ctx, bgn, stp)
	if err != nil {
		return nil, err
	}
	written, err := store.AppendIfContinuousAt(ctx, b.backend.Table(Schema()), bgn, rows, b.cal, b.metrics, log)
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{"rows": len(rows), "excluded": len(excluded)}).Info("available universe done")
	return &Summary{Rows: len(rows), Written: written, Excluded: excluded}, nil
}
