package market

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// ColMarket is the amount-weighted return of the whole available universe
const ColMarket = "market"

// MarketSchema has the market column, one column per sectorL1 and the configured index columns
func MarketSchema(cfg *projectconfig.Config) store.Schema {
	values := []string{ColMarket}
	values = append(values, cfg.Sectors()...)
	values = append(values, cfg.Mkt.Indexes()...)
	return store.Schema{Name: store.MarketTable, Values: values}
}

// Market builds the market index table
type Market struct {
	backend store.Backend
	cal     *calendar.Calendar
	cfg     *projectconfig.Config
	avlb    *s1_universe.Repository
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewMarket(backend store.Backend, cal *calendar.Calendar, cfg *projectconfig.Config, m *metrics.Metrics, log *logger.Logger) *Market {
	return &Market{
		backend: backend,
		cal:     cal,
		cfg:     cfg,
		avlb:    s1_universe.NewRepository(backend, cal),
		metrics: m,
		log:     log.WithComponent("mkt"),
	}
}

// weightedMean is Σamt·ret / Σamt over the pairs with a return, NaN when no amount
func weightedMean(rets, amts []float64) float64 {
	num, den := 0.0, 0.0
	for i, r := range rets {
		if math.IsNaN(r) || math.IsNaN(amts[i]) {
			continue
		}
		num += amts[i] * r
		den += amts[i]
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Build computes one market row per available date of [bgn, stp)
func (mk *Market) Build(ctx context.Context, bgn, stp string) ([]store.Record, error) {
	indexes := mk.cfg.Mkt.Indexes()
	var idx IndexTable
	if len(indexes) > 0 {
		if mk.cfg.Path.MarketIndex == "" {
			return nil, ErrNoIndexWorkbook
		}
		var err error
		if idx, err = ReadIndexWorkbook(mk.cfg.Path.MarketIndex, indexes); err != nil {
			return nil, err
		}
	}

	avlb, err := mk.avlb.Load(ctx, bgn, stp)
	if err != nil {
		return nil, err
	}
	dates, byDate := s1_universe.Index(avlb)
	sectors := mk.cfg.Sectors()

	out := make([]store.Record, 0, len(dates))
	for _, d := range dates {
		day := byDate[d]
		rets := make([]float64, len(day))
		amts := make([]float64, len(day))
		bySector := map[string][2][]float64{}
		for i, a := range day {
			rets[i], amts[i] = a.Value(s1_universe.ColReturn), a.Value(s1_universe.ColAmount)
			s := bySector[a.Label(s1_universe.ColSectorL1)]
			s[0] = append(s[0], rets[i])
			s[1] = append(s[1], amts[i])
			bySector[a.Label(s1_universe.ColSectorL1)] = s
		}

		r := store.NewRecord(d)
		r.Values[ColMarket] = weightedMean(rets, amts)
		for _, sec := range sectors {
			s, ok := bySector[sec]
			if !ok {
				r.Values[sec] = math.NaN()
				continue
			}
			r.Values[sec] = weightedMean(s[0], s[1])
		}
		for _, c := range indexes {
			r.Values[c] = idx.Value(d, c)
		}
		out = append(out, r)
	}
	return out, nil
}

// Run builds [bgn, stp) and appends it when the table continues at bgn
func (mk *Market) Run(ctx context.Context, bgn, stp string) error {
	log := mk.log.WithFields(map[string]interface{}{"stage": "mkt", "bgn": bgn, "stp": stp})
	rows, err := mk.Build(ctx, bgn, stp)
	if err != nil {
		return err
	}
	written, err := store.AppendIfContinuousAt(ctx, mk.backend.Table(MarketSchema(mk.cfg)), bgn, rows, mk.cal, mk.metrics, log)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{"rows": len(rows), "written": written}).Info("market index done")
	return nil
}

// Load reads stored market rows
func (mk *Market) Load(ctx context.Context, bgn, stp string) ([]store.Record, error) {
	rows, err := mk.backend.Table(MarketSchema(mk.cfg)).ReadByRange(ctx, bgn, stp)
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}
	return rows, nil
}
