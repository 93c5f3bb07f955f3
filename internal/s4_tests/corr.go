package s4_tests

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/s2_factors"
	"github.com/wonny/factorlab/internal/s3_signals"
	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
)

// CorrRow is the correlation of two factors on one date
type CorrRow struct {
	TradeDate string
	IC        float64
	CumSum    float64
}

// FactorCorr correlates two factors across the available universe
type FactorCorr struct {
	cfg        *projectconfig.Config
	signals    *s3_signals.Pipeline
	reportsDir string
}

func NewFactorCorr(cfg *projectconfig.Config, signals *s3_signals.Pipeline, reportsDir string) *FactorCorr {
	return &FactorCorr{cfg: cfg, signals: signals, reportsDir: reportsDir}
}

func (fc *FactorCorr) load(ctx context.Context, factor, stage, bgn, stp string) (map[string]map[string]float64, []string, error) {
	class, err := s2_factors.MatchClass(fc.cfg, factor)
	if err != nil {
		return nil, nil, err
	}
	rows, _, err := fc.signals.Load(ctx, stage, class, bgn, stp)
	if err != nil {
		return nil, nil, err
	}
	var dates []string
	out := map[string]map[string]float64{}
	for _, r := range rows {
		m, ok := out[r.TradeDate]
		if !ok {
			m = map[string]float64{}
			out[r.TradeDate] = m
			dates = append(dates, r.TradeDate)
		}
		m[r.Label(s1_universe.ColInstrument)] = r.Value(factor)
	}
	return out, dates, nil
}

// Compute returns the daily Pearson correlation of f0 and f1 over shared instruments and its running sum
func (fc *FactorCorr) Compute(ctx context.Context, f0, f1, stage, bgn, stp string) ([]CorrRow, error) {
	switch stage {
	case store.StageRaw, store.StageEWA:
	default:
		return nil, fmt.Errorf("%w: %q (raw or ewa)", s3_signals.ErrUnknownStage, stage)
	}
	x, dates, err := fc.load(ctx, f0, stage, bgn, stp)
	if err != nil {
		return nil, err
	}
	y, _, err := fc.load(ctx, f1, stage, bgn, stp)
	if err != nil {
		return nil, err
	}

	ics := make([]float64, len(dates))
	for i, d := range dates {
		var a, b []float64
		for inst, v := range x[d] {
			w, ok := y[d][inst]
			if !ok {
				continue
			}
			a = append(a, v)
			b = append(b, w)
		}
		ics[i] = stats.Pearson(a, b)
	}
	cum := stats.CumSum(ics)
	out := make([]CorrRow, len(dates))
	for i, d := range dates {
		out[i] = CorrRow{TradeDate: d, IC: ics[i], CumSum: cum[i]}
	}
	return out, nil
}

// Path is the CSV file of a pair; the ewa stage is written as "ema"
func (fc *FactorCorr) Path(f0, f1, stage string) string {
	suffix := stage
	if stage == store.StageEWA {
		suffix = "ema"
	}
	return filepath.Join(fc.reportsDir, "corr", fmt.Sprintf("ic_%s_%s_%s.csv", f0, f1, suffix))
}

// Run computes the pair and writes its CSV, returning the path
func (fc *FactorCorr) Run(ctx context.Context, f0, f1, stage, bgn, stp string) (string, error) {
	rows, err := fc.Compute(ctx, f0, f1, stage, bgn, stp)
	if err != nil {
		return "", err
	}
	lines := [][]string{{"trade_date", "ic", "ic_cumsum"}}
	for _, r := range rows {
		lines = append(lines, []string{r.TradeDate, formatFloat(r.IC), formatFloat(r.CumSum)})
	}
	path := fc.Path(f0, f1, stage)
	if err := writeCSV(path, lines); err != nil {
		return "", err
	}
	return path, nil
}
