// Package quality scores how completely the configured sources cover the universe.
package quality

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/store"
)

// Config holds quality gate thresholds
type Config struct {
	MinPreprocessCoverage float64 `yaml:"min_preprocess_coverage"` // 1.0
	MinScore              float64 `yaml:"min_score"`               // 0.9
}

// DefaultConfig requires full preprocess coverage
func DefaultConfig() Config {
	return Config{MinPreprocessCoverage: 1.0, MinScore: 0.9}
}

// Snapshot is the coverage of one date range
type Snapshot struct {
	Bgn         string
	Stp         string
	Dates       int
	Instruments int
	// Coverage is the fraction of (date, instrument) cells with data, per source kind
	Coverage map[string]float64
	// Daily is the score of each date
	Daily   map[string]float64
	Missing map[string][]string // kind -> instruments with at least one missing date
	Score   float64
	Passed  bool
}

// Gate validates source coverage before the stages read it
type Gate struct {
	sources     *s0_data.Sources
	cal         *calendar.Calendar
	instruments []string
	config      Config
}

// NewGate creates a new Gate instance
func NewGate(sources *s0_data.Sources, cal *calendar.Calendar, instruments []string, config Config) *Gate {
	return &Gate{sources: sources, cal: cal, instruments: instruments, config: config}
}

// weights of each source kind in the score; unconfigured kinds are left out and the rest renormalized
var weights = map[string]float64{
	s0_data.KindPreprocess: 0.50,
	s0_data.KindMinuteBar:  0.25,
	s0_data.KindPosition:   0.15,
	s0_data.KindForex:      0.05,
	s0_data.KindMacro:      0.05,
}

// presence columns of each kind: a cell counts when this column is not NaN
var presenceColumns = map[string]string{
	s0_data.KindPreprocess: "close_major",
	s0_data.KindMinuteBar:  "close",
	s0_data.KindPosition:   "long_pos",
	s0_data.KindForex:      "close",
	s0_data.KindMacro:      "cpi_rate",
}

// Check measures coverage over [bgn, stp)
func (g *Gate) Check(ctx context.Context, bgn, stp string) (*Snapshot, error) {
	dates := g.cal.IterList(bgn, stp)
	snap := &Snapshot{
		Bgn:         bgn,
		Stp:         stp,
		Dates:       len(dates),
		Instruments: len(g.instruments),
		Coverage:    map[string]float64{},
		Daily:       map[string]float64{},
		Missing:     map[string][]string{},
	}
	if len(dates) == 0 {
		snap.Passed = true
		return snap, nil
	}

	daily := map[string]map[string]float64{}
	for _, kind := range kinds() {
		if !g.sources.Configured(kind) {
			continue
		}
		perDate, missing, err := g.coverage(ctx, kind, bgn, stp, dates)
		if err != nil {
			return nil, fmt.Errorf("check %s coverage: %w", kind, err)
		}
		daily[kind] = perDate
		total := 0.0
		for _, d := range dates {
			total += perDate[d]
		}
		snap.Coverage[kind] = total / float64(len(dates))
		if len(missing) > 0 {
			snap.Missing[kind] = missing
		}
	}

	snap.Score = g.calculateScore(snap.Coverage)
	for _, d := range dates {
		day := map[string]float64{}
		for kind, perDate := range daily {
			day[kind] = perDate[d]
		}
		snap.Daily[d] = g.calculateScore(day)
	}

	pre, ok := snap.Coverage[s0_data.KindPreprocess]
	snap.Passed = ok && pre >= g.config.MinPreprocessCoverage && snap.Score >= g.config.MinScore
	return snap, nil
}

func kinds() []string {
	out := make([]string, 0, len(weights))
	for k := range weights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (g *Gate) coverage(ctx context.Context, kind, bgn, stp string, dates []string) (map[string]float64, []string, error) {
	perDate := make(map[string]float64, len(dates))
	column := presenceColumns[kind]

	if kind == s0_data.KindForex || kind == s0_data.KindMacro {
		t, err := g.sources.Table(kind, "")
		if err != nil {
			return nil, nil, err
		}
		rows, err := t.ReadByRange(ctx, bgn, stp, column)
		if err != nil {
			return nil, nil, err
		}
		for _, d := range present(rows, column) {
			perDate[d] = 1
		}
		return perDate, nil, nil
	}

	if len(g.instruments) == 0 {
		return perDate, nil, nil
	}
	var missing []string
	for _, inst := range g.instruments {
		t, err := g.sources.Table(kind, inst)
		if err != nil {
			return nil, nil, err
		}
		rows, err := t.ReadByRange(ctx, bgn, stp, column)
		if err != nil {
			return nil, nil, err
		}
		seen := present(rows, column)
		for _, d := range seen {
			perDate[d] += 1 / float64(len(g.instruments))
		}
		if len(seen) < len(dates) {
			missing = append(missing, inst)
		}
	}
	return perDate, missing, nil
}

// present returns the distinct dates with at least one non-NaN value in column
func present(rows []store.Record, column string) []string {
	var out []string
	last := ""
	for _, r := range rows {
		if r.TradeDate == last || math.IsNaN(r.Value(column)) {
			continue
		}
		out = append(out, r.TradeDate)
		last = r.TradeDate
	}
	return out
}

// calculateScore calculates overall quality score using weighted average
func (g *Gate) calculateScore(coverage map[string]float64) float64 {
	score, total := 0.0, 0.0
	for key, cov := range coverage {
		w := weights[key]
		score += cov * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return score / total
}

// Schema is the table daily scores are saved to
func Schema() store.Schema {
	return store.Schema{Name: store.QualityTable, Values: []string{"score"}}
}

// Records returns one row per checked date, ready for the quality table
func (s *Snapshot) Records() []store.Record {
	dates := make([]string, 0, len(s.Daily))
	for d := range s.Daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	out := make([]store.Record, len(dates))
	for i, d := range dates {
		out[i] = store.NewRecord(d)
		out[i].Values["score"] = s.Daily[d]
	}
	return out
}
