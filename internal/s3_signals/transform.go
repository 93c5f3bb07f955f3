package s3_signals

import (
	"math"

	"github.com/wonny/factorlab/internal/s1_universe"
	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
)

// winsorK is Φ⁻¹(0.995)
var winsorK = stats.NormQuantile(0.995)

// dateSpans returns [lo, hi) index ranges of consecutive rows sharing a trade date
func dateSpans(rows []store.Record) [][2]int {
	var out [][2]int
	for lo := 0; lo < len(rows); {
		hi := lo
		for hi < len(rows) && rows[hi].TradeDate == rows[lo].TradeDate {
			hi++
		}
		out = append(out, [2]int{lo, hi})
		lo = hi
	}
	return out
}

func column(rows []store.Record, name string) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Value(name)
	}
	return out
}

func cloneAll(rows []store.Record) []store.Record {
	out := make([]store.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// SectorFill replaces missing values by the mean of their (trade_date, sectorL1) group
func SectorFill(rows []store.Record, names []string) []store.Record {
	out := cloneAll(rows)
	for _, span := range dateSpans(out) {
		day := out[span[0]:span[1]]
		groups := map[string][]int{}
		for i, r := range day {
			s := r.Label(s1_universe.ColSectorL1)
			groups[s] = append(groups[s], i)
		}
		for _, name := range names {
			for _, idx := range groups {
				vals := make([]float64, len(idx))
				for k, i := range idx {
					vals[k] = day[i].Value(name)
				}
				mean := stats.Mean(vals)
				for k, i := range idx {
					if math.IsNaN(vals[k]) {
						day[i].Values[name] = mean
					}
				}
			}
		}
	}
	return out
}

// Normalize winsorizes each date to mean ± k·std and z-scores it with the clipped moments
func Normalize(rows []store.Record, names []string) []store.Record {
	out := cloneAll(rows)
	for _, span := range dateSpans(out) {
		day := out[span[0]:span[1]]
		for _, name := range names {
			x := column(day, name)
			mu, sd := stats.Mean(x), stats.Std(x)
			if !math.IsNaN(sd) {
				lo, hi := mu-winsorK*sd, mu+winsorK*sd
				for i, v := range x {
					if math.IsNaN(v) {
						continue
					}
					x[i] = math.Min(math.Max(v, lo), hi)
				}
			}
			cmu, csd := stats.Mean(x), stats.Std(x)
			for i, v := range x {
				day[i].Values[name] = (v - cmu) / csd
			}
		}
	}
	return out
}

// EWA smooths each instrument's own row sequence with the decay weights.
// A full window is dotted with the weights; a shorter history falls back to its mean.
func EWA(rows []store.Record, names []string, weights []float64) []store.Record {
	out := cloneAll(rows)
	win := len(weights)
	byInstrument := map[string][]int{}
	for i, r := range rows {
		inst := r.Label(s1_universe.ColInstrument)
		byInstrument[inst] = append(byInstrument[inst], i)
	}
	for _, idx := range byInstrument {
		for _, name := range names {
			series := make([]float64, len(idx))
			for k, i := range idx {
				series[k] = rows[i].Value(name)
			}
			for k, i := range idx {
				window := series[max(0, k-win+1) : k+1]
				out[i].Values[name] = ewaWindow(window, weights)
			}
		}
	}
	return out
}

func ewaWindow(window, weights []float64) float64 {
	if stats.Count(window) == 0 {
		return math.NaN()
	}
	if len(window) == len(weights) {
		return stats.Dot(window, weights)
	}
	return stats.Mean(window)
}

// Signal turns each date's values into demeaned rank signs scaled to unit gross exposure
func Signal(rows []store.Record, names []string) []store.Record {
	out := cloneAll(rows)
	for _, span := range dateSpans(out) {
		day := out[span[0]:span[1]]
		for _, name := range names {
			pct := stats.PctRank(column(day, name))
			m := stats.Mean(pct)
			signs := make([]float64, len(pct))
			gross := 0.0
			for i, p := range pct {
				signs[i] = stats.Sign(p - m)
				if !math.IsNaN(signs[i]) {
					gross += math.Abs(signs[i])
				}
			}
			for i, s := range signs {
				if gross == 0 {
					s = math.NaN()
				} else {
					s /= gross
				}
				day[i].Values[name] = s
			}
		}
	}
	return out
}
