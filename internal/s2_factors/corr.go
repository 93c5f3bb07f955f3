package s2_factors

import (
	"context"
	"math"
	"sort"

	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
)

// CORRCalculator is the negated Spearman correlation between daily return and
// volume change over the highest-volume days of a trailing window.
type CORRCalculator struct {
	class string
	args  WinLbdArgs
}

func (c *CORRCalculator) Class() string   { return c.class }
func (c *CORRCalculator) Args() Args      { return c.args }
func (c *CORRCalculator) Names() []string { return c.args.Vanilla(c.class) }

func (c *CORRCalculator) Calculate(ctx context.Context, env Env, instrument, bgn, stp string) ([]store.Record, error) {
	buffer, err := c.args.BufferBgnDate(env.Cal, bgn)
	if err != nil {
		return nil, err
	}
	daily, err := env.Sources.Preprocess(ctx, instrument, buffer, stp, "ticker_major", "return_c_major", "vol_major")
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, nil
	}

	n := len(daily)
	ret := make([]float64, n)
	vol := make([]float64, n)
	for i, d := range daily {
		ret[i] = d.Value("return_c_major")
		vol[i] = d.Value("vol_major")
	}
	chg := volumeChange(vol)

	var out []store.Record
	for i, d := range daily {
		if d.TradeDate < bgn {
			continue
		}
		r := store.NewRecord(d.TradeDate)
		r.Labels[ColTicker] = d.Label("ticker_major")
		for _, w := range c.args.Wins {
			for _, l := range c.args.Lbds {
				name := winLbdName(c.class, w, l)
				if i < w-1 {
					r.Values[name] = math.NaN()
					continue
				}
				lo := i - w + 1
				top := int(float64(w)*l) + 1
				r.Values[name] = -topCorrelation(ret[lo:i+1], chg[lo:i+1], vol[lo:i+1], top)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// volumeChange is vol/vol.shift(1) - 1 with zero volume treated as missing
func volumeChange(vol []float64) []float64 {
	v := make([]float64, len(vol))
	for i, x := range vol {
		if x == 0 {
			x = math.NaN()
		}
		v[i] = x
	}
	prev := stats.Shift(v, 1)
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i]/prev[i] - 1
	}
	return out
}

// topCorrelation ranks the window by sortVar descending (NaN last, ties keep order)
// and correlates x with y over the first top rows
func topCorrelation(x, y, sortVar []float64, top int) float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := sortVar[idx[a]], sortVar[idx[b]]
		if math.IsNaN(vb) {
			return !math.IsNaN(va)
		}
		if math.IsNaN(va) {
			return false
		}
		return va > vb
	})
	if top > len(idx) {
		top = len(idx)
	}
	tx := make([]float64, top)
	ty := make([]float64, top)
	for k, i := range idx[:top] {
		tx[k] = x[i]
		ty[k] = y[i]
	}
	return stats.Spearman(tx, ty)
}

var _ Calculator = (*CORRCalculator)(nil)
