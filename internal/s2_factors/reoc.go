package s2_factors

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
)

// REOCCalculator is the open-interest-weighted intraday return: minute returns
// weighted by |Δoi|/volume, summed per day, then rolled over windows.
type REOCCalculator struct {
	class string
	args  WinArgs
}

func (c *REOCCalculator) Class() string { return c.class }
func (c *REOCCalculator) Args() Args    { return c.args }

// Names are vanilla, VOL and DIF
func (c *REOCCalculator) Names() []string {
	names := c.args.Vanilla(c.class)
	names = append(names, c.args.Suffixed(c.class, SuffixVOL)...)
	return append(names, c.args.Dif(c.class))
}

func (c *REOCCalculator) Calculate(ctx context.Context, env Env, instrument, bgn, stp string) ([]store.Record, error) {
	buffer, err := c.args.BufferBgnDate(env.Cal, bgn)
	if err != nil {
		return nil, err
	}
	daily, err := env.Sources.Preprocess(ctx, instrument, buffer, stp, "ticker_major")
	if err != nil {
		return nil, err
	}
	bars, err := env.Sources.MinuteBar(ctx, instrument, buffer, stp, "close", "pre_close", "oi", "vol")
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, nil
	}

	days, reoc := dailyREOC(bars)

	byDay := func(xs []float64) map[string]float64 {
		m := make(map[string]float64, len(days))
		for i, d := range days {
			m[d] = xs[i]
		}
		return m
	}
	columns := map[string]map[string]float64{}
	for _, w := range c.args.Wins {
		columns[winName(c.class, w)] = byDay(stats.RollingSum(reoc, w, w))
		columns[winName(c.class, w)+SuffixVOL] = byDay(stats.RollingStd(reoc, w, w))
	}
	long := byDay(stats.RollingSum(reoc, 240, 240))
	short := byDay(stats.RollingSum(reoc, 3, 3))

	names := c.Names()
	dif := c.args.Dif(c.class)
	var out []store.Record
	for _, d := range daily {
		if d.TradeDate < bgn {
			continue
		}
		r := store.NewRecord(d.TradeDate)
		r.Labels[ColTicker] = d.Label("ticker_major")
		for _, n := range names {
			if n == dif {
				r.Values[n] = lookup(long, d.TradeDate)*math.Sqrt(3.0/240.0) - lookup(short, d.TradeDate)
				continue
			}
			r.Values[n] = lookup(columns[n], d.TradeDate)
		}
		out = append(out, r)
	}
	if len(out) > 0 && out[0].Labels[ColTicker] == "" {
		return nil, fmt.Errorf("%s: preprocess rows carry no ticker_major", instrument)
	}
	return out, nil
}

func lookup(m map[string]float64, date string) float64 {
	v, ok := m[date]
	if !ok {
		return math.NaN()
	}
	return v
}

// dailyREOC folds minute bars (ordered by date, then time) into one value per day.
// The open-interest change runs across day boundaries; the first bar of each day is skipped.
func dailyREOC(bars []store.Record) (days []string, reoc []float64) {
	n := len(bars)
	simple := make([]float64, n)
	eff := make([]float64, n)
	for i, b := range bars {
		pre := b.Value("pre_close")
		if pre == 0 {
			simple[i] = math.NaN()
		} else {
			simple[i] = (b.Value("close")/pre - 1) * 1e4
		}
		doi := math.NaN()
		if i > 0 {
			doi = math.Abs(b.Value("oi") - bars[i-1].Value("oi"))
		}
		vol := b.Value("vol")
		e := math.NaN()
		if vol != 0 {
			e = doi / vol
		}
		if math.IsNaN(e) {
			e = 0
		}
		eff[i] = e
	}

	for lo := 0; lo < n; {
		hi := lo
		for hi < n && bars[hi].TradeDate == bars[lo].TradeDate {
			hi++
		}
		total := 0.0
		for i := lo + 1; i < hi; i++ {
			total += eff[i]
		}
		v := 0.0
		if total > 0 {
			for i := lo + 1; i < hi; i++ {
				s := simple[i]
				if math.IsNaN(s) {
					s = 0
				}
				v += s * eff[i] / total
			}
		}
		days = append(days, bars[lo].TradeDate)
		reoc = append(reoc, v)
		lo = hi
	}
	return days, reoc
}

var _ Calculator = (*REOCCalculator)(nil)
