package stats

import (
	"fmt"
	"math"
	"sort"
)

// WeightedVolatility is sqrt(Σw·x² − (Σw·x)²) with w normalized by Σ|w|.
// Without weights it is the sample standard deviation.
func WeightedVolatility(x, wgt []float64) float64 {
	if wgt == nil {
		return Std(x)
	}
	abs := 0.0
	for _, w := range wgt {
		abs += math.Abs(w)
	}
	mu, x2 := 0.0, 0.0
	for i := range x {
		w := wgt[i] / abs
		mu += x[i] * w
		x2 += x[i] * x[i] * w
	}
	return math.Sqrt(x2 - mu*mu)
}

// Dispersion is x·x − n·mean(x)²
func Dispersion(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := 0.0
	for _, v := range x {
		m += v
	}
	m /= float64(len(x))
	return Dot(x, x) - float64(len(x))*m*m
}

// DispersionError reports a decomposition whose parts do not add up
type DispersionError struct {
	Total, Within, Between float64
}

func (e *DispersionError) Error() string {
	return fmt.Sprintf("total = %.4f, within = %.4f, between = %.4f", e.Total, e.Within, e.Between)
}

// DecomposeDispersion splits the dispersion of x into within-group and between-group parts
func DecomposeDispersion(x []float64, groups []string) (total, within, between float64, err error) {
	n := float64(len(x))
	if n == 0 {
		return 0, 0, 0, nil
	}
	m := 0.0
	for _, v := range x {
		m += v
	}
	m /= n
	total = Dispersion(x)

	byGroup := map[string][]float64{}
	var keys []string
	for i, g := range groups {
		if _, ok := byGroup[g]; !ok {
			keys = append(keys, g)
		}
		byGroup[g] = append(byGroup[g], x[i])
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := byGroup[k]
		within += Dispersion(v)
		gm := 0.0
		for _, e := range v {
			gm += e
		}
		gm /= float64(len(v))
		between += float64(len(v)) * (gm - m) * (gm - m)
	}

	if math.Abs(total-within-between) > 1e-6 {
		return total, within, between, &DispersionError{Total: total, Within: within, Between: between}
	}
	return total, within, between, nil
}
