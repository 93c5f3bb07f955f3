// Package stats holds the NaN-aware numeric kernels shared by every stage.
// NaN marks a missing observation; reductions skip it unless stated otherwise.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var nan = math.NaN()

// NaN returns a missing value
func NaN() float64 { return nan }

// Valid returns the non-NaN values of xs
func Valid(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Count returns the number of non-NaN values
func Count(xs []float64) int {
	n := 0
	for _, x := range xs {
		if !math.IsNaN(x) {
			n++
		}
	}
	return n
}

// Sum adds the non-NaN values; an all-NaN input sums to 0
func Sum(xs []float64) float64 {
	return floats.Sum(Valid(xs))
}

// Mean of the non-NaN values, NaN when there are none
func Mean(xs []float64) float64 {
	v := Valid(xs)
	if len(v) == 0 {
		return nan
	}
	return stat.Mean(v, nil)
}

// Std is the sample standard deviation of the non-NaN values, NaN below two observations
func Std(xs []float64) float64 {
	v := Valid(xs)
	if len(v) < 2 {
		return nan
	}
	return stat.StdDev(v, nil)
}

// Skew is the bias-corrected sample skewness, NaN below three observations
func Skew(xs []float64) float64 {
	v := Valid(xs)
	if len(v) < 3 {
		return nan
	}
	if stat.StdDev(v, nil) == 0 {
		return 0
	}
	return stat.Skew(v, nil)
}

// ExKurtosis is the bias-corrected sample excess kurtosis, NaN below four observations
func ExKurtosis(xs []float64) float64 {
	v := Valid(xs)
	if len(v) < 4 {
		return nan
	}
	if stat.StdDev(v, nil) == 0 {
		return 0
	}
	return stat.ExKurtosis(v, nil)
}

// FillNaN replaces NaN with v in place and returns xs
func FillNaN(xs []float64, v float64) []float64 {
	for i, x := range xs {
		if math.IsNaN(x) {
			xs[i] = v
		}
	}
	return xs
}

// Sign returns -1, 0 or 1; NaN stays NaN
func Sign(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return nan
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// Rank assigns 1-based ranks to the non-NaN values, ties get their average rank
func Rank(xs []float64) []float64 {
	idx := make([]int, 0, len(xs))
	for i, x := range xs {
		if !math.IsNaN(x) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, len(xs))
	for i := range out {
		out[i] = nan
	}
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// PctRank is Rank divided by the number of non-NaN values
func PctRank(xs []float64) []float64 {
	r := Rank(xs)
	n := float64(Count(xs))
	for i := range r {
		r[i] /= n
	}
	return r
}

func pairwise(x, y []float64) ([]float64, []float64) {
	px := make([]float64, 0, len(x))
	py := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		px = append(px, x[i])
		py = append(py, y[i])
	}
	return px, py
}

// Pearson correlation over the pairs where both values are present.
// NaN with fewer than two pairs or a constant side.
func Pearson(x, y []float64) float64 {
	px, py := pairwise(x, y)
	if len(px) < 2 {
		return nan
	}
	if stat.Variance(px, nil) == 0 || stat.Variance(py, nil) == 0 {
		return nan
	}
	return stat.Correlation(px, py, nil)
}

// Spearman rank correlation over the pairs where both values are present
func Spearman(x, y []float64) float64 {
	px, py := pairwise(x, y)
	if len(px) < 2 {
		return nan
	}
	return Pearson(Rank(px), Rank(py))
}

// NormQuantile is the standard normal inverse CDF
func NormQuantile(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}

// Dot is Σx·w; any NaN makes the result NaN
func Dot(x, w []float64) float64 {
	return floats.Dot(x, w)
}
