package stats

import "math"

// window semantics follow trailing windows: position i covers [i-win+1, i].
// A window with fewer than minPeriods non-NaN values yields NaN.

func rolling(xs []float64, win, minPeriods int, fn func(valid []float64) float64) []float64 {
	out := make([]float64, len(xs))
	buf := make([]float64, 0, win)
	for i := range xs {
		lo := max(0, i-win+1)
		buf = buf[:0]
		for _, x := range xs[lo : i+1] {
			if !math.IsNaN(x) {
				buf = append(buf, x)
			}
		}
		if len(buf) < minPeriods || len(buf) == 0 {
			out[i] = nan
			continue
		}
		out[i] = fn(buf)
	}
	return out
}

// RollingSum is the trailing sum over win values
func RollingSum(xs []float64, win, minPeriods int) []float64 {
	return rolling(xs, win, minPeriods, func(v []float64) float64 {
		s := 0.0
		for _, x := range v {
			s += x
		}
		return s
	})
}

// RollingMean is the trailing mean over win values
func RollingMean(xs []float64, win, minPeriods int) []float64 {
	return rolling(xs, win, minPeriods, Mean)
}

// RollingStd is the trailing sample standard deviation over win values
func RollingStd(xs []float64, win, minPeriods int) []float64 {
	return rolling(xs, win, minPeriods, Std)
}

// Shift moves values forward by n positions (negative n pulls future values back), padding with NaN
func Shift(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		j := i - n
		if j < 0 || j >= len(xs) {
			out[i] = nan
			continue
		}
		out[i] = xs[j]
	}
	return out
}

// Diff is xs[i] - xs[i-1]; the first element is NaN
func Diff(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i == 0 {
			out[i] = nan
			continue
		}
		out[i] = xs[i] - xs[i-1]
	}
	return out
}

// CumSum is the running sum; NaN entries are skipped and stay NaN
func CumSum(xs []float64) []float64 {
	out := make([]float64, len(xs))
	s := 0.0
	for i, x := range xs {
		if math.IsNaN(x) {
			out[i] = nan
			continue
		}
		s += x
		out[i] = s
	}
	return out
}
