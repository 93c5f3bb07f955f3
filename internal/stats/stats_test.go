package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReductionsSkipNaN(t *testing.T) {
	xs := []float64{1, nan, 3}
	assert.Equal(t, 2, Count(xs))
	assert.Equal(t, 4.0, Sum(xs))
	assert.Equal(t, 2.0, Mean(xs))
	assert.InDelta(t, math.Sqrt(2), Std(xs), 1e-12)

	assert.True(t, math.IsNaN(Mean([]float64{nan})))
	assert.True(t, math.IsNaN(Std([]float64{1})))
	assert.Equal(t, 0.0, Sum([]float64{nan}))
}

func TestRankAverageTies(t *testing.T) {
	r := Rank([]float64{10, nan, 20, 10, 30})
	assert.Equal(t, 1.5, r[0])
	assert.True(t, math.IsNaN(r[1]))
	assert.Equal(t, 3.0, r[2])
	assert.Equal(t, 1.5, r[3])
	assert.Equal(t, 4.0, r[4])

	p := PctRank([]float64{3, 1, 2, 2})
	assert.Equal(t, []float64{1, 0.25, 0.625, 0.625}, p)
}

func TestCorrelations(t *testing.T) {
	x := []float64{1, 2, 3, 4, nan}
	y := []float64{2, 4, 6, 9, 100}
	assert.InDelta(t, 1.0, Spearman(x, y), 1e-12)
	assert.InDelta(t, 0.9944, Pearson(x, y), 1e-4)

	assert.True(t, math.IsNaN(Pearson([]float64{1, 1, 1}, []float64{1, 2, 3})))
	assert.True(t, math.IsNaN(Spearman([]float64{1}, []float64{1})))
	assert.InDelta(t, -1.0, Spearman([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
}

func TestSkewKurtosis(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 10}
	// bias-corrected G1 and G2
	assert.InDelta(t, 1.6971, Skew(xs), 1e-4)
	assert.InDelta(t, 3.152, ExKurtosis(xs), 1e-4)

	assert.True(t, math.IsNaN(Skew([]float64{1, 2})))
	assert.True(t, math.IsNaN(ExKurtosis([]float64{1, 2, 3})))
	assert.Equal(t, 0.0, Skew([]float64{2, 2, 2}))
}

func TestNormQuantile(t *testing.T) {
	assert.InDelta(t, 2.5758, NormQuantile(0.995), 1e-4)
}

func TestRolling(t *testing.T) {
	xs := []float64{1, 2, 3, nan, 5}

	sum := RollingSum(xs, 2, 2)
	assert.True(t, math.IsNaN(sum[0]))
	assert.Equal(t, 3.0, sum[1])
	assert.Equal(t, 5.0, sum[2])
	assert.True(t, math.IsNaN(sum[3]), "one valid value below min periods")
	assert.True(t, math.IsNaN(sum[4]))

	mean := RollingMean(xs, 3, 1)
	assert.Equal(t, []float64{1, 1.5, 2, 2.5, 4}, mean)

	std := RollingStd([]float64{1, 2, 3, 4}, 3, 2)
	assert.True(t, math.IsNaN(std[0]))
	assert.InDelta(t, math.Sqrt(0.5), std[1], 1e-12)
	assert.InDelta(t, 1.0, std[3], 1e-12)
}

func TestShiftDiffCumSum(t *testing.T) {
	xs := []float64{1, 2, 4}

	back := Shift(xs, -1)
	assert.Equal(t, 2.0, back[0])
	assert.Equal(t, 4.0, back[1])
	assert.True(t, math.IsNaN(back[2]))

	fwd := Shift(xs, 1)
	assert.True(t, math.IsNaN(fwd[0]))
	assert.Equal(t, 1.0, fwd[1])

	d := Diff(xs)
	assert.True(t, math.IsNaN(d[0]))
	assert.Equal(t, []float64{1, 2}, d[1:])

	c := CumSum([]float64{1, nan, 2})
	assert.Equal(t, 1.0, c[0])
	assert.True(t, math.IsNaN(c[1]))
	assert.Equal(t, 3.0, c[2])
}

func TestDecomposeDispersion(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	groups := []string{"a", "b", "b", "c", "c", "c", "d", "d"}

	total, within, between, err := DecomposeDispersion(x, groups)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, total, 1e-9)
	assert.InDelta(t, 3.0, within, 1e-9)
	assert.InDelta(t, 39.0, between, 1e-9)
}

func TestWeightedVolatility(t *testing.T) {
	x := []float64{1, 3}
	assert.InDelta(t, 1.0, WeightedVolatility(x, []float64{1, 1}), 1e-12)
	assert.InDelta(t, math.Sqrt2, WeightedVolatility(x, nil), 1e-12)
	assert.InDelta(t, 0.0, WeightedVolatility([]float64{2, 2}, []float64{3, 1}), 1e-12)
}

func TestSign(t *testing.T) {
	assert.Equal(t, 1.0, Sign(0.3))
	assert.Equal(t, -1.0, Sign(-2))
	assert.Equal(t, 0.0, Sign(0))
	assert.True(t, math.IsNaN(Sign(nan)))
}
