package distribution

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aclements/go-moremath/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/veneur/tdigest"

	"github.com/axiomhq/distribution/quantiles"
)

const (
	scalarTolerance     = 1e-3
	percentileTolerance = 1e-2
)

func newGK[T Number](t *testing.T, nt NumberType[T], k int, opts ...Option) *Accumulator[T, *quantiles.Stream] {
	t.Helper()
	a, err := NewAccumulator[T, *quantiles.Stream](nt, NewGKSketch(k), opts...)
	require.NoError(t, err)
	return a
}

func feed[T Number, S any](t *testing.T, a *Accumulator[T, S], values ...T) *Accumulator[T, S] {
	t.Helper()
	for _, v := range values {
		require.NoError(t, a.Add(v))
	}
	return a
}

// reference holds two-pass statistics of a sample.
type reference struct {
	mean, variance, skewness, kurtosis, quadraticMean float64
}

func referenceOf(xs []float64) reference {
	n := float64(len(xs))
	mean := stats.Mean(xs)
	variance := stats.Variance(xs)
	var m3, m4, squares float64
	for _, x := range xs {
		d := x - mean
		m3 += d * d * d
		m4 += d * d * d * d
		squares += x * x
	}
	sd := math.Sqrt(variance)
	return reference{
		mean:          mean,
		variance:      variance,
		skewness:      n / ((n - 1) * (n - 2)) * m3 / (sd * sd * sd),
		kurtosis:      n*(n+1)/((n-1)*(n-2)*(n-3))*m4/(variance*variance) - 3*(n-1)*(n-1)/((n-2)*(n-3)),
		quadraticMean: math.Sqrt(squares / n),
	}
}

func uniform(seed int64, n int) []float64 {
	rnd := rand.New(rand.NewSource(seed))
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = rnd.Float64()
	}
	return xs
}

func assertStatistics[S any](t *testing.T, want []float64, got *Accumulator[float64, S]) {
	t.Helper()
	ref := referenceOf(want)
	sample := stats.Sample{Xs: want}
	min, max := sample.Bounds()

	assert.Equal(t, uint64(len(want)), got.Count())
	assert.InDelta(t, sample.Sum(), got.Sum(), scalarTolerance)
	gotMin, ok := got.Min()
	assert.True(t, ok)
	assert.Equal(t, min, gotMin)
	gotMax, ok := got.Max()
	assert.True(t, ok)
	assert.Equal(t, max, gotMax)
	assert.InDelta(t, ref.mean, got.Mean(), scalarTolerance, "mean")
	assert.InDelta(t, ref.variance, got.Variance(), scalarTolerance, "variance")
	assert.InDelta(t, ref.skewness, got.Skewness(), scalarTolerance, "skewness")
	assert.InDelta(t, ref.kurtosis, got.Kurtosis(), scalarTolerance, "kurtosis")
	assert.InDelta(t, ref.quadraticMean, got.QuadraticMean(), scalarTolerance, "quadratic mean")
	for _, p := range []float64{1, 10, 25, 50, 75, 90, 99} {
		assert.InDelta(t, sample.Quantile(p/100), got.Percentile(p), percentileTolerance, "p%v", p)
	}
}

func TestAccumulatorScenario(t *testing.T) {
	a := feed(t, newGK[int64](t, Int64Type{}, DefaultK), 1, 2, 3, 4, 5)

	assert.Equal(t, uint64(5), a.Count())
	assert.Equal(t, int64(15), a.Sum())
	assert.Equal(t, int64(55), a.SumOfSquares())
	assert.Equal(t, 3.0, a.Mean())
	assert.InDelta(t, 2.5, a.Variance(), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), a.StdDev(), 1e-12)
	assert.InDelta(t, math.Sqrt(11), a.QuadraticMean(), 1e-12)
	assert.InDelta(t, 0, a.Skewness(), 1e-12)
	assert.InDelta(t, -1.2, a.Kurtosis(), 1e-12)
	assert.InDelta(t, math.Log(120), a.SumOfLogs(), 1e-12)

	min, ok := a.Min()
	assert.True(t, ok)
	assert.Equal(t, int64(1), min)
	max, ok := a.Max()
	assert.True(t, ok)
	assert.Equal(t, int64(5), max)
	assert.Equal(t, 1.0, a.Percentile(0))
	assert.Equal(t, 5.0, a.Percentile(100))
}

func TestAccumulatorMergeScenario(t *testing.T) {
	a := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 1, 2, 3)
	b := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 4, 5)
	whole := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 1, 2, 3, 4, 5)

	merged, err := a.Merge(b)
	require.NoError(t, err)

	assert.Equal(t, whole.Count(), merged.Count())
	assert.Equal(t, whole.Sum(), merged.Sum())
	assert.Equal(t, whole.SumOfSquares(), merged.SumOfSquares())
	assert.InDelta(t, whole.SumOfLogs(), merged.SumOfLogs(), 1e-12)
	assert.Equal(t, 1.0, merged.min)
	assert.Equal(t, 5.0, merged.max)
	assert.InDelta(t, whole.Mean(), merged.Mean(), 1e-12)
	assert.InDelta(t, whole.Variance(), merged.Variance(), 1e-12)
	assert.InDelta(t, whole.Skewness(), merged.Skewness(), 1e-12)
	assert.InDelta(t, whole.Kurtosis(), merged.Kurtosis(), 1e-12)

	// Inputs stay untouched.
	assert.Equal(t, uint64(3), a.Count())
	assert.Equal(t, uint64(2), b.Count())
	assert.Equal(t, 3.0, a.Percentile(100))
}

func TestAccumulatorSinglePass(t *testing.T) {
	xs := uniform(1, 20000)
	a := newGK[float64](t, Float64Type{}, DefaultK)
	feed(t, a, xs...)
	assertStatistics(t, xs, a)
}

func TestAccumulatorSinglePassNormal(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	xs := make([]float64, 5000)
	for i := range xs {
		xs[i] = 10 + 2*rnd.NormFloat64()
	}
	a := feed(t, newGK[float64](t, Float64Type{}, DefaultK), xs...)
	ref := referenceOf(xs)
	assert.InDelta(t, ref.mean, a.Mean(), scalarTolerance)
	assert.InDelta(t, ref.variance, a.Variance(), scalarTolerance)
	assert.InDelta(t, ref.skewness, a.Skewness(), scalarTolerance)
	assert.InDelta(t, ref.kurtosis, a.Kurtosis(), scalarTolerance)
}

func TestAccumulatorMergeEquivalence(t *testing.T) {
	xs := uniform(2, 20000)
	split := 7000

	a := feed(t, newGK[float64](t, Float64Type{}, DefaultK), xs[:split]...)
	b := feed(t, newGK[float64](t, Float64Type{}, DefaultK), xs[split:]...)

	ab, err := a.Merge(b)
	require.NoError(t, err)
	assertStatistics(t, xs, ab)

	ba, err := b.Merge(a)
	require.NoError(t, err)
	assertStatistics(t, xs, ba)

	assert.Equal(t, ab.Count(), ba.Count())
	assert.InDelta(t, ab.Mean(), ba.Mean(), 1e-12)
	assert.InDelta(t, ab.Variance(), ba.Variance(), 1e-12)
	assert.InDelta(t, ab.Skewness(), ba.Skewness(), 1e-9)
	assert.InDelta(t, ab.Kurtosis(), ba.Kurtosis(), 1e-9)
}

type gkAccumulator = Accumulator[float64, *quantiles.Stream]

func mergeLeft(t *testing.T, shards []*gkAccumulator) *gkAccumulator {
	out := shards[0]
	for _, s := range shards[1:] {
		var err error
		out, err = out.Merge(s)
		require.NoError(t, err)
	}
	return out
}

func mergeRight(t *testing.T, shards []*gkAccumulator) *gkAccumulator {
	out := shards[len(shards)-1]
	for i := len(shards) - 2; i >= 0; i-- {
		var err error
		out, err = shards[i].Merge(out)
		require.NoError(t, err)
	}
	return out
}

func mergeBalanced(t *testing.T, shards []*gkAccumulator) *gkAccumulator {
	if len(shards) == 1 {
		return shards[0]
	}
	mid := len(shards) / 2
	out, err := mergeBalanced(t, shards[:mid]).Merge(mergeBalanced(t, shards[mid:]))
	require.NoError(t, err)
	return out
}

func TestAccumulatorMergeAssociativity(t *testing.T) {
	const shardCount = 9
	xs := uniform(3, 18000)
	shards := make([]*gkAccumulator, shardCount)
	for i := range shards {
		shards[i] = newGK[float64](t, Float64Type{}, DefaultK)
	}
	for i, x := range xs {
		require.NoError(t, shards[i%shardCount].Add(x))
	}

	trees := map[string]func(*testing.T, []*gkAccumulator) *gkAccumulator{
		"left":     mergeLeft,
		"right":    mergeRight,
		"balanced": mergeBalanced,
	}
	for name, tree := range trees {
		t.Run(name, func(t *testing.T) {
			assertStatistics(t, xs, tree(t, shards))
		})
	}
}

func TestAccumulatorEmpty(t *testing.T) {
	a := newGK[float64](t, Float64Type{}, DefaultK)

	assert.Equal(t, uint64(0), a.Count())
	_, ok := a.Min()
	assert.False(t, ok)
	_, ok = a.Max()
	assert.False(t, ok)
	for name, v := range map[string]float64{
		"mean":          a.Mean(),
		"variance":      a.Variance(),
		"stdDev":        a.StdDev(),
		"quadraticMean": a.QuadraticMean(),
		"skewness":      a.Skewness(),
		"kurtosis":      a.Kurtosis(),
		"percentile":    a.Percentile(50),
	} {
		assert.True(t, math.IsNaN(v), "%s of empty accumulator must be NaN, got %v", name, v)
	}

	merged, err := a.Merge(newGK[float64](t, Float64Type{}, 256))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), merged.Count())
	assert.Equal(t, 256, merged.K())
	_, ok = merged.Min()
	assert.False(t, ok)
	assert.Equal(t, 0.0, merged.m1)
	assert.Equal(t, 0.0, merged.m2)
}

func TestAccumulatorSingleValue(t *testing.T) {
	a := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 42)
	assert.Equal(t, 42.0, a.Mean())
	assert.True(t, math.IsNaN(a.Variance()))
	assert.True(t, math.IsNaN(a.Skewness()))
	assert.True(t, math.IsNaN(a.Kurtosis()))
	assert.Equal(t, 42.0, a.Percentile(50))

	two := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 1, 2)
	assert.InDelta(t, 0.5, two.Variance(), 1e-12)
	assert.True(t, math.IsNaN(two.Skewness()))

	three := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 1, 2, 4)
	assert.False(t, math.IsNaN(three.Skewness()))
	assert.True(t, math.IsNaN(three.Kurtosis()))
}

func TestAccumulatorExtremesAreValues(t *testing.T) {
	// Values equal to the representable bounds are regular observations.
	a := feed(t, newGK[int64](t, Int64Type{}, DefaultK), math.MaxInt64)
	max, ok := a.Max()
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), max)
	min, ok := a.Min()
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), min)

	f := feed(t, newGK[float64](t, Float64Type{}, DefaultK), -math.MaxFloat64)
	min2, ok := f.Min()
	assert.True(t, ok)
	assert.Equal(t, -math.MaxFloat64, min2)
}

func TestAccumulatorMergeWithEmpty(t *testing.T) {
	a := feed(t, newGK[float64](t, Float64Type{}, 64), 1, 2, 3, 4)
	empty := newGK[float64](t, Float64Type{}, 256)

	for _, merged := range []*gkAccumulator{
		must(a.Merge(empty)),
		must(empty.Merge(a)),
	} {
		assert.Equal(t, a.Count(), merged.Count())
		assert.Equal(t, a.Sum(), merged.Sum())
		assert.Equal(t, a.m2, merged.m2)
		assert.Equal(t, a.m4, merged.m4)
		assert.Equal(t, 256, merged.K())
		assert.Equal(t, 4.0, merged.Percentile(100))
	}

	// The copy is independent of its source.
	merged := must(a.Merge(empty))
	require.NoError(t, merged.Add(100))
	assert.Equal(t, uint64(4), a.Count())
	assert.Equal(t, 4.0, a.Percentile(100))
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestAccumulatorMergeResolution(t *testing.T) {
	a := feed(t, newGK[float64](t, Float64Type{}, 64), 1, 2)
	b := feed(t, newGK[float64](t, Float64Type{}, 512), 3)
	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, 512, merged.K())
	assert.Equal(t, 1/1024.0, merged.Sketch().Epsilon())
}

func TestAccumulatorLogsOfNonPositive(t *testing.T) {
	a := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 1, 0)
	assert.True(t, math.IsInf(a.SumOfLogs(), -1))
	require.NoError(t, a.Add(-1))
	assert.True(t, math.IsNaN(a.SumOfLogs()))
	// Other statistics are unaffected.
	assert.Equal(t, 0.0, a.Mean())
}

func TestAccumulatorUnsupported(t *testing.T) {
	a := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 1, 2, 3)
	v, err := a.GeometricMean()
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.True(t, math.IsNaN(v))
	v, err = a.PopulationVariance()
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.True(t, math.IsNaN(v))
}

func TestAccumulatorInvalidResolution(t *testing.T) {
	_, err := NewAccumulator[float64, *quantiles.Stream](Float64Type{}, NewGKSketch(1))
	assert.ErrorIs(t, err, ErrInvalidResolution)
	_, err = NewAccumulator[float64, *tdigest.MergingDigest](Float64Type{}, NewTDigestSketch(MaxK+1))
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestAccumulatorOverflowCheck(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		a := newGK[float64](t, Float64Type{}, DefaultK)
		assert.NoError(t, a.Add(math.MaxFloat64))
		assert.True(t, math.IsInf(a.SumOfSquares(), 1))
	})
	t.Run("double overflow", func(t *testing.T) {
		a := newGK[float64](t, Float64Type{}, DefaultK, WithOverflowCheck())
		assert.ErrorIs(t, a.Add(math.MaxFloat64), ErrOverflow)
	})
	t.Run("float overflow", func(t *testing.T) {
		a := newGK[float32](t, Float32Type{}, DefaultK, WithOverflowCheck())
		assert.ErrorIs(t, a.Add(1e20), ErrOverflow)
	})
	t.Run("long wraps", func(t *testing.T) {
		a := newGK[int64](t, Int64Type{}, DefaultK, WithOverflowCheck())
		assert.ErrorIs(t, a.Add(3037000500), ErrOverflow)
	})
	t.Run("double underflow", func(t *testing.T) {
		a := newGK[float64](t, Float64Type{}, DefaultK, WithOverflowCheck())
		assert.ErrorIs(t, a.Add(1e-200), ErrUnderflow)
	})
	t.Run("merge", func(t *testing.T) {
		unchecked := feed(t, newGK[float64](t, Float64Type{}, DefaultK), 1e300)
		checked := feed(t, newGK[float64](t, Float64Type{}, DefaultK, WithOverflowCheck()), 1)
		_, err := checked.Merge(unchecked)
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestAccumulatorFloat(t *testing.T) {
	a := feed(t, newGK[float32](t, Float32Type{}, DefaultK), 1.5, 2.5, 3.5)
	assert.Equal(t, float32(7.5), a.Sum())
	assert.InDelta(t, 2.5, a.Mean(), 1e-6)
	assert.InDelta(t, 1.0, a.Variance(), 1e-6)
	min, _ := a.Min()
	assert.Equal(t, float32(1.5), min)
}
