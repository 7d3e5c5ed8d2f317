package distribution

import (
	"math"

	"github.com/pkg/errors"
)

// Accumulator keeps running statistics of a stream of T values together with
// an approximate quantile sketch S. It is not safe for concurrent use; give
// every writer its own Accumulator and combine them with Merge.
type Accumulator[T Number, S any] struct {
	nt        NumberType[T]
	st        SketchType[S]
	checkFlow bool

	sketch       S
	n            uint64
	sum          T
	sumOfSquares T
	sumOfLogs    float64
	min, max     T
	m1, m2       float64
	m3, m4       float64
}

// NewAccumulator returns an empty accumulator. The resolution is the one of
// st.
func NewAccumulator[T Number, S any](nt NumberType[T], st SketchType[S], opts ...Option) (*Accumulator[T, S], error) {
	if !validResolution(st.Resolution()) {
		return nil, errors.Wrapf(ErrInvalidResolution, "k=%d", st.Resolution())
	}
	o := applyOptions(opts)
	sketch, err := st.New()
	if err != nil {
		return nil, err
	}
	return &Accumulator[T, S]{
		nt:           nt,
		st:           st,
		checkFlow:    o.overflowCheck,
		sketch:       sketch,
		sum:          nt.Zero(),
		sumOfSquares: nt.Zero(),
		min:          nt.Zero(),
		max:          nt.Zero(),
	}, nil
}

// Add observes value. The sketch is updated first; if it rejects the value
// nothing else changes. The logarithm of non-positive values turns SumOfLogs
// into NaN.
func (a *Accumulator[T, S]) Add(value T) error {
	x := a.nt.Float64(value)
	if err := a.st.Add(a.sketch, x); err != nil {
		return err
	}

	if a.n == 0 {
		a.min, a.max = value, value
	} else {
		a.min = a.nt.Min(a.min, value)
		a.max = a.nt.Max(a.max, value)
	}
	a.sum = a.nt.Add(a.sum, value)
	a.sumOfSquares = a.nt.Add(a.sumOfSquares, a.nt.Multiply(value, value))
	a.sumOfLogs += math.Log(x)

	n1 := float64(a.n)
	a.n++
	n := float64(a.n)

	delta := x - a.m1
	deltaN := delta / n
	deltaN2 := deltaN * deltaN
	term1 := delta * deltaN * n1

	a.m1 += deltaN
	a.m4 += term1*deltaN2*(n*n-3*n+3) + 6*deltaN2*a.m2 - 4*deltaN*a.m3
	a.m3 += term1*deltaN*(n-2) - 3*deltaN*a.m2
	a.m2 += term1

	if a.checkFlow {
		return a.checkFlowError()
	}
	return nil
}

// checkFlowError reports terms that became infinite, an int64 sum of
// squares that wrapped negative, and a sum of squares that collapsed to zero
// under a positive sum.
func (a *Accumulator[T, S]) checkFlowError() error {
	sum := a.nt.Float64(a.sum)
	sumOfSquares := a.nt.Float64(a.sumOfSquares)
	for _, v := range []float64{sum, sumOfSquares, a.m1, a.m2, a.m3, a.m4} {
		if math.IsInf(v, 0) {
			return errors.Wrapf(ErrOverflow, "after %d values", a.n)
		}
	}
	if sumOfSquares < 0 {
		return errors.Wrapf(ErrOverflow, "sum of squares wrapped after %d values", a.n)
	}
	if sumOfSquares == 0 && sum > 0 {
		return errors.Wrapf(ErrUnderflow, "after %d values", a.n)
	}
	return nil
}

// Merge returns the union of a and b. Neither input is modified. The result
// uses the sketch type of the input with the larger resolution.
func (a *Accumulator[T, S]) Merge(b *Accumulator[T, S]) (*Accumulator[T, S], error) {
	st := a.st
	if b.st.Resolution() > st.Resolution() {
		st = b.st
	}

	switch {
	case a.n == 0 && b.n == 0:
		out, err := NewAccumulator(a.nt, st)
		if err != nil {
			return nil, err
		}
		out.checkFlow = a.checkFlow || b.checkFlow
		return out, nil
	case a.n == 0:
		return b.cloneAs(st, a.checkFlow)
	case b.n == 0:
		return a.cloneAs(st, b.checkFlow)
	}

	sketch, err := st.Merge(a.sketch, b.sketch)
	if err != nil {
		return nil, err
	}

	na, nb := float64(a.n), float64(b.n)
	nc := na + nb
	delta := b.m1 - a.m1
	delta2 := delta * delta
	delta3 := delta2 * delta
	delta4 := delta2 * delta2

	out := &Accumulator[T, S]{
		nt:           a.nt,
		st:           st,
		checkFlow:    a.checkFlow || b.checkFlow,
		sketch:       sketch,
		n:            a.n + b.n,
		sum:          a.nt.Add(a.sum, b.sum),
		sumOfSquares: a.nt.Add(a.sumOfSquares, b.sumOfSquares),
		sumOfLogs:    a.sumOfLogs + b.sumOfLogs,
		min:          a.nt.Min(a.min, b.min),
		max:          a.nt.Max(a.max, b.max),
	}
	out.m1 = (na*a.m1 + nb*b.m1) / nc
	out.m2 = a.m2 + b.m2 + delta2*na*nb/nc
	out.m3 = a.m3 + b.m3 +
		delta3*na*nb*(na-nb)/(nc*nc) +
		3*delta*(na*b.m2-nb*a.m2)/nc
	out.m4 = a.m4 + b.m4 +
		delta4*na*nb*(na*na-na*nb+nb*nb)/(nc*nc*nc) +
		6*delta2*(na*na*b.m2+nb*nb*a.m2)/(nc*nc) +
		4*delta*(na*b.m3-nb*a.m3)/nc

	if out.checkFlow {
		if err := out.checkFlowError(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Clone returns an independent copy of a.
func (a *Accumulator[T, S]) Clone() (*Accumulator[T, S], error) {
	return a.cloneAs(a.st, false)
}

// cloneAs copies a, re-expressing its sketch at the resolution of st when it
// differs from the own one.
func (a *Accumulator[T, S]) cloneAs(st SketchType[S], checkFlow bool) (*Accumulator[T, S], error) {
	var (
		sketch S
		err    error
	)
	if st.Resolution() == a.st.Resolution() {
		sketch, err = st.Clone(a.sketch)
	} else {
		var empty S
		if empty, err = st.New(); err == nil {
			sketch, err = st.Merge(a.sketch, empty)
		}
	}
	if err != nil {
		return nil, err
	}
	out := *a
	out.st = st
	out.sketch = sketch
	out.checkFlow = a.checkFlow || checkFlow
	return &out, nil
}

// K returns the resolution of the backing sketch.
func (a *Accumulator[T, S]) K() int { return a.st.Resolution() }

// Sketch exposes the backing sketch. Mutating it desynchronizes the
// accumulator.
func (a *Accumulator[T, S]) Sketch() S { return a.sketch }

func (a *Accumulator[T, S]) Count() uint64      { return a.n }
func (a *Accumulator[T, S]) Sum() T             { return a.sum }
func (a *Accumulator[T, S]) SumOfSquares() T    { return a.sumOfSquares }
func (a *Accumulator[T, S]) SumOfLogs() float64 { return a.sumOfLogs }

// Min returns the smallest observed value; ok is false when nothing was
// observed.
func (a *Accumulator[T, S]) Min() (min T, ok bool) {
	if a.n == 0 {
		return a.nt.Zero(), false
	}
	return a.min, true
}

// Max returns the largest observed value; ok is false when nothing was
// observed.
func (a *Accumulator[T, S]) Max() (max T, ok bool) {
	if a.n == 0 {
		return a.nt.Zero(), false
	}
	return a.max, true
}

// Mean is NaN for an empty accumulator.
func (a *Accumulator[T, S]) Mean() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return a.nt.Float64(a.sum) / float64(a.n)
}

// Variance returns the Bessel corrected sample variance, NaN below two
// values.
func (a *Accumulator[T, S]) Variance() float64 {
	if a.n < 2 {
		return math.NaN()
	}
	return a.m2 / (float64(a.n) - 1)
}

func (a *Accumulator[T, S]) StdDev() float64 {
	return math.Sqrt(a.Variance())
}

// QuadraticMean is the root mean square, NaN for an empty accumulator.
func (a *Accumulator[T, S]) QuadraticMean() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return math.Sqrt(a.nt.Float64(a.sumOfSquares) / float64(a.n))
}

// Skewness returns the unbiased sample skewness, NaN below three values.
func (a *Accumulator[T, S]) Skewness() float64 {
	if a.n < 3 {
		return math.NaN()
	}
	n := float64(a.n)
	sd := a.StdDev()
	t1 := n / ((n - 1) * (n - 2))
	return t1 * a.m3 / (sd * sd * sd)
}

// Kurtosis returns the unbiased sample excess kurtosis, NaN below four
// values.
func (a *Accumulator[T, S]) Kurtosis() float64 {
	if a.n < 4 {
		return math.NaN()
	}
	n := float64(a.n)
	variance := a.Variance()
	t1 := n * (n + 1) / ((n - 1) * (n - 2) * (n - 3))
	t3 := 3 * (n - 1) * (n - 1) / ((n - 2) * (n - 3))
	return t1*a.m4/(variance*variance) - t3
}

// GeometricMean is not computed.
func (a *Accumulator[T, S]) GeometricMean() (float64, error) {
	return math.NaN(), errors.Wrap(ErrUnsupported, "geometric mean")
}

// PopulationVariance is not computed.
func (a *Accumulator[T, S]) PopulationVariance() (float64, error) {
	return math.NaN(), errors.Wrap(ErrUnsupported, "population variance")
}

// Percentile returns the approximate p-th percentile, p in [0, 100]. It is
// NaN for an empty accumulator.
func (a *Accumulator[T, S]) Percentile(p float64) float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return a.st.Percentile(a.sketch, p/100)
}
