package distribution

import (
	"github.com/pkg/errors"
)

// Distribution is an Accumulator whose number and sketch types are chosen at
// runtime. Values cross the interface as float64; Long distributions
// truncate them toward zero.
type Distribution interface {
	Kind() Kind
	SketchKind() SketchKind
	K() int

	Add(v float64) error
	// Merge returns the union of both distributions, which must share Kind
	// and SketchKind.
	Merge(other Distribution) (Distribution, error)
	Clone() (Distribution, error)
	MarshalBinary() ([]byte, error)

	Count() uint64
	Sum() float64
	SumOfSquares() float64
	SumOfLogs() float64
	Min() (float64, bool)
	Max() (float64, bool)
	Mean() float64
	Variance() float64
	StdDev() float64
	QuadraticMean() float64
	Skewness() float64
	Kurtosis() float64
	GeometricMean() (float64, error)
	PopulationVariance() (float64, error)
	Percentile(p float64) float64
}

type distribution[T Number, S any] struct {
	*Accumulator[T, S]
}

var _ Distribution = distribution[float64, any]{}

func wrap[T Number, S any](a *Accumulator[T, S]) Distribution {
	return distribution[T, S]{a}
}

// AccumulatorOf returns the typed accumulator behind d.
func AccumulatorOf[T Number, S any](d Distribution) (*Accumulator[T, S], bool) {
	w, ok := d.(distribution[T, S])
	if !ok {
		return nil, false
	}
	return w.Accumulator, true
}

func (d distribution[T, S]) Kind() Kind             { return d.nt.Kind() }
func (d distribution[T, S]) SketchKind() SketchKind { return d.st.Kind() }

func (d distribution[T, S]) Add(v float64) error {
	return d.Accumulator.Add(d.nt.FromFloat64(v))
}

func (d distribution[T, S]) Merge(other Distribution) (Distribution, error) {
	o, ok := other.(distribution[T, S])
	if !ok || o.SketchKind() != d.SketchKind() {
		return nil, errors.Wrapf(ErrIncompatible, "merging %s/%s with %s/%s",
			d.Kind(), d.SketchKind(), other.Kind(), other.SketchKind())
	}
	merged, err := d.Accumulator.Merge(o.Accumulator)
	if err != nil {
		return nil, err
	}
	return wrap(merged), nil
}

func (d distribution[T, S]) Clone() (Distribution, error) {
	c, err := d.Accumulator.Clone()
	if err != nil {
		return nil, err
	}
	return wrap(c), nil
}

func (d distribution[T, S]) Sum() float64          { return d.nt.Float64(d.Accumulator.Sum()) }
func (d distribution[T, S]) SumOfSquares() float64 { return d.nt.Float64(d.Accumulator.SumOfSquares()) }

func (d distribution[T, S]) Min() (float64, bool) {
	v, ok := d.Accumulator.Min()
	return d.nt.Float64(v), ok
}

func (d distribution[T, S]) Max() (float64, bool) {
	v, ok := d.Accumulator.Max()
	return d.nt.Float64(v), ok
}
