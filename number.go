package distribution

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/axiomhq/distribution/internal/wire"
)

// Number is the set of representations an Accumulator can be instantiated with.
type Number interface {
	constraints.Signed | constraints.Float
}

// NumberType is the arithmetic and encoding of one numeric representation.
// Implementations are stateless.
type NumberType[T Number] interface {
	Kind() Kind
	Zero() T
	// MinValue and MaxValue are the representable extremes.
	MinValue() T
	MaxValue() T
	Min(a, b T) T
	Max(a, b T) T
	Add(a, b T) T
	Multiply(a, b T) T
	Float64(v T) float64
	FromFloat64(f float64) T
	// Size is the encoded width of a value in bytes.
	Size() int
	Append(b []byte, v T) []byte
	// Decode reads a value from exactly Size() bytes.
	Decode(b []byte) (T, error)
}

// Float64Type is the NumberType of Double distributions.
type Float64Type struct{}

var _ NumberType[float64] = Float64Type{}

func (Float64Type) Kind() Kind                    { return Double }
func (Float64Type) Zero() float64                 { return 0 }
func (Float64Type) MinValue() float64             { return -math.MaxFloat64 }
func (Float64Type) MaxValue() float64             { return math.MaxFloat64 }
func (Float64Type) Min(a, b float64) float64      { return math.Min(a, b) }
func (Float64Type) Max(a, b float64) float64      { return math.Max(a, b) }
func (Float64Type) Add(a, b float64) float64      { return a + b }
func (Float64Type) Multiply(a, b float64) float64 { return a * b }
func (Float64Type) Float64(v float64) float64     { return v }
func (Float64Type) FromFloat64(f float64) float64 { return f }
func (Float64Type) Size() int                     { return 8 }

func (Float64Type) Append(b []byte, v float64) []byte {
	return wire.AppendFloat64(b, v)
}

func (Float64Type) Decode(b []byte) (float64, error) {
	r := wire.NewReader(b)
	return r.Float64("float64"), r.Err()
}

// Float32Type is the NumberType of Float distributions. Sums are kept in
// single precision.
type Float32Type struct{}

var _ NumberType[float32] = Float32Type{}

func (Float32Type) Kind() Kind        { return Float }
func (Float32Type) Zero() float32     { return 0 }
func (Float32Type) MinValue() float32 { return -math.MaxFloat32 }
func (Float32Type) MaxValue() float32 { return math.MaxFloat32 }

func (Float32Type) Min(a, b float32) float32 {
	return float32(math.Min(float64(a), float64(b)))
}

func (Float32Type) Max(a, b float32) float32 {
	return float32(math.Max(float64(a), float64(b)))
}

func (Float32Type) Add(a, b float32) float32      { return a + b }
func (Float32Type) Multiply(a, b float32) float32 { return a * b }
func (Float32Type) Float64(v float32) float64     { return float64(v) }
func (Float32Type) FromFloat64(f float64) float32 { return float32(f) }
func (Float32Type) Size() int                     { return 4 }

func (Float32Type) Append(b []byte, v float32) []byte {
	return wire.AppendFloat32(b, v)
}

func (Float32Type) Decode(b []byte) (float32, error) {
	r := wire.NewReader(b)
	return r.Float32("float32"), r.Err()
}

// Int64Type is the NumberType of Long distributions. Sums wrap on overflow
// like any int64 arithmetic; WithOverflowCheck detects the wrapped sum of squares.
type Int64Type struct{}

var _ NumberType[int64] = Int64Type{}

func (Int64Type) Kind() Kind      { return Long }
func (Int64Type) Zero() int64     { return 0 }
func (Int64Type) MinValue() int64 { return math.MinInt64 }
func (Int64Type) MaxValue() int64 { return math.MaxInt64 }
func (Int64Type) Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (Int64Type) Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (Int64Type) Add(a, b int64) int64      { return a + b }
func (Int64Type) Multiply(a, b int64) int64 { return a * b }
func (Int64Type) Float64(v int64) float64   { return float64(v) }

// FromFloat64 truncates toward zero.
func (Int64Type) FromFloat64(f float64) int64 { return int64(f) }
func (Int64Type) Size() int                   { return 8 }

func (Int64Type) Append(b []byte, v int64) []byte {
	return wire.AppendInt64(b, v)
}

func (Int64Type) Decode(b []byte) (int64, error) {
	r := wire.NewReader(b)
	return r.Int64("int64"), r.Err()
}
