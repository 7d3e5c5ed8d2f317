package distribution

import (
	"github.com/pkg/errors"

	"github.com/axiomhq/distribution/internal/wire"
)

// MarshalBinary encodes the accumulator big-endian as
//
//	k:int32 sketchLen:int32 sketch n:int64 sum:T sumOfSquares:T
//	sumOfLogs:float64 min:T max:T m1:float64 m2:float64 m3:float64 m4:float64
//
// The encoding does not name T or the sketch kind; see MarshalTagged. An
// absent min or max is written as zero.
func (a *Accumulator[T, S]) MarshalBinary() ([]byte, error) {
	sketch, err := a.st.Marshal(a.sketch)
	if err != nil {
		return nil, errors.Wrap(err, "encoding sketch")
	}
	min, _ := a.Min()
	max, _ := a.Max()

	b := make([]byte, 0, 8+len(sketch)+8+5*a.nt.Size()+5*8)
	b = wire.AppendInt32(b, int32(a.st.Resolution()))
	b = wire.AppendBytes(b, sketch)
	b = wire.AppendInt64(b, int64(a.n))
	b = a.nt.Append(b, a.sum)
	b = a.nt.Append(b, a.sumOfSquares)
	b = wire.AppendFloat64(b, a.sumOfLogs)
	b = a.nt.Append(b, min)
	b = a.nt.Append(b, max)
	b = wire.AppendFloat64(b, a.m1)
	b = wire.AppendFloat64(b, a.m2)
	b = wire.AppendFloat64(b, a.m3)
	b = wire.AppendFloat64(b, a.m4)
	return b, nil
}

// SketchTypeFunc builds the sketch type for a decoded resolution.
type SketchTypeFunc[S any] func(k int) SketchType[S]

// UnmarshalAccumulator decodes bytes written by MarshalBinary. The caller
// supplies the number type and the sketch type constructor that produced
// them.
func UnmarshalAccumulator[T Number, S any](nt NumberType[T], newSketchType SketchTypeFunc[S], b []byte, opts ...Option) (*Accumulator[T, S], error) {
	r := wire.NewReader(b)
	k := int(r.Int32("k"))
	sketchBytes := r.Bytes("sketch")
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if !validResolution(k) {
		return nil, errors.Wrapf(ErrCorrupt, "resolution %d", k)
	}

	st := newSketchType(k)
	sketch, err := st.Unmarshal(sketchBytes)
	if err != nil {
		return nil, err
	}

	a := &Accumulator[T, S]{
		nt:        nt,
		st:        st,
		checkFlow: applyOptions(opts).overflowCheck,
		sketch:    sketch,
	}
	n := r.Int64("n")
	a.sum = decodeNumber(r, nt, "sum")
	a.sumOfSquares = decodeNumber(r, nt, "sum of squares")
	a.sumOfLogs = r.Float64("sum of logs")
	a.min = decodeNumber(r, nt, "min")
	a.max = decodeNumber(r, nt, "max")
	a.m1 = r.Float64("m1")
	a.m2 = r.Float64("m2")
	a.m3 = r.Float64("m3")
	a.m4 = r.Float64("m4")
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ErrCorrupt, "%d trailing bytes", r.Len())
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrCorrupt, "negative count %d", n)
	}
	a.n = uint64(n)
	return a, nil
}

func decodeNumber[T Number](r *wire.Reader, nt NumberType[T], what string) T {
	raw := r.Raw(nt.Size(), what)
	if raw == nil {
		return nt.Zero()
	}
	v, err := nt.Decode(raw)
	if err != nil {
		return nt.Zero()
	}
	return v
}
