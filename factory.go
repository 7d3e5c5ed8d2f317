package distribution

import (
	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/beorn7/perks/quantile"
	"github.com/pkg/errors"
	"github.com/stripe/veneur/tdigest"

	"github.com/axiomhq/distribution/quantiles"
)

type registryKey struct {
	kind   Kind
	sketch SketchKind
}

type registryEntry struct {
	create func(k int, opts []Option) (Distribution, error)
	decode func(b []byte, opts []Option) (Distribution, error)
}

var registry = map[registryKey]registryEntry{}

func register[T Number, S any](nt NumberType[T], newSketchType SketchTypeFunc[S]) {
	key := registryKey{kind: nt.Kind(), sketch: newSketchType(DefaultK).Kind()}
	registry[key] = registryEntry{
		create: func(k int, opts []Option) (Distribution, error) {
			a, err := NewAccumulator(nt, newSketchType(k), opts...)
			if err != nil {
				return nil, err
			}
			return wrap(a), nil
		},
		decode: func(b []byte, opts []Option) (Distribution, error) {
			a, err := UnmarshalAccumulator(nt, newSketchType, b, opts...)
			if err != nil {
				return nil, err
			}
			return wrap(a), nil
		},
	}
}

func registerSketches[T Number](nt NumberType[T]) {
	register[T, *quantiles.Stream](nt, func(k int) SketchType[*quantiles.Stream] { return NewGKSketch(k) })
	register[T, *tdigest.MergingDigest](nt, func(k int) SketchType[*tdigest.MergingDigest] { return NewTDigestSketch(k) })
	register[T, *quantile.Stream](nt, func(k int) SketchType[*quantile.Stream] { return NewCKMSSketch(k) })
	register[T, *ddsketch.DDSketch](nt, func(k int) SketchType[*ddsketch.DDSketch] { return NewDDSketch(k) })
}

func init() {
	registerSketches[float64](Float64Type{})
	registerSketches[float32](Float32Type{})
	registerSketches[int64](Int64Type{})
}

func lookup(kind Kind, sketch SketchKind) (registryEntry, error) {
	if kind < Double || kind > Long {
		return registryEntry{}, errors.Wrapf(ErrUnknownKind, "%s", kind)
	}
	entry, ok := registry[registryKey{kind: kind, sketch: sketch}]
	if !ok {
		return registryEntry{}, errors.Wrapf(ErrUnknownSketch, "%s", sketch)
	}
	return entry, nil
}

// New returns an empty distribution of the given kind with sketch resolution
// k. The sketch defaults to SketchGK.
func New(kind Kind, k int, opts ...Option) (Distribution, error) {
	if !validResolution(k) {
		return nil, errors.Wrapf(ErrInvalidResolution, "k=%d", k)
	}
	entry, err := lookup(kind, applyOptions(opts).sketch)
	if err != nil {
		return nil, err
	}
	return entry.create(k, opts)
}

// NewDefault returns an empty distribution with resolution DefaultK.
func NewDefault(kind Kind, opts ...Option) (Distribution, error) {
	return New(kind, DefaultK, opts...)
}

// Unmarshal decodes bytes written by Distribution.MarshalBinary. The kind
// and sketch are not part of the encoding and must be known to the caller.
func Unmarshal(kind Kind, sketch SketchKind, b []byte, opts ...Option) (Distribution, error) {
	entry, err := lookup(kind, sketch)
	if err != nil {
		return nil, err
	}
	return entry.decode(b, opts)
}

// MarshalTagged prefixes the encoding of d with its TypeTag.
func MarshalTagged(d Distribution) ([]byte, error) {
	body, err := d.MarshalBinary()
	if err != nil {
		return nil, err
	}
	tag := TypeTag(d.Kind(), d.SketchKind())
	return append([]byte{byte(tag >> 8), byte(tag)}, body...), nil
}

// UnmarshalTagged decodes bytes written by MarshalTagged.
func UnmarshalTagged(b []byte, opts ...Option) (Distribution, error) {
	if len(b) < 2 {
		return nil, errors.Wrap(ErrCorrupt, "missing type tag")
	}
	kind, sketch := SplitTypeTag(uint16(b[0])<<8 | uint16(b[1]))
	return Unmarshal(kind, sketch, b[2:], opts...)
}
