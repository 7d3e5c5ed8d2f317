package distribution

import (
	"math"

	"github.com/beorn7/perks/quantile"
	"github.com/pkg/errors"

	"github.com/axiomhq/distribution/internal/wire"
)

// CKMSSketch backs distributions with a low-biased CKMS stream. Merging
// CKMS streams loses accuracy; prefer gk or ddsketch when shards are merged
// often.
type CKMSSketch struct {
	k int
}

var _ SketchType[*quantile.Stream] = CKMSSketch{}

func NewCKMSSketch(k int) CKMSSketch { return CKMSSketch{k: k} }

func (CKMSSketch) Kind() SketchKind  { return SketchCKMS }
func (t CKMSSketch) Resolution() int { return t.k }

func (t CKMSSketch) New() (*quantile.Stream, error) {
	return t.stream(), nil
}

func (t CKMSSketch) stream() *quantile.Stream {
	return quantile.NewLowBiased(1 / float64(t.k))
}

func (CKMSSketch) Add(s *quantile.Stream, v float64) error {
	if math.IsNaN(v) {
		return errors.New("ckms stream cannot track NaN")
	}
	s.Insert(v)
	return nil
}

// copySamples copies the samples of s; Stream.Samples may alias its buffer and
// Stream.Merge sorts its argument in place.
func copySamples(s *quantile.Stream) quantile.Samples {
	return append(quantile.Samples(nil), s.Samples()...)
}

func (t CKMSSketch) Merge(a, b *quantile.Stream) (*quantile.Stream, error) {
	out := t.stream()
	if a.Count() > 0 {
		out.Merge(copySamples(a))
	}
	if b.Count() > 0 {
		out.Merge(copySamples(b))
	}
	return out, nil
}

func (CKMSSketch) Percentile(s *quantile.Stream, p float64) float64 {
	if s.Count() == 0 {
		return math.NaN()
	}
	return s.Query(clampUnit(p))
}

func (t CKMSSketch) Clone(s *quantile.Stream) (*quantile.Stream, error) {
	out := t.stream()
	if s.Count() > 0 {
		out.Merge(copySamples(s))
	}
	return out, nil
}

// Marshal writes the sample count followed by value, width and delta of
// every sample.
func (CKMSSketch) Marshal(s *quantile.Stream) ([]byte, error) {
	samples := s.Samples()
	b := make([]byte, 0, 4+24*len(samples))
	b = wire.AppendInt32(b, int32(len(samples)))
	for _, sample := range samples {
		b = wire.AppendFloat64(b, sample.Value)
		b = wire.AppendFloat64(b, sample.Width)
		b = wire.AppendFloat64(b, sample.Delta)
	}
	return b, nil
}

func (t CKMSSketch) Unmarshal(b []byte) (*quantile.Stream, error) {
	r := wire.NewReader(b)
	n := int(r.Int32("sample count"))
	if n < 0 || n > r.Len()/24 {
		return nil, errors.Wrapf(ErrCorrupt, "invalid ckms sample count %d", n)
	}
	decoded := make(quantile.Samples, 0, n)
	for i := 0; i < n; i++ {
		decoded = append(decoded, quantile.Sample{
			Value: r.Float64("sample value"),
			Width: r.Float64("sample width"),
			Delta: r.Float64("sample delta"),
		})
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ErrCorrupt, "%d trailing bytes after ckms samples", r.Len())
	}
	s := t.stream()
	if n > 0 {
		s.Merge(decoded)
	}
	return s, nil
}
