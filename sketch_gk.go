package distribution

import (
	"github.com/pkg/errors"

	"github.com/axiomhq/distribution/quantiles"
)

// GKSketch backs distributions with the weighted multi-level summary of the
// quantiles package. It is the default sketch.
type GKSketch struct {
	k int
}

var _ SketchType[*quantiles.Stream] = GKSketch{}

// NewGKSketch returns the quantiles stream sketch type at resolution k. The
// stream is sized for a rank error of 1/(2k) so chains of merges stay within
// 1/k.
func NewGKSketch(k int) GKSketch { return GKSketch{k: k} }

func (GKSketch) Kind() SketchKind   { return SketchGK }
func (t GKSketch) Resolution() int  { return t.k }
func (t GKSketch) epsilon() float64 { return 1 / (2 * float64(t.k)) }

func (t GKSketch) New() (*quantiles.Stream, error) {
	s, err := quantiles.New(t.epsilon(), quantiles.DefaultMaxElements)
	return s, errors.Wrap(err, "creating quantiles stream")
}

func (GKSketch) Add(s *quantiles.Stream, v float64) error {
	return s.Push(v, 1)
}

func (t GKSketch) Merge(a, b *quantiles.Stream) (*quantiles.Stream, error) {
	merged, err := a.Merge(b)
	if err != nil {
		return nil, errors.Wrap(err, "merging quantiles streams")
	}
	return merged, nil
}

func (GKSketch) Percentile(s *quantiles.Stream, p float64) float64 {
	return s.Quantile(clampUnit(p))
}

func (GKSketch) Clone(s *quantiles.Stream) (*quantiles.Stream, error) {
	return s.Clone(), nil
}

func (GKSketch) Marshal(s *quantiles.Stream) ([]byte, error) {
	return s.MarshalBinary()
}

// Unmarshal rejects streams finer than this resolution; merges and clones
// only ever produce streams at or above 1/(2k).
func (t GKSketch) Unmarshal(b []byte) (*quantiles.Stream, error) {
	s := &quantiles.Stream{}
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if !(s.Epsilon() >= t.epsilon()) {
		return nil, errors.Wrapf(ErrCorrupt, "quantiles stream epsilon %v below %v", s.Epsilon(), t.epsilon())
	}
	return s, nil
}
