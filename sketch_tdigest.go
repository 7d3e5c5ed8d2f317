package distribution

import (
	"bytes"
	"encoding/gob"
	"math"

	"github.com/pkg/errors"
	"github.com/stripe/veneur/tdigest"
)

// TDigestSketch backs distributions with a merging t-digest whose
// compression equals k.
type TDigestSketch struct {
	k int
}

var _ SketchType[*tdigest.MergingDigest] = TDigestSketch{}

func NewTDigestSketch(k int) TDigestSketch { return TDigestSketch{k: k} }

func (TDigestSketch) Kind() SketchKind  { return SketchTDigest }
func (t TDigestSketch) Resolution() int { return t.k }

func (t TDigestSketch) New() (*tdigest.MergingDigest, error) {
	return tdigest.NewMerging(float64(t.k), false), nil
}

func (TDigestSketch) Add(s *tdigest.MergingDigest, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Errorf("t-digest cannot track %v", v)
	}
	s.Add(v, 1)
	return nil
}

// Merge replays both digests into a fresh one. MergingDigest.Merge only
// reads its argument.
func (t TDigestSketch) Merge(a, b *tdigest.MergingDigest) (*tdigest.MergingDigest, error) {
	out := tdigest.NewMerging(float64(t.k), false)
	out.Merge(a)
	out.Merge(b)
	return out, nil
}

func (TDigestSketch) Percentile(s *tdigest.MergingDigest, p float64) float64 {
	if s.Count() == 0 {
		return math.NaN()
	}
	return s.Quantile(clampUnit(p))
}

func (t TDigestSketch) Clone(s *tdigest.MergingDigest) (*tdigest.MergingDigest, error) {
	out := tdigest.NewMerging(float64(t.k), false)
	out.Merge(s)
	return out, nil
}

func (TDigestSketch) Marshal(s *tdigest.MergingDigest) ([]byte, error) {
	b, err := s.GobEncode()
	return b, errors.Wrap(err, "encoding t-digest")
}

// Unmarshal checks the encoded compression before decoding, since the digest
// allocates buffers proportional to it.
func (t TDigestSketch) Unmarshal(b []byte) (*tdigest.MergingDigest, error) {
	compression, err := encodedCompression(b)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if !(compression >= 1 && compression <= MaxK) {
		return nil, errors.Wrapf(ErrCorrupt, "t-digest compression %v", compression)
	}
	s := tdigest.NewMerging(1, false)
	if err := s.GobDecode(b); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	return s, nil
}

// encodedCompression reads the compression that GobEncode writes after the
// centroid list.
func encodedCompression(b []byte) (float64, error) {
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(nil); err != nil {
		return 0, errors.Wrap(err, "decoding t-digest centroids")
	}
	var compression float64
	if err := dec.Decode(&compression); err != nil {
		return 0, errors.Wrap(err, "decoding t-digest compression")
	}
	return compression, nil
}
