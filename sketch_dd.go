package distribution

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/pb/sketchpb"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// DDSketch backs distributions with a DDSketch of relative accuracy 1/k.
type DDSketch struct {
	k int
}

var _ SketchType[*ddsketch.DDSketch] = DDSketch{}

func NewDDSketch(k int) DDSketch { return DDSketch{k: k} }

func (DDSketch) Kind() SketchKind  { return SketchDD }
func (t DDSketch) Resolution() int { return t.k }

func (t DDSketch) New() (*ddsketch.DDSketch, error) {
	s, err := ddsketch.NewDefaultDDSketch(1 / float64(t.k))
	if err != nil {
		return nil, errors.Wrap(err, "creating ddsketch")
	}
	return s, nil
}

func (DDSketch) Add(s *ddsketch.DDSketch, v float64) error {
	return errors.Wrapf(s.Add(v), "adding %v to ddsketch", v)
}

// Merge folds inputs that share the target mapping in directly and replays
// the bins of the others.
func (t DDSketch) Merge(a, b *ddsketch.DDSketch) (*ddsketch.DDSketch, error) {
	out, err := t.New()
	if err != nil {
		return nil, err
	}
	for _, s := range []*ddsketch.DDSketch{a, b} {
		if s.IndexMapping.Equals(out.IndexMapping) {
			if err := out.MergeWith(s); err != nil {
				return nil, errors.Wrap(err, "merging ddsketch")
			}
			continue
		}
		var addErr error
		s.ForEach(func(value, count float64) bool {
			addErr = out.AddWithCount(value, count)
			return addErr != nil
		})
		if addErr != nil {
			return nil, errors.Wrap(addErr, "replaying ddsketch bins")
		}
	}
	return out, nil
}

func (DDSketch) Percentile(s *ddsketch.DDSketch, p float64) float64 {
	if s.IsEmpty() {
		return math.NaN()
	}
	v, err := s.GetValueAtQuantile(clampUnit(p))
	if err != nil {
		return math.NaN()
	}
	return v
}

func (DDSketch) Clone(s *ddsketch.DDSketch) (*ddsketch.DDSketch, error) {
	return s.Copy(), nil
}

func (DDSketch) Marshal(s *ddsketch.DDSketch) ([]byte, error) {
	b, err := proto.Marshal(s.ToProto())
	return b, errors.Wrap(err, "encoding ddsketch")
}

func (DDSketch) Unmarshal(b []byte) (*ddsketch.DDSketch, error) {
	var pb sketchpb.DDSketch
	if err := proto.Unmarshal(b, &pb); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	s, err := ddsketch.FromProto(&pb)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	return s, nil
}
