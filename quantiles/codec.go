package quantiles

import (
	"github.com/pkg/errors"

	"github.com/axiomhq/distribution/internal/wire"
)

const codecVersion = 1

// MarshalBinary encodes the complete stream state: parameters, the raw
// buffer and every summary level. Decoding it yields a stream that answers
// queries exactly like the encoded one.
func (qs *Stream) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 64)
	b = append(b, codecVersion)
	b = wire.AppendFloat64(b, qs.eps)
	b = wire.AppendInt64(b, qs.maxElements)
	if qs.finalized {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}

	b = wire.AppendInt32(b, int32(len(qs.buffer.vec)))
	for _, e := range qs.buffer.vec {
		b = wire.AppendFloat64(b, e.value)
		b = wire.AppendFloat64(b, e.weight)
	}

	levels := qs.summaryLevels
	if qs.finalized {
		levels = []*Summary{qs.localSummary}
	}
	b = wire.AppendInt32(b, int32(len(levels)))
	for _, summary := range levels {
		b = appendEntries(b, summary.entries)
	}
	return b, nil
}

func appendEntries(b []byte, entries []SumEntry) []byte {
	b = wire.AppendInt32(b, int32(len(entries)))
	for _, e := range entries {
		b = wire.AppendFloat64(b, e.Value)
		b = wire.AppendFloat64(b, e.Weight)
		b = wire.AppendFloat64(b, e.MinRank)
		b = wire.AppendFloat64(b, e.MaxRank)
	}
	return b
}

// UnmarshalBinary replaces the state of qs with the decoded stream.
func (qs *Stream) UnmarshalBinary(data []byte) error {
	r := wire.NewReader(data)
	if v := r.Byte("version"); r.Err() == nil && v != codecVersion {
		return errors.Errorf("unsupported quantiles stream encoding version %d", v)
	}
	eps := r.Float64("eps")
	maxElements := r.Int64("maxElements")
	finalized := r.Byte("finalized") == 1
	if err := r.Err(); err != nil {
		return err
	}

	decoded, err := New(eps, maxElements)
	if err != nil {
		return errors.Wrap(err, "decoding stream parameters")
	}

	nbuf := int(r.Int32("buffer size"))
	for i := 0; i < nbuf && r.Err() == nil; i++ {
		value := r.Float64("buffer value")
		weight := r.Float64("buffer weight")
		decoded.buffer.vec = append(decoded.buffer.vec, bufEntry{value, weight})
	}

	nlevels := int(r.Int32("level count"))
	levels := make([]*Summary, 0, maxInt(nlevels, 0))
	for i := 0; i < nlevels && r.Err() == nil; i++ {
		n := int(r.Int32("level size"))
		summary := &Summary{entries: make([]SumEntry, 0, maxInt(minInt(n, r.Len()/32), 0))}
		for j := 0; j < n && r.Err() == nil; j++ {
			summary.entries = append(summary.entries, SumEntry{
				Value:   r.Float64("entry value"),
				Weight:  r.Float64("entry weight"),
				MinRank: r.Float64("entry min rank"),
				MaxRank: r.Float64("entry max rank"),
			})
		}
		levels = append(levels, summary)
	}
	if err := r.Err(); err != nil {
		return err
	}
	if r.Len() != 0 {
		return errors.Errorf("%d trailing bytes after quantiles stream", r.Len())
	}

	if finalized {
		if len(levels) != 1 {
			return errors.Errorf("finalized stream must carry exactly one summary, got %d", len(levels))
		}
		decoded.localSummary = levels[0]
		decoded.finalized = true
	} else {
		decoded.summaryLevels = levels
	}
	*qs = *decoded
	return nil
}

// Clone returns a deep copy of qs.
func (qs *Stream) Clone() *Stream {
	out := &Stream{
		eps:           qs.eps,
		maxElements:   qs.maxElements,
		maxLevels:     qs.maxLevels,
		blockSize:     qs.blockSize,
		buffer:        &buffer{vec: append([]bufEntry(nil), qs.buffer.vec...), maxSize: qs.buffer.maxSize},
		localSummary:  newSummary(),
		summaryLevels: make([]*Summary, 0, len(qs.summaryLevels)),
		finalized:     qs.finalized,
	}
	out.localSummary.entries = append(out.localSummary.entries, qs.localSummary.entries...)
	for _, summary := range qs.summaryLevels {
		out.summaryLevels = append(out.summaryLevels, &Summary{entries: append([]SumEntry(nil), summary.entries...)})
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
