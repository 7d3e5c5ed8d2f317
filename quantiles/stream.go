package quantiles

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

const (
	// DefaultEpsilon is the rank error NewDefault guarantees.
	DefaultEpsilon = 0.01
	// DefaultMaxElements is the stream length NewDefault sizes its levels for.
	DefaultMaxElements = int64(1) << 32
)

// ErrFinalized is returned by every mutation after Finalize was called.
var ErrFinalized = errors.New("Finalize() already called")

// ErrNotFinalized is returned by the query methods that require Finalize.
var ErrNotFinalized = errors.New("Finalize() must be called before generating quantiles")

// Stream is a weighted quantiles stream. Pushed values are buffered, turned
// into summaries and propagated through levels of summaries which keep the
// approximation error bounded by eps for up to maxElements pushed values.
type Stream struct {
	eps           float64
	maxElements   int64
	maxLevels     int64
	blockSize     int64
	buffer        *buffer
	localSummary  *Summary
	summaryLevels []*Summary
	finalized     bool
}

// New ...
func New(eps float64, maxElements int64) (*Stream, error) {
	if !(eps > 0) {
		return nil, fmt.Errorf("an epsilon value of %v is not allowed", eps)
	}

	maxLevels, blockSize, err := getQuantileSpecs(eps, maxElements)
	if err != nil {
		return nil, err
	}

	buffer, err := newBuffer(blockSize, maxElements)
	if err != nil {
		return nil, err
	}

	stream := &Stream{
		eps:           eps,
		maxElements:   maxElements,
		buffer:        buffer,
		finalized:     false,
		maxLevels:     maxLevels,
		blockSize:     blockSize,
		localSummary:  newSummary(),
		summaryLevels: []*Summary{},
	}
	return stream, nil
}

// NewDefault ...
func NewDefault() *Stream {
	stream, err := New(DefaultEpsilon, DefaultMaxElements)
	if err != nil {
		panic(err)
	}
	return stream
}

// Push adds a weighted value. Values with a non-positive weight are dropped.
func (qs *Stream) Push(value float64, weight float64) error {
	if qs.finalized {
		return ErrFinalized
	}

	if err := qs.buffer.push(value, weight); err != nil {
		return err
	}

	if qs.buffer.isFull() {
		return qs.pushBuffer()
	}
	return nil
}

func (qs *Stream) pushBuffer() error {
	if qs.finalized {
		return ErrFinalized
	}
	qs.localSummary.buildFromBufferEntries(qs.buffer.generateEntryList())
	qs.localSummary.Compress(qs.blockSize, qs.eps)
	return qs.propagateLocalSummary()
}

// PushSummary pushes full summary while maintaining approximation error invariants.
func (qs *Stream) PushSummary(summary []SumEntry) error {
	if qs.finalized {
		return ErrFinalized
	}
	qs.localSummary.BuildFromSummaryEntries(summary)
	qs.localSummary.Compress(qs.blockSize, qs.eps)
	return qs.propagateLocalSummary()
}

// Finalize flushes approximator and finalizes state.
func (qs *Stream) Finalize() error {
	if qs.finalized {
		return ErrFinalized
	}

	// Flush any remaining buffer elements.
	if err := qs.pushBuffer(); err != nil {
		return err
	}

	qs.localSummary.Clear()
	for _, summary := range qs.summaryLevels {
		qs.localSummary.Merge(summary)
	}

	qs.summaryLevels = []*Summary{}
	qs.finalized = true
	return nil
}

// propagateLocalSummary carries the local summary up the levels like a
// binary counter: a level that is taken gets merged in and, once the result
// outgrows a block, compressed and carried to the next level.
func (qs *Stream) propagateLocalSummary() error {
	if qs.finalized {
		return ErrFinalized
	}
	if qs.localSummary.Size() == 0 {
		return nil
	}

	for level := 0; ; level++ {
		if len(qs.summaryLevels) <= level {
			qs.summaryLevels = append(qs.summaryLevels, newSummary())
		}
		resident := qs.summaryLevels[level]
		qs.localSummary.Merge(resident)
		if resident.Size() == 0 || qs.localSummary.Size() <= qs.blockSize+1 {
			qs.summaryLevels[level] = qs.localSummary
			qs.localSummary = newSummary()
			return nil
		}
		qs.localSummary.Compress(qs.blockSize, qs.eps)
		resident.Clear()
	}
}

// Summary returns a merged view of everything pushed so far without
// finalizing the stream. The returned summary is owned by the caller.
func (qs *Stream) Summary() *Summary {
	snapshot := newSummary()
	if qs.finalized {
		snapshot.BuildFromSummaryEntries(qs.localSummary.entries)
		return snapshot
	}
	snapshot.buildFromBufferEntries(qs.buffer.entries())
	for _, summary := range qs.summaryLevels {
		snapshot.Merge(summary)
	}
	return snapshot
}

// Quantile returns the approximate q-quantile of everything pushed so far.
// It does not require Finalize; an empty stream yields NaN.
func (qs *Stream) Quantile(q float64) float64 {
	return qs.Summary().Quantile(q)
}

// Count returns the total weight pushed so far.
func (qs *Stream) Count() float64 {
	if qs.finalized {
		return qs.localSummary.TotalWeight()
	}
	total := qs.buffer.totalWeight()
	for _, summary := range qs.summaryLevels {
		total += summary.TotalWeight()
	}
	return total
}

// Merge returns a new stream holding the union of qs and other. The result
// uses the tighter epsilon and the larger element budget of the two inputs,
// neither of which is modified.
func (qs *Stream) Merge(other *Stream) (*Stream, error) {
	out, err := New(math.Min(qs.eps, other.eps), max(qs.maxElements, other.maxElements))
	if err != nil {
		return nil, err
	}
	merged := qs.Summary()
	merged.Merge(other.Summary())
	if merged.Size() == 0 {
		return out, nil
	}
	if err := out.PushSummary(merged.entries); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateQuantiles returns numQuantiles+1 evenly spaced quantiles of a
// finalized stream. The result is sorted and can be searched with
// sort.SearchFloat64s to bucket a value.
func (qs *Stream) GenerateQuantiles(numQuantiles int64) ([]float64, error) {
	if !qs.finalized {
		return nil, ErrNotFinalized
	}
	return qs.localSummary.GenerateQuantiles(numQuantiles), nil
}

// GenerateBoundaries returns at least numBoundaries sorted bucket boundaries
// of a finalized stream. Unlike GenerateQuantiles they are not evenly spaced
// in rank, only representative of the values seen.
func (qs *Stream) GenerateBoundaries(numBoundaries int64) ([]float64, error) {
	if !qs.finalized {
		return nil, ErrNotFinalized
	}
	return qs.localSummary.GenerateBoundaries(numBoundaries), nil
}

// ApproximationError reports the relative rank error of one summary level,
// or of the top level, which bounds all others, when level is negative.
// After Finalize only the overall error is left.
func (qs *Stream) ApproximationError(level int64) (float64, error) {
	if qs.finalized {
		if level > 0 {
			return 0, fmt.Errorf("only overall error is available after Finalize()")
		}
		return qs.localSummary.ApproximationError(), nil
	}

	if len(qs.summaryLevels) == 0 {
		// the buffer alone is exact
		return 0, nil
	}

	if level < 0 {
		level = int64(len(qs.summaryLevels)) - 1
	}
	if level >= int64(len(qs.summaryLevels)) {
		return 0, fmt.Errorf("invalid level")
	}
	return qs.summaryLevels[level].ApproximationError(), nil
}

// MaxDepth ...
func (qs *Stream) MaxDepth() int {
	return len(qs.summaryLevels)
}

// Epsilon ...
func (qs *Stream) Epsilon() float64 {
	return qs.eps
}

// FinalSummary ...
func (qs *Stream) FinalSummary() (*Summary, error) {
	if !qs.finalized {
		return nil, ErrNotFinalized
	}
	return qs.localSummary, nil
}

func getQuantileSpecs(eps float64, maxElements int64) (int64, int64, error) {
	var (
		maxLevel  int64 = 1
		blockSize int64 = 2
	)
	if !(eps >= 0 && eps < 1) {
		return maxLevel, blockSize, fmt.Errorf("eps should be element of [0, 1)")
	}
	if maxElements <= 0 {
		return maxLevel, blockSize, fmt.Errorf("maxElements should be > 0")
	}

	if eps <= math.SmallestNonzeroFloat64 {
		// exact, one level holding everything
		return 1, max(maxElements, 2), nil
	}
	// Level l fills up at most maxElements / (2^l * blockSize) times, so
	// the smallest maxLevel with 2^maxLevel * blockSize >= maxElements
	// suffices. Growing both together gives tighter blocks than the
	// closed form ceil(log2(eps * maxElements)).
	for maxLevel = 1; ; maxLevel++ {
		hi, lo := bits.Mul64(uint64(1)<<uint64(maxLevel), uint64(blockSize))
		if hi != 0 || lo >= uint64(maxElements) {
			break
		}
		// room for the level's entries plus the min and max
		size := math.Ceil(float64(maxLevel)/eps) + 1
		if size >= float64(maxElements) {
			// a single block holds the whole stream
			return 1, max(maxElements, 2), nil
		}
		blockSize = int64(size)
	}
	return maxLevel, max(blockSize, 2), nil
}
