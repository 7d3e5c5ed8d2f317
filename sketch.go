package distribution

import "math"

const (
	// DefaultK is the resolution used by NewDefault.
	DefaultK = 128
	// MaxK is the largest accepted resolution. It fits the int32 k field of
	// the encoding and keeps the sketches a t-digest or gk stream allocates
	// for it in the megabytes.
	MaxK = 1 << 16
)

// validResolution reports whether k is in [2, MaxK].
func validResolution(k int) bool {
	return k >= 2 && k <= MaxK
}

// SketchType is the capability set an Accumulator needs from its backing
// approximate quantile sketch S. The SketchType carries the resolution k;
// the sketch values themselves are opaque to the accumulator.
type SketchType[S any] interface {
	Kind() SketchKind
	Resolution() int
	// New creates an empty sketch at this resolution.
	New() (S, error)
	// Add updates s in place.
	Add(s S, v float64) error
	// Merge returns a new sketch that summarizes the union of both inputs at
	// this type's resolution. Neither input changes observably.
	Merge(a, b S) (S, error)
	// Percentile returns the approximate p-quantile, p in [0, 1]. Empty
	// sketches yield NaN.
	Percentile(s S, p float64) float64
	Clone(s S) (S, error)
	Marshal(s S) ([]byte, error)
	Unmarshal(b []byte) (S, error)
}

func clampUnit(p float64) float64 {
	return math.Min(math.Max(p, 0), 1)
}
