package quantiles

import (
	"math"
	"sort"
)

// SumEntry is a weighted value of a summary with the bounds of its rank.
type SumEntry struct {
	Value   float64
	Weight  float64
	MinRank float64
	MaxRank float64
}

// prevMaxRank is the highest rank any smaller value can have.
func (se SumEntry) prevMaxRank() float64 {
	return se.MaxRank - se.Weight
}

// nextMinRank is the lowest rank any larger value can have.
func (se SumEntry) nextMinRank() float64 {
	return se.MinRank + se.Weight
}

// shift moves the rank bounds of se by the bounds contributed by another
// summary.
func (se SumEntry) shift(minRank, maxRank float64) SumEntry {
	se.MinRank += minRank
	se.MaxRank += maxRank
	return se
}

// Summary is a list of entries sorted by value.
type Summary struct {
	entries []SumEntry
}

func newSummary() *Summary {
	return &Summary{entries: []SumEntry{}}
}

func (sum *Summary) buildFromBufferEntries(bes []bufEntry) {
	sum.entries = make([]SumEntry, len(bes))
	var rank float64
	for i, be := range bes {
		sum.entries[i] = SumEntry{Value: be.value, Weight: be.weight, MinRank: rank, MaxRank: rank + be.weight}
		rank += be.weight
	}
}

// BuildFromSummaryEntries replaces the content of the summary with a copy of ses.
func (sum *Summary) BuildFromSummaryEntries(ses []SumEntry) {
	sum.entries = append(make([]SumEntry, 0, len(ses)), ses...)
}

// Merge folds other into sum in linear time. other is left untouched.
func (sum *Summary) Merge(other *Summary) {
	a, b := sum.entries, other.entries
	switch {
	case len(b) == 0:
		return
	case len(a) == 0:
		sum.BuildFromSummaryEntries(b)
		return
	}

	merged := make([]SumEntry, 0, len(a)+len(b))
	// aBelow and bBelow track the weight of each side already emitted.
	var (
		i, j           int
		aBelow, bBelow float64
	)
	for i < len(a) && j < len(b) {
		x, y := a[i], b[j]
		switch {
		case x.Value < y.Value:
			merged = append(merged, x.shift(bBelow, y.prevMaxRank()))
			aBelow = x.nextMinRank()
			i++
		case x.Value > y.Value:
			merged = append(merged, y.shift(aBelow, x.prevMaxRank()))
			bBelow = y.nextMinRank()
			j++
		default:
			merged = append(merged, SumEntry{
				Value:   x.Value,
				Weight:  x.Weight + y.Weight,
				MinRank: x.MinRank + y.MinRank,
				MaxRank: x.MaxRank + y.MaxRank,
			})
			aBelow, bBelow = x.nextMinRank(), y.nextMinRank()
			i++
			j++
		}
	}

	aTotal, bTotal := a[len(a)-1].MaxRank, b[len(b)-1].MaxRank
	for ; i < len(a); i++ {
		merged = append(merged, a[i].shift(bBelow, bTotal))
	}
	for ; j < len(b); j++ {
		merged = append(merged, b[j].shift(aBelow, aTotal))
	}
	sum.entries = merged
}

// Compress shrinks the summary to roughly sizeHint entries while adding at most
// max(1/sizeHint, minEps) to its approximation error. The first and last
// entries always survive.
func (sum *Summary) Compress(sizeHint int64, minEps float64) {
	sizeHint = max(sizeHint, 2)
	n := len(sum.entries)
	if int64(n) <= sizeHint {
		return
	}

	maxGap := sum.TotalWeight() * max(1/float64(sizeHint), minEps)
	// credit spaces the kept entries evenly: every skipped entry costs
	// sizeHint, every kept entry pays back n.
	var credit int64
	kept := 1
	for cur := 0; cur+1 < n; {
		next := cur + 1
		for next < n && credit < int64(n) &&
			sum.entries[next].prevMaxRank()-sum.entries[cur].nextMinRank() <= maxGap {
			credit += sizeHint
			next++
		}
		cur = max(cur+1, next-1)
		sum.entries[kept] = sum.entries[cur]
		kept++
		credit -= int64(n)
	}
	sum.entries = sum.entries[:kept]
}

// GenerateBoundaries returns at least numBoundaries distinct values that
// keep the approximation bounds, taken from a soft compressed copy.
func (sum *Summary) GenerateBoundaries(numBoundaries int64) []float64 {
	if len(sum.entries) == 0 {
		return []float64{}
	}
	compressed := &Summary{}
	compressed.BuildFromSummaryEntries(sum.entries)
	// compressing adds about 1/numBoundaries to the error
	compressed.Compress(numBoundaries, sum.ApproximationError()+1/float64(numBoundaries))

	out := make([]float64, len(compressed.entries))
	for i, e := range compressed.entries {
		out[i] = e.Value
	}
	return out
}

// GenerateQuantiles returns numQuantiles+1 values splitting the summary
// into numQuantiles parts of equal weight, minimum and maximum included.
func (sum *Summary) GenerateQuantiles(numQuantiles int64) []float64 {
	if len(sum.entries) == 0 {
		return []float64{}
	}
	numQuantiles = max(numQuantiles, 2)
	total := sum.TotalWeight()
	out := make([]float64, 0, numQuantiles+1)
	// the ranks queried only grow, so one pass over the entries answers all
	cur := 0
	for rank := int64(0); rank <= numQuantiles; rank++ {
		d2 := 2 * (float64(rank) * total / float64(numQuantiles))
		next := cur + 1
		for next < len(sum.entries) && d2 >= sum.entries[next].MinRank+sum.entries[next].MaxRank {
			next++
		}
		cur = next - 1
		out = append(out, sum.pick(cur, next, d2))
	}
	return out
}

// Quantile answers a single rank query. q is clamped to [0, 1]; an empty
// summary yields NaN.
func (sum *Summary) Quantile(q float64) float64 {
	if len(sum.entries) == 0 || math.IsNaN(q) {
		return math.NaN()
	}
	d2 := 2 * min(max(q, 0), 1) * sum.TotalWeight()
	// MinRank+MaxRank does not decrease along the entries
	next := 1 + sort.Search(len(sum.entries)-1, func(i int) bool {
		e := sum.entries[i+1]
		return d2 < e.MinRank+e.MaxRank
	})
	return sum.pick(next-1, next, d2)
}

// pick chooses between the two entries around twice the queried rank d2.
func (sum *Summary) pick(cur, next int, d2 float64) float64 {
	if next == len(sum.entries) ||
		d2 < sum.entries[cur].nextMinRank()+sum.entries[next].prevMaxRank() {
		return sum.entries[cur].Value
	}
	return sum.entries[next].Value
}

// ApproximationError is the widest rank uncertainty of the summary relative
// to its total weight.
func (sum *Summary) ApproximationError() float64 {
	if len(sum.entries) == 0 {
		return 0
	}
	var widest float64
	for i := 1; i < len(sum.entries); i++ {
		e := sum.entries[i]
		widest = max(widest,
			e.MaxRank-e.MinRank-e.Weight,
			e.prevMaxRank()-sum.entries[i-1].nextMinRank())
	}
	return widest / sum.TotalWeight()
}

// MinValue ...
func (sum *Summary) MinValue() float64 {
	if len(sum.entries) == 0 {
		return 0
	}
	return sum.entries[0].Value
}

// MaxValue ...
func (sum *Summary) MaxValue() float64 {
	if len(sum.entries) == 0 {
		return 0
	}
	return sum.entries[len(sum.entries)-1].Value
}

// TotalWeight is the sum of all entry weights.
func (sum *Summary) TotalWeight() float64 {
	if len(sum.entries) == 0 {
		return 0
	}
	return sum.entries[len(sum.entries)-1].MaxRank
}

// Entries returns a copy of the summary entries.
func (sum *Summary) Entries() []SumEntry {
	return append(make([]SumEntry, 0, len(sum.entries)), sum.entries...)
}

// Size ...
func (sum *Summary) Size() int64 {
	return int64(len(sum.entries))
}

func (sum *Summary) Clear() {
	sum.entries = []SumEntry{}
}
