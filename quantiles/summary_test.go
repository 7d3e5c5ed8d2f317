package quantiles

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summaryFixture struct {
	buffer1 *buffer
	buffer2 *buffer

	buffer1MinValue    float64
	buffer1MaxValue    float64
	buffer1TotalWeight float64

	buffer2MinValue    float64
	buffer2MaxValue    float64
	buffer2TotalWeight float64
}

func newSummaryFixture(t *testing.T) *summaryFixture {
	t.Helper()
	f := &summaryFixture{
		buffer1MinValue:    -13,
		buffer1MaxValue:    21,
		buffer1TotalWeight: 45,
		buffer2MinValue:    -7,
		buffer2MaxValue:    11,
		buffer2TotalWeight: 30,
	}

	var err error
	f.buffer1, err = newBuffer(10, 1000)
	require.NoError(t, err)
	for _, val := range [][2]float64{
		{5, 9}, {2, 3}, {-1, 7}, {-7, 1}, {3, 2},
		{-2, 3}, {21, 8}, {-13, 4}, {8, 2}, {-5, 6},
	} {
		require.NoError(t, f.buffer1.push(val[0], val[1]))
	}

	f.buffer2, err = newBuffer(7, 1000)
	require.NoError(t, err)
	for _, val := range [][2]float64{
		{9, 2}, {-7, 3}, {2, 1}, {4, 13}, {0, 5}, {-5, 3}, {11, 3},
	} {
		require.NoError(t, f.buffer2.push(val[0], val[1]))
	}
	return f
}

func TestSummaryBuildFromBuffer(t *testing.T) {
	f := newSummaryFixture(t)
	sum := &Summary{}
	sum.buildFromBufferEntries(f.buffer1.generateEntryList())

	// We expect no approximation error because no compress operation occurred.
	if approx := sum.ApproximationError(); approx != 0 {
		t.Error("expected no approximation error, got", approx)
	}

	entries := sum.entries

	// First element's rmin should be zero.
	if val := sum.MinValue(); val != f.buffer1MinValue {
		t.Errorf("expected %v, got %v", f.buffer1MinValue, val)
	}
	exp := SumEntry{Value: -13, Weight: 4, MinRank: 0, MaxRank: 4}
	if val := entries[0]; val != exp {
		t.Errorf("expected %v, got %v", exp, val)
	}

	// Last element's rmax should be cumulative weight.
	if val := sum.MaxValue(); val != f.buffer1MaxValue {
		t.Errorf("expected %v, got %v", f.buffer1MaxValue, val)
	}
	exp = SumEntry{Value: 21, Weight: 8, MinRank: 37, MaxRank: 45}
	if val := entries[len(entries)-1]; val != exp {
		t.Errorf("expected %v, got %v", exp, val)
	}

	if val := sum.TotalWeight(); val != f.buffer1TotalWeight {
		t.Errorf("expected %v, got %v", f.buffer1TotalWeight, val)
	}
}

func TestSummaryCompressSeparately(t *testing.T) {
	f := newSummaryFixture(t)
	entryList := f.buffer1.generateEntryList()
	for newSize := int64(9); newSize >= 2; newSize-- {
		sum := &Summary{}
		sum.buildFromBufferEntries(entryList)
		sum.Compress(newSize, 0)

		// Expect a max approximation error of 1 / n
		// ie. eps0 + 1/n but eps0 = 0.
		if val := sum.Size(); val < newSize || val > newSize+2 {
			t.Errorf("expected size in [%v, %v], got %v", newSize, newSize+2, val)
		}
		if approx := sum.ApproximationError(); approx > 1.0/float64(newSize) {
			t.Errorf("expected approx <= %v, got %v", 1.0/float64(newSize), approx)
		}

		// Min/Max elements and total weight should not change.
		if sum.MinValue() != f.buffer1MinValue {
			t.Errorf("expected %v, got %v", f.buffer1MinValue, sum.MinValue())
		}
		if sum.MaxValue() != f.buffer1MaxValue {
			t.Errorf("expected %v, got %v", f.buffer1MaxValue, sum.MaxValue())
		}
		if sum.TotalWeight() != f.buffer1TotalWeight {
			t.Errorf("expected %v, got %v", f.buffer1TotalWeight, sum.TotalWeight())
		}
	}
}

func TestSummaryCompressSequentially(t *testing.T) {
	f := newSummaryFixture(t)
	sum := &Summary{}
	sum.buildFromBufferEntries(f.buffer1.generateEntryList())
	for newSize := int64(9); newSize >= 2; newSize -= 2 {
		prevEps := sum.ApproximationError()
		sum.Compress(newSize, 0)

		// Expect a max approximation error of prev_eps + 1 / n.
		if val := sum.Size(); val < newSize || val > newSize+2 {
			t.Errorf("expected size in [%v, %v], got %v", newSize, newSize+2, val)
		}
		if approx := sum.ApproximationError(); approx > prevEps+1.0/float64(newSize) {
			t.Errorf("expected approx <= %v, got %v", prevEps+1.0/float64(newSize), approx)
		}

		if sum.MinValue() != f.buffer1MinValue {
			t.Errorf("expected %v, got %v", f.buffer1MinValue, sum.MinValue())
		}
		if sum.MaxValue() != f.buffer1MaxValue {
			t.Errorf("expected %v, got %v", f.buffer1MaxValue, sum.MaxValue())
		}
		if sum.TotalWeight() != f.buffer1TotalWeight {
			t.Errorf("expected %v, got %v", f.buffer1TotalWeight, sum.TotalWeight())
		}
	}
}

func TestSummaryCompressRandomized(t *testing.T) {
	var (
		prevSize int64 = 1
		size     int64 = 2
		maxValue       = float64(1 << 20)
	)
	rnd := rand.New(rand.NewSource(42))

	for size < (1 << 16) {
		buffer, err := newBuffer(size, size<<4)
		require.NoError(t, err)
		for i := int64(0); i < size; i++ {
			_ = buffer.push(rnd.Float64()*maxValue, rnd.Float64()*maxValue)
		}

		sum := &Summary{}
		sum.buildFromBufferEntries(buffer.generateEntryList())
		newSize := max(rnd.Int63n(size), 2)
		sum.Compress(newSize, 0)

		if val := sum.Size(); val < newSize || val > newSize+2 {
			t.Errorf("expected size in [%v, %v], got %v", newSize, newSize+2, val)
		}
		if approx := sum.ApproximationError(); approx > 1.0/float64(newSize) {
			t.Errorf("expected approx <= %v, got %v", 1.0/float64(newSize), approx)
		}

		lastSize := size
		size += prevSize
		prevSize = lastSize
	}
}

func TestSummaryMergeSymmetry(t *testing.T) {
	assert := assert.New(t)
	f := newSummaryFixture(t)

	list1 := f.buffer1.generateEntryList()
	list2 := f.buffer2.generateEntryList()
	sum1 := &Summary{}
	sum1.buildFromBufferEntries(list1)
	sum2 := &Summary{}
	sum2.buildFromBufferEntries(list2)

	sum1.Merge(sum2)
	assert.Equal(0.0, sum1.ApproximationError())
	assert.Equal(min(f.buffer1MinValue, f.buffer2MinValue), sum1.MinValue())
	assert.Equal(max(f.buffer1MaxValue, f.buffer2MaxValue), sum1.MaxValue())
	assert.Equal(f.buffer1TotalWeight+f.buffer2TotalWeight, sum1.TotalWeight())
	assert.Equal(int64(14), sum1.Size())

	sum1.buildFromBufferEntries(list1)
	sum2.Merge(sum1)
	assert.Equal(0.0, sum2.ApproximationError())
	assert.Equal(min(f.buffer1MinValue, f.buffer2MinValue), sum2.MinValue())
	assert.Equal(max(f.buffer1MaxValue, f.buffer2MaxValue), sum2.MaxValue())
	assert.Equal(f.buffer1TotalWeight+f.buffer2TotalWeight, sum2.TotalWeight())
	assert.Equal(int64(14), sum2.Size())
}

func TestSummaryCompressThenMerge(t *testing.T) {
	assert := assert.New(t)
	f := newSummaryFixture(t)

	sum1 := &Summary{}
	sum1.buildFromBufferEntries(f.buffer1.generateEntryList())
	sum2 := &Summary{}
	sum2.buildFromBufferEntries(f.buffer2.generateEntryList())

	sum1.Compress(5, 0)
	eps1 := 1.0 / 5
	assert.LessOrEqual(sum1.ApproximationError(), eps1)
	sum2.Compress(3, 0)
	eps2 := 1.0 / 3
	assert.LessOrEqual(sum2.ApproximationError(), eps2)

	// Merge guarantees an approximation error of max(eps1, eps2).
	sum1.Merge(sum2)
	assert.LessOrEqual(sum1.ApproximationError(), max(eps1, eps2))
	assert.Equal(min(f.buffer1MinValue, f.buffer2MinValue), sum1.MinValue())
	assert.Equal(max(f.buffer1MaxValue, f.buffer2MaxValue), sum1.MaxValue())
	assert.Equal(f.buffer1TotalWeight+f.buffer2TotalWeight, sum1.TotalWeight())
}

func TestSummaryMergeLeavesOtherUntouched(t *testing.T) {
	f := newSummaryFixture(t)
	sum1 := &Summary{}
	sum1.buildFromBufferEntries(f.buffer1.generateEntryList())
	sum2 := &Summary{}
	sum2.buildFromBufferEntries(f.buffer2.generateEntryList())
	before := sum2.Entries()

	empty := &Summary{}
	empty.Merge(sum2)
	empty.Compress(2, 0)
	sum1.Merge(sum2)

	assert.Equal(t, before, sum2.Entries())
}

func TestSummaryQuantile(t *testing.T) {
	sum := &Summary{}
	assert.True(t, math.IsNaN(sum.Quantile(0.5)), "empty summary")

	bes := make([]bufEntry, 0, 100)
	for i := 0; i < 100; i++ {
		bes = append(bes, bufEntry{value: float64(i), weight: 1})
	}
	sum.buildFromBufferEntries(bes)

	tests := []struct {
		q    float64
		want float64
	}{
		{-1, 0},
		{0, 0},
		{0.25, 25},
		{0.5, 50},
		{0.75, 75},
		{1, 99},
		{2, 99},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sum.Quantile(tt.q), "q=%v", tt.q)
	}

	// Quantile and GenerateQuantiles answer the same rank queries.
	qs := sum.GenerateQuantiles(4)
	for i, v := range qs {
		assert.Equal(t, v, sum.Quantile(float64(i)/4))
	}
}
