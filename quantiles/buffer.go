package quantiles

import (
	"fmt"
	"sort"
)

type bufEntry struct {
	value  float64
	weight float64
}

// buffer collects raw weighted values until it is large enough to be turned
// into a summary.
type buffer struct {
	vec     []bufEntry
	maxSize int64
}

func newBuffer(blockSize, maxElements int64) (*buffer, error) {
	maxSize := blockSize << 1
	if maxSize > maxElements {
		maxSize = maxElements
	}

	if maxSize <= 0 {
		return nil, fmt.Errorf("invalid buffer specification: (%v, %v)", blockSize, maxElements)
	}

	return &buffer{
		maxSize: maxSize,
		vec:     make([]bufEntry, 0),
	}, nil
}

func (buf *buffer) push(value, weight float64) error {
	if buf.isFull() {
		return fmt.Errorf("buffer already full: %v", buf.maxSize)
	}

	if weight > 0 {
		buf.vec = append(buf.vec, bufEntry{value, weight})
	}
	return nil
}

// generateEntryList returns a sorted vector view of the base buffer and clears the buffer.
// Callers should minimize how often this is called, ideally only right after
// the buffer becomes full.
func (buf *buffer) generateEntryList() []bufEntry {
	ret := buf.entries()
	buf.clear()
	return ret
}

// entries returns the sorted, deduplicated contents without clearing the buffer.
func (buf *buffer) entries() []bufEntry {
	ret := make([]bufEntry, len(buf.vec))
	copy(ret, buf.vec)
	if len(ret) == 0 {
		return ret
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].value < ret[j].value })

	numEntries := 0
	for i := 1; i < len(ret); i++ {
		if ret[i].value != ret[numEntries].value {
			numEntries++
			ret[numEntries] = ret[i]
		} else {
			ret[numEntries].weight += ret[i].weight
		}
	}
	return ret[:numEntries+1]
}

func (buf *buffer) totalWeight() float64 {
	var w float64
	for _, e := range buf.vec {
		w += e.weight
	}
	return w
}

func (buf *buffer) size() int {
	return len(buf.vec)
}

func (buf *buffer) isFull() bool {
	return int64(len(buf.vec)) >= buf.maxSize
}

func (buf *buffer) clear() {
	buf.vec = make([]bufEntry, 0)
}
