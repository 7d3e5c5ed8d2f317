package quantiles

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomhq/distribution/internal/wire"
)

func TestStreamRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	stream, err := New(0.01, 1<<20)
	require.NoError(t, err)
	for i := 0; i < 5000; i++ {
		require.NoError(t, stream.Push(rnd.NormFloat64(), 1))
	}
	require.Greater(t, stream.MaxDepth(), 0)
	require.Greater(t, stream.buffer.size(), 0)

	data, err := stream.MarshalBinary()
	require.NoError(t, err)

	decoded := &Stream{}
	require.NoError(t, decoded.UnmarshalBinary(data))

	assert.Equal(t, stream.Count(), decoded.Count())
	assert.Equal(t, stream.Summary().Entries(), decoded.Summary().Entries())
	for _, q := range []float64{0, 0.01, 0.5, 0.99, 1} {
		assert.Equal(t, stream.Quantile(q), decoded.Quantile(q))
	}

	// The decoded stream keeps accepting values.
	require.NoError(t, decoded.Push(100, 1))
	assert.Equal(t, 100.0, decoded.Quantile(1))
}

func TestStreamRoundTripFinalized(t *testing.T) {
	stream, err := New(0.01, 1000)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, stream.Push(float64(i), 1))
	}
	require.NoError(t, stream.Finalize())

	data, err := stream.MarshalBinary()
	require.NoError(t, err)
	decoded := &Stream{}
	require.NoError(t, decoded.UnmarshalBinary(data))

	want, err := stream.GenerateQuantiles(4)
	require.NoError(t, err)
	got, err := decoded.GenerateQuantiles(4)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.ErrorIs(t, decoded.Push(1, 1), ErrFinalized)
}

func TestStreamUnmarshalCorrupt(t *testing.T) {
	stream, err := New(0.01, 1000)
	require.NoError(t, err)
	require.NoError(t, stream.Push(1, 1))
	data, err := stream.MarshalBinary()
	require.NoError(t, err)

	decoded := &Stream{}
	assert.ErrorIs(t, decoded.UnmarshalBinary(data[:len(data)-3]), wire.ErrShortBuffer)
	assert.Error(t, decoded.UnmarshalBinary(append(data, 0)))

	bad := append([]byte{}, data...)
	bad[0] = 9
	assert.Error(t, decoded.UnmarshalBinary(bad))

	for _, eps := range []float64{math.NaN(), 0, -1, 1, math.Inf(1)} {
		bad := append([]byte{}, data...)
		binary.BigEndian.PutUint64(bad[1:], math.Float64bits(eps))
		assert.Error(t, decoded.UnmarshalBinary(bad), "eps=%v", eps)
	}
}

func TestStreamUnmarshalTinyEps(t *testing.T) {
	stream, err := New(0.01, DefaultMaxElements)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, stream.Push(float64(i), 1))
	}
	data, err := stream.MarshalBinary()
	require.NoError(t, err)
	binary.BigEndian.PutUint64(data[1:], math.Float64bits(1e-300))

	decoded := &Stream{}
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, 1e-300, decoded.Epsilon())
	assert.Equal(t, 9.0, decoded.Quantile(1))
}
