// Package wire holds the fixed-layout big-endian primitives shared by the
// binary encodings of the sketches and accumulators.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when a read runs past the end of the input.
var ErrShortBuffer = errors.New("short buffer")

// AppendInt32 ...
func AppendInt32(b []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

// AppendInt64 ...
func AppendInt64(b []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

// AppendFloat32 ...
func AppendFloat32(b []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(v))
}

// AppendFloat64 ...
func AppendFloat64(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
}

// AppendBytes writes a 4-byte length header followed by p.
func AppendBytes(b []byte, p []byte) []byte {
	b = AppendInt32(b, int32(len(p)))
	return append(b, p...)
}

// Reader consumes a byte slice front to back. The first failure sticks:
// every later read returns the zero value and Err reports the failure.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader ...
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) next(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = errors.Wrapf(ErrShortBuffer, "reading %s at offset %d: need %d bytes, have %d",
			what, r.off, n, len(r.buf)-r.off)
		return nil
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p
}

// Byte ...
func (r *Reader) Byte(what string) byte {
	p := r.next(1, what)
	if p == nil {
		return 0
	}
	return p[0]
}

// Int32 ...
func (r *Reader) Int32(what string) int32 {
	p := r.next(4, what)
	if p == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(p))
}

// Int64 ...
func (r *Reader) Int64(what string) int64 {
	p := r.next(8, what)
	if p == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(p))
}

// Float32 ...
func (r *Reader) Float32(what string) float32 {
	p := r.next(4, what)
	if p == nil {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(p))
}

// Float64 ...
func (r *Reader) Float64(what string) float64 {
	p := r.next(8, what)
	if p == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(p))
}

// Raw returns the next n bytes without copying.
func (r *Reader) Raw(n int, what string) []byte {
	return r.next(n, what)
}

// Bytes reads a 4-byte length header and the payload that follows it.
func (r *Reader) Bytes(what string) []byte {
	n := r.Int32(what + " length")
	if r.err == nil && n < 0 {
		r.err = errors.Errorf("reading %s: negative length %d", what, n)
		return nil
	}
	return r.next(int(n), what)
}

// Len reports the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Err ...
func (r *Reader) Err() error {
	return r.err
}
