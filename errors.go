package distribution

import "github.com/pkg/errors"

var (
	// ErrUnsupported is returned by statistics that are not computed.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrUnknownKind is returned when a numeric kind tag is not registered.
	ErrUnknownKind = errors.New("unknown number kind")

	// ErrUnknownSketch is returned when a sketch kind tag is not registered.
	ErrUnknownSketch = errors.New("unknown sketch kind")

	// ErrInvalidResolution is returned when the sketch resolution k is below 2
	// or above MaxK.
	ErrInvalidResolution = errors.New("invalid sketch resolution")

	// ErrIncompatible is returned when merging distributions of different kinds.
	ErrIncompatible = errors.New("incompatible distributions")

	// ErrOverflow is returned by the opt-in overflow check when an accumulator
	// term became infinite or wrapped around.
	ErrOverflow = errors.New("numeric overflow")

	// ErrUnderflow is returned by the opt-in overflow check when the sum of
	// squares collapsed to zero while the sum is still positive.
	ErrUnderflow = errors.New("numeric underflow")

	// ErrCorrupt is returned when serialized bytes cannot be decoded.
	ErrCorrupt = errors.New("corrupt distribution encoding")
)
