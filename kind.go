package distribution

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies the numeric representation of a distribution.
type Kind uint8

// The zero Kind is invalid.
const (
	Double Kind = iota + 1
	Float
	Long
)

func (k Kind) String() string {
	switch k {
	case Double:
		return "double"
	case Float:
		return "float"
	case Long:
		return "long"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind maps a configuration value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "double", "float64":
		return Double, nil
	case "float", "float32":
		return Float, nil
	case "long", "int64":
		return Long, nil
	}
	return 0, errors.Wrapf(ErrUnknownKind, "%q", s)
}

// SketchKind identifies the backing quantile sketch of a distribution.
type SketchKind uint8

// The zero SketchKind is invalid.
const (
	// SketchGK is the weighted multi-level summary of the quantiles package.
	SketchGK SketchKind = iota + 1
	// SketchTDigest is the merging t-digest.
	SketchTDigest
	// SketchCKMS is the biased quantiles stream of Cormode, Korn, Muthukrishnan and Srivastava.
	SketchCKMS
	// SketchDD is DDSketch, with a relative accuracy guarantee.
	SketchDD
)

func (s SketchKind) String() string {
	switch s {
	case SketchGK:
		return "gk"
	case SketchTDigest:
		return "tdigest"
	case SketchCKMS:
		return "ckms"
	case SketchDD:
		return "ddsketch"
	}
	return "sketch(" + strconv.Itoa(int(s)) + ")"
}

// ParseSketchKind maps a configuration value to a SketchKind.
func ParseSketchKind(s string) (SketchKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gk", "quantiles":
		return SketchGK, nil
	case "tdigest", "t-digest":
		return SketchTDigest, nil
	case "ckms", "perks":
		return SketchCKMS, nil
	case "ddsketch", "dd":
		return SketchDD, nil
	}
	return 0, errors.Wrapf(ErrUnknownSketch, "%q", s)
}

// TypeTag packs a kind pair into the 16-bit tag stored next to serialized
// distributions.
func TypeTag(kind Kind, sketch SketchKind) uint16 {
	return uint16(kind)<<8 | uint16(sketch)
}

// SplitTypeTag is the inverse of TypeTag.
func SplitTypeTag(tag uint16) (Kind, SketchKind) {
	return Kind(tag >> 8), SketchKind(tag & 0xff)
}
