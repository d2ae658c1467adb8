package blissdata

import "math"

// DType identifies the element type of a numeric stream
type DType string

// Supported numeric element types
const (
	Float64 DType = "float64"
	Int64   DType = "int64"
	Bool    DType = "bool"
)

// EncodingKind selects between the two stream serializations
type EncodingKind int

const (
	// EncodingNumeric carries typed, shaped numeric values
	EncodingNumeric EncodingKind = iota
	// EncodingJSON carries opaque structured values
	EncodingJSON
)

// String returns the string representation of EncodingKind
func (k EncodingKind) String() string {
	if k == EncodingJSON {
		return "json"
	}
	return "numeric"
}

// Encoding describes how one stream's values are serialized: either a
// numeric encoding with a declared dtype and element shape, or an opaque
// JSON encoding for structured values.
type Encoding struct {
	Kind  EncodingKind
	DType DType
	Shape []int
}

// Numeric returns a typed, shaped numeric encoding
func Numeric(dtype DType, shape []int) Encoding {
	return Encoding{Kind: EncodingNumeric, DType: dtype, Shape: shape}
}

// JSON returns the opaque structured encoding
func JSON() Encoding {
	return Encoding{Kind: EncodingJSON, DType: "", Shape: nil}
}

// Accepts reports whether a runtime value is compatible with the encoding's
// declared dtype. JSON streams accept anything. Scalar numeric streams
// accept the numeric widenings a decoded document can carry: float64
// accepts any number, int64 accepts integral numbers only, bool accepts
// bool only. Shaped streams accept sequences whose elements pass the same
// check, nested per dimension.
func (e Encoding) Accepts(value any) bool {
	if e.Kind == EncodingJSON {
		return true
	}
	if len(e.Shape) > 0 {
		return e.acceptsSequence(value)
	}
	return e.acceptsScalar(value)
}

func (e Encoding) acceptsScalar(value any) bool {
	switch e.DType {
	case Float64:
		_, ok := toFloat(value)
		return ok
	case Int64:
		f, ok := toFloat(value)
		return ok && f == math.Trunc(f)
	case Bool:
		_, ok := value.(bool)
		return ok
	default:
		return false
	}
}

func (e Encoding) acceptsSequence(value any) bool {
	switch v := value.(type) {
	case []any:
		for _, elem := range v {
			if !e.acceptsScalar(elem) && !e.acceptsSequence(elem) {
				return false
			}
		}
		return true
	case []float64:
		for _, elem := range v {
			if !e.acceptsScalar(elem) {
				return false
			}
		}
		return true
	case []int64:
		for _, elem := range v {
			if !e.acceptsScalar(elem) {
				return false
			}
		}
		return true
	case []bool:
		return e.DType == Bool
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
