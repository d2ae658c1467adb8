package document

import (
	"fmt"

	"github.com/udaisingh93/bluesky-blissdata/errors"
)

// MissingFieldError reports a required field absent from a document with no
// documented default to fall back on.
type MissingFieldError struct {
	Field string
}

// Error implements the error interface
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field missing: %q", e.Field)
}

// Unwrap ties MissingFieldError into the bridge error taxonomy
func (e *MissingFieldError) Unwrap() error {
	return errors.ErrMissingField
}

// String returns the named field as a string, or def if the field is absent
// or not a string.
func (d Document) String(key, def string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return def
}

// RequiredString returns the named field as a string or a MissingFieldError.
func (d Document) RequiredString(key string) (string, error) {
	v, ok := d[key].(string)
	if !ok {
		return "", &MissingFieldError{Field: key}
	}
	return v, nil
}

// asFloat widens the numeric types a decoded document can carry. JSON
// decoding yields float64, but documents built in process may carry Go ints.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
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

// Float returns the named field as a float64, or def when absent or
// non-numeric.
func (d Document) Float(key string, def float64) float64 {
	if f, ok := asFloat(d[key]); ok {
		return f
	}
	return def
}

// RequiredFloat returns the named field as a float64 or a MissingFieldError.
func (d Document) RequiredFloat(key string) (float64, error) {
	f, ok := asFloat(d[key])
	if !ok {
		return 0, &MissingFieldError{Field: key}
	}
	return f, nil
}

// Int returns the named field as an int, or def when absent or non-numeric.
func (d Document) Int(key string, def int) int {
	if f, ok := asFloat(d[key]); ok {
		return int(f)
	}
	return def
}

// StringSlice returns the named field as a []string. Absent fields and
// fields of the wrong shape return nil, matching the "no motors declared"
// case in start documents.
func (d Document) StringSlice(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

// Map returns the named field as a nested mapping, or nil when absent.
func (d Document) Map(key string) map[string]any {
	switch v := d[key].(type) {
	case map[string]any:
		return v
	case Document:
		return v
	default:
		return nil
	}
}

// RequiredMap returns the named field as a nested mapping or a
// MissingFieldError.
func (d Document) RequiredMap(key string) (map[string]any, error) {
	m := d.Map(key)
	if m == nil {
		return nil, &MissingFieldError{Field: key}
	}
	return m, nil
}

// AnySlice returns the named field as a []any, or nil when absent. Used for
// heterogeneous sequences such as plan_args.args.
func (d Document) AnySlice(key string) []any {
	if v, ok := d[key].([]any); ok {
		return v
	}
	return nil
}
