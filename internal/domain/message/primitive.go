// Package message defines the telemetry event model buffered by the queue.
package message

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// PrimitiveKind tags the concrete type carried by a Primitive.
type PrimitiveKind string

const (
	KindInt    PrimitiveKind = "int"
	KindDouble PrimitiveKind = "double"
	KindString PrimitiveKind = "string"
	KindBool   PrimitiveKind = "bool"
)

// Primitive is a tagged scalar value used for property and context field
// values. It replaces an any-typed map so unsupported input types can be
// rejected deterministically at construction time (see FromAny).
type Primitive struct {
	kind PrimitiveKind
	i    int64
	d    decimal.Decimal
	s    string
	b    bool
}

// NewInt wraps an integer primitive.
func NewInt(v int64) Primitive { return Primitive{kind: KindInt, i: v} }

// NewDouble wraps a decimal primitive. Using decimal.Decimal instead of
// float64 avoids the binary-float round-trip drift that would otherwise
// corrupt analytics properties on their way to and from JSON.
func NewDouble(v decimal.Decimal) Primitive { return Primitive{kind: KindDouble, d: v} }

// NewString wraps a string primitive.
func NewString(v string) Primitive { return Primitive{kind: KindString, s: v} }

// NewBool wraps a bool primitive.
func NewBool(v bool) Primitive { return Primitive{kind: KindBool, b: v} }

// Kind reports which variant this Primitive carries.
func (p Primitive) Kind() PrimitiveKind { return p.kind }

// Int returns the wrapped integer and whether the Primitive is an int.
func (p Primitive) Int() (int64, bool) { return p.i, p.kind == KindInt }

// Double returns the wrapped decimal and whether the Primitive is a double.
func (p Primitive) Double() (decimal.Decimal, bool) { return p.d, p.kind == KindDouble }

// String returns the wrapped string and whether the Primitive is a string.
func (p Primitive) String() (string, bool) { return p.s, p.kind == KindString }

// Bool returns the wrapped bool and whether the Primitive is a bool.
func (p Primitive) Bool() (bool, bool) { return p.b, p.kind == KindBool }

// FromAny converts a decoded any (as produced by unmarshalling arbitrary
// JSON, or passed in-process by a producer) into a Primitive. It reports ok
// == false for any type outside {int, double/float, string, bool}; callers
// must silently drop such values per the documented construction behavior.
func FromAny(v any) (Primitive, bool) {
	switch t := v.(type) {
	case int:
		return NewInt(int64(t)), true
	case int32:
		return NewInt(int64(t)), true
	case int64:
		return NewInt(t), true
	case float32:
		return NewDouble(decimal.NewFromFloat32(t)), true
	case float64:
		return NewDouble(decimal.NewFromFloat(t)), true
	case decimal.Decimal:
		return NewDouble(t), true
	case string:
		return NewString(t), true
	case bool:
		return NewBool(t), true
	default:
		return Primitive{}, false
	}
}

// MarshalJSON encodes the Primitive as its single wrapped value (a "single
// value container", per the tagged-union design).
func (p Primitive) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case KindInt:
		return json.Marshal(p.i)
	case KindDouble:
		// decimal.Decimal's own MarshalJSON quotes the value, which would
		// decode back as a string; emit a bare JSON number instead.
		return []byte(p.d.String()), nil
	case KindString:
		return json.Marshal(p.s)
	case KindBool:
		return json.Marshal(p.b)
	default:
		return nil, fmt.Errorf("message: primitive has no kind set")
	}
}

// UnmarshalJSON decodes a bare JSON scalar into the appropriate Primitive
// variant. JSON numbers without a fractional part decode as int; numbers
// with one decode as double.
func (p *Primitive) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*p = NewString(v)
	case bool:
		*p = NewBool(v)
	case float64:
		if v == float64(int64(v)) {
			*p = NewInt(int64(v))
		} else {
			*p = NewDouble(decimal.NewFromFloat(v))
		}
	case json.Number:
		if iv, err := v.Int64(); err == nil {
			*p = NewInt(iv)
		} else if dv, err := decimal.NewFromString(v.String()); err == nil {
			*p = NewDouble(dv)
		} else {
			return fmt.Errorf("message: cannot decode primitive number %q", v.String())
		}
	default:
		return fmt.Errorf("message: unsupported primitive JSON value %T", raw)
	}
	return nil
}
