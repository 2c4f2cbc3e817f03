// Package fieldval defines the dynamically-typed value carried by a tax
// form field as a small closed sum type.
//
// The source of truth for a field is one of: null, string, number,
// boolean, list, or structured object. Modeling this as a sealed
// interface (rather than an untyped blob) lets the calculation engine
// and the diagnostics rules switch exhaustively over the variants.
//
// Numbers are arbitrary-precision decimals, never float64 - monetary
// arithmetic must be reproducible to the cent.
package fieldval

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Value is the sealed field-value interface.
// Only Null, String, Number, Bool, List, and Object implement it.
type Value interface {
	fieldValue() // sealed - only this package's types implement it
}

// Null represents an explicitly empty value.
type Null struct{}

func (Null) fieldValue() {}

// String represents a text value.
type String string

func (String) fieldValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) fieldValue() {}

// Number represents a decimal value. The zero Number is 0.
type Number struct {
	dec apd.Decimal
}

func (Number) fieldValue() {}

// List represents an ordered list of values.
type List []Value

func (List) fieldValue() {}

// Object represents a structured value keyed by string.
type Object map[string]Value

func (Object) fieldValue() {}

// NumberFromDecimal copies d into a Number.
func NumberFromDecimal(d *apd.Decimal) Number {
	var n Number
	n.dec.Set(d)
	return n
}

// NumberFromInt64 returns a whole-number value.
func NumberFromInt64(v int64) Number {
	var n Number
	n.dec.SetInt64(v)
	return n
}

// NumberFromString parses a decimal value from text.
func NumberFromString(s string) (Number, error) {
	var n Number
	if _, _, err := n.dec.SetString(s); err != nil {
		return Number{}, fmt.Errorf("parse number %q: %w", s, err)
	}
	return n, nil
}

// Decimal returns a copy of the underlying decimal.
func (n Number) Decimal() *apd.Decimal {
	return new(apd.Decimal).Set(&n.dec)
}

// String renders the number in plain decimal notation.
func (n Number) String() string {
	return n.dec.Text('f')
}

// AsDecimal extracts a decimal from a value. Numbers convert directly;
// numeric strings are parsed (UI producers frequently send amounts as
// text). Everything else reports ok=false.
func AsDecimal(v Value) (*apd.Decimal, bool) {
	switch val := v.(type) {
	case Number:
		return val.Decimal(), true
	case String:
		d, _, err := apd.NewFromString(string(val))
		if err != nil {
			return nil, false
		}
		return d, true
	default:
		return nil, false
	}
}

// AsString extracts a text value. Only String converts.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsBool extracts a boolean. Bool converts directly; the strings
// "true" and "false" convert for producers that send flags as text.
func AsBool(v Value) (bool, bool) {
	switch val := v.(type) {
	case Bool:
		return bool(val), true
	case String:
		if val == "true" {
			return true, true
		}
		if val == "false" {
			return false, true
		}
	}
	return false, false
}

// IsEmpty reports whether v carries no usable content: nil, Null,
// or the empty string. Diagnostics treat empty as "not provided".
func IsEmpty(v Value) bool {
	switch val := v.(type) {
	case nil:
		return true
	case Null:
		return true
	case String:
		return val == ""
	}
	return false
}

// FromJSON decodes a JSON document into a Value.
// Numbers are parsed through json.Number into decimals so that large
// and fractional amounts survive without float64 precision loss.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return fromGo(raw)
}

// Parse interprets user-facing text as a Value: valid JSON literals
// decode as their JSON type, anything else is a plain string.
// "10000" is a Number, "true" a Bool, "single" a String.
func Parse(s string) Value {
	if v, err := FromJSON([]byte(s)); err == nil {
		return v
	}
	return String(s)
}

// fromGo recursively converts a decoded JSON value.
func fromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return NumberFromString(string(val))
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			fv, err := fromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = fv
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			fv, err := fromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = fv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported JSON type: %T", v)
	}
}
