// Package properties implements the engine's scalar value union and the
// ordered property bag that flows between converters.
package properties

import "fmt"

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged scalar union, the engine's only unit of typed data
// outside of raw bytes. It mirrors the Rust Value enum: Null, Bool, Int,
// Float, String, Array and Object, the last two being recursive.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  Properties
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a bool.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int wraps an int64.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a float64.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String wraps a string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Array wraps a list of values.
func Array(v []Value) Value { return Value{kind: KindArray, arr: v} }

// Object wraps a nested Properties.
func Object(v Properties) Value { return Value{kind: KindObject, obj: v} }

// Kind reports which variant is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the bool value and whether v is a Bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt64 returns the int64 value and whether v is an Int.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat64 returns the float64 value. Floats and Ints both convert, since
// the original treats numeric comparisons uniformly.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string value and whether v is a String.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsArray returns the backing slice and whether v is an Array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsObject returns the backing Properties and whether v is an Object.
func (v Value) AsObject() (Properties, bool) {
	if v.kind != KindObject {
		return Properties{}, false
	}
	return v.obj, true
}

// Equal reports whether two values are of the same kind and equal. Array
// and Object equality is structural.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if v.obj.Len() != other.obj.Len() {
			return false
		}
		equal := true
		v.obj.Range(func(k string, val Value) bool {
			ov, ok := other.obj.Get(k)
			if !ok || !val.Equal(ov) {
				equal = false
				return false
			}
			return true
		})
		return equal
	default:
		return false
	}
}

// String renders a debug representation, not a data-format encoding.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindArray:
		return fmt.Sprintf("%v", v.arr)
	case KindObject:
		return fmt.Sprintf("%v", v.obj)
	default:
		return "<invalid>"
	}
}
