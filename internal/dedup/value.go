package dedup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind is the declared type of a field value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a schema type name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "int", "integer":
		return KindInt, nil
	case "float", "number":
		return KindFloat, nil
	case "bool", "boolean":
		return KindBool, nil
	}
	return KindNull, fmt.Errorf("%w: unknown field type %q", ErrInvalidRule, s)
}

// Value is a nullable scalar. The zero Value is null. Values are comparable
// and can be used as map keys.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float value. NaN is treated as null.
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: KindFloat, f: f}
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// StringPtr returns a string value, or null for a nil pointer.
func StringPtr(s *string) Value {
	if s == nil {
		return Value{}
	}
	return String(*s)
}

// IntPtr returns an integer value, or null for a nil pointer.
func IntPtr(i *int64) Value {
	if i == nil {
		return Value{}
	}
	return Int(*i)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Str() string { return v.s }

func (v Value) Int() int64 { return v.i }

func (v Value) Float() float64 { return v.f }

func (v Value) Bool() bool { return v.b }

// StringPtr returns the string payload, or nil unless v is a string.
func (v Value) StringPtr() *string {
	if v.kind != KindString {
		return nil
	}
	s := v.s
	return &s
}

// IntPtr returns the integer payload, or nil unless v is an int.
func (v Value) IntPtr() *int64 {
	if v.kind != KindInt {
		return nil
	}
	i := v.i
	return &i
}

// Equal reports whether both values are non-null and equal. A null on
// either side is never equal to anything, including another null.
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return false
	}
	return v == o
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<null>"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar. Integral numbers become ints, other
// numbers floats.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	default:
		if i, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			*v = Int(i)
			return nil
		}
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("decode value %s: not a scalar", data)
		}
		*v = Float(f)
	}
	return nil
}

// Fields maps field names to values. A missing key reads as null.
type Fields map[string]Value

// Get returns the value of name, null if absent.
func (f Fields) Get(name string) Value {
	return f[name]
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Schema declares the kind of every field the engine may read.
type Schema map[string]Kind

// Check returns ErrFieldType if a non-null value in fields has a kind other
// than the one declared for it. Undeclared fields are carried through
// untouched.
func (s Schema) Check(fields Fields) error {
	for name, v := range fields {
		if v.IsNull() {
			continue
		}
		want, ok := s[name]
		if !ok {
			continue
		}
		if v.Kind() != want {
			return fmt.Errorf("%w: field %q is %s, schema declares %s", ErrFieldType, name, v.Kind(), want)
		}
	}
	return nil
}
