package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindObject
)

// String returns the lowercase variant name.
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
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON-like document value exchanged with callers and the remote.
//
// The interface is sealed: only the variants declared in this package
// implement it (Null, Bool, Int, Float, String, List, Object).
type Value interface {
	Kind() Kind
	value()
}

// Null is the absent/null variant.
type Null struct{}

// Bool is a boolean variant.
type Bool bool

// Int is a 64-bit signed integer variant.
type Int int64

// Float is a double precision variant. Money amounts use it.
type Float float64

// String is a UTF-8 text variant.
type String string

// List is an ordered sequence of values.
type List []Value

// Object is a string-keyed map of values.
type Object map[string]Value

// Document is the structured record shape callers exchange with the store.
type Document = Object

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (List) Kind() Kind   { return KindList }
func (Object) Kind() Kind { return KindObject }

func (Null) value()   {}
func (Bool) value()   {}
func (Int) value()    {}
func (Float) value()  {}
func (String) value() {}
func (List) value()   {}
func (Object) value() {}

// MarshalJSON encodes Null as JSON null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON keeps a decimal point on integral floats so the value
// decodes back as a Float rather than an Int.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported float value: %v", v)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// IsNull reports whether v is nil or the Null variant.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	return v.Kind() == KindNull
}

// ParseValue decodes a single JSON document into a Value.
//
// Integral numbers that fit in int64 become Int; every other number
// becomes Float.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode value: trailing data")
	}

	return fromDecoded(raw)
}

// MarshalValue encodes v as JSON. A nil Value encodes as null.
func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func fromDecoded(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return fromNumber(x)
	case []interface{}:
		list := make(List, 0, len(x))
		for _, item := range x {
			v, err := fromDecoded(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case map[string]interface{}:
		obj := make(Object, len(x))
		for k, item := range x {
			v, err := fromDecoded(item)
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported JSON type %T", raw)
	}
}

func fromNumber(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// FromSQL converts a value scanned from a storage column into a Value.
// Binary columns are not part of the data model and map to Null.
func FromSQL(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null{}
	case int64:
		return Int(x)
	case int:
		return Int(x)
	case float64:
		return Float(x)
	case string:
		return String(x)
	case bool:
		return Bool(x)
	default:
		return Null{}
	}
}

// Get returns the value stored under key, or Null if absent.
func (o Object) Get(key string) Value {
	if v, ok := o[key]; ok && v != nil {
		return v
	}
	return Null{}
}

// Str returns the string under key. ok is false when the key is absent
// or does not hold a String.
func (o Object) Str(key string) (string, bool) {
	s, ok := o.Get(key).(String)
	return string(s), ok
}

// OptStr returns a pointer to the string under key, or nil.
func (o Object) OptStr(key string) *string {
	s, ok := o.Str(key)
	if !ok {
		return nil
	}
	return &s
}

// Number returns the numeric value under key as float64, accepting
// both Int and Float.
func (o Object) Number(key string) (float64, bool) {
	switch x := o.Get(key).(type) {
	case Float:
		return float64(x), true
	case Int:
		return float64(x), true
	default:
		return 0, false
	}
}

// Integer returns the Int under key.
func (o Object) Integer(key string) (int64, bool) {
	i, ok := o.Get(key).(Int)
	return int64(i), ok
}

// Flag returns the boolean under key. Int 0 and 1 are accepted as
// false and true, matching the storage encoding.
func (o Object) Flag(key string) (bool, bool) {
	switch x := o.Get(key).(type) {
	case Bool:
		return bool(x), true
	case Int:
		switch x {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	}
	return false, false
}

// List returns the List under key.
func (o Object) List(key string) (List, bool) {
	l, ok := o.Get(key).(List)
	return l, ok
}

// first returns the first key in keys present in o.
func (o Object) first(keys ...string) string {
	for _, k := range keys {
		if _, ok := o[k]; ok {
			return k
		}
	}
	return keys[0]
}

func optString(s *string) Value {
	if s == nil {
		return Null{}
	}
	return String(*s)
}

func optInt(i *int64) Value {
	if i == nil {
		return Null{}
	}
	return Int(*i)
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
