package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	// KindString holds a UTF-8 string.
	KindString Kind = iota
	// KindInt holds a signed 64-bit integer.
	KindInt
	// KindFloat holds a 64-bit float.
	KindFloat
	// KindBool holds a boolean.
	KindBool
	// KindTime holds a timestamp, serialized as RFC 3339.
	KindTime
	// KindMap holds nested properties.
	KindMap
	// KindList holds an ordered list of values.
	KindList
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a closed property value variant. Only JSON-representable
// shapes are expressible, so every property encodes without reflection
// or runtime surprises.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	m    *Properties
	l    []Value
}

// String creates a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int creates an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float creates a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time creates a timestamp value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Map creates a nested-map value.
func Map(p *Properties) Value { return Value{kind: KindMap, m: p} }

// List creates a list value.
func List(vals ...Value) Value { return Value{kind: KindList, l: vals} }

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// StringVal returns the string payload (zero value if not a string).
func (v Value) StringVal() string { return v.s }

// IntVal returns the integer payload (zero value if not an int).
func (v Value) IntVal() int64 { return v.i }

// FloatVal returns the float payload (zero value if not a float).
func (v Value) FloatVal() float64 { return v.f }

// BoolVal returns the boolean payload (zero value if not a bool).
func (v Value) BoolVal() bool { return v.b }

// TimeVal returns the timestamp payload (zero value if not a time).
func (v Value) TimeVal() time.Time { return v.t }

// MapVal returns the nested properties (nil if not a map).
func (v Value) MapVal() *Properties { return v.m }

// ListVal returns the list payload (nil if not a list).
func (v Value) ListVal() []Value { return v.l }

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(v.t.UTC().Format(time.RFC3339Nano))
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return v.m.MarshalJSON()
	case KindList:
		return json.Marshal(v.l)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
//
// Type recovery is best effort: integral JSON numbers become KindInt,
// other numbers KindFloat, and timestamps come back as KindString
// (RFC 3339 text) since JSON has no native time type. Nested object
// key order is preserved.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return fmt.Errorf("empty property value")
	}

	switch trimmed[0] {
	case '{':
		var p Properties
		if err := p.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		*v = Map(&p)
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		vals := make([]Value, len(items))
		for i, item := range items {
			if err := vals[i].UnmarshalJSON(item); err != nil {
				return err
			}
		}
		*v = List(vals...)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch d := raw.(type) {
	case nil:
		*v = String("")
	case string:
		*v = String(d)
	case bool:
		*v = Bool(d)
	case json.Number:
		if i, err := d.Int64(); err == nil {
			*v = Int(i)
			return nil
		}
		f, err := d.Float64()
		if err != nil {
			return fmt.Errorf("decode number %q: %w", d.String(), err)
		}
		*v = Float(f)
	default:
		return fmt.Errorf("unsupported property type %T", raw)
	}
	return nil
}
