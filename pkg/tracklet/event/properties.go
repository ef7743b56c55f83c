package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Properties is an insertion-ordered map of property keys to values.
// Order is preserved through JSON round trips so payload encoding is
// deterministic for a given event.
//
// The zero value is ready to use.
type Properties struct {
	keys   []string
	values map[string]Value
}

// NewProperties creates empty properties.
func NewProperties() *Properties {
	return &Properties{}
}

// FromMap creates properties from an unordered map.
// Keys are sorted so the result is deterministic.
func FromMap(m map[string]Value) *Properties {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := NewProperties()
	for _, k := range keys {
		p.Set(k, m[k])
	}
	return p
}

// Set stores a value under key. A key set twice keeps its original
// position (last-write-wins for the value).
func (p *Properties) Set(key string, val Value) *Properties {
	if p.values == nil {
		p.values = make(map[string]Value)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = val
	return p
}

// Get returns the value for key and whether it is present.
func (p *Properties) Get(key string) (Value, bool) {
	if p == nil || p.values == nil {
		return Value{}, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the keys in insertion order.
// The returned slice must not be modified.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	return p.keys
}

// Merge copies every entry of other into p (last-write-wins per key).
func (p *Properties) Merge(other *Properties) *Properties {
	if other == nil {
		return p
	}
	for _, k := range other.keys {
		p.Set(k, other.values[k])
	}
	return p
}

// Clone returns a deep-enough copy: the key order and value map are
// independent of the original.
func (p *Properties) Clone() *Properties {
	if p == nil {
		return NewProperties()
	}
	out := NewProperties()
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// MarshalJSON implements json.Marshaler, emitting keys in insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	if p == nil || len(p.keys) == 0 {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := p.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal property %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}

	out := Properties{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: expected string key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var val Value
		if err := val.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		out.Set(key, val)
	}

	if _, err := dec.Token(); err != nil { // closing brace
		return err
	}

	*p = out
	return nil
}
