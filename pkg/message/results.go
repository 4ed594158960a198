package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Results maps worker domain to return value, keeping first-insertion order.
type Results struct {
	keys   []string
	values map[string]any
}

// NewResults returns an empty result set.
func NewResults() *Results {
	return &Results{values: make(map[string]any)}
}

// Set stores v under key. An existing key keeps its position.
func (r *Results) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored for domain key.
func (r *Results) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the domains in insertion order.
func (r *Results) Keys() []string {
	return append([]string{}, r.keys...)
}

// Len returns the number of domains.
func (r *Results) Len() int {
	return len(r.keys)
}

// Map returns an unordered copy.
func (r *Results) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes an object with keys in insertion order.
func (r *Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("result %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores entries in wire order. Numbers decode as
// json.Number, matching message params.
func (r *Results) UnmarshalJSON(data []byte) error {
	r.keys = nil
	r.values = make(map[string]any)
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("results must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("results key must be a string")
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("result %q: %w", key, err)
		}
		r.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
