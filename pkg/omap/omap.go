// Package omap provides a small insertion-ordered map, used anywhere the
// engine needs map semantics with deterministic iteration order (the Rust
// original this engine is modeled on leans on indexmap.IndexMap for exactly
// this; Go has no equivalent in the standard library).
package omap

// Map is an insertion-ordered string-keyed map. The zero value is not
// usable; construct with New.
type Map[V any] struct {
	keys   []string
	values map[string]V
}

// New returns an empty ordered map.
func New[V any]() *Map[V] {
	return &Map[V]{values: make(map[string]V)}
}

// Set inserts or updates a key. Updating an existing key does not change
// its position in iteration order.
func (m *Map[V]) Set(key string, value V) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *Map[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Delete removes a key, if present.
func (m *Map[V]) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return len(m.keys)
}

// Keys returns the keys in insertion order. The returned slice must not be
// mutated by the caller.
func (m *Map[V]) Keys() []string {
	return m.keys
}

// Range calls fn for each entry in insertion order, stopping early if fn
// returns false.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy with the same key order.
func (m *Map[V]) Clone() *Map[V] {
	out := &Map[V]{
		keys:   append([]string(nil), m.keys...),
		values: make(map[string]V, len(m.values)),
	}
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}
