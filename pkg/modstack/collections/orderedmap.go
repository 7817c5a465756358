package collections

import (
	"iter"
	"slices"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
)

// OrderedMap is an insertion-ordered map without tombstones. It backs
// schemas where serialized position matters but entries are replaced
// wholesale rather than patched.
type OrderedMap[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

// NewOrderedMap returns an empty map.
func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{values: make(map[K]V)}
}

// Set stores v under k. An existing key keeps its position.
func (m *OrderedMap[K, V]) Set(k K, v V) {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Get returns the value stored under k.
func (m *OrderedMap[K, V]) Get(k K) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	v, ok := m.values[k]
	return v, ok
}

// Remove deletes k.
func (m *OrderedMap[K, V]) Remove(k K) {
	if _, ok := m.values[k]; !ok {
		return
	}
	delete(m.values, k)
	m.keys = slices.DeleteFunc(m.keys, func(x K) bool { return x == k })
}

// Len returns the number of entries.
func (m *OrderedMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in order.
func (m *OrderedMap[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// All iterates entries in order.
func (m *OrderedMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// Clone returns a shallow copy.
func (m *OrderedMap[K, V]) Clone() *OrderedMap[K, V] {
	out := NewOrderedMap[K, V]()
	for k, v := range m.All() {
		out.Set(k, v)
	}
	return out
}

// Equal reports whether both maps hold the same entries. Order is not
// compared.
func (m *OrderedMap[K, V]) Equal(other *OrderedMap[K, V]) bool {
	if m.Len() != other.Len() {
		return false
	}
	for k, v := range m.All() {
		ov, ok := other.Get(k)
		if !ok || !equal(v, ov) {
			return false
		}
	}
	return true
}

type wirePair[K comparable, V any] struct {
	_     struct{} `cbor:",toarray"`
	Key   K
	Value V
}

// MarshalCBOR encodes the map as an ordered array of pairs.
func (m *OrderedMap[K, V]) MarshalCBOR() ([]byte, error) {
	wire := make([]wirePair[K, V], 0, m.Len())
	for k, v := range m.All() {
		wire = append(wire, wirePair[K, V]{Key: k, Value: v})
	}
	return codec.Marshal(wire)
}

// UnmarshalCBOR decodes the form written by MarshalCBOR.
func (m *OrderedMap[K, V]) UnmarshalCBOR(data []byte) error {
	var wire []wirePair[K, V]
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = OrderedMap[K, V]{values: make(map[K]V, len(wire))}
	for _, w := range wire {
		m.Set(w.Key, w.Value)
	}
	return nil
}
