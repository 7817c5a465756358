package collections

import (
	"iter"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
)

// DeleteMap is an insertion-ordered map whose entries may be tombstoned.
// The zero value is not usable; call NewDeleteMap. A nil *DeleteMap reads
// as empty.
type DeleteMap[K comparable, V any] struct {
	keys    []K
	entries map[K]Entry[V]
}

// NewDeleteMap returns an empty map.
func NewDeleteMap[K comparable, V any]() *DeleteMap[K, V] {
	return &DeleteMap[K, V]{entries: make(map[K]Entry[V])}
}

func (m *DeleteMap[K, V]) put(k K, e Entry[V]) {
	if _, ok := m.entries[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.entries[k] = e
}

// Set stores a live entry. An existing key keeps its position.
func (m *DeleteMap[K, V]) Set(k K, v V) {
	m.put(k, Entry[V]{Value: v})
}

// SetDeleted stores a tombstone for k carrying v.
func (m *DeleteMap[K, V]) SetDeleted(k K, v V) {
	m.put(k, Entry[V]{Value: v, Deleted: true})
}

// Delete tombstones k, keeping any value it had.
func (m *DeleteMap[K, V]) Delete(k K) {
	e := m.entries[k]
	e.Deleted = true
	m.put(k, e)
}

// Get returns the live value for k.
func (m *DeleteMap[K, V]) Get(k K) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	e, ok := m.entries[k]
	if !ok || e.Deleted {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Entry returns the raw entry for k, tombstone included.
func (m *DeleteMap[K, V]) Entry(k K) (Entry[V], bool) {
	if m == nil {
		return Entry[V]{}, false
	}
	e, ok := m.entries[k]
	return e, ok
}

// Len counts live entries.
func (m *DeleteMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, e := range m.entries {
		if !e.Deleted {
			n++
		}
	}
	return n
}

// Keys returns live keys in order.
func (m *DeleteMap[K, V]) Keys() []K {
	var keys []K
	for k := range m.All() {
		keys = append(keys, k)
	}
	return keys
}

// All iterates live entries in order.
func (m *DeleteMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for k, e := range m.Entries() {
			if e.Deleted {
				continue
			}
			if !yield(k, e.Value) {
				return
			}
		}
	}
}

// Entries iterates every entry in order, tombstones included.
func (m *DeleteMap[K, V]) Entries() iter.Seq2[K, Entry[V]] {
	return func(yield func(K, Entry[V]) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.entries[k]) {
				return
			}
		}
	}
}

// Clone returns a shallow copy.
func (m *DeleteMap[K, V]) Clone() *DeleteMap[K, V] {
	out := NewDeleteMap[K, V]()
	for k, e := range m.Entries() {
		out.put(k, e)
	}
	return out
}

// Equal compares entries and tombstones. Order is not significant.
func (m *DeleteMap[K, V]) Equal(other *DeleteMap[K, V]) bool {
	if len(m.Keys()) != len(other.Keys()) || m.tombstones() != other.tombstones() {
		return false
	}
	for k, e := range m.Entries() {
		oe, ok := other.Entry(k)
		if !ok || oe.Deleted != e.Deleted || !equal(e.Value, oe.Value) {
			return false
		}
	}
	return true
}

func (m *DeleteMap[K, V]) tombstones() int {
	n := 0
	for _, e := range m.Entries() {
		if e.Deleted {
			n++
		}
	}
	return n
}

// Diff returns the entries of other that are new or changed relative to
// m, followed by tombstones for live keys of m that other lacks.
func (m *DeleteMap[K, V]) Diff(other *DeleteMap[K, V]) *DeleteMap[K, V] {
	out := NewDeleteMap[K, V]()
	for k, v := range other.All() {
		if bv, ok := m.Get(k); !ok || !equal(bv, v) {
			out.Set(k, v)
		}
	}
	for k, v := range m.All() {
		if _, ok := other.Get(k); !ok {
			out.SetDeleted(k, v)
		}
	}
	return out
}

// Merge applies diff to m. Base order is kept, diff values override,
// tombstoned keys are removed and diff-only keys are appended in diff
// order.
func (m *DeleteMap[K, V]) Merge(diff *DeleteMap[K, V]) *DeleteMap[K, V] {
	out := NewDeleteMap[K, V]()
	for k, v := range m.All() {
		e, ok := diff.Entry(k)
		switch {
		case !ok:
			out.Set(k, v)
		case !e.Deleted:
			out.Set(k, e.Value)
		}
	}
	for k, e := range diff.Entries() {
		if e.Deleted {
			continue
		}
		if _, ok := out.entries[k]; !ok {
			out.Set(k, e.Value)
		}
	}
	return out
}

// DeepDiff is Diff for maps whose values are themselves mergeable: a key
// present on both sides with different values yields the nested diff
// rather than the whole new value.
func DeepDiff[K comparable, V Mergeable[V]](base, other *DeleteMap[K, V]) *DeleteMap[K, V] {
	out := NewDeleteMap[K, V]()
	for k, v := range other.All() {
		bv, ok := base.Get(k)
		switch {
		case !ok:
			out.Set(k, v)
		case !equal(bv, v):
			out.Set(k, bv.Diff(v))
		}
	}
	for k, v := range base.All() {
		if _, ok := other.Get(k); !ok {
			out.SetDeleted(k, v)
		}
	}
	return out
}

// DeepMerge is Merge for maps of mergeable values. Matching entries are
// merged recursively; an entry whose merged value is empty is dropped.
func DeepMerge[K comparable, V Mergeable[V]](base, diff *DeleteMap[K, V]) *DeleteMap[K, V] {
	out := NewDeleteMap[K, V]()
	for k, v := range base.All() {
		e, ok := diff.Entry(k)
		switch {
		case !ok:
			out.Set(k, v)
		case e.Deleted:
		default:
			if merged := v.Merge(e.Value); !isEmpty(merged) {
				out.Set(k, merged)
			}
		}
	}
	for k, e := range diff.Entries() {
		if e.Deleted {
			continue
		}
		if _, ok := out.entries[k]; ok {
			continue
		}
		if _, inBase := base.Get(k); inBase {
			// merged to empty above
			continue
		}
		out.Set(k, e.Value)
	}
	return out
}

type wireEntry[K comparable, V any] struct {
	_       struct{} `cbor:",toarray"`
	Key     K
	Value   V
	Deleted bool
}

// MarshalCBOR encodes the map as an ordered array of entries.
func (m *DeleteMap[K, V]) MarshalCBOR() ([]byte, error) {
	wire := make([]wireEntry[K, V], 0, len(m.keys))
	for k, e := range m.Entries() {
		wire = append(wire, wireEntry[K, V]{Key: k, Value: e.Value, Deleted: e.Deleted})
	}
	return codec.Marshal(wire)
}

// UnmarshalCBOR decodes the form written by MarshalCBOR.
func (m *DeleteMap[K, V]) UnmarshalCBOR(data []byte) error {
	var wire []wireEntry[K, V]
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = DeleteMap[K, V]{entries: make(map[K]Entry[V], len(wire))}
	for _, w := range wire {
		m.put(w.Key, Entry[V]{Value: w.Value, Deleted: w.Deleted})
	}
	return nil
}
