package collections

import (
	"iter"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
)

// DeleteSet is an insertion-ordered set whose members may be tombstoned.
type DeleteSet[K comparable] struct {
	keys    []K
	deleted map[K]bool
}

// NewDeleteSet returns a set holding keys as live members.
func NewDeleteSet[K comparable](keys ...K) *DeleteSet[K] {
	s := &DeleteSet[K]{deleted: make(map[K]bool, len(keys))}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s *DeleteSet[K]) put(k K, deleted bool) {
	if _, ok := s.deleted[k]; !ok {
		s.keys = append(s.keys, k)
	}
	s.deleted[k] = deleted
}

// Add inserts k as a live member.
func (s *DeleteSet[K]) Add(k K) { s.put(k, false) }

// Delete tombstones k.
func (s *DeleteSet[K]) Delete(k K) { s.put(k, true) }

// Contains reports whether k is a live member.
func (s *DeleteSet[K]) Contains(k K) bool {
	if s == nil {
		return false
	}
	deleted, ok := s.deleted[k]
	return ok && !deleted
}

// IsDeleted reports whether k is present as a tombstone.
func (s *DeleteSet[K]) IsDeleted(k K) bool {
	if s == nil {
		return false
	}
	return s.deleted[k]
}

// Len counts live members.
func (s *DeleteSet[K]) Len() int {
	n := 0
	for range s.All() {
		n++
	}
	return n
}

// All iterates live members in order.
func (s *DeleteSet[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k, deleted := range s.Entries() {
			if !deleted && !yield(k) {
				return
			}
		}
	}
}

// Entries iterates members and their tombstone flags in order.
func (s *DeleteSet[K]) Entries() iter.Seq2[K, bool] {
	return func(yield func(K, bool) bool) {
		if s == nil {
			return
		}
		for _, k := range s.keys {
			if !yield(k, s.deleted[k]) {
				return
			}
		}
	}
}

// Values returns live members in order.
func (s *DeleteSet[K]) Values() []K {
	var out []K
	for k := range s.All() {
		out = append(out, k)
	}
	return out
}

// Equal compares membership and tombstones, ignoring order.
func (s *DeleteSet[K]) Equal(other *DeleteSet[K]) bool {
	var n, m int
	for range s.Entries() {
		n++
	}
	for range other.Entries() {
		m++
	}
	if n != m {
		return false
	}
	for k, deleted := range s.Entries() {
		od, ok := other.deleted[k]
		if !ok || od != deleted {
			return false
		}
	}
	return true
}

// Diff returns members added by other and tombstones for members it
// dropped.
func (s *DeleteSet[K]) Diff(other *DeleteSet[K]) *DeleteSet[K] {
	out := NewDeleteSet[K]()
	for k := range other.All() {
		if !s.Contains(k) {
			out.Add(k)
		}
	}
	for k := range s.All() {
		if !other.Contains(k) {
			out.Delete(k)
		}
	}
	return out
}

// Merge keeps base order, removes members tombstoned by diff and appends
// its new members.
func (s *DeleteSet[K]) Merge(diff *DeleteSet[K]) *DeleteSet[K] {
	out := NewDeleteSet[K]()
	for k := range s.All() {
		if !diff.IsDeleted(k) {
			out.Add(k)
		}
	}
	for k := range diff.All() {
		out.Add(k)
	}
	return out
}

type wireMember[K comparable] struct {
	_       struct{} `cbor:",toarray"`
	Key     K
	Deleted bool
}

// MarshalCBOR encodes the set as an ordered array of members.
func (s *DeleteSet[K]) MarshalCBOR() ([]byte, error) {
	wire := make([]wireMember[K], 0, len(s.keys))
	for k, deleted := range s.Entries() {
		wire = append(wire, wireMember[K]{Key: k, Deleted: deleted})
	}
	return codec.Marshal(wire)
}

// UnmarshalCBOR decodes the form written by MarshalCBOR.
func (s *DeleteSet[K]) UnmarshalCBOR(data []byte) error {
	var wire []wireMember[K]
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = DeleteSet[K]{deleted: make(map[K]bool, len(wire))}
	for _, w := range wire {
		s.put(w.Key, w.Deleted)
	}
	return nil
}
