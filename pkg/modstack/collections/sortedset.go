package collections

import (
	"cmp"
	"iter"
	"slices"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
)

// Keyed is a string-like identity with a stable sort key, usually a hash
// of the name. Native containers order their members by that hash.
type Keyed interface {
	~string
	SortKey() uint64
}

// SortedDeleteSet is a delete-tracked set kept in SortKey order, ties
// broken by the key itself.
type SortedDeleteSet[K Keyed] struct {
	keys    []K
	deleted map[K]bool
}

// NewSortedDeleteSet returns a set holding keys as live members.
func NewSortedDeleteSet[K Keyed](keys ...K) *SortedDeleteSet[K] {
	s := &SortedDeleteSet[K]{deleted: make(map[K]bool, len(keys))}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func compareKeyed[K Keyed](a, b K) int {
	if c := cmp.Compare(a.SortKey(), b.SortKey()); c != 0 {
		return c
	}
	return cmp.Compare(string(a), string(b))
}

func (s *SortedDeleteSet[K]) put(k K, deleted bool) {
	if _, ok := s.deleted[k]; !ok {
		i, _ := slices.BinarySearchFunc(s.keys, k, compareKeyed[K])
		s.keys = slices.Insert(s.keys, i, k)
	}
	s.deleted[k] = deleted
}

// Add inserts k as a live member.
func (s *SortedDeleteSet[K]) Add(k K) { s.put(k, false) }

// Delete tombstones k.
func (s *SortedDeleteSet[K]) Delete(k K) { s.put(k, true) }

// Contains reports whether k is a live member.
func (s *SortedDeleteSet[K]) Contains(k K) bool {
	if s == nil {
		return false
	}
	deleted, ok := s.deleted[k]
	return ok && !deleted
}

// IsDeleted reports whether k is present as a tombstone.
func (s *SortedDeleteSet[K]) IsDeleted(k K) bool {
	if s == nil {
		return false
	}
	return s.deleted[k]
}

// Len counts live members.
func (s *SortedDeleteSet[K]) Len() int {
	n := 0
	for range s.All() {
		n++
	}
	return n
}

// All iterates live members in sort order.
func (s *SortedDeleteSet[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k, deleted := range s.Entries() {
			if !deleted && !yield(k) {
				return
			}
		}
	}
}

// Entries iterates members and tombstone flags in sort order.
func (s *SortedDeleteSet[K]) Entries() iter.Seq2[K, bool] {
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

// Values returns live members in sort order.
func (s *SortedDeleteSet[K]) Values() []K {
	var out []K
	for k := range s.All() {
		out = append(out, k)
	}
	return out
}

// Pages splits the live members into consecutive pages of at most size
// entries. The last page may be shorter; an empty set yields no pages.
func (s *SortedDeleteSet[K]) Pages(size int) [][]K {
	if size <= 0 {
		size = 1
	}
	var pages [][]K
	var page []K
	for k := range s.All() {
		page = append(page, k)
		if len(page) == size {
			pages = append(pages, page)
			page = nil
		}
	}
	if len(page) > 0 {
		pages = append(pages, page)
	}
	return pages
}

// Equal compares membership and tombstones.
func (s *SortedDeleteSet[K]) Equal(other *SortedDeleteSet[K]) bool {
	var a, b []K
	var ad, bd []bool
	for k, d := range s.Entries() {
		a, ad = append(a, k), append(ad, d)
	}
	for k, d := range other.Entries() {
		b, bd = append(b, k), append(bd, d)
	}
	return slices.Equal(a, b) && slices.Equal(ad, bd)
}

// Diff returns members added by other and tombstones for members it
// dropped.
func (s *SortedDeleteSet[K]) Diff(other *SortedDeleteSet[K]) *SortedDeleteSet[K] {
	out := NewSortedDeleteSet[K]()
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

// Merge takes the union of both sides, then removes members that diff
// tombstones.
func (s *SortedDeleteSet[K]) Merge(diff *SortedDeleteSet[K]) *SortedDeleteSet[K] {
	out := NewSortedDeleteSet[K]()
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

// MarshalCBOR encodes the set as an array of members in sort order.
func (s *SortedDeleteSet[K]) MarshalCBOR() ([]byte, error) {
	wire := make([]wireMember[K], 0, len(s.keys))
	for k, deleted := range s.Entries() {
		wire = append(wire, wireMember[K]{Key: k, Deleted: deleted})
	}
	return codec.Marshal(wire)
}

// UnmarshalCBOR decodes the form written by MarshalCBOR and re-sorts it.
func (s *SortedDeleteSet[K]) UnmarshalCBOR(data []byte) error {
	var wire []wireMember[K]
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = SortedDeleteSet[K]{deleted: make(map[K]bool, len(wire))}
	for _, w := range wire {
		s.put(w.Key, w.Deleted)
	}
	return nil
}
