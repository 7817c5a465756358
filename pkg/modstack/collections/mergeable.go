// Package collections provides ordered containers whose entries can carry
// a deletion tombstone, and the diff/merge contract they share.
//
// A diff is a value of the same type as the things it was computed from.
// Tombstones only appear inside diffs: Merge never returns a collection
// that still holds deleted entries.
package collections

import "reflect"

// Mergeable is implemented by values that can describe how another value
// of the same schema differs from them, and apply such a description.
//
// For any base and other of one schema, base.Merge(base.Diff(other))
// equals other.
type Mergeable[T any] interface {
	Diff(other T) T
	Merge(diff T) T
}

// Equaler is implemented by values with their own notion of equality.
type Equaler[T any] interface {
	Equal(other T) bool
}

// Sized is implemented by composite values that can report being empty.
// DeepMerge drops a merged entry whose value reports Len() == 0.
type Sized interface {
	Len() int
}

// Entry is a value paired with its tombstone flag.
type Entry[V any] struct {
	Value   V
	Deleted bool
}

func equal[V any](a, b V) bool {
	if e, ok := any(a).(Equaler[V]); ok {
		return e.Equal(b)
	}
	return reflect.DeepEqual(a, b)
}

func isEmpty[V any](v V) bool {
	s, ok := any(v).(Sized)
	return ok && s.Len() == 0
}
