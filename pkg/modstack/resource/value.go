// Package resource defines the value a resolved game file becomes: an
// opaque Binary blob, a mergeable Document, or an Archive of further
// resources. It also owns the native encodings of those values and the
// CBOR form mod layers store their diffs in.
package resource

import (
	"bytes"
	"fmt"

	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// Value is one of Binary, Document or *Archive. The set is closed:
// consumers switch over the three cases and treat anything else as a
// schema mismatch.
type Value interface {
	resourceValue()
}

// Binary is a resource the engine does not understand. Layers replace it
// wholesale.
type Binary []byte

func (Binary) resourceValue() {}

// KindName names the variant of v for logs and error messages.
func KindName(v Value) string {
	switch v := v.(type) {
	case Binary:
		return "binary"
	case Document:
		return v.Magic()
	case *Archive:
		return "archive"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func mismatch(a, b Value) error {
	return fmt.Errorf("%w: %s vs %s", types.ErrSchemaMismatch, KindName(a), KindName(b))
}

// Diff describes other relative to base. Binaries diff to the whole new
// value; documents and archives diff structurally.
func Diff(base, other Value) (Value, error) {
	switch b := base.(type) {
	case Binary:
		o, ok := other.(Binary)
		if !ok {
			return nil, mismatch(base, other)
		}
		return o, nil
	case Document:
		o, ok := other.(Document)
		if !ok {
			return nil, mismatch(base, other)
		}
		return b.DiffDoc(o)
	case *Archive:
		o, ok := other.(*Archive)
		if !ok {
			return nil, mismatch(base, other)
		}
		return b.Diff(o), nil
	default:
		return nil, mismatch(base, other)
	}
}

// Merge applies diff to base.
func Merge(base, diff Value) (Value, error) {
	switch b := base.(type) {
	case Binary:
		d, ok := diff.(Binary)
		if !ok {
			return nil, mismatch(base, diff)
		}
		return d, nil
	case Document:
		d, ok := diff.(Document)
		if !ok {
			return nil, mismatch(base, diff)
		}
		return b.MergeDoc(d)
	case *Archive:
		d, ok := diff.(*Archive)
		if !ok {
			return nil, mismatch(base, diff)
		}
		return b.Merge(d), nil
	default:
		return nil, mismatch(base, diff)
	}
}

// Equal reports whether a and b hold the same content.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case Binary:
		o, ok := b.(Binary)
		return ok && bytes.Equal(a, o)
	case Document:
		o, ok := b.(Document)
		return ok && a.Equal(o)
	case *Archive:
		o, ok := b.(*Archive)
		return ok && a.Equal(o)
	default:
		return false
	}
}
