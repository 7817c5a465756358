package tree

import (
	"fmt"
	"iter"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/collections"
)

// Record is a flat, ordered string-keyed record. Unlike Object, a record
// diff can delete keys: a Null value in a diff means "remove this key".
// Null is therefore never a stored field value; a field is either set or
// absent, and ReadRecord rejects encoded null fields.
type Record struct {
	fields *collections.OrderedMap[string, Value]
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: collections.NewOrderedMap[string, Value]()}
}

// Set stores v under key and returns r for chaining.
func (r *Record) Set(key string, v Value) *Record {
	r.fields.Set(key, v)
	return r
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return Null, false
	}
	return r.fields.Get(key)
}

// Len is the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return r.fields.Len()
}

// Keys returns field names in order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return r.fields.Keys()
}

// All iterates fields in order.
func (r *Record) All() iter.Seq2[string, Value] {
	if r == nil {
		return func(func(string, Value) bool) {}
	}
	return r.fields.All()
}

// Equal compares fields regardless of order.
func (r *Record) Equal(other *Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	for k, v := range r.All() {
		ov, ok := other.Get(k)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Diff returns the fields of other that are new or changed, and Null for
// every key of r that other lacks.
func (r *Record) Diff(other *Record) *Record {
	out := NewRecord()
	for k, v := range other.All() {
		if bv, ok := r.Get(k); !ok || !bv.Equal(v) {
			out.fields.Set(k, v)
		}
	}
	for k := range r.All() {
		if _, ok := other.Get(k); !ok {
			out.fields.Set(k, Null)
		}
	}
	return out
}

// Merge overlays diff on r and drops every key whose diff value is Null.
func (r *Record) Merge(diff *Record) *Record {
	out := NewRecord()
	for k, v := range r.All() {
		if dv, ok := diff.Get(k); ok {
			v = dv
		}
		if !v.IsNull() {
			out.fields.Set(k, v)
		}
	}
	for k, v := range diff.All() {
		if _, inBase := r.Get(k); inBase || v.IsNull() {
			continue
		}
		out.fields.Set(k, v)
	}
	return out
}

// MarshalCBOR encodes the fields in order.
func (r *Record) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(r.fields)
}

// UnmarshalCBOR decodes the form written by MarshalCBOR.
func (r *Record) UnmarshalCBOR(data []byte) error {
	fields := collections.NewOrderedMap[string, Value]()
	if err := codec.Unmarshal(data, fields); err != nil {
		return err
	}
	r.fields = fields
	return nil
}

// WriteRecord appends the native encoding of r.
func WriteRecord(w *codec.Writer, r *Record) {
	w.U32(uint32(r.Len()))
	for k, v := range r.All() {
		w.String(k)
		writeValue(w, v)
	}
}

// ReadRecord decodes a record written by WriteRecord.
func ReadRecord(rd *codec.Reader) (*Record, error) {
	r := NewRecord()
	for range rd.Count(5) {
		k := rd.String()
		v, err := readValue(rd, 0)
		if err != nil {
			return nil, err
		}
		if v.IsNull() {
			return nil, fmt.Errorf("record field %q is null", k)
		}
		r.fields.Set(k, v)
	}
	return r, rd.Err()
}
