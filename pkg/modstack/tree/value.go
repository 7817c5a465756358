// Package tree implements the two recursive shapes game resources are
// built from: a nested object/list parameter tree addressed by name
// hashes, and a flat key-to-value record whose deletions are marked with
// the Null sentinel.
package tree

import (
	"fmt"
	"math"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/collections"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindArray
	KindMap
)

var kindNames = [...]string{"null", "bool", "int", "uint", "float", "string", "bytes", "array", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsScalar reports whether k may appear as a parameter tree value.
func (k Kind) IsScalar() bool {
	return k >= KindBool && k <= KindBytes
}

// Value is an immutable dynamically typed value. The zero Value is Null.
type Value struct {
	kind   Kind
	num    uint64
	str    string
	items  []Value
	fields *collections.OrderedMap[string, Value]
}

// Null marks a deleted key in a record diff.
var Null = Value{}

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

func Int(i int64) Value     { return Value{kind: KindInt, num: uint64(i)} }
func Uint(u uint64) Value   { return Value{kind: KindUint, num: u} }
func Float(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Bytes(b []byte) Value  { return Value{kind: KindBytes, str: string(b)} }

// Array builds an array value from items.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value(nil), items...)}
}

// Map builds a map value. The map is cloned so later changes to fields
// do not leak into the value.
func Map(fields *collections.OrderedMap[string, Value]) Value {
	if fields == nil {
		fields = collections.NewOrderedMap[string, Value]()
	}
	return Value{kind: KindMap, fields: fields.Clone()}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Bool() bool     { return v.num != 0 }
func (v Value) Int() int64     { return int64(v.num) }
func (v Value) Uint() uint64   { return v.num }
func (v Value) Float() float64 { return math.Float64frombits(v.num) }
func (v Value) Str() string    { return v.str }
func (v Value) Bytes() []byte  { return []byte(v.str) }

// Items returns a copy of an array's elements.
func (v Value) Items() []Value { return append([]Value(nil), v.items...) }

// Fields returns a copy of a map's entries.
func (v Value) Fields() *collections.OrderedMap[string, Value] {
	if v.fields == nil {
		return collections.NewOrderedMap[string, Value]()
	}
	return v.fields.Clone()
}

// Equal compares kind and content. Floats compare by bit pattern, so NaN
// equals itself and a changed NaN payload counts as a change.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool, KindInt, KindUint, KindFloat:
		return v.num == o.num
	case KindString, KindBytes:
		return v.str == o.str
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.fields.Equal(o.fields)
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprint(v.Bool())
	case KindInt:
		return fmt.Sprint(v.Int())
	case KindUint:
		return fmt.Sprintf("%du", v.num)
	case KindFloat:
		return fmt.Sprint(v.Float())
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.str))
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.items))
	default:
		return fmt.Sprintf("map(%d)", v.fields.Len())
	}
}

type wireValue struct {
	_       struct{} `cbor:",toarray"`
	Kind    Kind
	Payload codec.RawMessage
}

// MarshalCBOR encodes the value as a [kind, payload] pair.
func (v Value) MarshalCBOR() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindNull:
		payload = nil
	case KindBool:
		payload = v.Bool()
	case KindInt:
		payload = v.Int()
	case KindUint:
		payload = v.num
	case KindFloat:
		payload = v.Float()
	case KindString:
		payload = v.str
	case KindBytes:
		payload = []byte(v.str)
	case KindArray:
		payload = v.items
	case KindMap:
		payload = v.fields
	default:
		return nil, fmt.Errorf("cannot encode value kind %v", v.kind)
	}
	raw, err := codec.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(wireValue{Kind: v.kind, Payload: raw})
}

// UnmarshalCBOR decodes the form written by MarshalCBOR.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var w wireValue
	if err := codec.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Value{kind: w.Kind}
	var err error
	switch w.Kind {
	case KindNull:
	case KindBool:
		var b bool
		err = codec.Unmarshal(w.Payload, &b)
		out = Bool(b)
	case KindInt:
		var i int64
		err = codec.Unmarshal(w.Payload, &i)
		out = Int(i)
	case KindUint:
		err = codec.Unmarshal(w.Payload, &out.num)
	case KindFloat:
		var f float64
		err = codec.Unmarshal(w.Payload, &f)
		out = Float(f)
	case KindString:
		err = codec.Unmarshal(w.Payload, &out.str)
	case KindBytes:
		var b []byte
		err = codec.Unmarshal(w.Payload, &b)
		out.str = string(b)
	case KindArray:
		err = codec.Unmarshal(w.Payload, &out.items)
	case KindMap:
		out.fields = collections.NewOrderedMap[string, Value]()
		err = codec.Unmarshal(w.Payload, out.fields)
	default:
		err = fmt.Errorf("unknown value kind %d", w.Kind)
	}
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// maxValueDepth bounds array and map nesting in native data.
const maxValueDepth = 32

func writeValue(w *codec.Writer, v Value) {
	w.U8(uint8(v.kind))
	switch v.kind {
	case KindBool:
		w.Bool(v.Bool())
	case KindInt, KindUint, KindFloat:
		w.U64(v.num)
	case KindString, KindBytes:
		w.String(v.str)
	case KindArray:
		w.U32(uint32(len(v.items)))
		for _, item := range v.items {
			writeValue(w, item)
		}
	case KindMap:
		w.U32(uint32(v.fields.Len()))
		for k, item := range v.fields.All() {
			w.String(k)
			writeValue(w, item)
		}
	}
}

func readValue(r *codec.Reader, depth int) (Value, error) {
	if depth > maxValueDepth {
		return Null, fmt.Errorf("values nested deeper than %d", maxValueDepth)
	}
	kind := Kind(r.U8())
	var v Value
	switch kind {
	case KindNull:
	case KindBool:
		v = Bool(r.Bool())
	case KindInt, KindUint, KindFloat:
		v = Value{kind: kind, num: r.U64()}
	case KindString, KindBytes:
		v = Value{kind: kind, str: r.String()}
	case KindArray:
		n := r.Count(1)
		items := make([]Value, 0, n)
		for range n {
			item, err := readValue(r, depth+1)
			if err != nil {
				return Null, err
			}
			items = append(items, item)
		}
		v = Value{kind: KindArray, items: items}
	case KindMap:
		n := r.Count(5)
		fields := collections.NewOrderedMap[string, Value]()
		for range n {
			k := r.String()
			item, err := readValue(r, depth+1)
			if err != nil {
				return Null, err
			}
			fields.Set(k, item)
		}
		v = Value{kind: KindMap, fields: fields}
	default:
		if r.Err() == nil {
			return Null, fmt.Errorf("unknown value kind %d at offset %d", kind, r.Offset()-1)
		}
	}
	return v, r.Err()
}
