package tree

import (
	"fmt"
	"hash/crc32"
	"iter"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/collections"
)

// Name is a parameter-tree key: the CRC32 of the key's text. Collisions
// are not detected.
type Name uint32

// HashName returns the Name of s.
func HashName(s string) Name {
	return Name(crc32.ChecksumIEEE([]byte(s)))
}

// Object is a flat set of named scalar parameters.
type Object struct {
	params *collections.OrderedMap[Name, Value]
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{params: collections.NewOrderedMap[Name, Value]()}
}

// Set stores a parameter. Non-scalar values are rejected.
func (o *Object) Set(name Name, v Value) error {
	if !v.Kind().IsScalar() {
		return fmt.Errorf("parameter %#08x: %v is not a scalar", uint32(name), v.Kind())
	}
	o.params.Set(name, v)
	return nil
}

// Put is Set for callers that know v is scalar. It panics otherwise.
func (o *Object) Put(key string, v Value) *Object {
	if err := o.Set(HashName(key), v); err != nil {
		panic(err)
	}
	return o
}

// Get returns the parameter stored under name.
func (o *Object) Get(name Name) (Value, bool) {
	if o == nil {
		return Null, false
	}
	return o.params.Get(name)
}

// Len is the number of parameters.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return o.params.Len()
}

// All iterates parameters in order.
func (o *Object) All() iter.Seq2[Name, Value] {
	if o == nil {
		return func(func(Name, Value) bool) {}
	}
	return o.params.All()
}

// Equal compares parameters regardless of order.
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	for k, v := range o.All() {
		ov, ok := other.Get(k)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Diff keeps the parameters of other that are new or changed. A
// parameter missing from other is not recorded: objects cannot express
// deletion.
func (o *Object) Diff(other *Object) *Object {
	out := NewObject()
	for k, v := range other.All() {
		if bv, ok := o.Get(k); !ok || !bv.Equal(v) {
			out.params.Set(k, v)
		}
	}
	return out
}

// Merge overlays diff on o: base order first, then diff-only parameters.
func (o *Object) Merge(diff *Object) *Object {
	out := NewObject()
	for k, v := range o.All() {
		if dv, ok := diff.Get(k); ok {
			v = dv
		}
		out.params.Set(k, v)
	}
	for k, v := range diff.All() {
		out.params.Set(k, v)
	}
	return out
}

// MarshalCBOR encodes the parameters in order.
func (o *Object) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(o.params)
}

// UnmarshalCBOR decodes the form written by MarshalCBOR.
func (o *Object) UnmarshalCBOR(data []byte) error {
	params := collections.NewOrderedMap[Name, Value]()
	if err := codec.Unmarshal(data, params); err != nil {
		return err
	}
	for name, v := range params.All() {
		if !v.Kind().IsScalar() {
			return fmt.Errorf("parameter %#08x: %v is not a scalar", uint32(name), v.Kind())
		}
	}
	o.params = params
	return nil
}

// List is a tree node holding named child lists and named objects.
type List struct {
	lists   *collections.OrderedMap[Name, *List]
	objects *collections.OrderedMap[Name, *Object]
}

// NewList returns an empty list.
func NewList() *List {
	return &List{
		lists:   collections.NewOrderedMap[Name, *List](),
		objects: collections.NewOrderedMap[Name, *Object](),
	}
}

// SetList stores a child list.
func (l *List) SetList(name Name, child *List) *List {
	l.lists.Set(name, child)
	return l
}

// SetObject stores a child object.
func (l *List) SetObject(name Name, obj *Object) *List {
	l.objects.Set(name, obj)
	return l
}

// List returns the child list stored under name.
func (l *List) List(name Name) (*List, bool) {
	if l == nil {
		return nil, false
	}
	return l.lists.Get(name)
}

// Object returns the child object stored under name.
func (l *List) Object(name Name) (*Object, bool) {
	if l == nil {
		return nil, false
	}
	return l.objects.Get(name)
}

// Lists iterates child lists in order.
func (l *List) Lists() iter.Seq2[Name, *List] {
	if l == nil {
		return func(func(Name, *List) bool) {}
	}
	return l.lists.All()
}

// Objects iterates child objects in order.
func (l *List) Objects() iter.Seq2[Name, *Object] {
	if l == nil {
		return func(func(Name, *Object) bool) {}
	}
	return l.objects.All()
}

// Len counts direct children.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return l.lists.Len() + l.objects.Len()
}

// Equal compares the subtrees regardless of child order.
func (l *List) Equal(other *List) bool {
	if l == nil || other == nil {
		return l.Len() == other.Len()
	}
	if l.lists.Len() != other.lists.Len() || l.objects.Len() != other.objects.Len() {
		return false
	}
	for k, v := range l.Lists() {
		ov, ok := other.List(k)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	for k, v := range l.Objects() {
		ov, ok := other.Object(k)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Diff returns the children of other that are new, plus the recursive
// diff of children present on both sides when that diff is not empty.
// Children missing from other are not recorded.
func (l *List) Diff(other *List) *List {
	out := NewList()
	for k, v := range other.Objects() {
		bv, ok := l.Object(k)
		if !ok {
			out.objects.Set(k, v)
			continue
		}
		if d := bv.Diff(v); d.Len() > 0 {
			out.objects.Set(k, d)
		}
	}
	for k, v := range other.Lists() {
		bv, ok := l.List(k)
		if !ok {
			out.lists.Set(k, v)
			continue
		}
		if d := bv.Diff(v); d.Len() > 0 {
			out.lists.Set(k, d)
		}
	}
	return out
}

// Merge overlays diff on l, recursing into children present on both sides.
func (l *List) Merge(diff *List) *List {
	out := NewList()
	for k, v := range l.Objects() {
		if dv, ok := diff.Object(k); ok {
			v = v.Merge(dv)
		}
		out.objects.Set(k, v)
	}
	for k, v := range diff.Objects() {
		if _, ok := out.objects.Get(k); !ok {
			out.objects.Set(k, v)
		}
	}
	for k, v := range l.Lists() {
		if dv, ok := diff.List(k); ok {
			v = v.Merge(dv)
		}
		out.lists.Set(k, v)
	}
	for k, v := range diff.Lists() {
		if _, ok := out.lists.Get(k); !ok {
			out.lists.Set(k, v)
		}
	}
	return out
}

type wireList struct {
	_       struct{} `cbor:",toarray"`
	Lists   *collections.OrderedMap[Name, *List]
	Objects *collections.OrderedMap[Name, *Object]
}

// MarshalCBOR encodes children in order.
func (l *List) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(wireList{Lists: l.lists, Objects: l.objects})
}

// UnmarshalCBOR decodes the form written by MarshalCBOR.
func (l *List) UnmarshalCBOR(data []byte) error {
	w := wireList{
		Lists:   collections.NewOrderedMap[Name, *List](),
		Objects: collections.NewOrderedMap[Name, *Object](),
	}
	if err := codec.Unmarshal(data, &w); err != nil {
		return err
	}
	l.lists, l.objects = w.Lists, w.Objects
	return nil
}

// maxListDepth bounds list nesting in native data.
const maxListDepth = 64

// WriteList appends the native encoding of l.
func WriteList(w *codec.Writer, l *List) {
	w.U32(uint32(l.objects.Len()))
	w.U32(uint32(l.lists.Len()))
	for name, obj := range l.Objects() {
		w.U32(uint32(name))
		w.U32(uint32(obj.Len()))
		for k, v := range obj.All() {
			w.U32(uint32(k))
			writeValue(w, v)
		}
	}
	for name, child := range l.Lists() {
		w.U32(uint32(name))
		WriteList(w, child)
	}
}

// ReadList decodes a list written by WriteList.
func ReadList(r *codec.Reader) (*List, error) {
	return readList(r, 0)
}

func readList(r *codec.Reader, depth int) (*List, error) {
	if depth > maxListDepth {
		return nil, fmt.Errorf("lists nested deeper than %d", maxListDepth)
	}
	l := NewList()
	nObjects := r.Count(8)
	nLists := r.Count(12)
	for range nObjects {
		name := Name(r.U32())
		obj := NewObject()
		for range r.Count(5) {
			k := Name(r.U32())
			v, err := readValue(r, 0)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, v); err != nil {
				return nil, err
			}
		}
		l.objects.Set(name, obj)
	}
	for range nLists {
		name := Name(r.U32())
		child, err := readList(r, depth+1)
		if err != nil {
			return nil, err
		}
		l.lists.Set(name, child)
	}
	return l, r.Err()
}
