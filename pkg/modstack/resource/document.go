package resource

import (
	"fmt"
	"slices"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/collections"
	"github.com/jamesainslie/modstack/pkg/modstack/tree"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// Document is a mergeable resource. Each schema is identified by the
// four-byte magic its native encoding starts with.
type Document interface {
	Value
	Magic() string
	DiffDoc(other Document) (Document, error)
	MergeDoc(diff Document) (Document, error)
	Equal(other Document) bool
	writeBody(w *codec.Writer)
}

// Native magics of the document schemas.
const (
	MagicParam  = "PTRE"
	MagicRecord = "FREC"
	MagicTable  = "TABL"
	MagicList   = "NLST"
	MagicFlags  = "FLAG"
)

// FlagPageSize caps how many flags one exported page may hold.
const FlagPageSize = 4096

const docVersion uint16 = 1

type docCodec struct {
	empty    func() Document
	readBody func(r *codec.Reader) (Document, error)
}

var docCodecs = map[string]docCodec{
	MagicParam:  {empty: func() Document { return &ParamDoc{Root: tree.NewList()} }, readBody: readParamDoc},
	MagicRecord: {empty: func() Document { return &RecordDoc{Record: tree.NewRecord()} }, readBody: readRecordDoc},
	MagicTable:  {empty: func() Document { return NewTableDoc() }, readBody: readTableDoc},
	MagicList:   {empty: func() Document { return NewListDoc() }, readBody: readListDoc},
	MagicFlags:  {empty: func() Document { return NewFlagDoc() }, readBody: readFlagDoc},
}

type mergeableDoc[T any] interface {
	Document
	collections.Mergeable[T]
}

func diffAs[T mergeableDoc[T]](base T, other Document) (Document, error) {
	o, ok := other.(T)
	if !ok {
		return nil, mismatch(base, other)
	}
	return base.Diff(o), nil
}

func mergeAs[T mergeableDoc[T]](base T, diff Document) (Document, error) {
	d, ok := diff.(T)
	if !ok {
		return nil, mismatch(base, diff)
	}
	return base.Merge(d), nil
}

// ParamDoc is a nested object/list parameter tree.
type ParamDoc struct {
	Root *tree.List
}

func (*ParamDoc) resourceValue()  {}
func (*ParamDoc) Magic() string   { return MagicParam }
func (d *ParamDoc) Diff(o *ParamDoc) *ParamDoc  { return &ParamDoc{Root: d.Root.Diff(o.Root)} }
func (d *ParamDoc) Merge(o *ParamDoc) *ParamDoc { return &ParamDoc{Root: d.Root.Merge(o.Root)} }
func (d *ParamDoc) DiffDoc(o Document) (Document, error)  { return diffAs(d, o) }
func (d *ParamDoc) MergeDoc(o Document) (Document, error) { return mergeAs(d, o) }

func (d *ParamDoc) Equal(o Document) bool {
	od, ok := o.(*ParamDoc)
	return ok && d.Root.Equal(od.Root)
}

func (d *ParamDoc) writeBody(w *codec.Writer) { tree.WriteList(w, d.Root) }

func readParamDoc(r *codec.Reader) (Document, error) {
	root, err := tree.ReadList(r)
	if err != nil {
		return nil, err
	}
	return &ParamDoc{Root: root}, nil
}

// RecordDoc is a flat record whose diffs may delete fields.
type RecordDoc struct {
	Record *tree.Record
}

func (*RecordDoc) resourceValue()  {}
func (*RecordDoc) Magic() string   { return MagicRecord }
func (d *RecordDoc) Diff(o *RecordDoc) *RecordDoc  { return &RecordDoc{Record: d.Record.Diff(o.Record)} }
func (d *RecordDoc) Merge(o *RecordDoc) *RecordDoc { return &RecordDoc{Record: d.Record.Merge(o.Record)} }
func (d *RecordDoc) DiffDoc(o Document) (Document, error)  { return diffAs(d, o) }
func (d *RecordDoc) MergeDoc(o Document) (Document, error) { return mergeAs(d, o) }

func (d *RecordDoc) Equal(o Document) bool {
	od, ok := o.(*RecordDoc)
	return ok && d.Record.Equal(od.Record)
}

func (d *RecordDoc) writeBody(w *codec.Writer) { tree.WriteRecord(w, d.Record) }

func readRecordDoc(r *codec.Reader) (Document, error) {
	rec, err := tree.ReadRecord(r)
	if err != nil {
		return nil, err
	}
	return &RecordDoc{Record: rec}, nil
}

// TableDoc is a keyed table of records, such as an actor info table.
// Rows are diffed field by field and a row left with no fields after a
// merge disappears.
type TableDoc struct {
	Rows *collections.DeleteMap[string, *tree.Record]
}

// NewTableDoc returns an empty table.
func NewTableDoc() *TableDoc {
	return &TableDoc{Rows: collections.NewDeleteMap[string, *tree.Record]()}
}

func (*TableDoc) resourceValue() {}
func (*TableDoc) Magic() string  { return MagicTable }

func (d *TableDoc) Diff(o *TableDoc) *TableDoc {
	return &TableDoc{Rows: collections.DeepDiff(d.Rows, o.Rows)}
}

func (d *TableDoc) Merge(o *TableDoc) *TableDoc {
	return &TableDoc{Rows: collections.DeepMerge(d.Rows, o.Rows)}
}

func (d *TableDoc) DiffDoc(o Document) (Document, error)  { return diffAs(d, o) }
func (d *TableDoc) MergeDoc(o Document) (Document, error) { return mergeAs(d, o) }

func (d *TableDoc) Equal(o Document) bool {
	od, ok := o.(*TableDoc)
	return ok && d.Rows.Equal(od.Rows)
}

func (d *TableDoc) writeBody(w *codec.Writer) {
	w.U32(uint32(d.Rows.Len()))
	for k, row := range d.Rows.All() {
		w.String(k)
		tree.WriteRecord(w, row)
	}
}

func readTableDoc(r *codec.Reader) (Document, error) {
	d := NewTableDoc()
	for range r.Count(8) {
		key := r.String()
		row, err := tree.ReadRecord(r)
		if err != nil {
			return nil, err
		}
		d.Rows.Set(key, row)
	}
	return d, r.Err()
}

// ListDoc is an ordered list of unique names.
type ListDoc struct {
	Names *collections.DeleteSet[string]
}

// NewListDoc returns a list holding names.
func NewListDoc(names ...string) *ListDoc {
	return &ListDoc{Names: collections.NewDeleteSet(names...)}
}

func (*ListDoc) resourceValue() {}
func (*ListDoc) Magic() string  { return MagicList }
func (d *ListDoc) Diff(o *ListDoc) *ListDoc  { return &ListDoc{Names: d.Names.Diff(o.Names)} }
func (d *ListDoc) Merge(o *ListDoc) *ListDoc { return &ListDoc{Names: d.Names.Merge(o.Names)} }
func (d *ListDoc) DiffDoc(o Document) (Document, error)  { return diffAs(d, o) }
func (d *ListDoc) MergeDoc(o Document) (Document, error) { return mergeAs(d, o) }

func (d *ListDoc) Equal(o Document) bool {
	od, ok := o.(*ListDoc)
	return ok && d.Names.Equal(od.Names)
}

func (d *ListDoc) writeBody(w *codec.Writer) {
	names := d.Names.Values()
	w.U32(uint32(len(names)))
	for _, n := range names {
		w.String(n)
	}
}

func readListDoc(r *codec.Reader) (Document, error) {
	d := NewListDoc()
	for range r.Count(4) {
		d.Names.Add(r.String())
	}
	return d, r.Err()
}

// FlagName is a game flag identifier, ordered by its hash.
type FlagName string

// SortKey orders flags the way the game's flag tables are sorted.
func (f FlagName) SortKey() uint64 { return uint64(tree.HashName(string(f))) }

// FlagDoc is a sorted set of flag names exported in pages of at most
// FlagPageSize entries.
type FlagDoc struct {
	Flags *collections.SortedDeleteSet[FlagName]
}

// NewFlagDoc returns a flag set holding flags.
func NewFlagDoc(flags ...FlagName) *FlagDoc {
	return &FlagDoc{Flags: collections.NewSortedDeleteSet(flags...)}
}

func (*FlagDoc) resourceValue() {}
func (*FlagDoc) Magic() string  { return MagicFlags }
func (d *FlagDoc) Diff(o *FlagDoc) *FlagDoc  { return &FlagDoc{Flags: d.Flags.Diff(o.Flags)} }
func (d *FlagDoc) Merge(o *FlagDoc) *FlagDoc { return &FlagDoc{Flags: d.Flags.Merge(o.Flags)} }
func (d *FlagDoc) DiffDoc(o Document) (Document, error)  { return diffAs(d, o) }
func (d *FlagDoc) MergeDoc(o Document) (Document, error) { return mergeAs(d, o) }

func (d *FlagDoc) Equal(o Document) bool {
	od, ok := o.(*FlagDoc)
	return ok && d.Flags.Equal(od.Flags)
}

func (d *FlagDoc) writeBody(w *codec.Writer) {
	pages := d.Flags.Pages(FlagPageSize)
	w.U32(uint32(len(pages)))
	for _, page := range pages {
		w.U32(uint32(len(page)))
		for _, f := range page {
			w.String(string(f))
		}
	}
}

func readFlagDoc(r *codec.Reader) (Document, error) {
	d := NewFlagDoc()
	for range r.Count(4) {
		n := r.Count(4)
		if n > FlagPageSize {
			return nil, fmt.Errorf("flag page holds %d entries, limit is %d", n, FlagPageSize)
		}
		for range n {
			d.Flags.Add(FlagName(r.String()))
		}
	}
	return d, r.Err()
}

// EncodeDocument serializes d natively in byte order e.
func EncodeDocument(d Document, e types.Endian) []byte {
	w := codec.NewWriter(e.ByteOrder())
	w.Header(d.Magic(), docVersion)
	d.writeBody(w)
	return w.Bytes()
}

// DecodeDocument parses native document data. ok is false when the data
// does not start with a known document magic.
func DecodeDocument(data []byte) (doc Document, ok bool, err error) {
	if len(data) < 4 {
		return nil, false, nil
	}
	c, known := docCodecs[string(data[:4])]
	if !known {
		return nil, false, nil
	}
	r, version, err := codec.ReadHeader(data, string(data[:4]))
	if err != nil {
		return nil, true, err
	}
	if version != docVersion {
		return nil, true, fmt.Errorf("unsupported %s version %d", data[:4], version)
	}
	doc, err = c.readBody(r)
	if err != nil {
		return nil, true, err
	}
	if r.Remaining() != 0 {
		return nil, true, fmt.Errorf("%d trailing bytes after %s body", r.Remaining(), data[:4])
	}
	return doc, true, nil
}

// DocumentMagics lists the known document magics in sorted order.
func DocumentMagics() []string {
	magics := make([]string, 0, len(docCodecs))
	for m := range docCodecs {
		magics = append(magics, m)
	}
	slices.Sort(magics)
	return magics
}
