package resource

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/collections"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// MagicArchive opens the native archive container.
const MagicArchive = "PACK"

// DefaultAlignment is used when an archive does not record one.
const DefaultAlignment = 4

const archiveVersion uint16 = 1

// MemberName is the canonical path of a resource stored in an archive.
type MemberName string

// SortKey orders members by name hash, as the container index does.
func (m MemberName) SortKey() uint64 { return xxhash.Sum64String(string(m)) }

// Archive is a container of named resources. Its mergeable content is
// the membership: diffs add and remove members, and the members
// themselves are merged individually by path. An archive read from
// native data also carries each member's raw bytes.
type Archive struct {
	Alignment uint32
	Members   *collections.SortedDeleteSet[MemberName]
	data      map[MemberName][]byte
}

func (*Archive) resourceValue() {}

// NewArchive returns an empty archive with the given alignment.
func NewArchive(alignment uint32) *Archive {
	return &Archive{
		Alignment: alignment,
		Members:   collections.NewSortedDeleteSet[MemberName](),
	}
}

// Names returns the live member names in index order.
func (a *Archive) Names() []string {
	var out []string
	for m := range a.Members.All() {
		out = append(out, string(m))
	}
	return out
}

// MemberData returns the raw bytes of a member read from native data.
func (a *Archive) MemberData(name string) ([]byte, bool) {
	b, ok := a.data[MemberName(name)]
	return b, ok
}

// HasData reports whether the archive holds member bytes, which is true
// only for archives decoded from native data.
func (a *Archive) HasData() bool { return a.data != nil }

// Diff describes membership changes from a to other.
func (a *Archive) Diff(other *Archive) *Archive {
	return &Archive{Alignment: other.Alignment, Members: a.Members.Diff(other.Members)}
}

// Merge applies membership changes. Member bytes of the base are kept
// for members that survive.
func (a *Archive) Merge(diff *Archive) *Archive {
	out := &Archive{Alignment: a.Alignment, Members: a.Members.Merge(diff.Members)}
	if diff.Alignment != 0 {
		out.Alignment = diff.Alignment
	}
	if a.data != nil {
		out.data = make(map[MemberName][]byte)
		for m := range out.Members.All() {
			if b, ok := a.data[m]; ok {
				out.data[m] = b
			}
		}
	}
	return out
}

// Equal compares alignment and membership.
func (a *Archive) Equal(other *Archive) bool {
	return a.Alignment == other.Alignment && a.Members.Equal(other.Members)
}

// ArchiveFile is one member passed to EncodeArchive.
type ArchiveFile struct {
	Name string
	Data []byte
}

// EncodeArchive packs files in byte order e. Members are written in
// index order regardless of the order of files; each member's data
// starts on an alignment boundary.
func EncodeArchive(files []ArchiveFile, alignment uint32, e types.Endian) []byte {
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	set := collections.NewSortedDeleteSet[MemberName]()
	byName := make(map[MemberName][]byte, len(files))
	for _, f := range files {
		set.Add(MemberName(f.Name))
		byName[MemberName(f.Name)] = f.Data
	}
	names := set.Values()

	w := codec.NewWriter(e.ByteOrder())
	w.Header(MagicArchive, archiveVersion)
	w.U32(alignment)
	w.U32(uint32(len(names)))
	slots := make([]int, len(names))
	for i, n := range names {
		w.String(string(n))
		slots[i] = w.Len()
		w.U32(0)
		w.U32(uint32(len(byName[n])))
	}
	for i, n := range names {
		w.Pad(int(alignment))
		w.PutU32(slots[i], uint32(w.Len()))
		w.Raw(byName[n])
	}
	return w.Bytes()
}

// DecodeArchive parses a native archive.
func DecodeArchive(data []byte) (*Archive, error) {
	r, version, err := codec.ReadHeader(data, MagicArchive)
	if err != nil {
		return nil, err
	}
	if version != archiveVersion {
		return nil, fmt.Errorf("unsupported archive version %d", version)
	}
	a := NewArchive(r.U32())
	a.data = make(map[MemberName][]byte)
	for range r.Count(12) {
		name := MemberName(r.String())
		off, size := r.U32(), r.U32()
		body := r.Slice(int(off), int(size))
		if r.Err() != nil {
			break
		}
		if _, dup := a.data[name]; dup {
			return nil, fmt.Errorf("duplicate archive member %q", name)
		}
		a.Members.Add(name)
		a.data[name] = body
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// Files returns the archive's members with their raw bytes, in index
// order. Members without data are skipped.
func (a *Archive) Files() []ArchiveFile {
	var out []ArchiveFile
	for m := range a.Members.All() {
		if b, ok := a.data[m]; ok {
			out = append(out, ArchiveFile{Name: string(m), Data: b})
		}
	}
	return out
}
