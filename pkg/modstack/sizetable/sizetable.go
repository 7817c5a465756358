// Package sizetable reads, updates and writes the resource size table,
// which tells the game how much memory to reserve for each resource.
// Sizes are keyed by the CRC32 of the canonical path; paths whose hash
// collides with another are stored by name instead.
package sizetable

import (
	"fmt"
	"hash/crc32"
	"maps"
	"slices"
	"strings"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// Magic opens a native size table.
const Magic = "RSTB"

const version uint16 = 1

// excluded lists extensions that never get a size entry.
var excluded = map[string]bool{
	"pack":     true,
	"bgdata":   true,
	"txt":      true,
	"bgsvdata": true,
	"yml":      true,
	"msbt":     true,
	"bat":      true,
	"ini":      true,
	"png":      true,
	"bfstm":    true,
	"py":       true,
	"sh":       true,
}

// Excluded reports whether canonical path p is never recorded.
func Excluded(p string) bool {
	return excluded[strings.ToLower(types.Ext(p))]
}

// Hash is the key of a path in the hashed section.
func Hash(p string) uint32 {
	return crc32.ChecksumIEEE([]byte(p))
}

// Candidate is a size produced for a path during an apply.
type Candidate struct {
	Path string
	Size uint32
}

// Table is a resource size table.
type Table struct {
	hashed map[uint32]uint32
	named  map[string]uint32
}

// New returns an empty table.
func New() *Table {
	return &Table{hashed: make(map[uint32]uint32), named: make(map[string]uint32)}
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.hashed) + len(t.named) }

// Get returns the recorded size of p.
func (t *Table) Get(p string) (uint32, bool) {
	if s, ok := t.named[p]; ok {
		return s, true
	}
	s, ok := t.hashed[Hash(p)]
	return s, ok
}

// Set records size for p, overwriting any entry.
func (t *Table) Set(p string, size uint32) {
	if _, ok := t.named[p]; ok {
		t.named[p] = size
		return
	}
	t.hashed[Hash(p)] = size
}

// SetNamed records size for p in the named section. Use it for paths
// whose hash collides with another resource.
func (t *Table) SetNamed(p string, size uint32) {
	t.named[p] = size
}

// Remove deletes the entry for p and reports whether there was one.
func (t *Table) Remove(p string) bool {
	if _, ok := t.named[p]; ok {
		delete(t.named, p)
		return true
	}
	h := Hash(p)
	if _, ok := t.hashed[h]; ok {
		delete(t.hashed, h)
		return true
	}
	return false
}

// Apply records each candidate as the larger of its size and the size
// already recorded, so an entry never shrinks. Excluded paths are
// skipped. It returns the number of entries changed.
func (t *Table) Apply(cands []Candidate) int {
	var changed int
	for _, c := range cands {
		if Excluded(c.Path) {
			continue
		}
		if cur, ok := t.Get(c.Path); ok && cur >= c.Size {
			continue
		}
		t.Set(c.Path, c.Size)
		changed++
	}
	return changed
}

// Clone returns an independent copy of t.
func (t *Table) Clone() *Table {
	return &Table{hashed: maps.Clone(t.hashed), named: maps.Clone(t.named)}
}

// Encode writes t natively in byte order e. Hashed entries are sorted by
// hash and named entries by name.
func (t *Table) Encode(e types.Endian) []byte {
	w := codec.NewWriter(e.ByteOrder())
	w.Header(Magic, version)
	w.U32(uint32(len(t.hashed)))
	w.U32(uint32(len(t.named)))
	for _, h := range slices.Sorted(maps.Keys(t.hashed)) {
		w.U32(h)
		w.U32(t.hashed[h])
	}
	for _, n := range slices.Sorted(maps.Keys(t.named)) {
		w.String(n)
		w.U32(t.named[n])
	}
	return w.Bytes()
}

// Decode parses a table written by Encode, in either byte order.
func Decode(data []byte) (*Table, error) {
	r, v, err := codec.ReadHeader(data, Magic)
	if err != nil {
		return nil, err
	}
	if v != version {
		return nil, fmt.Errorf("unsupported size table version %d", v)
	}
	t := New()
	nHashed, nNamed := r.U32(), r.U32()
	if int64(nHashed)*8 > int64(r.Remaining()) {
		return nil, fmt.Errorf("size table declares %d entries in %d bytes", nHashed, r.Remaining())
	}
	for range nHashed {
		h := r.U32()
		t.hashed[h] = r.U32()
	}
	for range nNamed {
		if r.Err() != nil {
			break
		}
		n := r.String()
		t.named[n] = r.U32()
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return t, nil
}
