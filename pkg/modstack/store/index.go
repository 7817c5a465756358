package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// IndexFileName is the file the parent index is saved under.
const IndexFileName = "parents.json"

// IndexEntry names the archive that holds a resource.
type IndexEntry struct {
	// Parent is the nested path of the enclosing archive.
	Parent string `json:"parent"`
	// Member is the resource's name inside Parent, as stored.
	Member string `json:"member"`
}

// Key returns the nested path of the resource itself.
func (e IndexEntry) Key() string {
	return e.Parent + types.NestSeparator + e.Member
}

// ParentIndex maps the canonical path of every archived resource to the
// archive it lives in. It is built once from the base dump and read-only
// afterwards.
type ParentIndex struct {
	Platform string                `json:"platform"`
	Entries  map[string]IndexEntry `json:"entries"`
}

// NewParentIndex returns an empty index for platform e.
func NewParentIndex(e types.Endian) *ParentIndex {
	return &ParentIndex{Platform: e.String(), Entries: make(map[string]IndexEntry)}
}

// Lookup returns the parent of canon.
func (ix *ParentIndex) Lookup(canon string) (IndexEntry, bool) {
	if ix == nil {
		return IndexEntry{}, false
	}
	e, ok := ix.Entries[canon]
	return e, ok
}

// Add records e as the parent of canon unless canon already has one.
func (ix *ParentIndex) Add(canon string, e IndexEntry) bool {
	if _, ok := ix.Entries[canon]; ok {
		return false
	}
	ix.Entries[canon] = e
	return true
}

// Len returns the number of indexed resources.
func (ix *ParentIndex) Len() int { return len(ix.Entries) }

// Paths returns the indexed canonical paths in sorted order.
func (ix *ParentIndex) Paths() []string {
	return slices.Sorted(maps.Keys(ix.Entries))
}

// Save writes the index as JSON to path.
func (ix *ParentIndex) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	data, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("encoding parent index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing parent index: %w", err)
	}
	return nil
}

// LoadIndex reads an index written by Save.
func LoadIndex(path string) (*ParentIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parent index: %w", err)
	}
	ix := &ParentIndex{}
	if err := json.Unmarshal(data, ix); err != nil {
		return nil, fmt.Errorf("decoding parent index: %w", err)
	}
	if ix.Entries == nil {
		ix.Entries = make(map[string]IndexEntry)
	}
	return ix, nil
}

// BuildIndex opens every archive in src, descending into nested archives
// up to types.MaxArchiveDepth, and records where each member lives. When
// several archives hold the same resource the first in canonical order
// wins.
func BuildIndex(ctx context.Context, src Source, e types.Endian) (*ParentIndex, error) {
	files, err := src.Files()
	if err != nil {
		return nil, err
	}

	found := make([][]indexed, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, _, err := src.Read(f.Canon)
			if err != nil {
				return err
			}
			v, err := resource.Parse(f.Name, data)
			if err != nil {
				logger.Debug("skipping unparsable file", "path", f.Canon, "error", err)
				return nil
			}
			if a, ok := v.(*resource.Archive); ok {
				found[i] = collectMembers(types.NestedPath{Parts: []string{f.Canon}}, a, e)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix := NewParentIndex(e)
	for _, members := range found {
		for _, m := range members {
			ix.Add(m.canon, m.entry)
		}
	}
	logger.Info("built parent index", "archives", countNonEmpty(found), "members", ix.Len())
	return ix, nil
}

type indexed struct {
	canon string
	entry IndexEntry
}

func collectMembers(parent types.NestedPath, a *resource.Archive, e types.Endian) []indexed {
	var out []indexed
	for _, f := range a.Files() {
		out = append(out, indexed{
			canon: types.Canonicalize(f.Name, e),
			entry: IndexEntry{Parent: parent.String(), Member: f.Name},
		})
		child := parent.Nest(f.Name)
		if child.Depth() >= types.MaxArchiveDepth-1 {
			continue
		}
		v, err := resource.Parse(f.Name, f.Data)
		if err != nil {
			continue
		}
		if nested, ok := v.(*resource.Archive); ok {
			out = append(out, collectMembers(child, nested, e)...)
		}
	}
	return out
}

func countNonEmpty(found [][]indexed) int {
	var n int
	for _, f := range found {
		if len(f) > 0 {
			n++
		}
	}
	return n
}
