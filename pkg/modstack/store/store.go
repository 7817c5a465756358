// Package store resolves base-game resources by canonical or nested path.
// A resource is read directly from the dump when it exists there as a
// file, and otherwise extracted from the archive the parent index names,
// recursively through enclosing archives. Parsed values are cached.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jamesainslie/modstack/pkg/modstack/logging"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

var logger = logging.Get("store")

// Resolver resolves a canonical or nested path to its base value.
type Resolver interface {
	Resolve(ctx context.Context, path string) (resource.Value, error)
}

// Options configures a Store. Zero values are usable: a default Cache is
// created, and without an Index only loose files resolve.
type Options struct {
	Endian types.Endian
	Index  *ParentIndex
	Cache  *Cache
	// Disk, when set, persists parsed documents across runs.
	Disk *DiskCache
}

// Store resolves base resources. It owns its caches; concurrent runs
// should use separate stores.
type Store struct {
	src    Source
	endian types.Endian
	index  *ParentIndex
	cache  *Cache
	disk   *DiskCache

	names sync.Map // canonical path -> File
}

var _ Resolver = (*Store)(nil)

// New returns a Store reading from src.
func New(src Source, opts Options) *Store {
	c := opts.Cache
	if c == nil {
		c = NewCache(DefaultCacheCapacity, DefaultIdleTimeout)
	}
	return &Store{
		src:    src,
		endian: opts.Endian,
		index:  opts.Index,
		cache:  c,
		disk:   opts.Disk,
	}
}

// Source returns the underlying source.
func (s *Store) Source() Source { return s.src }

// Cache returns the in-memory cache.
func (s *Store) Cache() *Cache { return s.cache }

// Endian returns the byte order of the base dump.
func (s *Store) Endian() types.Endian { return s.endian }

// Resolve returns the base value of path, a canonical path or a nested
// path of the form archive//member. It fails with types.ErrNotFound when
// the resource is neither a loose file nor indexed in an archive, and
// with types.ErrDepthExceeded when resolution would descend through more
// than types.MaxArchiveDepth archives.
func (s *Store) Resolve(ctx context.Context, path string) (resource.Value, error) {
	return s.resolve(ctx, path, nil)
}

// Name returns the stored name of a top-level resource read earlier.
func (s *Store) Name(canon string) (File, bool) {
	f, ok := s.names.Load(canon)
	if !ok {
		return File{}, false
	}
	return f.(File), true
}

func (s *Store) resolve(ctx context.Context, key string, chain []string) (resource.Value, error) {
	np := types.ParseNestedPath(key)
	if np.Depth() >= types.MaxArchiveDepth || len(chain) > types.MaxArchiveDepth || slices.Contains(chain, key) {
		return nil, types.NewPathError("resolve", key, types.ErrDepthExceeded, nil)
	}
	chain = append(chain[:len(chain):len(chain)], key)

	return s.cache.GetOrFetch(ctx, key, func() (resource.Value, error) {
		if parent, ok := np.Parent(); ok {
			return s.fetchMember(ctx, parent.String(), np.Leaf(), chain)
		}
		return s.fetchTop(ctx, key, chain)
	})
}

func (s *Store) fetchTop(ctx context.Context, canon string, chain []string) (resource.Value, error) {
	data, f, err := s.src.Read(canon)
	switch {
	case err == nil:
		s.names.Store(canon, f)
		v, err := s.parse(canon, f.Name, data)
		if err != nil {
			return nil, err
		}
		if a, ok := v.(*resource.Archive); ok {
			s.register(canon, a)
			if n := s.cache.EvictIdle(); n > 0 {
				logger.Debug("evicted idle entries", "count", n)
			}
		}
		return v, nil
	case !errors.Is(err, types.ErrNotFound):
		return nil, err
	}

	if e, ok := s.index.Lookup(canon); ok {
		logger.Debug("resolving through parent", "path", canon, "parent", e.Parent)
		return s.resolve(ctx, e.Key(), chain)
	}
	return nil, types.NewPathError("resolve", canon, types.ErrNotFound, nil)
}

func (s *Store) fetchMember(ctx context.Context, parent, member string, chain []string) (resource.Value, error) {
	pv, err := s.resolve(ctx, parent, chain)
	if err != nil {
		return nil, err
	}
	a, ok := pv.(*resource.Archive)
	if !ok {
		return nil, types.NewPathError("resolve", parent, types.ErrSchemaMismatch,
			fmt.Errorf("%s is not an archive", resource.KindName(pv)))
	}
	data, ok := a.MemberData(member)
	if !ok {
		return nil, types.NewPathError("resolve", parent+types.NestSeparator+member, types.ErrNotFound, nil)
	}
	return s.parse(types.Canonicalize(member, s.endian), member, data)
}

// register caches every member of an archive just opened under its
// nested path so sibling lookups skip re-extraction.
func (s *Store) register(key string, a *resource.Archive) {
	parent := types.ParseNestedPath(key)
	for _, f := range a.Files() {
		child := parent.Nest(f.Name)
		v, err := s.parse(types.Canonicalize(f.Name, s.endian), f.Name, f.Data)
		if err != nil {
			logger.Debug("member not registered", "path", child.String(), "error", err)
			continue
		}
		s.cache.Add(child.String(), v)
		if nested, ok := v.(*resource.Archive); ok && child.Depth() < types.MaxArchiveDepth-1 {
			s.register(child.String(), nested)
		}
	}
}

func (s *Store) parse(canon, name string, data []byte) (resource.Value, error) {
	if s.disk != nil {
		if doc, err := s.disk.Get(canon, data); err == nil {
			return doc, nil
		} else if !errors.Is(err, ErrCacheMiss) {
			logger.Warn("disk cache read failed", "path", canon, "error", err)
		}
	}
	v, err := resource.Parse(name, data)
	if err != nil {
		return nil, err
	}
	if doc, ok := v.(resource.Document); ok && s.disk != nil {
		if err := s.disk.Put(canon, data, doc); err != nil {
			logger.Warn("disk cache write failed", "path", canon, "error", err)
		}
	}
	return v, nil
}
