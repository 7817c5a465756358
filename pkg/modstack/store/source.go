package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// File locates one top-level resource in a Source.
type File struct {
	// Canon is the canonical path.
	Canon string `json:"canon"`
	// Name is the root-relative name as stored, compression marker
	// included. DLC names carry types.AocPrefix.
	Name string `json:"name"`
}

// Source provides the raw bytes of the unmodified base game.
type Source interface {
	// Read returns the bytes stored for canonical path canon. It fails
	// with types.ErrNotFound when the source has no such file.
	Read(canon string) ([]byte, File, error)
	// Files lists every file the source holds, sorted by canonical path.
	Files() ([]File, error)
}

type fileIndex struct {
	byCanon map[string]File
	read    map[string]func() ([]byte, error)
}

func (ix *fileIndex) add(f File, read func() ([]byte, error)) {
	ix.byCanon[f.Canon] = f
	ix.read[f.Canon] = read
}

func (ix *fileIndex) sorted() []File {
	out := make([]File, 0, len(ix.byCanon))
	for _, f := range ix.byCanon {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b File) int { return strings.Compare(a.Canon, b.Canon) })
	return out
}

func (ix *fileIndex) open(canon string) ([]byte, File, error) {
	read, ok := ix.read[canon]
	if !ok {
		return nil, File{}, types.NewPathError("read", canon, types.ErrNotFound, nil)
	}
	data, err := read()
	if err != nil {
		return nil, File{}, types.NewPathError("read", canon, types.ErrIO, err)
	}
	return data, ix.byCanon[canon], nil
}

// DirSource reads a dumped game from loose directories. A file present in
// Update shadows the same file in Content; DLC files from Aoc live under
// types.AocPrefix. Any root may be empty.
type DirSource struct {
	Content string
	Update  string
	Aoc     string
	Endian  types.Endian

	once sync.Once
	ix   *fileIndex
	err  error
}

// NewDirSource returns a DirSource over the given platform roots.
func NewDirSource(content, update, aoc string, e types.Endian) *DirSource {
	return &DirSource{Content: content, Update: update, Aoc: aoc, Endian: e}
}

func (s *DirSource) load() (*fileIndex, error) {
	s.once.Do(func() {
		ix := &fileIndex{byCanon: map[string]File{}, read: map[string]func() ([]byte, error){}}
		// Lowest priority first so later roots overwrite.
		roots := []struct{ dir, prefix string }{
			{s.Aoc, types.AocPrefix},
			{s.Content, ""},
			{s.Update, ""},
		}
		for _, r := range roots {
			if r.dir == "" {
				continue
			}
			if err := walkFiles(r.dir, func(abs, rel string) {
				name := r.prefix + rel
				ix.add(File{Canon: types.Canonicalize(name, s.Endian), Name: name}, readFileFunc(abs))
			}); err != nil {
				s.err = fmt.Errorf("indexing %s: %w", r.dir, err)
				return
			}
		}
		logger.Debug("indexed dump", "files", len(ix.byCanon))
		s.ix = ix
	})
	return s.ix, s.err
}

// Read implements Source.
func (s *DirSource) Read(canon string) ([]byte, File, error) {
	ix, err := s.load()
	if err != nil {
		return nil, File{}, types.NewPathError("read", canon, types.ErrIO, err)
	}
	return ix.open(canon)
}

// Files implements Source.
func (s *DirSource) Files() ([]File, error) {
	ix, err := s.load()
	if err != nil {
		return nil, err
	}
	return ix.sorted(), nil
}

// walkFiles calls fn with the absolute and slash-separated relative path
// of every regular file below root. fn is never called concurrently.
func walkFiles(root string, fn func(abs, rel string)) error {
	conf := fastwalk.Config{Follow: false}
	var mu sync.Mutex
	return fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		mu.Lock()
		fn(p, filepath.ToSlash(rel))
		mu.Unlock()
		return nil
	})
}

// ZipSource reads a dumped game packed into a single zip file. Entry
// names keep their platform roots, which are stripped the same way as
// loose paths.
type ZipSource struct {
	zr *zip.ReadCloser
	ix *fileIndex
}

// OpenZipSource opens a packed dump at path.
func OpenZipSource(path string, e types.Endian) (*ZipSource, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening packed dump: %w", err)
	}
	ix := &fileIndex{byCanon: map[string]File{}, read: map[string]func() ([]byte, error){}}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := types.RootRelative(zf.Name, e)
		ix.add(File{Canon: types.Canonicalize(name, e), Name: name}, readZipFunc(zf))
	}
	return &ZipSource{zr: zr, ix: ix}, nil
}

// Read implements Source.
func (s *ZipSource) Read(canon string) ([]byte, File, error) { return s.ix.open(canon) }

// Files implements Source.
func (s *ZipSource) Files() ([]File, error) { return s.ix.sorted(), nil }

// Close releases the underlying zip file.
func (s *ZipSource) Close() error { return s.zr.Close() }

// OverlaySource stacks sources. Earlier sources shadow later ones.
type OverlaySource []Source

// Read implements Source.
func (o OverlaySource) Read(canon string) ([]byte, File, error) {
	for _, src := range o {
		data, f, err := src.Read(canon)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		return data, f, err
	}
	return nil, File{}, types.NewPathError("read", canon, types.ErrNotFound, nil)
}

// Files implements Source.
func (o OverlaySource) Files() ([]File, error) {
	ix := &fileIndex{byCanon: map[string]File{}, read: map[string]func() ([]byte, error){}}
	for _, src := range slices.Backward(o) {
		files, err := src.Files()
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			ix.byCanon[f.Canon] = f
		}
	}
	return ix.sorted(), nil
}

// ReadAll reads every file of src, in canonical order, stopping at the
// first error or when ctx is done.
func ReadAll(ctx context.Context, src Source, fn func(File, []byte) error) error {
	files, err := src.Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, _, err := src.Read(f.Canon)
		if err != nil {
			return err
		}
		if err := fn(f, data); err != nil {
			return err
		}
	}
	return nil
}

func readFileFunc(abs string) func() ([]byte, error) {
	return func() ([]byte, error) { return os.ReadFile(abs) }
}

func readZipFunc(zf *zip.File) func() ([]byte, error) {
	return func() ([]byte, error) {
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
}
