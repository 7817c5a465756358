// Package layer reads and writes mod layer packages. A layer is a zip
// file or a directory holding meta.yml, a manifest, and one diff-shaped
// value per changed resource under content/ and aoc/. Options live in
// options/<name>/ with the same layout and are applied after the main
// content in the order meta.yml declares them.
package layer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/logging"
	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

var logger = logging.Get("layer")

const (
	contentDir = "content"
	aocDir     = "aoc"
	optionsDir = "options"

	// MemberDirSuffix marks the directory holding the members of an
	// archive: values for Pack/Title.pack's members are stored below
	// Pack/Title.pack.d/.
	MemberDirSuffix = ".d"
)

// Provider supplies diff-shaped values keyed by canonical or nested path.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Get returns the value stored for key, or false when the provider
	// does not touch key.
	Get(key string) (resource.Value, bool, error)
	// Manifest lists the top-level paths the provider touches.
	Manifest() *manifest.Manifest
	// StoredName returns the root-relative file name a top-level path
	// was packed under.
	StoredName(canon string) (string, bool)
}

// entryPath returns the file holding the value of a resource. parts[0]
// is the stored root-relative name; further parts are member names.
func entryPath(parts []string) string {
	top := parts[0]
	dir := contentDir
	if rest, ok := strings.CutPrefix(top, types.AocPrefix); ok {
		dir, top = aocDir, rest
	}
	joined := append([]string{top}, parts[1:]...)
	return path.Join(dir, strings.Join(joined, MemberDirSuffix+"/"))
}

// entryKey inverts entryPath for a file path below a layer root.
func entryKey(rel string, e types.Endian) (name, key string, ok bool) {
	var prefix string
	switch {
	case strings.HasPrefix(rel, contentDir+"/"):
		rel = strings.TrimPrefix(rel, contentDir+"/")
	case strings.HasPrefix(rel, aocDir+"/"):
		rel, prefix = strings.TrimPrefix(rel, aocDir+"/"), types.AocPrefix
	default:
		return "", "", false
	}
	parts := strings.Split(rel, MemberDirSuffix+"/")
	name = prefix + parts[0]
	parts[0] = types.Canonicalize(name, e)
	return name, strings.Join(parts, types.NestSeparator), true
}

// fileSet is the content of one layer root: the package root or an
// option directory.
type fileSet struct {
	name     string
	fsys     fs.FS
	root     string
	files    map[string]string
	names    map[string]string
	manifest *manifest.Manifest
}

func loadFileSet(name string, fsys fs.FS, root string, e types.Endian) (*fileSet, error) {
	s := &fileSet{
		name:  name,
		fsys:  fsys,
		root:  root,
		files: make(map[string]string),
		names: make(map[string]string),
	}
	for _, dir := range []string{contentDir, aocDir} {
		base := path.Join(root, dir)
		err := fs.WalkDir(fsys, base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel := p
			if root != "." {
				rel = strings.TrimPrefix(p, root+"/")
			}
			stored, key, ok := entryKey(rel, e)
			if !ok {
				return nil
			}
			if types.ParseNestedPath(key).Depth() >= types.MaxArchiveDepth {
				return types.NewPathError("open layer", key, types.ErrDepthExceeded, nil)
			}
			s.files[key] = p
			if !strings.Contains(key, types.NestSeparator) {
				s.names[key] = stored
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("listing %s: %w", base, err)
		}
	}

	data, err := fs.ReadFile(fsys, path.Join(root, manifest.LayerFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.manifest = manifest.New(keysOf(s.names)...)
	case err != nil:
		return nil, fmt.Errorf("reading %s manifest: %w", name, err)
	default:
		if s.manifest, err = manifest.Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return s, nil
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (s *fileSet) Name() string { return s.name }

func (s *fileSet) Manifest() *manifest.Manifest { return s.manifest }

func (s *fileSet) StoredName(canon string) (string, bool) {
	n, ok := s.names[canon]
	return n, ok
}

func (s *fileSet) Get(key string) (resource.Value, bool, error) {
	p, ok := s.files[key]
	if !ok {
		return nil, false, nil
	}
	data, err := fs.ReadFile(s.fsys, p)
	if err != nil {
		return nil, false, types.NewPathError("read layer", key, types.ErrIO, err)
	}
	raw, err := codec.DecompressZstd(data)
	if err != nil {
		return nil, false, types.NewPathError("read layer", key, types.ErrParse, err)
	}
	v, err := resource.UnmarshalValue(raw)
	if err != nil {
		return nil, false, types.NewPathError("read layer", key, types.ErrParse, err)
	}
	return v, true, nil
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Index is the layer's position in load order.
	Index int
	// Endian is the deployment platform.
	Endian types.Endian
	// Options names the enabled options.
	Options []string
}

// Layer is one opened mod package. It is read-only and lives for one
// run.
type Layer struct {
	Index int
	Path  string
	Meta  Meta

	main    *fileSet
	options []*fileSet
	closer  io.Closer
}

// Open opens the layer package at path, a zip file or a directory.
func Open(pkg string, opts OpenOptions) (*Layer, error) {
	info, err := os.Stat(pkg)
	if err != nil {
		return nil, fmt.Errorf("opening layer: %w", err)
	}

	var (
		fsys   fs.FS
		closer io.Closer
	)
	if info.IsDir() {
		fsys = os.DirFS(pkg)
	} else {
		zr, err := zip.OpenReader(pkg)
		if err != nil {
			return nil, fmt.Errorf("opening layer %s: %w", pkg, err)
		}
		fsys, closer = zr, zr
	}

	l, err := open(fsys, pkg, opts)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	l.closer = closer
	return l, nil
}

func open(fsys fs.FS, pkg string, opts OpenOptions) (*Layer, error) {
	data, err := fs.ReadFile(fsys, MetaFile)
	if err != nil {
		return nil, fmt.Errorf("layer %s: reading %s: %w", pkg, MetaFile, err)
	}
	meta, err := ParseMeta(data)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", pkg, err)
	}
	if meta.Name == "" {
		meta.Name = strings.TrimSuffix(filepath.Base(pkg), filepath.Ext(pkg))
	}
	if err := meta.CheckAPI(); err != nil {
		return nil, err
	}
	if err := meta.CheckPlatform(opts.Endian); err != nil {
		return nil, err
	}
	if err := meta.CheckOptions(opts.Options); err != nil {
		return nil, err
	}

	main, err := loadFileSet(meta.Name, fsys, ".", opts.Endian)
	if err != nil {
		return nil, err
	}
	l := &Layer{Index: opts.Index, Path: pkg, Meta: meta, main: main}

	for _, g := range meta.Groups {
		for _, o := range g.Options {
			if !slices.Contains(opts.Options, o) {
				continue
			}
			set, err := loadFileSet(meta.Name+"/"+o, fsys, path.Join(optionsDir, o), opts.Endian)
			if err != nil {
				return nil, err
			}
			l.options = append(l.options, set)
		}
	}
	logger.Debug("opened layer", "name", meta.Name, "index", opts.Index,
		"files", main.manifest.Len(), "options", len(l.options))
	return l, nil
}

// Name returns the layer's display name.
func (l *Layer) Name() string { return l.Meta.Name }

// Manifest lists the paths of the main content.
func (l *Layer) Manifest() *manifest.Manifest { return l.main.manifest }

// Providers returns the main content followed by the enabled options in
// declaration order.
func (l *Layer) Providers() []Provider {
	out := []Provider{l.main}
	for _, o := range l.options {
		out = append(out, o)
	}
	return out
}

// Union lists every path the main content or an enabled option touches.
func (l *Layer) Union() *manifest.Manifest {
	ms := []*manifest.Manifest{l.main.manifest}
	for _, o := range l.options {
		ms = append(ms, o.manifest)
	}
	return manifest.Union(ms...)
}

// StoredName returns the file name a path was packed under, preferring
// the last enabled option that provides it.
func (l *Layer) StoredName(canon string) (string, bool) {
	for _, o := range slices.Backward(l.options) {
		if n, ok := o.StoredName(canon); ok {
			return n, true
		}
	}
	return l.main.StoredName(canon)
}

// Close releases the package file.
func (l *Layer) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
