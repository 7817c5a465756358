package layer

import (
	"fmt"
	"maps"
	"os"
	"path"
	"slices"

	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// Writer builds a layer package as a zip file.
type Writer struct {
	f       *os.File
	zw      *zip.Writer
	meta    Meta
	endian  types.Endian
	paths   map[string][]string
	written map[string]bool
}

// Create starts a package at pkg. Meta.API and Meta.Platform default to
// APIVersion and e.
func Create(pkg string, meta Meta, e types.Endian) (*Writer, error) {
	if meta.API == "" {
		meta.API = APIVersion
	}
	if meta.Platform == "" {
		meta.Platform = e.String()
	}
	f, err := os.Create(pkg)
	if err != nil {
		return nil, fmt.Errorf("creating layer package: %w", err)
	}
	return &Writer{
		f:       f,
		zw:      zip.NewWriter(f),
		meta:    meta,
		endian:  e,
		paths:   map[string][]string{"": nil},
		written: make(map[string]bool),
	}, nil
}

func (w *Writer) hasOption(option string) bool {
	for _, g := range w.meta.Groups {
		if slices.Contains(g.Options, option) {
			return true
		}
	}
	return false
}

// Put stores v for the resource at parts: the stored root-relative name
// of a top-level file followed by member names when the resource lives
// in an archive. option selects an option directory; "" is the main
// content.
func (w *Writer) Put(option string, parts []string, v resource.Value) error {
	if len(parts) == 0 {
		return fmt.Errorf("empty resource path")
	}
	if option != "" && !w.hasOption(option) {
		return fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	root := ""
	if option != "" {
		root = path.Join(optionsDir, option)
	}
	name := path.Join(root, entryPath(parts))
	if w.written[name] {
		return fmt.Errorf("duplicate layer entry %s", name)
	}

	body, err := resource.MarshalValue(v)
	if err != nil {
		return types.NewPathError("pack", types.NestedPath{Parts: parts}.String(), types.ErrSchemaMismatch, err)
	}
	out, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := out.Write(codec.CompressZstd(body)); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	w.written[name] = true
	w.paths[option] = append(w.paths[option], types.Canonicalize(parts[0], w.endian))
	return nil
}

func (w *Writer) writeFile(name string, data []byte) error {
	out, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Close writes the manifests and meta.yml and finishes the package.
func (w *Writer) Close() error {
	err := w.finish()
	if cerr := w.f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing layer package: %w", cerr)
	}
	return err
}

func (w *Writer) finish() error {
	for _, g := range w.meta.Groups {
		for _, o := range g.Options {
			if _, ok := w.paths[o]; !ok {
				w.paths[o] = nil
			}
		}
	}
	for _, option := range slices.Sorted(maps.Keys(w.paths)) {
		data, err := manifest.New(w.paths[option]...).Marshal()
		if err != nil {
			return fmt.Errorf("encoding manifest: %w", err)
		}
		root := ""
		if option != "" {
			root = path.Join(optionsDir, option)
		}
		if err := w.writeFile(path.Join(root, manifest.LayerFile), data); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(w.meta)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", MetaFile, err)
	}
	if err := w.writeFile(MetaFile, data); err != nil {
		return err
	}
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("finishing layer package: %w", err)
	}
	return nil
}
