// Package manifest records which resources a mod layer or a deployment
// provides, the changes pending since the last deployment, and the
// history of apply runs.
package manifest

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

const (
	// LayerFile is the manifest stored at the root of a layer package
	// and of each option.
	LayerFile = "manifest.yml"
	// DeployFile is the manifest of the last deployment, stored in the
	// output directory.
	DeployFile = "deploy.yml"
)

// Manifest is two disjoint sorted sets of canonical paths: base-game
// content and DLC content. A Manifest is not modified once built.
type Manifest struct {
	Content []string `yaml:"content"`
	Aoc     []string `yaml:"aoc"`
	// Names maps a canonical path to the root-relative name it is stored
	// under, for paths where the two differ.
	Names map[string]string `yaml:"names,omitempty"`
}

// New builds a manifest from canonical paths, splitting DLC paths from
// content paths. Duplicates are dropped.
func New(paths ...string) *Manifest {
	m := &Manifest{}
	for _, p := range paths {
		if types.IsAoc(p) {
			m.Aoc = append(m.Aoc, p)
		} else {
			m.Content = append(m.Content, p)
		}
	}
	m.normalize()
	return m
}

func (m *Manifest) normalize() {
	slices.Sort(m.Content)
	m.Content = slices.Compact(m.Content)
	slices.Sort(m.Aoc)
	m.Aoc = slices.Compact(m.Aoc)
}

// Contains reports whether p is listed.
func (m *Manifest) Contains(p string) bool {
	set := m.Content
	if types.IsAoc(p) {
		set = m.Aoc
	}
	_, ok := slices.BinarySearch(set, p)
	return ok
}

// Name returns the stored name of canonical path p.
func (m *Manifest) Name(p string) string {
	if n, ok := m.Names[p]; ok {
		return n
	}
	return p
}

// WithNames returns a copy of m recording stored names. Entries equal to
// their canonical path are dropped.
func (m *Manifest) WithNames(names map[string]string) *Manifest {
	out := &Manifest{Content: m.Content, Aoc: m.Aoc}
	for canon, name := range names {
		if canon == name {
			continue
		}
		if out.Names == nil {
			out.Names = make(map[string]string)
		}
		out.Names[canon] = name
	}
	return out
}

// Len returns the number of listed paths.
func (m *Manifest) Len() int { return len(m.Content) + len(m.Aoc) }

// All yields content paths, then DLC paths, each in sorted order.
func (m *Manifest) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, set := range [][]string{m.Content, m.Aoc} {
			for _, p := range set {
				if !yield(p) {
					return
				}
			}
		}
	}
}

// Paths returns every listed path.
func (m *Manifest) Paths() []string {
	return slices.Collect(m.All())
}

// Union lists every path in any of ms. The first manifest to name a
// path wins.
func Union(ms ...*Manifest) *Manifest {
	out := &Manifest{}
	for _, m := range ms {
		if m == nil {
			continue
		}
		out.Content = append(out.Content, m.Content...)
		out.Aoc = append(out.Aoc, m.Aoc...)
		for canon, name := range m.Names {
			if _, ok := out.Names[canon]; ok {
				continue
			}
			if out.Names == nil {
				out.Names = make(map[string]string)
			}
			out.Names[canon] = name
		}
	}
	out.normalize()
	return out
}

// Difference returns the paths of m that other does not list.
func (m *Manifest) Difference(other *Manifest) []string {
	var out []string
	for p := range m.All() {
		if other == nil || !other.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// Parse decodes a YAML manifest.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	for _, p := range m.Aoc {
		if !types.IsAoc(p) {
			return nil, fmt.Errorf("decoding manifest: aoc entry %q lacks %s prefix", p, types.AocPrefix)
		}
	}
	m.normalize()
	return m, nil
}

// Marshal encodes m as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// Load reads a manifest file. A missing file yields an empty manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data)
}

// Save writes m to path atomically.
func (m *Manifest) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return writeAtomic(path, data)
}

// writeAtomic writes data to a temp file next to path and renames it.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
