package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// PendingFile is the pending-change log in the output directory.
const PendingFile = "pending.yml"

// Pending lists the canonical paths changed or deleted since the last
// deployment. A pending apply merges only these.
type Pending struct {
	Files  []string `yaml:"files"`
	Delete []string `yaml:"delete"`
}

// LoadPending reads the log from output directory dir. A missing log is
// empty.
func LoadPending(dir string) (*Pending, error) {
	data, err := os.ReadFile(filepath.Join(dir, PendingFile))
	if errors.Is(err, os.ErrNotExist) {
		return &Pending{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pending log: %w", err)
	}
	p := &Pending{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decoding pending log: %w", err)
	}
	return p, nil
}

// Save writes the log into output directory dir.
func (p *Pending) Save(dir string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding pending log: %w", err)
	}
	return writeAtomic(filepath.Join(dir, PendingFile), data)
}

// Change records changed paths. A changed path is no longer pending
// deletion.
func (p *Pending) Change(paths ...string) {
	p.Files = addSorted(p.Files, paths)
	p.Delete = removeSorted(p.Delete, paths)
}

// Remove records deleted paths. A deleted path is no longer pending
// change.
func (p *Pending) Remove(paths ...string) {
	p.Delete = addSorted(p.Delete, paths)
	p.Files = removeSorted(p.Files, paths)
}

// Empty reports whether nothing is pending.
func (p *Pending) Empty() bool { return len(p.Files) == 0 && len(p.Delete) == 0 }

// ClearPending removes the log from dir.
func ClearPending(dir string) error {
	err := os.Remove(filepath.Join(dir, PendingFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pending log: %w", err)
	}
	return nil
}

func addSorted(set, paths []string) []string {
	set = append(set, paths...)
	slices.Sort(set)
	return slices.Compact(set)
}

func removeSorted(set, paths []string) []string {
	return slices.DeleteFunc(set, func(s string) bool { return slices.Contains(paths, s) })
}
