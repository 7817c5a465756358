package unpack

import (
	"time"

	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
)

// Mode names the kind of run.
type Mode string

const (
	// ModeFull merges every path any layer touches.
	ModeFull Mode = "full"
	// ModePending merges only the paths in the output's pending log.
	ModePending Mode = "pending"
)

// FileResult is one resource written by a run.
type FileResult struct {
	// Path is the canonical path.
	Path string `json:"path" yaml:"path"`
	// Name is the root-relative name the file was written under.
	Name string `json:"name" yaml:"name"`
	// Kind is the merged value's variant or document magic.
	Kind string `json:"kind" yaml:"kind"`
	// Size is the number of bytes written.
	Size int64 `json:"size" yaml:"size"`
	// RawSize is the uncompressed size recorded in the size table.
	RawSize int64 `json:"raw_size" yaml:"raw_size"`
	// Providers counts the layer values folded in.
	Providers int `json:"providers" yaml:"providers"`
	// Added is set for resources the base game lacks.
	Added bool `json:"added,omitempty" yaml:"added,omitempty"`
}

// SizeTableStats summarizes size-table reconciliation.
type SizeTableStats struct {
	Entries int `json:"entries" yaml:"entries"`
	Updated int `json:"updated" yaml:"updated"`
	Removed int `json:"removed" yaml:"removed"`
}

// Report describes a finished run.
type Report struct {
	Output    string         `json:"output" yaml:"output"`
	Platform  string         `json:"platform" yaml:"platform"`
	Method    string         `json:"method" yaml:"method"`
	Mode      Mode           `json:"mode" yaml:"mode"`
	Layers    []string       `json:"layers" yaml:"layers"`
	Files     []FileResult   `json:"files" yaml:"files"`
	Removed   []string       `json:"removed,omitempty" yaml:"removed,omitempty"`
	SizeTable SizeTableStats `json:"size_table" yaml:"size_table"`
	HistoryID string         `json:"history_id,omitempty" yaml:"history_id,omitempty"`
	Duration  time.Duration  `json:"duration" yaml:"duration"`
}

// TotalBytes sums the bytes written.
func (r *Report) TotalBytes() int64 {
	var n int64
	for _, f := range r.Files {
		n += f.Size
	}
	return n
}

// Added counts resources the base game lacks.
func (r *Report) Added() int {
	var n int
	for _, f := range r.Files {
		if f.Added {
			n++
		}
	}
	return n
}

func (r *Report) historyRun(sizeTable []byte) manifest.Run {
	op := manifest.OpApply
	if r.Mode == ModePending {
		op = manifest.OpApplyPending
	}
	files := make([]manifest.FileRecord, len(r.Files))
	for i, f := range r.Files {
		files[i] = manifest.FileRecord{Path: f.Path, Size: f.Size}
	}
	return manifest.Run{
		Operation: op,
		Output:    r.Output,
		Layers:    r.Layers,
		Files:     files,
		Removed:   r.Removed,
		SizeTable: sizeTable,
	}
}
