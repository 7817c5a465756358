package output

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jamesainslie/modstack/pkg/modstack/unpack"
)

// reportView is the document shape shared by the json and yaml formatters.
type reportView struct {
	Files     []fileView `json:"files" yaml:"files"`
	Removed   []string   `json:"removed,omitempty" yaml:"removed,omitempty"`
	SizeTable sizeView   `json:"size_table" yaml:"size_table"`
	Meta      metaView   `json:"meta" yaml:"meta"`
}

type fileView struct {
	Path      string `json:"path" yaml:"path"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Kind      string `json:"kind" yaml:"kind"`
	Size      int64  `json:"size" yaml:"size"`
	SizeHuman string `json:"size_human" yaml:"size_human"`
	RawSize   int64  `json:"raw_size" yaml:"raw_size"`
	Providers int    `json:"providers" yaml:"providers"`
	Added     bool   `json:"added,omitempty" yaml:"added,omitempty"`
}

type sizeView struct {
	Entries int `json:"entries" yaml:"entries"`
	Updated int `json:"updated" yaml:"updated"`
	Removed int `json:"removed" yaml:"removed"`
}

type metaView struct {
	Output     string   `json:"output" yaml:"output"`
	Platform   string   `json:"platform" yaml:"platform"`
	Method     string   `json:"method" yaml:"method"`
	Mode       string   `json:"mode" yaml:"mode"`
	Layers     []string `json:"layers" yaml:"layers"`
	TotalFiles int      `json:"total_files" yaml:"total_files"`
	TotalSize  int64    `json:"total_size" yaml:"total_size"`
	Added      int      `json:"added" yaml:"added"`
	HistoryID  string   `json:"history_id,omitempty" yaml:"history_id,omitempty"`
	Duration   string   `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func newFileView(f unpack.FileResult) fileView {
	name := f.Name
	if name == f.Path {
		name = ""
	}
	return fileView{
		Path:      f.Path,
		Name:      name,
		Kind:      f.Kind,
		Size:      f.Size,
		SizeHuman: humanSize(f.Size),
		RawSize:   f.RawSize,
		Providers: f.Providers,
		Added:     f.Added,
	}
}

func newReportView(r *unpack.Report) reportView {
	files := make([]fileView, len(r.Files))
	for i, f := range r.Files {
		files[i] = newFileView(f)
	}
	return reportView{
		Files:   files,
		Removed: r.Removed,
		SizeTable: sizeView{
			Entries: r.SizeTable.Entries,
			Updated: r.SizeTable.Updated,
			Removed: r.SizeTable.Removed,
		},
		Meta: metaView{
			Output:     r.Output,
			Platform:   r.Platform,
			Method:     r.Method,
			Mode:       string(r.Mode),
			Layers:     r.Layers,
			TotalFiles: len(r.Files),
			TotalSize:  r.TotalBytes(),
			Added:      r.Added(),
			HistoryID:  r.HistoryID,
			Duration:   formatDurationString(r.Duration),
		},
	}
}

// formatDurationString formats a duration for the document formats.
func formatDurationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// JSONFormatter formats a report as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *unpack.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newReportView(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)

// JSONLFormatter writes one compact JSON object per merged file, suitable
// for streaming through jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *unpack.Report) error {
	for _, file := range r.Files {
		data, err := json.Marshal(newFileView(file))
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("jsonl", func() Formatter {
		return &JSONLFormatter{}
	})
}

var _ Formatter = (*JSONLFormatter)(nil)
