package output

import (
	"bytes"

	"github.com/jamesainslie/modstack/pkg/modstack/unpack"
)

// PathsFormatter writes the root-relative name of every written file, one
// per line, for piping into other tools.
type PathsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *unpack.Report) error {
	for _, file := range r.Files {
		w.WriteString(file.Name)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("paths", func() Formatter {
		return &PathsFormatter{}
	})
}

var _ Formatter = (*PathsFormatter)(nil)

// NullFormatter writes names separated by NUL bytes, for xargs -0.
type NullFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *NullFormatter) Format(w *bytes.Buffer, r *unpack.Report) error {
	for _, file := range r.Files {
		w.WriteString(file.Name)
		w.WriteByte(0)
	}
	return nil
}

func init() {
	Register("null", func() Formatter {
		return &NullFormatter{}
	})
}

var _ Formatter = (*NullFormatter)(nil)
