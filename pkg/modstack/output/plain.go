package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jamesainslie/modstack/pkg/modstack/unpack"
)

// PlainFormatter writes an aligned table without colors, for scripting.
// Removed orphans are listed after the merged files with a "-" size.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *unpack.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := fmt.Fprintln(tw, "SIZE\tKIND\tLAYERS\tPATH"); err != nil {
		return err
	}
	for _, file := range r.Files {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			humanSize(file.Size), file.Kind, file.Providers, file.Path); err != nil {
			return err
		}
	}
	for _, p := range r.Removed {
		if _, err := fmt.Fprintf(tw, "-\tremoved\t0\t%s\n", p); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
