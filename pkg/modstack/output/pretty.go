package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/modstack/pkg/modstack/unpack"
)

// PrettyFormatter renders a styled report for terminals.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *unpack.Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) formatHeader(r *unpack.Report) string {
	field := func(label, value string) string {
		return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
	}

	lines := []string{
		field("Output:", r.Output),
		strings.Join([]string{
			field("Platform:", r.Platform),
			field("Mode:", string(r.Mode)),
			field("Deploy:", r.Method),
		}, "  "),
	}
	if len(r.Layers) == 0 {
		lines = append(lines, MutedStyle.Render("no layers, base game only"))
	} else {
		lines = append(lines, field("Layers:", strings.Join(r.Layers, " > ")))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *unpack.Report) string {
	if len(r.Files) == 0 && len(r.Removed) == 0 {
		return MutedStyle.Render("  Nothing to merge") + "\n"
	}

	sizes := make([]string, len(r.Files))
	width := 8
	for i, file := range r.Files {
		sizes[i] = humanSize(file.Size)
		width = max(width, len(sizes[i]))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %s  %s\n",
		TableHeaderStyle.Render(padLeft("SIZE", width)),
		TableHeaderStyle.Render(padRight("KIND", 6)),
		TableHeaderStyle.Render("PATH"))

	for i, file := range r.Files {
		path := PathStyle.Render(file.Path)
		if file.Added {
			path = AddedStyle.Render("+ " + file.Path)
		}
		fmt.Fprintf(&sb, "  %s  %s  %s\n",
			SizeStyle.Render(padLeft(sizes[i], width)),
			MutedStyle.Render(padRight(file.Kind, 6)),
			path)
	}
	for _, p := range r.Removed {
		fmt.Fprintf(&sb, "  %s  %s  %s\n",
			MutedStyle.Render(padLeft("-", width)),
			MutedStyle.Render(padRight("", 6)),
			RemovedStyle.Render("- "+p))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *unpack.Report) string {
	parts := []string{
		LabelStyle.Render("Files:") + " " + ValueStyle.Render(fmt.Sprintf("%d", len(r.Files))),
		LabelStyle.Render("Total:") + " " + SizeStyle.Render(humanSize(r.TotalBytes())),
	}
	if n := r.Added(); n > 0 {
		parts = append(parts, AddedStyle.Render(fmt.Sprintf("%d added", n)))
	}
	if n := len(r.Removed); n > 0 {
		parts = append(parts, RemovedStyle.Render(fmt.Sprintf("%d removed", n)))
	}
	parts = append(parts, LabelStyle.Render("Size table:")+" "+ValueStyle.Render(
		fmt.Sprintf("%d entries, %d updated", r.SizeTable.Entries, r.SizeTable.Updated)))
	if r.Duration > 0 {
		parts = append(parts, MutedStyle.Render("in "+formatDuration(r.Duration)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(parts, "  "),
		MutedStyle.Render("Use -o plain for unformatted output"))
	return FooterBox.Render(content)
}

// padLeft pads s with spaces on the left to width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
