package output

import (
	"bytes"
	"sync"
	"text/template"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/modstack/pkg/modstack/unpack"
)

// TemplateFormatter formats a report with a text/template.
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// templateData adds computed fields to the report.
type templateData struct {
	*unpack.Report
	TotalSize int64
	Added     int
}

// NewTemplateFormatter creates a formatter for the given template.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{
		templateStr: templateStr,
	}
}

// SetTemplate replaces the template.
func (f *TemplateFormatter) SetTemplate(templateStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateStr = templateStr
	f.template = nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// Usage: {{bytes .Size}}
		"bytes": func(size int64) string {
			return humanSize(size)
		},
		// Usage: {{comma .RawSize}}
		"comma": func(n int64) string {
			return humanize.Comma(n)
		},
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *unpack.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}

	return f.template.Execute(w, templateData{
		Report:    r,
		TotalSize: r.TotalBytes(),
		Added:     r.Added(),
	})
}

const defaultTemplate = `{{range .Files}}{{bytes .Size}}	{{.Path}}
{{end}}`

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter(defaultTemplate)
	})
}

var _ Formatter = (*TemplateFormatter)(nil)
