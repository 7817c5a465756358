package output

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/jamesainslie/modstack/pkg/modstack/unpack"
)

// CSVFormatter writes RFC 4180 comma-separated values.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *unpack.Report) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"path", "name", "kind", "size", "raw_size", "providers", "added"}); err != nil {
		return err
	}
	for _, file := range r.Files {
		row := []string{
			file.Path,
			file.Name,
			file.Kind,
			strconv.FormatInt(file.Size, 10),
			strconv.FormatInt(file.RawSize, 10),
			strconv.Itoa(file.Providers),
			strconv.FormatBool(file.Added),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

var _ Formatter = (*CSVFormatter)(nil)
