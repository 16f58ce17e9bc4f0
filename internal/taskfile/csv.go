package taskfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/critpath"
)

// Column names accepted in a CSV header, compared case-insensitively.
var columnAliases = map[string]string{
	"id":           "id",
	"task":         "id",
	"name":         "id",
	"duration":     "duration",
	"time":         "duration",
	"seconds":      "duration",
	"dependencies": "dependencies",
	"deps":         "dependencies",
	"depends_on":   "dependencies",
	"resources":    "resources",
	"resource":     "resources",
	"body":         "body",
	"kind":         "body",
	"command":      "command",
	"cmd":          "command",
}

// CSVLoader reads a header row followed by one task per row. Lines starting
// with '#' are comments.
type CSVLoader struct{}

func (CSVLoader) Format() string { return "csv" }

func (CSVLoader) Load(r io.Reader) ([]critpath.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		name, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := cols[name]; dup {
			return nil, fmt.Errorf("CSV header maps column %q twice", name)
		}
		cols[name] = i
	}
	for _, required := range []string{"id", "duration"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing the %q column", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []critpath.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, critpath.Record{
			ID:           cell(row, "id"),
			Duration:     cell(row, "duration"),
			Dependencies: SplitList(cell(row, "dependencies")),
			Resources:    SplitList(cell(row, "resources")),
			Body:         cell(row, "body"),
			Command:      cell(row, "command"),
			Row:          line,
		})
	}
	return records, nil
}
