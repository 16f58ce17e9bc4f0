// Package taskfile reads task specifications from disk.
//
// Loaders are registered per format and selected by file extension. Every
// loader returns raw records in source order with row numbers filled in;
// validation is left to the graph builder so that all problems are reported
// together.
package taskfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ZanzyTHEbar/critpath"
)

// Loader decodes a task specification in one format.
type Loader interface {
	Load(r io.Reader) ([]critpath.Record, error)
	Format() string // e.g. "csv", "yaml"
}

// registry holds registered loaders by format name.
var registry = make(map[string]Loader)

// extensions maps file extensions to format names.
var extensions = map[string]string{
	".csv":  "csv",
	".yaml": "yaml",
	".yml":  "yaml",
}

// Register adds a loader, replacing any previous loader for its format.
func Register(loader Loader) {
	registry[loader.Format()] = loader
}

// Lookup retrieves a loader by format name.
func Lookup(format string) (Loader, bool) {
	loader, ok := registry[strings.ToLower(format)]
	return loader, ok
}

// Formats lists the registered format names.
func Formats() []string {
	out := make([]string, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FormatOf infers the format of path from its extension. Unknown extensions
// fall back to csv, the native format.
func FormatOf(path string) string {
	if f, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return "csv"
}

func init() {
	Register(CSVLoader{})
	Register(YAMLLoader{})
}

// Load reads path with the loader matching its extension.
func Load(path string) ([]critpath.Record, error) {
	return LoadAs(path, FormatOf(path))
}

// LoadAs reads path with the loader registered for format.
func LoadAs(path, format string) ([]critpath.Record, error) {
	loader, ok := Lookup(format)
	if !ok {
		return nil, critpath.NewLoadError(path, fmt.Errorf("no loader registered for format %q", format))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, critpath.NewLoadError(path, err)
	}
	defer f.Close()

	records, err := loader.Load(f)
	if err != nil {
		return nil, critpath.NewLoadError(path, err)
	}
	return records, nil
}

// SplitList splits a list cell on ';', '|', ',' or whitespace and drops
// empty entries.
func SplitList(cell string) []string {
	return strings.FieldsFunc(cell, func(r rune) bool {
		return r == ';' || r == '|' || r == ',' || unicode.IsSpace(r)
	})
}
