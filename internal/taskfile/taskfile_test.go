package taskfile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/critpath"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestCSVLoader_Load(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []critpath.Record
		wantErr string
	}{
		{
			"basic",
			"id,duration,dependencies\nA,4,\nB,3,A\nC,5,A\n",
			[]critpath.Record{
				{ID: "A", Duration: "4", Row: 2},
				{ID: "B", Duration: "3", Dependencies: []string{"A"}, Row: 3},
				{ID: "C", Duration: "5", Dependencies: []string{"A"}, Row: 4},
			},
			"",
		},
		{
			"aliases and extra columns",
			"Task, Time, Deps, Notes, Resource\nx, 1.5, , hello, disk\ny, 2*3, x;z , , disk|net\nz,0,,,\n",
			[]critpath.Record{
				{ID: "x", Duration: "1.5", Resources: []string{"disk"}, Row: 2},
				{ID: "y", Duration: "2*3", Dependencies: []string{"x", "z"}, Resources: []string{"disk", "net"}, Row: 3},
				{ID: "z", Duration: "0", Row: 4},
			},
			"",
		},
		{
			"quoted comma list and comments",
			"# build graph\nname,seconds,depends_on,cmd\nd,2,\"a, b\",\"echo hi, there\"\n",
			[]critpath.Record{
				{ID: "d", Duration: "2", Dependencies: []string{"a", "b"}, Command: "echo hi, there", Row: 3},
			},
			"",
		},
		{
			"short row",
			"id,duration,dependencies\nsolo,1\n",
			[]critpath.Record{{ID: "solo", Duration: "1", Row: 2}},
			"",
		},
		{"empty file", "", nil, ""},
		{"missing duration column", "id,deps\na,\n", nil, `missing the "duration" column`},
		{"duplicate mapped column", "id,name,duration\na,b,1\n", nil, "twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CSVLoader{}.Load(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			for i := range got {
				if len(got[i].Dependencies) == 0 {
					got[i].Dependencies = nil
				}
				if len(got[i].Resources) == 0 {
					got[i].Resources = nil
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Load() =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}

func TestYAMLLoader_Load(t *testing.T) {
	input := `
name: build
tasks:
  - id: fetch
    duration: 4
    resources: [net]
  - id: compile
    duration: "2*30"
    depends_on: [fetch]
    body: exec
    command: make
  - id: test
    duration: 1.5
    dependencies: "compile; fetch"
`
	got, err := YAMLLoader{}.Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	want := []critpath.Record{
		{ID: "fetch", Duration: "4", Dependencies: []string{}, Resources: []string{"net"}, Row: 4},
		{ID: "compile", Duration: "2*30", Dependencies: []string{"fetch"}, Body: "exec", Command: "make", Row: 7},
		{ID: "test", Duration: "1.5", Dependencies: []string{"compile", "fetch"}, Row: 12},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Duration != w.Duration || g.Body != w.Body || g.Command != w.Command || g.Row != w.Row {
			t.Errorf("record %d = %+v, want %+v", i, g, w)
		}
		if len(g.Dependencies) != len(w.Dependencies) || (len(w.Dependencies) > 0 && !reflect.DeepEqual(g.Dependencies, w.Dependencies)) {
			t.Errorf("record %d deps = %v, want %v", i, g.Dependencies, w.Dependencies)
		}
		if len(g.Resources) != len(w.Resources) || (len(w.Resources) > 0 && !reflect.DeepEqual(g.Resources, w.Resources)) {
			t.Errorf("record %d resources = %v, want %v", i, g.Resources, w.Resources)
		}
	}
}

func TestYAMLLoader_Malformed(t *testing.T) {
	_, err := YAMLLoader{}.Load(strings.NewReader("tasks:\n  - id: a\n    depends_on: {x: 1}\n"))
	if err == nil {
		t.Fatal("expected an error for a mapping in depends_on")
	}
}

func TestLoad_ByExtension(t *testing.T) {
	csvPath := writeFile(t, "tasks.csv", "id,duration\na,1\n")
	ymlPath := writeFile(t, "tasks.yml", "tasks:\n  - id: a\n    duration: 1\n")
	for _, path := range []string{csvPath, ymlPath} {
		records, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", filepath.Base(path), err)
		}
		if len(records) != 1 || records[0].ID != "a" {
			t.Errorf("Load(%s) = %+v", filepath.Base(path), records)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	if critpath.CodeOf(err) != critpath.ErrCodeLoad {
		t.Errorf("missing file: code = %q, err = %v", critpath.CodeOf(err), err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file should wrap os.ErrNotExist: %v", err)
	}

	path := writeFile(t, "tasks.txt", "id,duration\na,1\n")
	if _, err := LoadAs(path, "toml"); critpath.CodeOf(err) != critpath.ErrCodeLoad {
		t.Errorf("unknown format: got %v", err)
	}
	if records, err := Load(path); err != nil || len(records) != 1 {
		t.Errorf("unknown extension should fall back to csv: %v %v", records, err)
	}
}

func TestFormats(t *testing.T) {
	if got := Formats(); !reflect.DeepEqual(got, []string{"csv", "yaml"}) {
		t.Errorf("Formats() = %v", got)
	}
	if FormatOf("x.YAML") != "yaml" || FormatOf("x.csv") != "csv" {
		t.Error("FormatOf did not match extensions case-insensitively")
	}
}

func TestSplitList(t *testing.T) {
	tests := map[string][]string{
		"":            {},
		"a":           {"a"},
		"a;b":         {"a", "b"},
		" a | b , c ": {"a", "b", "c"},
		"a b\tc":      {"a", "b", "c"},
		";;":          {},
	}
	for in, want := range tests {
		got := SplitList(in)
		if len(got) == 0 && len(want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("SplitList(%q) = %v, want %v", in, got, want)
		}
	}
}
