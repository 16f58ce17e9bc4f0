package taskfile

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/critpath"
)

// File is the YAML document layout.
type File struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tasks       []yamlTask `yaml:"tasks"`
}

type yamlTask struct {
	ID           string   `yaml:"id"`
	Duration     string   `yaml:"duration"`
	DependsOn    listCell `yaml:"depends_on"`
	Dependencies listCell `yaml:"dependencies"`
	Resources    listCell `yaml:"resources"`
	Body         string   `yaml:"body"`
	Command      string   `yaml:"command"`

	line int
}

// UnmarshalYAML keeps the source line of each task for error reporting.
func (t *yamlTask) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlTask
	if err := node.Decode((*plain)(t)); err != nil {
		return err
	}
	t.line = node.Line
	return nil
}

// listCell accepts either a sequence or a single delimited string.
type listCell []string

func (l *listCell) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
	case yaml.ScalarNode:
		*l = SplitList(node.Value)
	default:
		return fmt.Errorf("line %d: expected a list or a string", node.Line)
	}
	return nil
}

// YAMLLoader reads a document with a top-level tasks list.
type YAMLLoader struct{}

func (YAMLLoader) Format() string { return "yaml" }

func (YAMLLoader) Load(r io.Reader) ([]critpath.Record, error) {
	var doc File
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse task YAML: %w", err)
	}

	records := make([]critpath.Record, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		deps := append([]string(nil), t.DependsOn...)
		deps = append(deps, t.Dependencies...)
		records = append(records, critpath.Record{
			ID:           t.ID,
			Duration:     t.Duration,
			Dependencies: deps,
			Resources:    t.Resources,
			Body:         t.Body,
			Command:      t.Command,
			Row:          t.line,
		})
	}
	return records, nil
}
