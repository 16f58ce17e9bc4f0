package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/critpath"
)

// Build validates records and constructs the dependency graph.
//
// Validation is exhaustive: every problem found in the pass is returned in a
// single *critpath.ValidationError. Cycles longer than one node are not checked
// here; see CheckAcyclic. A task depending on itself is reported as a
// self-dependency issue since it is a cycle of length one.
func Build(records []critpath.Record) (*Graph, error) {
	var issues []critpath.Issue
	report := func(kind critpath.IssueKind, id string, row int, format string, args ...any) {
		issues = append(issues, critpath.Issue{
			Kind:   kind,
			TaskID: critpath.TaskID(id),
			Row:    row,
			Detail: fmt.Sprintf(format, args...),
		})
	}

	g := &Graph{
		tasks: make([]critpath.Task, 0, len(records)),
		index: make(map[critpath.TaskID]int, len(records)),
	}

	// accepted[k] is the node index of records[k], or -1 when it was rejected
	// as unaddressable (empty or duplicate identifier).
	accepted := make([]int, len(records))
	for k, rec := range records {
		row := rowOf(rec, k)
		id := strings.TrimSpace(rec.ID)
		accepted[k] = -1

		if id == "" {
			report(critpath.IssueEmptyID, "", row, "task identifier is empty")
			continue
		}
		if first, dup := g.index[critpath.TaskID(id)]; dup {
			report(critpath.IssueDuplicateID, id, row, "duplicate identifier (first defined at row %d)", g.tasks[first].Row)
			continue
		}

		dur, err := ParseDuration(rec.Duration)
		if err != nil {
			report(critpath.IssueInvalidDuration, id, row, "%v", err)
		}

		var resources []string
		seenRes := make(map[string]bool, len(rec.Resources))
		for _, r := range rec.Resources {
			r = strings.TrimSpace(r)
			if r == "" {
				report(critpath.IssueEmptyResource, id, row, "resource name is empty")
				continue
			}
			if seenRes[r] {
				continue
			}
			seenRes[r] = true
			resources = append(resources, r)
		}

		g.index[critpath.TaskID(id)] = len(g.tasks)
		accepted[k] = len(g.tasks)
		g.tasks = append(g.tasks, critpath.Task{
			ID:        critpath.TaskID(id),
			Duration:  dur,
			Resources: resources,
			Body:      strings.TrimSpace(rec.Body),
			Command:   rec.Command,
			Row:       row,
		})
	}

	g.deps = make([][]int, len(g.tasks))
	g.dependents = make([][]int, len(g.tasks))
	for k, rec := range records {
		i := accepted[k]
		if i < 0 {
			continue
		}
		task := &g.tasks[i]
		seen := make(map[int]bool, len(rec.Dependencies))
		for _, raw := range rec.Dependencies {
			dep := strings.TrimSpace(raw)
			if dep == "" {
				continue
			}
			j, ok := g.index[critpath.TaskID(dep)]
			if !ok {
				report(critpath.IssueUnknownDependency, string(task.ID), task.Row, "depends on unknown task %q", dep)
				continue
			}
			if j == i {
				report(critpath.IssueSelfDependency, string(task.ID), task.Row, "depends on itself (cycle: %s -> %s)", dep, dep)
				continue
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			g.deps[i] = append(g.deps[i], j)
			task.Dependencies = append(task.Dependencies, critpath.TaskID(dep))
		}
	}

	if len(issues) > 0 {
		return nil, &critpath.ValidationError{Issues: issues}
	}

	for i := range g.tasks {
		for _, j := range g.deps[i] {
			g.dependents[j] = append(g.dependents[j], i)
		}
	}
	return g, nil
}

// New builds the graph and proves it acyclic.
func New(records []critpath.Record) (*Graph, error) {
	g, err := Build(records)
	if err != nil {
		return nil, err
	}
	if err := g.CheckAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// FromTasks builds a graph from already typed tasks.
func FromTasks(tasks []critpath.Task) (*Graph, error) {
	return New(Records(tasks))
}

// Records converts typed tasks back to raw records.
func Records(tasks []critpath.Task) []critpath.Record {
	records := make([]critpath.Record, len(tasks))
	for k, t := range tasks {
		deps := make([]string, len(t.Dependencies))
		for i, d := range t.Dependencies {
			deps[i] = string(d)
		}
		records[k] = critpath.Record{
			ID:           string(t.ID),
			Duration:     strconv.FormatFloat(t.Duration, 'g', -1, 64),
			Dependencies: deps,
			Resources:    append([]string(nil), t.Resources...),
			Body:         t.Body,
			Command:      t.Command,
			Row:          t.Row,
		}
	}
	return records
}

func rowOf(rec critpath.Record, k int) int {
	if rec.Row > 0 {
		return rec.Row
	}
	return k + 1
}
