// Package graph turns task records into a validated dependency graph.
//
// Nodes keep the order in which records were supplied ("file order"). Every
// traversal in this package and its consumers iterates in that order, or in
// declared dependency order, so results are deterministic for a given input.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/critpath"
)

// Graph is an immutable dependency graph. Edges run dependency -> dependent.
//
// It is safe for concurrent read access.
type Graph struct {
	tasks []critpath.Task
	index map[critpath.TaskID]int

	deps       [][]int // by node index, in declared order
	dependents [][]int // by node index, ascending node index
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.tasks) }

// Task returns the task at node index i.
func (g *Graph) Task(i int) critpath.Task { return g.tasks[i] }

// Tasks returns the tasks in file order.
func (g *Graph) Tasks() []critpath.Task {
	out := make([]critpath.Task, len(g.tasks))
	copy(out, g.tasks)
	return out
}

// Index returns the node index of id.
func (g *Graph) Index(id critpath.TaskID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Lookup returns the task named id.
func (g *Graph) Lookup(id critpath.TaskID) (critpath.Task, bool) {
	i, ok := g.index[id]
	if !ok {
		return critpath.Task{}, false
	}
	return g.tasks[i], true
}

// Dependencies returns the node indices node i depends on, in declared order.
func (g *Graph) Dependencies(i int) []int { return g.deps[i] }

// Dependents returns the node indices that depend on node i.
func (g *Graph) Dependents(i int) []int { return g.dependents[i] }

// Roots returns the nodes without dependencies, in file order.
func (g *Graph) Roots() []int {
	var out []int
	for i := range g.tasks {
		if len(g.deps[i]) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// Sinks returns the nodes no other node depends on, in file order.
func (g *Graph) Sinks() []int {
	var out []int
	for i := range g.tasks {
		if len(g.dependents[i]) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// Fingerprint is a stable digest of the graph content in file order.
// Identical inputs always produce identical fingerprints.
func (g *Graph) Fingerprint() string {
	h := sha256.New()
	for _, t := range g.tasks {
		h.Write([]byte(t.ID))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatFloat(t.Duration, 'g', -1, 64)))
		h.Write([]byte{0})
		for _, d := range t.Dependencies {
			h.Write([]byte(d))
			h.Write([]byte{1})
		}
		h.Write([]byte{0})
		h.Write([]byte(strings.Join(t.Resources, "\x01")))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
