package graph

import "github.com/ZanzyTHEbar/critpath"

const (
	unvisited = iota
	inProgress
	finished
)

// CheckAcyclic proves the graph has no directed cycle or returns a
// *critpath.CycleError naming one.
//
// The search is a depth-first traversal from every node in file order,
// following dependencies in declared order, so the reported cycle is stable
// for a given input. Runs in O(V+E).
func (g *Graph) CheckAcyclic() error {
	state := make([]int, len(g.tasks))
	var stack []int

	var visit func(u int) []int
	visit = func(u int) []int {
		state[u] = inProgress
		stack = append(stack, u)
		for _, v := range g.deps[u] {
			switch state[v] {
			case unvisited:
				if cycle := visit(v); cycle != nil {
					return cycle
				}
			case inProgress:
				// Back edge: the stack from v to u inclusive is the cycle.
				for k := len(stack) - 1; k >= 0; k-- {
					if stack[k] == v {
						return append([]int(nil), stack[k:]...)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[u] = finished
		return nil
	}

	for i := range g.tasks {
		if state[i] != unvisited {
			continue
		}
		if cycle := visit(i); cycle != nil {
			members := make([]critpath.TaskID, len(cycle))
			for k, idx := range cycle {
				members[k] = g.tasks[idx].ID
			}
			return &critpath.CycleError{Members: members}
		}
	}
	return nil
}
