package executor

import (
	"sync"
	"time"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/graph"
)

// runState is the mutable bookkeeping of one run. Every field is guarded by
// mu, so sibling completions cannot double-trigger or drop a readiness
// transition.
type runState struct {
	mu sync.Mutex

	g       *graph.Graph
	status  []critpath.TaskStatus
	pending []int // outstanding dependencies per node
	results []critpath.TaskResult
}

func newRunState(g *graph.Graph) *runState {
	n := g.Len()
	st := &runState{
		g:       g,
		status:  make([]critpath.TaskStatus, n),
		pending: make([]int, n),
		results: make([]critpath.TaskResult, n),
	}
	for i := 0; i < n; i++ {
		st.status[i] = critpath.TaskStatusPending
		st.pending[i] = len(g.Dependencies(i))
		st.results[i] = critpath.TaskResult{ID: g.Task(i).ID, Status: critpath.TaskStatusPending}
	}
	return st
}

// roots marks every node without dependencies ready and returns them in file order.
func (st *runState) roots() []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	var ready []int
	for i, p := range st.pending {
		if p == 0 && st.status[i] == critpath.TaskStatusPending {
			st.status[i] = critpath.TaskStatusReady
			ready = append(ready, i)
		}
	}
	return ready
}

// start moves a ready node to running. It returns false when the node is no
// longer dispatchable, e.g. because it was skipped meanwhile.
func (st *runState) start(i int, at time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.status[i] != critpath.TaskStatusReady {
		return false
	}
	st.status[i] = critpath.TaskStatusRunning
	st.results[i].Status = critpath.TaskStatusRunning
	st.results[i].Start = at
	return true
}

// finish records the outcome of node i. On success it returns the dependents
// that just became ready; on failure it returns every pending node that is
// now unreachable and has been marked skipped.
func (st *runState) finish(i int, at time.Time, err error) (ready, skipped []int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.results[i].End = at
	if err != nil {
		st.status[i] = critpath.TaskStatusFailed
		st.results[i].Status = critpath.TaskStatusFailed
		st.results[i].Err = err
		return nil, st.skipDownstreamLocked(i, st.g.Task(i).ID)
	}

	st.status[i] = critpath.TaskStatusCompleted
	st.results[i].Status = critpath.TaskStatusCompleted
	for _, v := range st.g.Dependents(i) {
		st.pending[v]--
		if st.pending[v] == 0 && st.status[v] == critpath.TaskStatusPending {
			st.status[v] = critpath.TaskStatusReady
			ready = append(ready, v)
		}
	}
	return ready, nil
}

// skip marks a node that was never started as skipped, along with its
// downstream, and returns every node it touched.
func (st *runState) skip(i int, blockedBy critpath.TaskID, cause error) []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.status[i].IsTerminal() || st.status[i] == critpath.TaskStatusRunning {
		return nil
	}
	st.markSkippedLocked(i, blockedBy, cause)
	return append([]int{i}, st.skipDownstreamLocked(i, blockedBy)...)
}

// skipRemaining marks every node that is not terminal as skipped and returns them.
func (st *runState) skipRemaining(cause error) []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []int
	for i, s := range st.status {
		if !s.IsTerminal() {
			st.markSkippedLocked(i, "", cause)
			out = append(out, i)
		}
	}
	return out
}

func (st *runState) skipDownstreamLocked(from int, blockedBy critpath.TaskID) []int {
	var out []int
	queue := []int{from}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range st.g.Dependents(u) {
			if st.status[v] != critpath.TaskStatusPending && st.status[v] != critpath.TaskStatusReady {
				continue
			}
			st.markSkippedLocked(v, blockedBy, nil)
			out = append(out, v)
			queue = append(queue, v)
		}
	}
	return out
}

func (st *runState) markSkippedLocked(i int, blockedBy critpath.TaskID, cause error) {
	st.status[i] = critpath.TaskStatusSkipped
	st.results[i].Status = critpath.TaskStatusSkipped
	st.results[i].BlockedBy = blockedBy
	st.results[i].Err = cause
}

// incomplete reports whether any node did not complete.
func (st *runState) incomplete() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, s := range st.status {
		if s != critpath.TaskStatusCompleted {
			return true
		}
	}
	return false
}

func (st *runState) statusOf(i int) critpath.TaskStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status[i]
}

// snapshot returns a copy of every result in file order.
func (st *runState) snapshot() []critpath.TaskResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]critpath.TaskResult(nil), st.results...)
}
