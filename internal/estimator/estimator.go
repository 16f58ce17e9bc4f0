// Package estimator computes expected runtimes for a validated dependency graph.
//
// Everything here is pure: no task body is ever invoked.
package estimator

import (
	"container/heap"
	"math"
	"sort"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/graph"
)

// SerialEstimate is the sum of every duration in file order.
func SerialEstimate(g *graph.Graph) float64 {
	total := 0.0
	for i := 0; i < g.Len(); i++ {
		total += g.Task(i).Duration
	}
	return total
}

// ParallelEstimate is the length of the longest duration-weighted path.
func ParallelEstimate(g *graph.Graph) (float64, error) {
	order, err := TopologicalOrder(g)
	if err != nil {
		return 0, err
	}
	ef := earliestFinish(g, order)
	total := 0.0
	for _, s := range g.Sinks() {
		total = math.Max(total, ef[s])
	}
	return total, nil
}

// Analyze performs critical path method analysis on g.
func Analyze(g *graph.Graph) (*Analysis, error) {
	order, err := TopologicalOrder(g)
	if err != nil {
		return nil, err
	}

	n := g.Len()
	es := make([]float64, n)
	ef := earliestFinish(g, order)
	for _, u := range order {
		es[u] = ef[u] - g.Task(u).Duration
	}

	total := 0.0
	for _, s := range g.Sinks() {
		total = math.Max(total, ef[s])
	}

	// Backward pass: latest finish is the earliest latest-start of any dependent.
	lf := make([]float64, n)
	ls := make([]float64, n)
	for k := len(order) - 1; k >= 0; k-- {
		u := order[k]
		lf[u] = total
		for _, v := range g.Dependents(u) {
			lf[u] = math.Min(lf[u], ls[v])
		}
		ls[u] = lf[u] - g.Task(u).Duration
	}

	a := &Analysis{
		Serial:   SerialEstimate(g),
		Parallel: total,
		Order:    make([]critpath.TaskID, len(order)),
		Tasks:    make(map[critpath.TaskID]*Schedule, n),
	}
	for k, u := range order {
		id := g.Task(u).ID
		a.Order[k] = id
		slack := ls[u] - es[u]
		if almostEqual(slack, 0) {
			slack = 0
		}
		a.Tasks[id] = &Schedule{
			TaskID:     id,
			ES:         es[u],
			EF:         ef[u],
			LS:         ls[u],
			LF:         lf[u],
			Slack:      slack,
			IsCritical: slack == 0,
		}
	}

	a.CriticalPath = criticalChain(g, es, ef)
	a.Waves = computeWaves(g, order, es, a.Tasks)
	return a, nil
}

// TopologicalOrder returns node indices such that every dependency precedes
// its dependents. Among ready nodes the one earliest in file order goes first,
// so a file that is already topologically sorted comes back unchanged.
func TopologicalOrder(g *graph.Graph) ([]int, error) {
	n := g.Len()
	indeg := make([]int, n)
	for i := 0; i < n; i++ {
		indeg[i] = len(g.Dependencies(i))
	}

	ready := &intMinHeap{}
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, n)
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		order = append(order, u)
		for _, v := range g.Dependents(u) {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}

	if len(order) != n {
		if err := g.CheckAcyclic(); err != nil {
			return nil, err
		}
		return nil, &critpath.CycleError{}
	}
	return order, nil
}

// earliestFinish computes, for every node, its duration plus the largest
// earliest finish among its dependencies.
func earliestFinish(g *graph.Graph, order []int) []float64 {
	ef := make([]float64, g.Len())
	for _, u := range order {
		start := 0.0
		for _, d := range g.Dependencies(u) {
			start = math.Max(start, ef[d])
		}
		ef[u] = start + g.Task(u).Duration
	}
	return ef
}

// criticalChain walks back from the latest-finishing sink along the
// dependency whose finish determined each start.
func criticalChain(g *graph.Graph, es, ef []float64) []critpath.TaskID {
	end := -1
	for _, s := range g.Sinks() {
		if end < 0 || ef[s] > ef[end] && !almostEqual(ef[s], ef[end]) {
			end = s
		}
	}
	if end < 0 {
		return nil
	}

	var rev []critpath.TaskID
	for cur := end; cur >= 0; {
		rev = append(rev, g.Task(cur).ID)
		next := -1
		for _, d := range g.Dependencies(cur) {
			if almostEqual(ef[d], es[cur]) {
				next = d
				break
			}
		}
		cur = next
	}

	chain := make([]critpath.TaskID, len(rev))
	for i, id := range rev {
		chain[len(rev)-1-i] = id
	}
	return chain
}

// computeWaves groups tasks by their earliest start time.
func computeWaves(g *graph.Graph, order []int, es []float64, sched map[critpath.TaskID]*Schedule) []Wave {
	byStart := append([]int(nil), order...)
	sort.SliceStable(byStart, func(i, j int) bool {
		a, b := byStart[i], byStart[j]
		if !almostEqual(es[a], es[b]) {
			return es[a] < es[b]
		}
		return a < b
	})

	var waves []Wave
	for _, u := range byStart {
		id := g.Task(u).ID
		if len(waves) == 0 || !almostEqual(waves[len(waves)-1].Start, es[u]) {
			waves = append(waves, Wave{Index: len(waves), Start: es[u]})
		}
		w := &waves[len(waves)-1]
		w.TaskIDs = append(w.TaskIDs, id)
		sched[id].Wave = w.Index
		if sched[id].IsCritical {
			w.IsCritical = true
		}
	}

	// Critical tasks first within a wave, file order otherwise.
	for i := range waves {
		ids := waves[i].TaskIDs
		sort.SliceStable(ids, func(a, b int) bool {
			return sched[ids[a]].IsCritical && !sched[ids[b]].IsCritical
		})
	}
	return waves
}

func almostEqual(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= 1e-9*scale
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
