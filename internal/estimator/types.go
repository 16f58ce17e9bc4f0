package estimator

import "github.com/ZanzyTHEbar/critpath"

// Analysis holds the complete critical path analysis of a graph.
type Analysis struct {
	Serial   float64 // sum of all durations, file order
	Parallel float64 // longest weighted path

	Order        []critpath.TaskID // topological order, file order on ties
	CriticalPath []critpath.TaskID // one dominating chain, first to last
	Waves        []Wave            // parallelizable groups

	Tasks map[critpath.TaskID]*Schedule
}

// Estimate returns the expected total runtime for mode.
func (a *Analysis) Estimate(mode critpath.Mode) float64 {
	if mode == critpath.ModeSerial {
		return a.Serial
	}
	return a.Parallel
}

// Speedup is the ratio of serial to parallel runtime, 1 when both are zero.
func (a *Analysis) Speedup() float64 {
	if a.Parallel == 0 {
		return 1
	}
	return a.Serial / a.Parallel
}

// Schedule holds the scheduling info for a single task, in seconds.
type Schedule struct {
	TaskID     critpath.TaskID
	ES, EF     float64 // earliest start/finish
	LS, LF     float64 // latest start/finish
	Slack      float64
	IsCritical bool
	Wave       int
}

// Wave represents a group of tasks that share an earliest start time.
type Wave struct {
	Index      int
	Start      float64
	TaskIDs    []critpath.TaskID
	IsCritical bool
}
