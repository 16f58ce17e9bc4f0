package executor

import (
	"time"

	"github.com/ZanzyTHEbar/critpath"
)

// Metrics tracks statistics about one run.
type Metrics struct {
	TasksExecuted   int // tasks whose body was invoked
	TasksSuccessful int
	TasksFailed     int
	TasksSkipped    int

	// TotalDuration is the sum of body run times; Elapsed is wall clock.
	TotalDuration    time.Duration
	Elapsed          time.Duration
	LongestTask      critpath.TaskID
	LongestTaskTime  time.Duration
	ShortestTaskTime time.Duration
}

// Concurrency is the average number of bodies running at once.
func (m Metrics) Concurrency() float64 {
	if m.Elapsed <= 0 {
		return 0
	}
	return float64(m.TotalDuration) / float64(m.Elapsed)
}

func collectMetrics(results []critpath.TaskResult, elapsed time.Duration) Metrics {
	m := Metrics{Elapsed: elapsed}
	for _, r := range results {
		switch r.Status {
		case critpath.TaskStatusCompleted:
			m.TasksSuccessful++
		case critpath.TaskStatusFailed:
			m.TasksFailed++
		case critpath.TaskStatusSkipped:
			m.TasksSkipped++
			continue
		default:
			continue
		}

		m.TasksExecuted++
		d := r.Elapsed()
		m.TotalDuration += d
		if d > m.LongestTaskTime || m.LongestTask == "" {
			m.LongestTask = r.ID
			m.LongestTaskTime = d
		}
		if m.TasksExecuted == 1 || d < m.ShortestTaskTime {
			m.ShortestTaskTime = d
		}
	}
	return m
}
