package critpath

import (
	"fmt"
	"strings"
	"time"
)

// TaskID is the unique identifier of a task within one run.
type TaskID string

// String returns the identifier as a plain string.
func (id TaskID) String() string { return string(id) }

// TaskStatus represents the possible states of a task during a run.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting for dependencies.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates every dependency completed and the task awaits dispatch.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning indicates the task body is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task body returned normally.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task body returned an error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task was never dispatched because a
	// dependency failed or the run was cancelled.
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsTerminal reports whether the status can no longer change within a run.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Mode selects how the execution engine dispatches tasks.
type Mode string

const (
	// ModeSerial runs tasks one at a time in file order, except that a task
	// listed before one of its dependencies waits until that dependency has
	// completed.
	ModeSerial Mode = "serial"
	// ModeParallel dispatches every task the moment it becomes ready.
	ModeParallel Mode = "parallel"
)

// ParseMode converts a user supplied mode name. The empty string selects parallel.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "parallel":
		return ModeParallel, nil
	case "serial", "sequential":
		return ModeSerial, nil
	default:
		return "", NewConfigurationError(fmt.Sprintf("unknown mode %q (want serial or parallel)", s), nil)
	}
}

// Record is one raw row of a task specification, before validation.
//
// Duration is kept as text so that malformed values can be reported by the
// graph builder together with every other problem in the input.
type Record struct {
	ID           string   `json:"id" yaml:"id"`
	Duration     string   `json:"duration" yaml:"duration"`
	Dependencies []string `json:"depends_on,omitempty" yaml:"depends_on"`
	Resources    []string `json:"resources,omitempty" yaml:"resources"`
	Body         string   `json:"body,omitempty" yaml:"body"`
	Command      string   `json:"command,omitempty" yaml:"command"`

	// Row is the 1-based position of the record in its source, 0 when unknown.
	Row int `json:"-" yaml:"-"`
}

// Task is the validated, immutable unit of work.
type Task struct {
	ID           TaskID
	Duration     float64 // seconds
	Dependencies []TaskID
	Resources    []string
	Body         string
	Command      string
	Row          int
}

// Wall returns the declared duration as a time.Duration scaled by factor.
func (t Task) Wall(factor float64) time.Duration {
	return time.Duration(t.Duration * factor * float64(time.Second))
}

// TaskResult is the per-task outcome of a real run.
type TaskResult struct {
	ID     TaskID
	Status TaskStatus
	Start  time.Time
	End    time.Time
	Err    error

	// BlockedBy names the failed task that caused a skip, empty otherwise.
	BlockedBy TaskID
}

// Elapsed returns how long the body ran, zero when it never started.
func (r TaskResult) Elapsed() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}
