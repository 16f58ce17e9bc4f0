// Package executor drives task bodies to completion over a validated graph,
// one worker per ready task in parallel mode or one at a time in serial mode.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/estimator"
	"github.com/ZanzyTHEbar/critpath/internal/eventbus"
	"github.com/ZanzyTHEbar/critpath/internal/graph"
	"github.com/ZanzyTHEbar/critpath/internal/resource"
)

const eventSource = "executor"

// Engine executes graphs. It holds no per-run state and may be reused.
type Engine struct {
	body   critpath.TaskBody
	logger *slog.Logger
	bus    eventbus.EventBus
	runID  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEventBus publishes task lifecycle events to bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithRunID tags every event and log line with id.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.runID = id
	}
}

// New creates an engine that invokes body for every task.
func New(body critpath.TaskBody, options ...Option) *Engine {
	e := &Engine{
		body:   body,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(e)
	}
	if e.runID != "" {
		e.logger = e.logger.With("run_id", e.runID)
	}
	return e
}

// Result is the outcome of one run.
type Result struct {
	RunID   string
	Mode    critpath.Mode
	Start   time.Time
	End     time.Time
	Tasks   []critpath.TaskResult // file order
	Metrics Metrics
}

// Elapsed is the wall-clock time of the run.
func (r *Result) Elapsed() time.Duration {
	return r.End.Sub(r.Start)
}

// Task returns the result for id.
func (r *Result) Task(id critpath.TaskID) (critpath.TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return critpath.TaskResult{}, false
}

// Succeeded reports whether every task completed.
func (r *Result) Succeeded() bool {
	for _, t := range r.Tasks {
		if t.Status != critpath.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// Run executes every task in g exactly once.
//
// A non-nil Result is returned whenever execution started, even on failure;
// the error is then a *critpath.ExecutionError naming every failed and
// skipped task. Dependents of a failed task are skipped while independent
// branches keep running. Cancelling ctx stops further dispatch; bodies that
// are already running see the cancelled context and are not preempted.
func (e *Engine) Run(ctx context.Context, g *graph.Graph, mode critpath.Mode) (*Result, error) {
	if e.body == nil {
		return nil, critpath.NewConfigurationError("no task body configured", nil)
	}
	if g == nil {
		return nil, critpath.NewInternalError("execution", "nil graph", nil)
	}
	if mode != critpath.ModeSerial && mode != critpath.ModeParallel {
		return nil, critpath.NewConfigurationError(fmt.Sprintf("unknown mode %q", mode), nil)
	}

	order, err := estimator.TopologicalOrder(g)
	if err != nil {
		return nil, err
	}

	r := &run{
		Engine: e,
		ctx:    ctx,
		g:      g,
		st:     newRunState(g),
		locks:  resource.New(),
	}

	start := time.Now()
	e.logger.Info("starting run", "mode", mode, "total_tasks", g.Len())

	for _, i := range r.st.roots() {
		r.emit(eventbus.EventTaskReady, g.Task(i), nil)
	}
	if mode == critpath.ModeSerial {
		r.serial(order)
	} else {
		r.parallel()
	}

	var cause error
	if ctxErr := ctx.Err(); ctxErr != nil {
		cancelled := critpath.NewCancelledError("execution", ctxErr)
		r.skipped(r.st.skipRemaining(cancelled))
		if r.st.incomplete() {
			cause = cancelled
		}
	} else if left := r.st.skipRemaining(nil); len(left) > 0 {
		// Every node is terminal once both loops drain; anything else is a bug.
		cause = critpath.NewInternalError("execution", fmt.Sprintf("%d tasks never became ready", len(left)), nil)
	}
	end := time.Now()

	res := &Result{
		RunID: e.runID,
		Mode:  mode,
		Start: start,
		End:   end,
		Tasks: r.st.snapshot(),
	}
	res.Metrics = collectMetrics(res.Tasks, end.Sub(start))

	e.logger.Info("run finished",
		"elapsed", res.Elapsed(),
		"successful_tasks", res.Metrics.TasksSuccessful,
		"failed_tasks", res.Metrics.TasksFailed,
		"skipped_tasks", res.Metrics.TasksSkipped)

	if execErr := executionError(res.Tasks, cause); execErr != nil {
		return res, execErr
	}
	return res, nil
}

func executionError(results []critpath.TaskResult, cause error) error {
	ee := &critpath.ExecutionError{Cause: cause}
	for _, t := range results {
		switch t.Status {
		case critpath.TaskStatusFailed:
			if ee.Failed == nil {
				ee.Failed = make(map[critpath.TaskID]error)
			}
			ee.Failed[t.ID] = t.Err
		case critpath.TaskStatusSkipped:
			ee.Skipped = append(ee.Skipped, t.ID)
		}
	}
	if len(ee.Failed) == 0 && len(ee.Skipped) == 0 && cause == nil {
		return nil
	}
	return ee
}

// run carries the state of one Engine.Run call.
type run struct {
	*Engine
	ctx   context.Context
	g     *graph.Graph
	st    *runState
	locks *resource.Mediator
}

// parallel dispatches each ready task on its own goroutine. A finishing task
// dispatches the dependents it made ready before its goroutine exits, so Wait
// returns only once nothing is left to run.
func (r *run) parallel() {
	var wg conc.WaitGroup
	var dispatch func(i int)
	dispatch = func(i int) {
		wg.Go(func() {
			for _, next := range r.execute(i) {
				dispatch(next)
			}
		})
	}

	for i := 0; i < r.g.Len(); i++ {
		if r.st.statusOf(i) == critpath.TaskStatusReady {
			dispatch(i)
		}
	}
	wg.Wait()
}

// serial runs tasks one at a time in topological order, which is file order
// whenever the file lists dependencies first.
func (r *run) serial(order []int) {
	for _, i := range order {
		if r.ctx.Err() != nil {
			return
		}
		// A node whose dependency failed was already skipped.
		if r.st.statusOf(i) != critpath.TaskStatusReady {
			continue
		}
		r.execute(i)
	}
}

// execute runs node i while holding its resources and returns the dependents
// that became ready.
func (r *run) execute(i int) []int {
	task := r.g.Task(i)
	if err := r.ctx.Err(); err != nil {
		r.skipped(r.st.skip(i, "", critpath.NewCancelledError("execution", err)))
		return nil
	}

	lease, err := r.locks.AcquireAll(r.ctx, task.Resources)
	if err != nil {
		r.skipped(r.st.skip(i, "", critpath.NewCancelledError("execution", err)))
		return nil
	}
	defer lease.Release()

	if !r.st.start(i, time.Now()) {
		return nil
	}
	r.emit(eventbus.EventTaskStarted, task, nil)
	r.logger.Debug("task started", "task_id", task.ID, "duration", task.Duration, "resources", task.Resources)

	err = r.invoke(task)
	ready, skipped := r.st.finish(i, time.Now(), err)
	if err != nil {
		r.logger.Warn("task failed", "task_id", task.ID, "status", critpath.TaskStatusFailed, "error", err)
		r.emit(eventbus.EventTaskFailed, task, err)
		r.skipped(skipped)
		return nil
	}

	r.logger.Info("task completed", "task_id", task.ID, "duration", task.Duration, "status", critpath.TaskStatusCompleted)
	r.emit(eventbus.EventTaskCompleted, task, nil)
	for _, j := range ready {
		r.emit(eventbus.EventTaskReady, r.g.Task(j), nil)
	}
	return ready
}

// invoke calls the body, turning a panic into an error so one broken body
// cannot take down the run.
func (r *run) invoke(task critpath.Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = critpath.NewInternalError("execution", fmt.Sprintf("task %s panicked: %v", task.ID, p), nil)
		}
	}()
	return r.body.Run(r.ctx, task)
}

func (r *run) skipped(nodes []int) {
	for _, j := range nodes {
		task := r.g.Task(j)
		r.logger.Info("task skipped", "task_id", task.ID, "status", critpath.TaskStatusSkipped)
		r.emit(eventbus.EventTaskSkipped, task, nil)
	}
}

// emit publishes a task event. Events still flow after ctx is cancelled so
// subscribers see how the run ended.
func (r *run) emit(typ eventbus.EventType, task critpath.Task, err error) {
	if r.bus == nil {
		return
	}
	ev := eventbus.NewEvent(typ, task, eventSource, nil).
		WithMetadata(eventbus.MetaRunID, r.runID).
		WithMetadata(eventbus.MetaTaskID, string(task.ID))
	if err != nil {
		ev.WithMetadata(eventbus.MetaError, err.Error())
	}
	if pubErr := r.bus.Publish(context.WithoutCancel(r.ctx), ev); pubErr != nil {
		r.logger.Debug("event not published", "event_type", typ, "error", pubErr)
	}
}
