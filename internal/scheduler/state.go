package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/estimator"
	"github.com/ZanzyTHEbar/critpath/internal/eventbus"
	"github.com/ZanzyTHEbar/critpath/internal/executor"
	"github.com/ZanzyTHEbar/critpath/internal/graph"
)

// The run lifecycle is a pushdown automaton: every phase a run passes through
// is pushed onto a stack, so a finished RunContext still shows how it got
// where it is.

// Phase represents the current phase of a run.
type Phase string

const (
	// PhaseInit is the initial phase of a run
	PhaseInit Phase = "init"
	// PhaseValidating builds the graph and checks it for structural errors
	PhaseValidating Phase = "validating"
	// PhaseEstimating computes the critical path analysis
	PhaseEstimating Phase = "estimating"
	// PhaseExecuting drives the task bodies
	PhaseExecuting Phase = "executing"
	// PhaseError represents a failed run
	PhaseError Phase = "error"
	// PhaseComplete represents a finished run
	PhaseComplete Phase = "complete"
	// PhaseCancelled represents a run stopped by its context
	PhaseCancelled Phase = "cancelled"
)

// IsTerminal reports whether no transition leaves p.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseError || p == PhaseCancelled
}

// RunContext contains the data a run accumulates as it moves through its
// phases.
type RunContext struct {
	ID string

	// Input parameters
	Records []critpath.Record
	Mode    critpath.Mode
	DryRun  bool

	// Intermediate results
	Graph    *graph.Graph
	Analysis *estimator.Analysis
	CacheHit bool
	Result   *executor.Result

	// Error handling
	LastError  error
	ErrorStage string

	// Phase management
	CurrentPhase Phase
	PhaseStack   []Phase

	// Timestamp tracking
	StartTime       time.Time
	EndTime         time.Time
	PhaseStartTimes map[Phase]time.Time
}

// NewRunContext creates a run context with a fresh run ID.
func NewRunContext(records []critpath.Record, mode critpath.Mode, dryRun bool) *RunContext {
	now := time.Now()
	return &RunContext{
		ID:              uuid.New().String(),
		Records:         records,
		Mode:            mode,
		DryRun:          dryRun,
		CurrentPhase:    PhaseInit,
		PhaseStack:      []Phase{},
		StartTime:       now,
		PhaseStartTimes: map[Phase]time.Time{PhaseInit: now},
	}
}

// PushPhase pushes the current phase onto the stack and enters phase.
func (rc *RunContext) PushPhase(phase Phase) {
	rc.PhaseStack = append(rc.PhaseStack, rc.CurrentPhase)
	rc.CurrentPhase = phase
	rc.PhaseStartTimes[phase] = time.Now()
}

// PopPhase returns to the phase on top of the stack. It returns false if the
// stack is empty.
func (rc *RunContext) PopPhase() bool {
	if len(rc.PhaseStack) == 0 {
		return false
	}
	last := len(rc.PhaseStack) - 1
	rc.CurrentPhase = rc.PhaseStack[last]
	rc.PhaseStack = rc.PhaseStack[:last]
	rc.PhaseStartTimes[rc.CurrentPhase] = time.Now()
	return true
}

// History lists every phase entered so far, the current one last.
func (rc *RunContext) History() []Phase {
	h := make([]Phase, 0, len(rc.PhaseStack)+1)
	h = append(h, rc.PhaseStack...)
	return append(h, rc.CurrentPhase)
}

// IsTerminal checks if the run is complete, failed or cancelled.
func (rc *RunContext) IsTerminal() bool {
	return rc.CurrentPhase.IsTerminal()
}

// SetError records err and moves the run to PhaseError.
func (rc *RunContext) SetError(err error, stage string) {
	rc.LastError = err
	rc.ErrorStage = stage
	rc.finish(PhaseError)
}

// SetCancelled records the cancellation error and moves the run to
// PhaseCancelled.
func (rc *RunContext) SetCancelled(err error, stage string) {
	rc.LastError = err
	rc.ErrorStage = stage
	rc.finish(PhaseCancelled)
}

// Complete marks the run as complete and sets the end time.
func (rc *RunContext) Complete() {
	rc.finish(PhaseComplete)
}

func (rc *RunContext) finish(phase Phase) {
	rc.PushPhase(phase)
	rc.EndTime = rc.PhaseStartTimes[phase]
}

// PhaseDuration returns the time spent in phase, zero if it was never entered.
func (rc *RunContext) PhaseDuration(phase Phase) time.Duration {
	start, ok := rc.PhaseStartTimes[phase]
	if !ok {
		return 0
	}
	if phase == rc.CurrentPhase {
		if rc.IsTerminal() {
			return 0
		}
		return time.Since(start)
	}
	// The phase ended when the one pushed after it began.
	for i, p := range rc.PhaseStack {
		if p != phase {
			continue
		}
		next := rc.CurrentPhase
		if i+1 < len(rc.PhaseStack) {
			next = rc.PhaseStack[i+1]
		}
		return rc.PhaseStartTimes[next].Sub(start)
	}
	return 0
}

// TotalDuration returns the total duration of the run so far.
func (rc *RunContext) TotalDuration() time.Duration {
	if rc.IsTerminal() {
		return rc.EndTime.Sub(rc.StartTime)
	}
	return time.Since(rc.StartTime)
}

// StateTransition runs the work of one phase and names the phase that
// follows it.
type StateTransition func(ctx context.Context, bus eventbus.EventBus, rc *RunContext) (Phase, error)

// StateMachine drives a RunContext from PhaseInit to a terminal phase.
type StateMachine struct {
	transitions map[Phase]StateTransition
	eventBus    eventbus.EventBus
	onPhase     func(Phase)
}

// NewStateMachine creates a state machine without transitions. bus may be nil.
func NewStateMachine(bus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[Phase]StateTransition),
		eventBus:    bus,
	}
}

// RegisterTransition registers the transition that runs in phase.
func (sm *StateMachine) RegisterTransition(phase Phase, transition StateTransition) {
	sm.transitions[phase] = transition
}

// OnPhase registers fn to be called, on the goroutine running Execute, every
// time the run enters a new phase.
func (sm *StateMachine) OnPhase(fn func(Phase)) {
	sm.onPhase = fn
}

// Execute runs transitions until rc reaches a terminal phase and returns the
// run's error, if any.
func (sm *StateMachine) Execute(ctx context.Context, rc *RunContext) error {
	sm.publish(ctx, rc, eventbus.EventRunStarted, nil)

	for !rc.IsTerminal() {
		stage := string(rc.CurrentPhase)
		if err := ctx.Err(); err != nil {
			rc.SetCancelled(critpath.NewCancelledError(stage, err), stage)
			break
		}

		transition, exists := sm.transitions[rc.CurrentPhase]
		if !exists {
			rc.SetError(critpath.NewInternalError(stage, fmt.Sprintf("no transition defined for phase %s", rc.CurrentPhase), nil), stage)
			break
		}

		next, err := transition(ctx, sm.eventBus, rc)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				rc.SetCancelled(err, stage)
			} else if !rc.IsTerminal() {
				rc.SetError(err, stage)
			}
			break
		}

		if rc.IsTerminal() {
			break
		}
		if next == PhaseComplete {
			rc.Complete()
		} else {
			rc.PushPhase(next)
			sm.notify(rc)
			sm.publish(ctx, rc, eventbus.EventRunPhaseChanged, nil)
		}
	}
	sm.notify(rc)

	if rc.CurrentPhase == PhaseComplete {
		sm.publish(ctx, rc, eventbus.EventRunCompleted, nil)
	} else {
		sm.publish(ctx, rc, eventbus.EventRunFailed, rc.LastError)
	}
	return rc.LastError
}

func (sm *StateMachine) notify(rc *RunContext) {
	if sm.onPhase != nil {
		sm.onPhase(rc.CurrentPhase)
	}
}

// publish sends a run event. It ignores cancellation so the closing event of
// a cancelled run is still delivered.
func (sm *StateMachine) publish(ctx context.Context, rc *RunContext, typ eventbus.EventType, err error) {
	if sm.eventBus == nil {
		return
	}
	ev := eventbus.NewEvent(typ, rc.CurrentPhase, "scheduler", map[string]interface{}{
		eventbus.MetaRunID: rc.ID,
		eventbus.MetaPhase: string(rc.CurrentPhase),
	})
	if err != nil {
		ev.WithMetadata(eventbus.MetaError, err.Error())
		ev.WithMetadata("error_stage", rc.ErrorStage)
	}
	_ = sm.eventBus.Publish(context.WithoutCancel(ctx), ev)
}
