package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/ZanzyTHEbar/critpath"
)

// RunStatus is a point-in-time view of a background run.
type RunStatus struct {
	RunID      string        `json:"run_id"`
	Phase      Phase         `json:"phase"`
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	IsComplete bool          `json:"is_complete"`
	HasError   bool          `json:"has_error"`
	Error      string        `json:"error,omitempty"`
}

// asyncRun tracks one run started with Start.
type asyncRun struct {
	id     string
	start  time.Time
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	phase   Phase
	ended   time.Time
	outcome *Outcome
	err     error
}

func (r *asyncRun) setPhase(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = p
	if p.IsTerminal() {
		r.ended = time.Now()
	}
}

func (r *asyncRun) status() *RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &RunStatus{
		RunID:      r.id,
		Phase:      r.phase,
		StartTime:  r.start,
		IsComplete: r.phase == PhaseComplete,
		HasError:   r.phase == PhaseError || r.phase == PhaseCancelled,
	}
	if r.ended.IsZero() {
		st.Duration = time.Since(r.start)
	} else {
		st.Duration = r.ended.Sub(r.start)
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}

// Start runs records in the background and returns the run ID. The run keeps
// ctx's values but not its cancellation; use Cancel to stop it.
func (s *Scheduler) Start(ctx context.Context, records []critpath.Record) (string, error) {
	rc := s.newRun(records)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &asyncRun{
		id:     rc.ID,
		start:  rc.StartTime,
		cancel: cancel,
		done:   make(chan struct{}),
		phase:  PhaseInit,
	}

	s.runsMu.Lock()
	s.runs[run.id] = run
	s.runsMu.Unlock()

	s.logger.Info("background run started", "run_id", run.id, "records", len(records))
	go func() {
		defer close(run.done)
		defer cancel()
		out, err := s.execute(runCtx, rc, run.setPhase)
		run.mu.Lock()
		run.outcome, run.err = out, err
		run.mu.Unlock()
	}()
	return run.id, nil
}

func (s *Scheduler) lookupRun(runID string) (*asyncRun, error) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr(fmt.Sprintf("run %s not found", runID), nil))
	}
	return run, nil
}

// Status reports the current phase of a background run.
func (s *Scheduler) Status(runID string) (*RunStatus, error) {
	run, err := s.lookupRun(runID)
	if err != nil {
		return nil, err
	}
	return run.status(), nil
}

// Wait blocks until the background run finishes or ctx is done, and returns
// what Run would have returned.
func (s *Scheduler) Wait(ctx context.Context, runID string) (*Outcome, error) {
	run, err := s.lookupRun(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		return nil, errbuilder.WrapIfContextDone(ctx, nil)
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.outcome, run.err
}

// Cancel stops a background run. It returns false when the run had already
// finished.
func (s *Scheduler) Cancel(runID string) (bool, error) {
	run, err := s.lookupRun(runID)
	if err != nil {
		return false, err
	}
	select {
	case <-run.done:
		return false, nil
	default:
	}
	run.cancel()
	s.logger.Info("background run cancelled", "run_id", runID)
	return true, nil
}

// Runs returns the current phase of every tracked background run.
func (s *Scheduler) Runs() map[string]Phase {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	out := make(map[string]Phase, len(s.runs))
	for id, run := range s.runs {
		out[id] = run.status().Phase
	}
	return out
}

// Cleanup forgets finished background runs that ended more than olderThan
// ago and returns how many were removed.
func (s *Scheduler) Cleanup(olderThan time.Duration) int {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	now := time.Now()
	count := 0
	for id, run := range s.runs {
		run.mu.Lock()
		expired := !run.ended.IsZero() && now.Sub(run.ended) > olderThan
		run.mu.Unlock()
		if expired {
			delete(s.runs, id)
			count++
		}
	}
	return count
}

// stopRuns cancels every background run and waits for them to finish.
func (s *Scheduler) stopRuns() {
	s.runsMu.RLock()
	runs := make([]*asyncRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.runsMu.RUnlock()

	for _, run := range runs {
		run.cancel()
		<-run.done
	}
}
