package scheduler

import (
	"context"
	"log/slog"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/cache"
	"github.com/ZanzyTHEbar/critpath/internal/eventbus"
	"github.com/ZanzyTHEbar/critpath/internal/executor"
	"github.com/ZanzyTHEbar/critpath/internal/graph"
)

// runComponents holds the collaborators the transitions need.
type runComponents struct {
	Body     critpath.TaskBody
	Analyses *cache.Analyses
	Logger   *slog.Logger
}

// bodyChecker is implemented by bodies that can refuse a task set up front,
// such as the kind registry.
type bodyChecker interface {
	Check(tasks []critpath.Task) error
}

// createRunStateMachine wires the transitions of one run.
func createRunStateMachine(c runComponents, bus eventbus.EventBus) *StateMachine {
	sm := NewStateMachine(bus)
	sm.RegisterTransition(PhaseInit, createInitTransition(c))
	sm.RegisterTransition(PhaseValidating, createValidatingTransition(c))
	sm.RegisterTransition(PhaseEstimating, createEstimatingTransition(c))
	sm.RegisterTransition(PhaseExecuting, createExecutingTransition(c))
	return sm
}

func createInitTransition(c runComponents) StateTransition {
	return func(ctx context.Context, _ eventbus.EventBus, rc *RunContext) (Phase, error) {
		if _, err := critpath.ParseMode(string(rc.Mode)); err != nil {
			return PhaseError, err
		}
		if !rc.DryRun && c.Body == nil {
			return PhaseError, critpath.NewConfigurationError("no task body configured", nil)
		}
		c.Logger.Debug("run initialised", "run_id", rc.ID, "mode", rc.Mode, "dry_run", rc.DryRun, "records", len(rc.Records))
		return PhaseValidating, nil
	}
}

func createValidatingTransition(c runComponents) StateTransition {
	return func(ctx context.Context, _ eventbus.EventBus, rc *RunContext) (Phase, error) {
		g, err := graph.New(rc.Records)
		if err != nil {
			c.Logger.Warn("task specification rejected", "run_id", rc.ID, "error", err)
			return PhaseError, err
		}
		rc.Graph = g

		// Refuse unknown body kinds before anything starts running.
		if checker, ok := c.Body.(bodyChecker); ok && !rc.DryRun {
			if err := checker.Check(g.Tasks()); err != nil {
				return PhaseError, err
			}
		}

		c.Logger.Debug("graph validated", "run_id", rc.ID, "tasks", g.Len(), "roots", len(g.Roots()))
		return PhaseEstimating, nil
	}
}

func createEstimatingTransition(c runComponents) StateTransition {
	return func(ctx context.Context, _ eventbus.EventBus, rc *RunContext) (Phase, error) {
		analysis, hit, err := c.Analyses.Analyze(ctx, rc.Graph)
		if err != nil {
			return PhaseError, err
		}
		rc.Analysis = analysis
		rc.CacheHit = hit

		c.Logger.Info("estimate ready",
			"run_id", rc.ID,
			"mode", rc.Mode,
			"estimate", analysis.Estimate(rc.Mode),
			"serial", analysis.Serial,
			"parallel", analysis.Parallel,
			"cached", hit)

		if rc.DryRun {
			return PhaseComplete, nil
		}
		return PhaseExecuting, nil
	}
}

func createExecutingTransition(c runComponents) StateTransition {
	return func(ctx context.Context, bus eventbus.EventBus, rc *RunContext) (Phase, error) {
		options := []executor.Option{
			executor.WithLogger(c.Logger),
			executor.WithRunID(rc.ID),
		}
		if bus != nil {
			options = append(options, executor.WithEventBus(bus))
		}

		res, err := executor.New(c.Body, options...).Run(ctx, rc.Graph, rc.Mode)
		rc.Result = res
		if err != nil {
			return PhaseError, err
		}
		return PhaseComplete, nil
	}
}
