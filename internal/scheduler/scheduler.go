// Package scheduler is the entry point into critpath. It validates task
// specifications, estimates their runtime and executes them, tracking each run
// through a small lifecycle state machine.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/bodies"
	"github.com/ZanzyTHEbar/critpath/internal/cache"
	"github.com/ZanzyTHEbar/critpath/internal/estimator"
	"github.com/ZanzyTHEbar/critpath/internal/eventbus"
	"github.com/ZanzyTHEbar/critpath/internal/executor"
	"github.com/ZanzyTHEbar/critpath/internal/graph"
	"github.com/ZanzyTHEbar/critpath/internal/logging"
)

// Scheduler encapsulates the components a run needs.
type Scheduler struct {
	config critpath.Config
	logger *slog.Logger

	body     critpath.TaskBody
	cache    critpath.Cache
	eventBus eventbus.EventBus

	analyses *cache.Analyses

	// Background runs started with Start, by run ID.
	runs   map[string]*asyncRun
	runsMu sync.RWMutex

	// closers release components the scheduler created itself.
	closers []func()
}

// Option is a function that configures a Scheduler.
type Option func(*Scheduler)

// WithConfig sets the configuration.
func WithConfig(config critpath.Config) Option {
	return func(s *Scheduler) {
		s.config = config
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithEventBus publishes run and task events to bus. The caller keeps
// ownership of bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Scheduler) {
		s.eventBus = bus
	}
}

// WithBody sets the body invoked for every task. By default tasks are
// dispatched through bodies.Default.
func WithBody(body critpath.TaskBody) Option {
	return func(s *Scheduler) {
		s.body = body
	}
}

// WithCache sets the store used to memoise analyses.
func WithCache(c critpath.Cache) Option {
	return func(s *Scheduler) {
		s.cache = c
	}
}

// New creates a Scheduler with the provided options.
func New(options ...Option) (*Scheduler, error) {
	s := &Scheduler{
		config: critpath.DefaultConfig(),
		runs:   make(map[string]*asyncRun),
	}
	for _, option := range options {
		option(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.body == nil {
		s.body = bodies.Default(s.config.TimeScale, nil)
	}
	if s.cache == nil && s.config.AnalysisCacheTTL > 0 {
		mem := cache.NewInMemoryCache(s.config.AnalysisCacheTTL,
			cache.WithLogger(s.logger),
			cache.WithCleanupInterval(s.config.AnalysisCacheTTL))
		s.cache = mem
		s.closers = append(s.closers, mem.Close)
	}
	s.analyses = cache.NewAnalyses(s.cache)

	// Initialize event bus if enabled but not provided
	if s.config.EnableEventBus && s.eventBus == nil {
		bus := eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(s.config.EventBusBufferSize),
			eventbus.WithWorkerCount(s.config.EventBusWorkerCount),
			eventbus.WithLogger(s.logger),
		)
		s.eventBus = bus
		s.closers = append(s.closers, func() { _ = bus.Close() })
		s.logger.Debug("initialized channel event bus",
			"buffer_size", s.config.EventBusBufferSize,
			"workers", s.config.EventBusWorkerCount)
	}

	return s, nil
}

// Config returns the scheduler's configuration.
func (s *Scheduler) Config() critpath.Config {
	return s.config
}

// EventBus returns the bus events are published to, nil when disabled.
func (s *Scheduler) EventBus() eventbus.EventBus {
	return s.eventBus
}

// Close cancels background runs, waits for them to stop and then stops the
// components the scheduler created. Queued events are delivered first.
func (s *Scheduler) Close() {
	s.stopRuns()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Validate builds the graph for records and proves it acyclic. Every
// structural problem is reported in one *critpath.ValidationError.
func (s *Scheduler) Validate(records []critpath.Record) (*graph.Graph, error) {
	return graph.New(records)
}

// Plan validates records and returns the critical path analysis without
// running anything. Analyses are reused while the graph is unchanged.
func (s *Scheduler) Plan(ctx context.Context, records []critpath.Record) (*estimator.Analysis, error) {
	g, err := graph.New(records)
	if err != nil {
		return nil, err
	}
	analysis, _, err := s.analyses.Analyze(ctx, g)
	return analysis, err
}

// Outcome is the summary of one run.
type Outcome struct {
	RunID    string
	Mode     critpath.Mode
	DryRun   bool
	Phase    Phase
	Phases   []Phase
	Duration time.Duration

	// Analysis is nil when validation failed.
	Analysis *estimator.Analysis
	CacheHit bool

	// Result is nil for dry runs and for runs refused before execution.
	Result *executor.Result
}

// Estimate is the expected total runtime in the run's mode.
func (o *Outcome) Estimate() float64 {
	if o.Analysis == nil {
		return 0
	}
	return o.Analysis.Estimate(o.Mode)
}

// Speedup is the measured ratio of summed body time to wall-clock time, zero
// when nothing ran.
func (o *Outcome) Speedup() float64 {
	if o.Result == nil {
		return 0
	}
	return o.Result.Metrics.Concurrency()
}

// Run takes records through validation, estimation and, unless the
// configuration asks for a dry run, execution.
//
// The Outcome is always returned and holds whatever the run produced before
// it stopped; the error is the reason it stopped.
func (s *Scheduler) Run(ctx context.Context, records []critpath.Record) (*Outcome, error) {
	return s.execute(ctx, s.newRun(records), nil)
}

func (s *Scheduler) newRun(records []critpath.Record) *RunContext {
	return NewRunContext(records, s.config.Mode, s.config.DryRun)
}

func (s *Scheduler) execute(ctx context.Context, rc *RunContext, onPhase func(Phase)) (*Outcome, error) {
	sm := createRunStateMachine(runComponents{
		Body:     s.body,
		Analyses: s.analyses,
		Logger:   s.logger,
	}, s.eventBus)
	sm.OnPhase(onPhase)

	err := sm.Execute(ctx, rc)

	out := &Outcome{
		RunID:    rc.ID,
		Mode:     rc.Mode,
		DryRun:   rc.DryRun,
		Phase:    rc.CurrentPhase,
		Phases:   rc.History(),
		Duration: rc.TotalDuration(),
		Analysis: rc.Analysis,
		CacheHit: rc.CacheHit,
		Result:   rc.Result,
	}

	if err != nil {
		s.logger.Error("run failed", "run_id", rc.ID, "phase", rc.ErrorStage, "code", critpath.CodeOf(err), "error", err)
		return out, err
	}
	s.logger.Info("run complete", "run_id", rc.ID, "elapsed", out.Duration, "dry_run", rc.DryRun)
	return out, nil
}
