package critpath

import (
	"context"
	"time"
)

// TaskBody performs the real work of a task.
//
// The engine treats the body as opaque: it only observes when Run starts and
// whether it returned an error. Bodies must not touch resources a task did not
// declare; mutual exclusion is only guaranteed for declared resources.
type TaskBody interface {
	Run(ctx context.Context, task Task) error
}

// BodyFunc adapts a plain function to the TaskBody interface.
type BodyFunc func(ctx context.Context, task Task) error

// Run calls f(ctx, task).
func (f BodyFunc) Run(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// Cache provides storage for values that are expensive to recompute, like
// critical path analyses of an unchanged graph.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Config holds the configuration options for a scheduling run.
type Config struct {
	// Mode selects serial or parallel execution.
	Mode Mode

	// DryRun restricts a run to validation and estimation.
	DryRun bool

	// TimeScale multiplies declared durations for bodies that simulate work.
	TimeScale float64

	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int

	// AnalysisCacheTTL bounds how long an estimate is reused for an unchanged graph.
	AnalysisCacheTTL time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeParallel,
		TimeScale:           1.0,
		EnableEventBus:      false,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 1,
		AnalysisCacheTTL:    10 * time.Minute,
	}
}

// Validate checks a configuration for values the engine cannot honour.
func (c Config) Validate() error {
	if c.Mode != ModeSerial && c.Mode != ModeParallel {
		return NewConfigurationError("mode must be serial or parallel, got "+string(c.Mode), nil)
	}
	if c.TimeScale < 0 {
		return NewConfigurationError("time scale must not be negative", nil)
	}
	if c.EnableEventBus && (c.EventBusBufferSize <= 0 || c.EventBusWorkerCount <= 0) {
		return NewConfigurationError("event bus needs a positive buffer size and worker count", nil)
	}
	return nil
}
