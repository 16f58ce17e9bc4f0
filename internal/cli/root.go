// Package cli implements the critpath command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/bodies"
	"github.com/ZanzyTHEbar/critpath/internal/eventbus"
	"github.com/ZanzyTHEbar/critpath/internal/logging"
	"github.com/ZanzyTHEbar/critpath/internal/report"
	"github.com/ZanzyTHEbar/critpath/internal/scheduler"
	"github.com/ZanzyTHEbar/critpath/internal/taskfile"
)

// EnvLogLevel supplies the default for --log-level.
const EnvLogLevel = "CRITPATH_LOG_LEVEL"

// options holds the flag values of one command tree.
type options struct {
	logLevel  string
	logFormat string
	format    string

	mode        string
	dryRun      bool
	timeScale   float64
	traceEvents bool

	logger *slog.Logger
}

// defaultLogLevel returns the default log level, checking CRITPATH_LOG_LEVEL first.
func defaultLogLevel() string {
	if s := os.Getenv(EnvLogLevel); s != "" {
		return s
	}
	return "INFO"
}

// NewRootCmd creates the root cobra command for the critpath CLI.
func NewRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "critpath <file>",
		Short: "Validate, estimate and run dependent tasks",
		Long: `critpath reads a task file (CSV or YAML) in which every task has a duration
and a list of tasks it depends on. It rejects invalid files and dependency
cycles, reports the expected total runtime, and runs the tasks either one at a
time or with as much parallelism as the dependencies allow.`,
		Args: cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.LookupLevel(o.logLevel)
			if err != nil {
				return err
			}
			o.logger = logging.NewLoggerWithWriter(level, o.logFormat, cmd.ErrOrStderr())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.logLevel, "log-level", defaultLogLevel(), "Log level ("+strings.Join(logging.Levels, ", ")+") (or "+EnvLogLevel+" env)")
	pf.StringVar(&o.logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&o.format, "format", "", "Task file format ("+strings.Join(taskfile.Formats(), ", ")+"); inferred from the extension when empty")

	f := root.Flags()
	f.StringVar(&o.mode, "mode", string(critpath.ModeParallel), "Execution mode (serial, parallel)")
	f.BoolVar(&o.dryRun, "dry-run", false, "Validate and print the expected runtime without running any task")
	f.Float64Var(&o.timeScale, "time-scale", 1.0, "Multiplier applied to durations by the sleep body")
	f.BoolVar(&o.traceEvents, "trace-events", false, "Log every run and task event at debug level")

	root.AddCommand(
		newValidateCmd(o),
		newPlanCmd(o),
	)

	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// load reads a task file, honouring --format.
func (o *options) load(path string) ([]critpath.Record, error) {
	if o.format != "" {
		return taskfile.LoadAs(path, o.format)
	}
	return taskfile.Load(path)
}

// config maps the flags onto a scheduler configuration.
func (o *options) config() (critpath.Config, error) {
	mode, err := critpath.ParseMode(o.mode)
	if err != nil {
		return critpath.Config{}, err
	}
	cfg := critpath.DefaultConfig()
	cfg.Mode = mode
	cfg.DryRun = o.dryRun
	cfg.TimeScale = o.timeScale
	cfg.EnableEventBus = o.traceEvents
	return cfg, nil
}

func (o *options) run(cmd *cobra.Command, path string) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	records, err := o.load(path)
	if err != nil {
		return err
	}
	o.logger.Info("tasks loaded", "path", path, "tasks", len(records))

	out := &lockedWriter{w: cmd.OutOrStdout()}
	s, err := scheduler.New(
		scheduler.WithConfig(cfg),
		scheduler.WithLogger(o.logger),
		scheduler.WithBody(bodies.Default(cfg.TimeScale, &bodies.Exec{Output: out})),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	if bus := s.EventBus(); bus != nil {
		if _, err := bus.SubscribeAll(o.traceEvent); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	id, err := s.Start(ctx, records)
	if err != nil {
		return err
	}
	// An interrupt cancels the background run; Wait still collects its outcome.
	stop := context.AfterFunc(ctx, func() { _, _ = s.Cancel(id) })
	outcome, runErr := s.Wait(context.WithoutCancel(ctx), id)
	stop()
	// Deliver queued events before the report is printed.
	s.Close()

	p := report.New(cmd.OutOrStdout())
	switch {
	case outcome.Result != nil:
		p.Run(outcome.Result, runErr)
	case runErr != nil:
		p.Problems(path, runErr)
	default:
		p.Estimate(path, cfg.Mode, outcome.Analysis)
	}
	return runErr
}

func (o *options) traceEvent(_ context.Context, ev eventbus.Event) error {
	o.logger.Debug("event",
		"event_type", ev.Type(),
		"run_id", eventbus.MetaString(ev, eventbus.MetaRunID),
		"task_id", eventbus.MetaString(ev, eventbus.MetaTaskID),
		"phase", eventbus.MetaString(ev, eventbus.MetaPhase))
	return nil
}

// lockedWriter serialises writes from exec bodies running in parallel.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// errInvalid reports how many inputs failed validation.
func errInvalid(bad, total int) error {
	return fmt.Errorf("%d of %d task files are invalid", bad, total)
}
