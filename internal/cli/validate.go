package cli

import (
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/critpath/internal/graph"
	"github.com/ZanzyTHEbar/critpath/internal/report"
)

// checked is the validation outcome of one file.
type checked struct {
	path  string
	tasks int
	err   error
}

func newValidateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check task files for structural errors and dependency cycles",
		Long: `Validate loads every file and reports all problems found in each one:
duplicate or empty identifiers, unknown dependencies, invalid durations,
self-dependencies and dependency cycles. Files are checked concurrently and
reported in the order given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := o.validateAll(args)

			p := report.New(cmd.OutOrStdout())
			bad := 0
			for _, r := range results {
				if r.err != nil {
					bad++
					p.Problems(r.path, r.err)
					continue
				}
				p.Valid(r.path, r.tasks)
			}
			if bad > 0 {
				return errInvalid(bad, len(results))
			}
			return nil
		},
	}
}

// validateAll loads and validates paths concurrently. A failure in one file
// never stops the others, so every result slot is filled.
func (o *options) validateAll(paths []string) []checked {
	results := make([]checked, len(paths))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			results[i] = checked{path: path}
			records, err := o.load(path)
			if err != nil {
				results[i].err = err
				return nil
			}
			gr, err := graph.New(records)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].tasks = gr.Len()
			o.logger.Debug("task file valid", "path", path, "tasks", gr.Len())
			return nil
		})
	}
	_ = g.Wait()
	return results
}
