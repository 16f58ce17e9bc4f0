// Package report renders estimates, validation problems, plans and run
// results for people reading a terminal.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/estimator"
	"github.com/ZanzyTHEbar/critpath/internal/executor"
)

// Printer writes reports to one output.
type Printer struct {
	w  io.Writer
	st styles
}

// New creates a Printer for w. Styling degrades to plain text when w is not
// a terminal.
func New(w io.Writer) *Printer {
	return &Printer{
		w:  w,
		st: newStyles(lipgloss.NewRenderer(w)),
	}
}

// Seconds formats a duration given in seconds, dropping float noise.
func Seconds(v float64) string {
	v = math.Round(v*1e6) / 1e6
	return strconv.FormatFloat(v, 'f', -1, 64) + "s"
}

// Estimate prints the expected total runtime of a dry run.
func (p *Printer) Estimate(source string, mode critpath.Mode, a *estimator.Analysis) {
	p.line(p.st.title.Render(fmt.Sprintf("Expected runtime (%s): %s", mode, Seconds(a.Estimate(mode)))))
	p.line(p.st.subtle.Render(fmt.Sprintf("%s: %d tasks, serial %s, parallel %s, speed-up %.2fx",
		source, len(a.Order), Seconds(a.Serial), Seconds(a.Parallel), a.Speedup())))
}

// Problems prints every validation or cycle problem carried by err.
func (p *Printer) Problems(source string, err error) {
	var ve *critpath.ValidationError
	var ce *critpath.CycleError
	switch {
	case errors.As(err, &ve):
		noun := "problems"
		if len(ve.Issues) == 1 {
			noun = "problem"
		}
		p.line(p.st.failure.Render(fmt.Sprintf("✗ %s: %d %s", source, len(ve.Issues), noun)))
		for _, is := range ve.Issues {
			p.line(fmt.Sprintf("  - %s %s", is, p.st.subtle.Render("["+string(is.Kind)+"]")))
		}
	case errors.As(err, &ce):
		p.line(p.st.failure.Render(fmt.Sprintf("✗ %s: dependency cycle", source)))
		p.line("  - " + strings.TrimPrefix(ce.Error(), critpath.ErrCycle.Error()+": "))
	default:
		p.line(p.st.failure.Render(fmt.Sprintf("✗ %s: %v", source, err)))
	}
}

// Valid prints the one-line summary of a specification that passed
// validation.
func (p *Printer) Valid(source string, tasks int) {
	p.line(p.st.success.Render(fmt.Sprintf("✓ %s: %d tasks, no problems", source, tasks)))
}

// Plan prints the per-task schedule, the critical path and the parallel
// waves of an analysis.
func (p *Printer) Plan(a *estimator.Analysis) {
	rows := make([][]string, 0, len(a.Order))
	critical := make([]bool, 0, len(a.Order))
	for _, id := range a.Order {
		s := a.Tasks[id]
		name := string(id)
		if s.IsCritical {
			name += " *"
		}
		rows = append(rows, []string{
			name,
			Seconds(s.EF - s.ES),
			Seconds(s.ES), Seconds(s.EF),
			Seconds(s.LS), Seconds(s.LF),
			Seconds(s.Slack),
			strconv.Itoa(s.Wave + 1),
		})
		critical = append(critical, s.IsCritical)
	}

	t := p.table("TASK", "DURATION", "ES", "EF", "LS", "LF", "SLACK", "WAVE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return p.st.header
			case row >= 0 && row < len(critical) && critical[row]:
				return p.st.cell.Inherit(p.st.critical)
			default:
				return p.st.cell
			}
		})
	p.line(t.String())

	chain := make([]string, len(a.CriticalPath))
	for i, id := range a.CriticalPath {
		chain[i] = string(id)
	}
	p.line(p.st.title.Render("Critical path: ") + strings.Join(chain, " → ") + " " + p.st.subtle.Render("("+Seconds(a.Parallel)+")"))

	for _, w := range a.Waves {
		ids := make([]string, len(w.TaskIDs))
		for i, id := range w.TaskIDs {
			ids[i] = string(id)
		}
		line := fmt.Sprintf("Wave %d at %s: %s", w.Index+1, Seconds(w.Start), strings.Join(ids, ", "))
		if w.IsCritical {
			line += " " + p.st.critical.Render("(critical)")
		}
		p.line(line)
	}
}

// Run prints per-task outcomes and aggregate timing of a real run. err is the
// error the run returned, if any.
func (p *Printer) Run(res *executor.Result, err error) {
	rows := make([][]string, 0, len(res.Tasks))
	statuses := make([]critpath.TaskStatus, 0, len(res.Tasks))
	for _, t := range res.Tasks {
		start, took := "-", "-"
		if !t.Start.IsZero() {
			start = "+" + elapsed(t.Start.Sub(res.Start))
			took = elapsed(t.Elapsed())
		}
		rows = append(rows, []string{string(t.ID), string(t.Status), start, took, detail(t)})
		statuses = append(statuses, t.Status)
	}

	tbl := p.table("TASK", "STATUS", "START", "ELAPSED", "DETAIL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.st.header
			}
			if col != 1 || row < 0 || row >= len(statuses) {
				return p.st.cell
			}
			return p.st.cell.Inherit(p.statusStyle(statuses[row]))
		})
	p.line(tbl.String())

	m := res.Metrics
	summary := fmt.Sprintf("%s run finished in %s: %d completed, %d failed, %d skipped",
		res.Mode, elapsed(res.Elapsed()), m.TasksSuccessful, m.TasksFailed, m.TasksSkipped)
	switch {
	case cancelled(err):
		p.line(p.st.skipped.Render("Cancelled: " + summary))
	case err != nil:
		p.line(p.st.failure.Render("✗ " + summary))
	default:
		p.line(p.st.success.Render("✓ " + summary))
	}
	if m.TasksExecuted > 0 {
		p.line(p.st.subtle.Render(fmt.Sprintf("busy %s, concurrency %.2fx, longest task %s (%s)",
			elapsed(m.TotalDuration), m.Concurrency(), m.LongestTask, elapsed(m.LongestTaskTime))))
	}
}

// cancelled reports whether err is an execution error interrupted by
// cancellation.
func cancelled(err error) bool {
	var ee *critpath.ExecutionError
	return errors.As(err, &ee) && critpath.CodeOf(ee.Cause) == critpath.ErrCodeCancelled
}

func (p *Printer) statusStyle(s critpath.TaskStatus) lipgloss.Style {
	switch s {
	case critpath.TaskStatusCompleted:
		return p.st.success
	case critpath.TaskStatusFailed:
		return p.st.failure
	case critpath.TaskStatusSkipped:
		return p.st.skipped
	default:
		return p.st.subtle
	}
}

func (p *Printer) table(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.st.border).
		Headers(headers...)
}

func (p *Printer) line(s string) {
	fmt.Fprintln(p.w, s)
}

func detail(t critpath.TaskResult) string {
	switch {
	case t.Status == critpath.TaskStatusFailed && t.Err != nil:
		return t.Err.Error()
	case t.Status == critpath.TaskStatusSkipped && t.BlockedBy != "":
		return "blocked by " + string(t.BlockedBy)
	case t.Status == critpath.TaskStatusSkipped:
		return "not started"
	default:
		return ""
	}
}

func elapsed(d time.Duration) string {
	if d >= time.Millisecond {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Microsecond).String()
}
