package bodies

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/critpath"
)

// Sleep simulates work by waiting for the task's declared duration times Scale.
type Sleep struct {
	Scale float64
}

func (s Sleep) Run(ctx context.Context, task critpath.Task) error {
	d := task.Wall(s.Scale)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Environment variables passed to exec bodies.
const (
	EnvTaskID        = "CRITPATH_TASK_ID"
	EnvTaskDuration  = "CRITPATH_TASK_DURATION"
	EnvTaskResources = "CRITPATH_TASK_RESOURCES"
)

// Exec runs the task's command through a shell. A non-zero exit status fails
// the task.
type Exec struct {
	// Shell defaults to "sh".
	Shell string
	// Output receives the combined stdout and stderr of every command and
	// must accept concurrent writes. Nil discards it.
	Output io.Writer
}

func (e *Exec) Run(ctx context.Context, task critpath.Task) error {
	command := strings.TrimSpace(task.Command)
	if command == "" {
		return fmt.Errorf("task %s has no command to run", task.ID)
	}
	shell := e.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Env = append(os.Environ(),
		EnvTaskID+"="+string(task.ID),
		EnvTaskDuration+"="+strconv.FormatFloat(task.Duration, 'g', -1, 64),
		EnvTaskResources+"="+strings.Join(task.Resources, ","),
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if e.Output != nil && out.Len() > 0 {
		_, _ = e.Output.Write(out.Bytes())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("command %q: %w", command, err)
	}
	return nil
}
