// Package bodies provides the built-in task bodies and a registry that
// dispatches each task to the body named by its kind.
package bodies

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/ZanzyTHEbar/critpath"
)

// Built-in body kinds.
const (
	KindSleep = "sleep"
	KindExec  = "exec"
	KindNoop  = "noop"
)

// Registry maps body kinds to bodies. It implements critpath.TaskBody; a
// task without a kind runs the fallback body.
type Registry struct {
	mu       sync.RWMutex
	bodies   map[string]critpath.TaskBody
	fallback string
}

// NewRegistry creates an empty registry whose fallback kind is sleep.
func NewRegistry() *Registry {
	return &Registry{
		bodies:   make(map[string]critpath.TaskBody),
		fallback: KindSleep,
	}
}

// Default returns a registry with sleep, exec and noop registered.
func Default(timeScale float64, exec *Exec) *Registry {
	r := NewRegistry()
	r.Register(KindSleep, Sleep{Scale: timeScale})
	if exec == nil {
		exec = &Exec{}
	}
	r.Register(KindExec, exec)
	r.Register(KindNoop, critpath.BodyFunc(func(context.Context, critpath.Task) error { return nil }))
	return r
}

// Register adds or replaces the body for kind.
func (r *Registry) Register(kind string, body critpath.TaskBody) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies[kind] = body
}

// SetFallback selects the kind used for tasks that do not name one.
func (r *Registry) SetFallback(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = kind
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.bodies))
	for k := range r.bodies {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Lookup returns the body for kind, or the fallback body when kind is empty.
func (r *Registry) Lookup(kind string) (critpath.TaskBody, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kind == "" {
		kind = r.fallback
	}
	body, ok := r.bodies[kind]
	if !ok {
		return nil, critpath.NewBodyNotFoundError("execution", kind,
			errbuilder.NotFoundErr(errbuilder.GenericErr(fmt.Sprintf("body kind %q is not registered", kind), nil)))
	}
	return body, nil
}

// Check verifies that every task names a registered kind, so a run can be
// refused before any body starts.
func (r *Registry) Check(tasks []critpath.Task) error {
	for _, t := range tasks {
		if _, err := r.Lookup(t.Body); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	return nil
}

// Run dispatches task to the body registered for its kind.
func (r *Registry) Run(ctx context.Context, task critpath.Task) error {
	body, err := r.Lookup(task.Body)
	if err != nil {
		return err
	}
	return body.Run(ctx, task)
}
