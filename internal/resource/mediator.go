// Package resource grants tasks exclusive access to named shared resources.
package resource

import (
	"context"
	"sort"
	"sync"
)

// Mediator owns the lock table for one run. Locks are created the first time
// a name is referenced. The zero value is not usable; call New.
type Mediator struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// New creates an empty mediator.
func New() *Mediator {
	return &Mediator{locks: make(map[string]chan struct{})}
}

func (m *Mediator) lock(name string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[name] = ch
	}
	return ch
}

// acquire blocks until name is free or ctx is done.
func (m *Mediator) acquire(ctx context.Context, name string) error {
	select {
	case m.lock(name) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees name whoever holds it, so only a Lease that acquired name may
// call it. Releasing a resource that is not held is a no-op.
func (m *Mediator) release(name string) {
	select {
	case <-m.lock(name):
	default:
	}
}

// Held reports whether name is currently held by some task.
func (m *Mediator) Held(name string) bool {
	return len(m.lock(name)) == 1
}

// Known returns every resource name referenced so far, sorted.
func (m *Mediator) Known() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.locks))
	for n := range m.locks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AcquireAll acquires every name in lexicographic order so that tasks with
// overlapping resource sets can never wait on each other in a circle.
// On failure nothing remains held.
func (m *Mediator) AcquireAll(ctx context.Context, names []string) (*Lease, error) {
	ordered := Ordered(names)
	l := &Lease{m: m}
	for _, n := range ordered {
		if err := m.acquire(ctx, n); err != nil {
			l.Release()
			return nil, err
		}
		l.names = append(l.names, n)
	}
	return l, nil
}

// With runs fn while holding every name, releasing them on every exit path.
func (m *Mediator) With(ctx context.Context, names []string, fn func() error) error {
	lease, err := m.AcquireAll(ctx, names)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn()
}

// Lease is a set of held resources.
type Lease struct {
	m     *Mediator
	names []string
	once  sync.Once
}

// Names returns the held resource names in acquisition order.
func (l *Lease) Names() []string {
	return append([]string(nil), l.names...)
}

// Release frees every held resource in reverse acquisition order. Safe to
// call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		for i := len(l.names) - 1; i >= 0; i-- {
			l.m.release(l.names[i])
		}
	})
}

// Ordered returns names sorted with duplicates and empty names removed.
func Ordered(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	j := 0
	for i, n := range out {
		if i == 0 || n != out[j-1] {
			out[j] = n
			j++
		}
	}
	return out[:j]
}
