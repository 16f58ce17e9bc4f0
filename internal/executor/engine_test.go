package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/eventbus"
	"github.com/ZanzyTHEbar/critpath/internal/graph"
)

func rec(id, dur string, deps ...string) critpath.Record {
	return critpath.Record{ID: id, Duration: dur, Dependencies: deps}
}

func mustGraph(t *testing.T, records ...critpath.Record) *graph.Graph {
	t.Helper()
	g, err := graph.New(records)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	return g
}

// recorder is a body that sleeps for a task's declared duration in
// milliseconds and records the order in which tasks started.
type recorder struct {
	mu      sync.Mutex
	started []critpath.TaskID
	fail    map[critpath.TaskID]error
}

func (r *recorder) Run(ctx context.Context, task critpath.Task) error {
	r.mu.Lock()
	r.started = append(r.started, task.ID)
	err := r.fail[task.ID]
	r.mu.Unlock()

	select {
	case <-time.After(time.Duration(task.Duration * float64(time.Millisecond))):
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (r *recorder) order() []critpath.TaskID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]critpath.TaskID(nil), r.started...)
}

func TestEngine_DependenciesStartAfterCompletion(t *testing.T) {
	g := mustGraph(t,
		rec("A", "20"),
		rec("B", "30", "A"),
		rec("C", "10", "A"),
		rec("D", "20", "B", "C"),
		rec("E", "5"),
	)
	for _, mode := range []critpath.Mode{critpath.ModeParallel, critpath.ModeSerial} {
		t.Run(string(mode), func(t *testing.T) {
			res, err := New(&recorder{}).Run(context.Background(), g, mode)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !res.Succeeded() {
				t.Fatalf("not all tasks completed: %+v", res.Tasks)
			}
			for i := 0; i < g.Len(); i++ {
				task := g.Task(i)
				tr, _ := res.Task(task.ID)
				for _, dep := range task.Dependencies {
					dr, _ := res.Task(dep)
					if tr.Start.Before(dr.End) {
						t.Errorf("%s started at %v before dependency %s ended at %v", task.ID, tr.Start, dep, dr.End)
					}
				}
			}
		})
	}
}

func TestEngine_FanInDispatchesOnce(t *testing.T) {
	const roots = 300
	records := make([]critpath.Record, 0, roots+1)
	deps := make([]string, 0, roots)
	for i := 0; i < roots; i++ {
		id := fmt.Sprintf("r%03d", i)
		records = append(records, rec(id, "0"))
		deps = append(deps, id)
	}
	records = append(records, rec("sink", "0", deps...))
	g := mustGraph(t, records...)

	for iter := 0; iter < 100; iter++ {
		var rootsDone, sinkRuns, rootsAtSink atomic.Int64
		body := critpath.BodyFunc(func(ctx context.Context, task critpath.Task) error {
			if task.ID == "sink" {
				sinkRuns.Add(1)
				rootsAtSink.Store(rootsDone.Load())
				return nil
			}
			rootsDone.Add(1)
			return nil
		})

		res, err := New(body).Run(context.Background(), g, critpath.ModeParallel)
		if err != nil {
			t.Fatalf("iteration %d: Run: %v", iter, err)
		}
		if !res.Succeeded() {
			t.Fatalf("iteration %d: not all tasks completed", iter)
		}
		if n := sinkRuns.Load(); n != 1 {
			t.Fatalf("iteration %d: sink ran %d times, want 1", iter, n)
		}
		if n := rootsAtSink.Load(); n != roots {
			t.Fatalf("iteration %d: sink started after %d of %d roots", iter, n, roots)
		}
		sink, _ := res.Task("sink")
		for _, dep := range deps {
			dr, _ := res.Task(critpath.TaskID(dep))
			if sink.Start.Before(dr.End) {
				t.Fatalf("iteration %d: sink started before %s ended", iter, dep)
			}
		}
	}
}

func TestEngine_ParallelOverlapsIndependentTasks(t *testing.T) {
	g := mustGraph(t, rec("a", "80"), rec("b", "80"), rec("c", "80"))
	res, err := New(&recorder{}).Run(context.Background(), g, critpath.ModeParallel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Elapsed() >= 200*time.Millisecond {
		t.Errorf("parallel run took %v, expected well under the 240ms serial sum", res.Elapsed())
	}
	if res.Metrics.Concurrency() < 1.5 {
		t.Errorf("concurrency = %.2f, want > 1.5", res.Metrics.Concurrency())
	}
}

func TestEngine_SerialRunsOneAtATimeInFileOrder(t *testing.T) {
	g := mustGraph(t, rec("a", "15"), rec("b", "15"), rec("c", "15", "a"), rec("d", "15"))
	body := &recorder{}
	res, err := New(body).Run(context.Background(), g, critpath.ModeSerial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []critpath.TaskID{"a", "b", "c", "d"}
	if got := body.order(); !reflect.DeepEqual(got, want) {
		t.Errorf("start order = %v, want %v", got, want)
	}
	for k := 1; k < len(res.Tasks); k++ {
		prev, cur := res.Tasks[k-1], res.Tasks[k]
		if cur.Start.Before(prev.End) {
			t.Errorf("%s overlapped %s in serial mode", cur.ID, prev.ID)
		}
	}
}

func TestEngine_SerialDefersForwardDependency(t *testing.T) {
	// "first" depends on a task listed after it.
	g := mustGraph(t, rec("first", "1", "second"), rec("second", "1"), rec("third", "1"))
	body := &recorder{}
	if _, err := New(body).Run(context.Background(), g, critpath.ModeSerial); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []critpath.TaskID{"second", "first", "third"}
	if got := body.order(); !reflect.DeepEqual(got, want) {
		t.Errorf("start order = %v, want %v", got, want)
	}
}

func TestEngine_FailurePropagation(t *testing.T) {
	g := mustGraph(t,
		rec("A", "5"),
		rec("B", "5", "A"),
		rec("C", "5", "A"),
		rec("D", "5", "B", "C"),
		rec("E", "5", "D"),
		rec("F", "30"),
	)
	boom := errors.New("boom")
	for _, mode := range []critpath.Mode{critpath.ModeParallel, critpath.ModeSerial} {
		t.Run(string(mode), func(t *testing.T) {
			body := &recorder{fail: map[critpath.TaskID]error{"B": boom}}
			res, err := New(body).Run(context.Background(), g, mode)

			var ee *critpath.ExecutionError
			if !errors.As(err, &ee) {
				t.Fatalf("expected *ExecutionError, got %v", err)
			}
			if !errors.Is(err, critpath.ErrExecution) {
				t.Error("errors.Is(err, ErrExecution) = false")
			}
			if got := ee.FailedIDs(); !reflect.DeepEqual(got, []critpath.TaskID{"B"}) {
				t.Errorf("failed = %v, want [B]", got)
			}
			if !errors.Is(ee.Failed["B"], boom) {
				t.Errorf("failure cause = %v", ee.Failed["B"])
			}
			skipped := append([]critpath.TaskID(nil), ee.Skipped...)
			sort.Slice(skipped, func(i, j int) bool { return skipped[i] < skipped[j] })
			if !reflect.DeepEqual(skipped, []critpath.TaskID{"D", "E"}) {
				t.Errorf("skipped = %v, want [D E]", skipped)
			}

			for _, id := range []critpath.TaskID{"A", "C", "F"} {
				if tr, _ := res.Task(id); tr.Status != critpath.TaskStatusCompleted {
					t.Errorf("%s status = %s, want completed", id, tr.Status)
				}
			}
			for _, id := range []critpath.TaskID{"D", "E"} {
				tr, _ := res.Task(id)
				if tr.BlockedBy != "B" {
					t.Errorf("%s blocked by %q, want B", id, tr.BlockedBy)
				}
				if !tr.Start.IsZero() {
					t.Errorf("%s was dispatched", id)
				}
			}
			for _, id := range body.order() {
				if id == "D" || id == "E" {
					t.Errorf("body invoked for skipped task %s", id)
				}
			}
			if res.Metrics.TasksFailed != 1 || res.Metrics.TasksSkipped != 2 || res.Metrics.TasksSuccessful != 3 {
				t.Errorf("metrics = %+v", res.Metrics)
			}
		})
	}
}

func TestEngine_ResourcesNeverOverlap(t *testing.T) {
	records := []critpath.Record{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		records = append(records, critpath.Record{ID: id, Duration: "10", Resources: []string{"disk"}})
	}
	records = append(records, critpath.Record{ID: "g", Duration: "10", Resources: []string{"net"}})
	g := mustGraph(t, records...)

	res, err := New(&recorder{}).Run(context.Background(), g, critpath.ModeParallel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var disk []critpath.TaskResult
	for _, tr := range res.Tasks {
		if tr.ID != "g" {
			disk = append(disk, tr)
		}
	}
	sort.Slice(disk, func(i, j int) bool { return disk[i].Start.Before(disk[j].Start) })
	for k := 1; k < len(disk); k++ {
		if disk[k].Start.Before(disk[k-1].End) {
			t.Errorf("%s [%v] overlapped %s [%v] on disk", disk[k].ID, disk[k].Start, disk[k-1].ID, disk[k-1].End)
		}
	}
}

func TestEngine_PanicBecomesFailure(t *testing.T) {
	g := mustGraph(t, rec("bad", "0"), rec("after", "0", "bad"), rec("fine", "0"))
	body := critpath.BodyFunc(func(ctx context.Context, task critpath.Task) error {
		if task.ID == "bad" {
			panic("kaboom")
		}
		return nil
	})
	res, err := New(body).Run(context.Background(), g, critpath.ModeParallel)
	var ee *critpath.ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExecutionError, got %v", err)
	}
	if critpath.CodeOf(ee.Failed["bad"]) != critpath.ErrCodeInternal {
		t.Errorf("panic error = %v", ee.Failed["bad"])
	}
	if tr, _ := res.Task("fine"); tr.Status != critpath.TaskStatusCompleted {
		t.Errorf("fine status = %s", tr.Status)
	}
	if tr, _ := res.Task("after"); tr.Status != critpath.TaskStatusSkipped {
		t.Errorf("after status = %s", tr.Status)
	}
}

func TestEngine_Cancellation(t *testing.T) {
	g := mustGraph(t, rec("slow", "5000"), rec("next", "1", "slow"), rec("other", "1", "next"))
	ctx, cancel := context.WithCancel(context.Background())

	body := critpath.BodyFunc(func(ctx context.Context, task critpath.Task) error {
		if task.ID == "slow" {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	res, err := New(body).Run(ctx, g, critpath.ModeParallel)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	var ce *critpath.Error
	if !errors.As(err, &ce) || ce.Code != critpath.ErrCodeCancelled {
		t.Errorf("expected EXECUTION_CANCELLED in chain, got %v", err)
	}
	for _, id := range []critpath.TaskID{"next", "other"} {
		if tr, _ := res.Task(id); tr.Status != critpath.TaskStatusSkipped {
			t.Errorf("%s status = %s, want skipped", id, tr.Status)
		}
	}
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	g := mustGraph(t, rec("a", "1"), rec("b", "1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	body := critpath.BodyFunc(func(context.Context, critpath.Task) error { called = true; return nil })
	for _, mode := range []critpath.Mode{critpath.ModeParallel, critpath.ModeSerial} {
		res, err := New(body).Run(ctx, g, mode)
		if !errors.Is(err, critpath.ErrExecution) || !errors.Is(err, context.Canceled) {
			t.Errorf("%s: unexpected error %v", mode, err)
		}
		if res.Metrics.TasksSkipped != 2 {
			t.Errorf("%s: skipped = %d, want 2", mode, res.Metrics.TasksSkipped)
		}
	}
	if called {
		t.Error("body invoked after cancellation")
	}
}

func TestEngine_EmptyGraph(t *testing.T) {
	g := mustGraph(t)
	res, err := New(&recorder{}).Run(context.Background(), g, critpath.ModeParallel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Tasks) != 0 || !res.Succeeded() {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestEngine_Misconfiguration(t *testing.T) {
	g := mustGraph(t, rec("a", "1"))
	if _, err := New(nil).Run(context.Background(), g, critpath.ModeParallel); critpath.CodeOf(err) != critpath.ErrCodeConfiguration {
		t.Errorf("nil body: got %v", err)
	}
	if _, err := New(&recorder{}).Run(context.Background(), g, critpath.Mode("turbo")); critpath.CodeOf(err) != critpath.ErrCodeConfiguration {
		t.Errorf("bad mode: got %v", err)
	}
}

func TestEngine_PublishesTaskEvents(t *testing.T) {
	bus := eventbus.NewChannelEventBus(eventbus.WithBufferSize(64))

	var mu sync.Mutex
	seen := map[eventbus.EventType][]string{}
	_, err := bus.SubscribeAll(func(_ context.Context, ev eventbus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		if eventbus.MetaString(ev, eventbus.MetaRunID) != "run-1" {
			t.Errorf("event %s missing run id", ev.Type())
		}
		seen[ev.Type()] = append(seen[ev.Type()], eventbus.MetaString(ev, eventbus.MetaTaskID))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	g := mustGraph(t, rec("a", "0"), rec("b", "0", "a"), rec("c", "0", "b"))
	body := &recorder{fail: map[critpath.TaskID]error{"b": errors.New("nope")}}
	_, _ = New(body, WithEventBus(bus), WithRunID("run-1")).Run(context.Background(), g, critpath.ModeParallel)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	want := map[eventbus.EventType][]string{
		eventbus.EventTaskReady:     {"a", "b"},
		eventbus.EventTaskStarted:   {"a", "b"},
		eventbus.EventTaskCompleted: {"a"},
		eventbus.EventTaskFailed:    {"b"},
		eventbus.EventTaskSkipped:   {"c"},
	}
	for typ, ids := range want {
		got := append([]string(nil), seen[typ]...)
		sort.Strings(got)
		if !reflect.DeepEqual(got, ids) {
			t.Errorf("%s events for %v, want %v", typ, got, ids)
		}
	}
}
