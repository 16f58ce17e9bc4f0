package bodies

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/critpath"
)

func TestSleep_HonoursScale(t *testing.T) {
	task := critpath.Task{ID: "s", Duration: 2}
	start := time.Now()
	if err := (Sleep{Scale: 0.02}).Run(context.Background(), task); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if el := time.Since(start); el < 35*time.Millisecond || el > time.Second {
		t.Errorf("slept %v, want about 40ms", el)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := (Sleep{Scale: 1}).Run(ctx, critpath.Task{ID: "long", Duration: 60})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want DeadlineExceeded", err)
	}
}

func TestExec_Success(t *testing.T) {
	var out bytes.Buffer
	e := &Exec{Output: &out}
	task := critpath.Task{
		ID:        "build",
		Duration:  1.5,
		Resources: []string{"disk", "net"},
		Command:   `echo "$CRITPATH_TASK_ID $CRITPATH_TASK_DURATION $CRITPATH_TASK_RESOURCES"`,
	}
	if err := e.Run(context.Background(), task); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "build 1.5 disk,net" {
		t.Errorf("output = %q", got)
	}
}

func TestExec_Failures(t *testing.T) {
	e := &Exec{}
	if err := e.Run(context.Background(), critpath.Task{ID: "x", Command: "exit 3"}); err == nil || !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("non-zero exit: got %v", err)
	}
	if err := e.Run(context.Background(), critpath.Task{ID: "x"}); err == nil {
		t.Error("empty command should fail")
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.Register("a", critpath.BodyFunc(func(_ context.Context, task critpath.Task) error {
		got = append(got, "a:"+string(task.ID))
		return nil
	}))
	r.Register(KindSleep, critpath.BodyFunc(func(_ context.Context, task critpath.Task) error {
		got = append(got, "sleep:"+string(task.ID))
		return nil
	}))

	ctx := context.Background()
	_ = r.Run(ctx, critpath.Task{ID: "t1", Body: "a"})
	_ = r.Run(ctx, critpath.Task{ID: "t2"})
	if !reflect.DeepEqual(got, []string{"a:t1", "sleep:t2"}) {
		t.Errorf("dispatch order = %v", got)
	}

	r.SetFallback("a")
	_ = r.Run(ctx, critpath.Task{ID: "t3"})
	if got[len(got)-1] != "a:t3" {
		t.Errorf("fallback not applied: %v", got)
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := Default(0, nil)
	if !reflect.DeepEqual(r.Kinds(), []string{KindExec, KindNoop, KindSleep}) {
		t.Errorf("Kinds() = %v", r.Kinds())
	}

	err := r.Run(context.Background(), critpath.Task{ID: "t", Body: "teleport"})
	if critpath.CodeOf(err) != critpath.ErrCodeBodyNotFound {
		t.Errorf("unknown kind: code = %q, err = %v", critpath.CodeOf(err), err)
	}
	if err == nil || !strings.Contains(err.Error(), "teleport") {
		t.Errorf("error should name the kind: %v", err)
	}

	tasks := []critpath.Task{{ID: "ok"}, {ID: "bad", Body: "teleport"}}
	if err := r.Check(tasks); err == nil || !strings.Contains(err.Error(), "task bad") {
		t.Errorf("Check = %v", err)
	}
	if err := r.Check(tasks[:1]); err != nil {
		t.Errorf("Check(valid) = %v", err)
	}
}
