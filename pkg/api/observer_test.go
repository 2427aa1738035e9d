package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

//
// Helpers
//

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	created     int
	transitions []TransitionRecord
	rejected    []Operation
	lastErr     error
}

func (o *testObserver) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created++
}

func (o *testObserver) OnTransition(ctx context.Context, inst *WorkflowInstance, rec TransitionRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, rec)
}

func (o *testObserver) OnTransitionRejected(ctx context.Context, inst *WorkflowInstance, op Operation, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, op)
	o.lastErr = err
}

// drive runs the three-step happy path and one rejected call against obs, the
// way an Engine would report them.
func drive(ctx context.Context, obs Observer) *WorkflowInstance {
	inst := Create("wf-obs", nil)
	obs.OnInstanceCreated(ctx, inst)
	for _, op := range []Operation{OpValidate, OpStartProcessing, OpComplete} {
		rec, err := inst.Apply(op)
		if err != nil {
			panic(err)
		}
		obs.OnTransition(ctx, inst, rec)
	}
	if _, err := inst.Apply(OpFail); err != nil {
		obs.OnTransitionRejected(ctx, inst, OpFail, err)
	}
	return inst
}

func TestNewCompositeObserver_FiltersNil(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver for no observers")
	}
	if _, ok := NewCompositeObserver(nil, nil).(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver for only nil observers")
	}

	single := &testObserver{}
	if got := NewCompositeObserver(nil, single); got != single {
		t.Fatalf("expected the single observer to be returned unwrapped")
	}
}

func TestCompositeObserver_FansOut(t *testing.T) {
	a, b := &testObserver{}, &testObserver{}
	drive(context.Background(), NewCompositeObserver(a, b))

	for name, o := range map[string]*testObserver{"a": a, "b": b} {
		if o.created != 1 {
			t.Fatalf("%s: expected 1 created, got %d", name, o.created)
		}
		if len(o.transitions) != 3 {
			t.Fatalf("%s: expected 3 transitions, got %d", name, len(o.transitions))
		}
		if len(o.rejected) != 1 || o.rejected[0] != OpFail {
			t.Fatalf("%s: expected one rejected fail, got %v", name, o.rejected)
		}
		if !errors.Is(o.lastErr, ErrInvalidTransition) {
			t.Fatalf("%s: expected ErrInvalidTransition, got %v", name, o.lastErr)
		}
	}
}

func TestLoggingObserver_WritesEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	drive(context.Background(), NewLoggingObserver(logger))

	out := buf.String()
	for _, want := range []string{
		"msg=instance_created",
		"msg=transition",
		"operation=start_processing",
		"to=COMPLETED",
		"level=WARN msg=transition_rejected",
		"instance_id=wf-obs",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected log output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLoggingObserver_TerminalTransitionsLogAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	drive(context.Background(), NewLoggingObserver(logger))

	out := buf.String()
	if strings.Contains(out, "to=VALIDATED") {
		t.Fatalf("non-terminal transitions should log at debug, got:\n%s", out)
	}
	if !strings.Contains(out, "to=COMPLETED") {
		t.Fatalf("terminal transition should log at info, got:\n%s", out)
	}
}

func TestNewLoggingObserver_DefaultsLogger(t *testing.T) {
	o := NewLoggingObserver(nil).(*LoggingObserver)
	if o.Logger == nil {
		t.Fatalf("expected default logger")
	}
}

func TestBasicMetrics_Snapshot(t *testing.T) {
	ctx := context.Background()
	m := &BasicMetrics{}

	drive(ctx, m)

	failing := Create("wf-2", nil)
	m.OnInstanceCreated(ctx, failing)
	rec, _ := failing.Apply(OpFail)
	m.OnTransition(ctx, failing, rec)

	m.OnInstanceCreated(ctx, Create("wf-3", nil))

	snap := m.Snapshot()
	if snap.InstancesCreated != 3 {
		t.Fatalf("expected 3 created, got %d", snap.InstancesCreated)
	}
	if snap.Transitions != 4 {
		t.Fatalf("expected 4 transitions, got %d", snap.Transitions)
	}
	if snap.TransitionsRejected != 1 {
		t.Fatalf("expected 1 rejected, got %d", snap.TransitionsRejected)
	}
	if snap.InstancesCompleted != 1 || snap.InstancesFailed != 1 {
		t.Fatalf("expected 1 completed and 1 failed, got %+v", snap)
	}
	if snap.ActiveInstances != 1 {
		t.Fatalf("expected 1 active, got %d", snap.ActiveInstances)
	}
}

func TestBasicMetrics_CustomTableTerminalState(t *testing.T) {
	ctx := context.Background()
	table, err := NewTransitionTable("OPEN", []State{"OPEN", "DONE"}, []Edge{
		{Op: "close", From: "OPEN", To: "DONE"},
	})
	if err != nil {
		t.Fatalf("NewTransitionTable failed: %v", err)
	}

	m := &BasicMetrics{}
	inst := Create("ticket-1", nil, WithTransitionTable(table))
	m.OnInstanceCreated(ctx, inst)
	rec, err := inst.Apply("close")
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	m.OnTransition(ctx, inst, rec)

	snap := m.Snapshot()
	if !inst.IsTerminal() {
		t.Fatalf("expected DONE to be terminal")
	}
	if snap.ActiveInstances != 0 {
		t.Fatalf("terminal instance still counted active: %+v", snap)
	}
	if snap.InstancesTerminal != 1 || snap.TerminalByState["DONE"] != 1 {
		t.Fatalf("expected one instance terminal in DONE, got %+v", snap)
	}
}

func TestBasicMetrics_NonTerminalFailedIsStillActive(t *testing.T) {
	ctx := context.Background()
	// FAILED can be retried here, so only DONE ends an instance.
	table, err := NewTransitionTable("NEW", []State{"NEW", "FAILED", "DONE"}, []Edge{
		{Op: "fail", From: "NEW", To: "FAILED"},
		{Op: "retry", From: "FAILED", To: "NEW"},
		{Op: "finish", From: "NEW", To: "DONE"},
	})
	if err != nil {
		t.Fatalf("NewTransitionTable failed: %v", err)
	}

	m := &BasicMetrics{}
	inst := Create("job-1", nil, WithTransitionTable(table))
	m.OnInstanceCreated(ctx, inst)

	for _, op := range []Operation{"fail", "retry", "fail", "retry"} {
		rec, err := inst.Apply(op)
		if err != nil {
			t.Fatalf("%s failed: %v", op, err)
		}
		m.OnTransition(ctx, inst, rec)
	}
	if snap := m.Snapshot(); snap.ActiveInstances != 1 || snap.InstancesFailed != 0 {
		t.Fatalf("retried instance should stay active, got %+v", snap)
	}

	rec, err := inst.Apply("finish")
	if err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	m.OnTransition(ctx, inst, rec)

	snap := m.Snapshot()
	if snap.ActiveInstances != 0 || snap.InstancesTerminal != 1 {
		t.Fatalf("expected the finished instance to be counted once, got %+v", snap)
	}
}
