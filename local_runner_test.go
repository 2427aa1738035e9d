package flowstate

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer shared by worker goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForState(t *testing.T, eng Engine, id string, want State) *WorkflowInstance {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		inst, err := eng.GetInstance(context.Background(), id)
		if err == nil && inst.CurrentState() == want {
			return inst
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("instance %s did not reach %s", id, want)
	return nil
}

// TestLocalRunner_SyncAndAsync verifies that LocalRunner drives instances
// both synchronously through its Engine and asynchronously via the worker
// loop.
func TestLocalRunner_SyncAndAsync(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()

	// --- Synchronous ---

	if _, err := runner.Engine.Create(ctx, "sync", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := runner.Engine.Validate(ctx, "sync"); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	// --- Asynchronous via worker/queue ---

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	id, err := runner.CreateAsync(ctx, "", "payload")
	if err != nil {
		t.Fatalf("CreateAsync failed: %v", err)
	}
	for _, op := range []Operation{OpValidate, OpStartProcessing, OpComplete} {
		if err := runner.TransitionAsync(ctx, id, op); err != nil {
			t.Fatalf("TransitionAsync failed: %v", err)
		}
	}

	inst := waitForState(t, runner.Engine, id, StateCompleted)
	if inst.HistoryLen() != 3 {
		t.Fatalf("expected 3 records, got %d", inst.HistoryLen())
	}
	if inst.Payload() != "payload" {
		t.Fatalf("unexpected payload %v", inst.Payload())
	}
}

func TestLocalRunner_RejectedTasksAreLoggedAndSkipped(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()

	var logs syncBuffer
	runner.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	id, err := runner.CreateAsync(ctx, "wf-1", nil)
	if err != nil {
		t.Fatalf("CreateAsync failed: %v", err)
	}
	// complete is illegal from CREATED; the worker must carry on afterwards.
	_ = runner.TransitionAsync(ctx, id, OpComplete)
	_ = runner.TransitionAsync(ctx, id, OpFail)

	waitForState(t, runner.Engine, id, StateFailed)

	out := logs.String()
	if !strings.Contains(out, "task rejected") || !strings.Contains(out, "complete") {
		t.Fatalf("expected rejection to be logged, got:\n%s", out)
	}
}

func TestLocalRunner_StartTwice(t *testing.T) {
	runner := NewLocalRunner()
	if err := runner.StartWorkers(context.Background(), 2); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	if err := runner.StartWorkers(context.Background(), 1); err == nil {
		t.Fatalf("expected second StartWorkers to fail")
	}
}

func TestLocalRunner_StopIsIdempotent(t *testing.T) {
	runner := NewLocalRunner()
	runner.Stop()

	if err := runner.StartWorkers(context.Background(), 0); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	runner.Stop()
	runner.Stop()

	// Restart after stop.
	if err := runner.StartWorkers(context.Background(), 1); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	runner.Stop()
}

func TestLocalRunner_CloseDrainsQueue(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()
	runner.Logger = slog.New(slog.NewTextHandler(&syncBuffer{}, nil))

	id, err := runner.CreateAsync(ctx, "drain", nil)
	if err != nil {
		t.Fatalf("CreateAsync failed: %v", err)
	}
	for _, op := range []Operation{OpValidate, OpStartProcessing, OpComplete} {
		if err := runner.TransitionAsync(ctx, id, op); err != nil {
			t.Fatalf("TransitionAsync(%s) failed: %v", op, err)
		}
	}

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	runner.Close()

	inst, err := runner.Engine.GetInstance(ctx, id)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if inst.CurrentState() != StateCompleted {
		t.Fatalf("expected COMPLETED after Close, got %s", inst.CurrentState())
	}

	if _, err := runner.CreateAsync(ctx, "late", nil); err == nil {
		t.Fatalf("expected CreateAsync to fail after Close")
	}
}

func TestLocalRunner_SingleWorkerKeepsEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()
	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	ids := make([]string, 5)
	for i := range ids {
		id, err := runner.CreateAsync(ctx, "", i)
		if err != nil {
			t.Fatalf("CreateAsync failed: %v", err)
		}
		ids[i] = id
	}
	// Interleave the instances so every create is queued behind the others.
	for _, op := range []Operation{OpValidate, OpStartProcessing, OpComplete} {
		for _, id := range ids {
			if err := runner.TransitionAsync(ctx, id, op); err != nil {
				t.Fatalf("TransitionAsync failed: %v", err)
			}
		}
	}

	want := []State{StateValidated, StateProcessing, StateCompleted}
	for _, id := range ids {
		inst := waitForState(t, runner.Engine, id, StateCompleted)
		if inst.HistoryLen() != len(want) {
			t.Fatalf("%s: expected %d records, got %d", id, len(want), inst.HistoryLen())
		}
		i := 0
		for rec := range inst.History() {
			if rec.To != want[i] {
				t.Fatalf("%s: record %d went to %s, want %s", id, i, rec.To, want[i])
			}
			i++
		}
	}
}
