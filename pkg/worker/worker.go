package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/flowstate/internal/taskqueue"
	"github.com/petrijr/flowstate/pkg/api"
)

// ErrUnknownTaskType is returned by ProcessOne for a task it cannot handle.
var ErrUnknownTaskType = errors.New("unknown task type")

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// Engine returns the engine tasks are applied to.
func (w *Worker) Engine() api.Engine {
	return w.engine
}

// EnqueueCreate enqueues a task that creates an instance. An empty id is
// replaced with a generated one, which is returned so the caller can follow
// up with transitions.
func (w *Worker) EnqueueCreate(ctx context.Context, id string, payload any) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeCreate,
		InstanceID: id,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	if err := w.queue.Enqueue(ctx, t); err != nil {
		return "", err
	}
	return id, nil
}

// EnqueueTransition enqueues a task that applies op to an instance. The
// operation is validated when the task is processed, not here.
func (w *Worker) EnqueueTransition(ctx context.Context, id string, op api.Operation) error {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeTransition,
		InstanceID: id,
		Operation:  op,
		EnqueuedAt: time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the dequeue error
//     (usually ctx cancellation).
//   - processed == true: a task was consumed; err is the engine's verdict.
//     Rejected transitions surface here as *api.InvalidTransitionError and are
//     not retried.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeCreate:
		_, err := w.engine.Create(ctx, task.InstanceID, task.Payload)
		return true, err

	case taskqueue.TaskTypeTransition:
		_, err := w.engine.Transition(ctx, task.InstanceID, task.Operation)
		return true, err

	default:
		return true, fmt.Errorf("%w: %q (task %s)", ErrUnknownTaskType, task.Type, task.ID)
	}
}
