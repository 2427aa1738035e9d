// Package taskqueue carries workflow commands from producers to workers.
package taskqueue

import (
	"context"
	"time"

	"github.com/petrijr/flowstate/pkg/api"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeCreate creates an instance with InstanceID and Payload.
	TaskTypeCreate TaskType = "create"
	// TaskTypeTransition applies Operation to InstanceID.
	TaskTypeTransition TaskType = "transition"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	InstanceID string
	Operation  api.Operation

	// Payload is the instance payload of a create task. Concrete types must
	// be registered with gob.Register for persistent queues.
	Payload any

	EnqueuedAt time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}

// Counter is implemented by queues whose length lookup can fail, such as
// the database-backed ones. Len reports such failures as zero; Count
// returns them.
type Counter interface {
	Count(ctx context.Context) (int, error)
}
