package taskqueue

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Enqueue after Close, and by Dequeue once a
// closed queue has been drained.
var ErrQueueClosed = errors.New("taskqueue: queue closed")

// InMemoryQueue is a bounded FIFO of tasks held in process memory. Enqueue
// blocks while the queue is full. It is safe for concurrent use.
type InMemoryQueue struct {
	tasks chan Task

	closeOnce sync.Once
	closed    chan struct{}
}

// NewInMemoryQueue creates a queue holding up to capacity tasks. A
// non-positive capacity means 1024.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		tasks:  make(chan Task, capacity),
		closed: make(chan struct{}),
	}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.tasks <- t:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the oldest task. Tasks still queued when Close is called
// are handed out before ErrQueueClosed is reported.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.tasks:
		return &t, nil
	default:
	}

	select {
	case t := <-q.tasks:
		return &t, nil
	case <-q.closed:
		select {
		case t := <-q.tasks:
			return &t, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.tasks)
}

// Close stops the queue from accepting tasks and wakes blocked callers.
// It is safe to call more than once.
func (q *InMemoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
