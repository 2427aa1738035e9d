package flowstate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/flowstate/internal/taskqueue"
	workerpkg "github.com/petrijr/flowstate/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue. Instances and queued tasks live in
// the same backend, so commands survive a process restart.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; the public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:flowstate.db?_pragma=journal_mode(WAL)")
//	bundle, err := flowstate.NewSQLiteBundle(db)
//	id, _ := bundle.Worker.EnqueueCreate(ctx, "", order)
//	_ = bundle.Worker.EnqueueTransition(ctx, id, flowstate.OpValidate)
func NewSQLiteBundle(db *sql.DB, opts ...Option) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db, opts...)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return newBundle(eng, q), nil
}

// NewRedisBundle keeps instances and the task list in the same Redis
// database.
func NewRedisBundle(client *redis.Client, opts ...Option) *WorkerBundle {
	return newBundle(NewRedisEngine(client, opts...), taskqueue.NewRedisQueue(client, ""))
}

// NewMongoBundle keeps instances and queued tasks in the flowstate database.
func NewMongoBundle(client *mongo.Client, opts ...Option) *WorkerBundle {
	return newBundle(NewMongoEngine(client, opts...), taskqueue.NewMongoQueue(client, "", ""))
}

func newBundle(eng Engine, q taskqueue.Queue) *WorkerBundle {
	return &WorkerBundle{
		Engine: eng,
		Worker: workerpkg.New(eng, q),
		queue:  q,
	}
}

// Pending returns the approximate number of queued tasks.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}

// pending is Pending with lookup errors surfaced for durable queues.
func (b *WorkerBundle) pending(ctx context.Context) (int, error) {
	if c, ok := b.queue.(taskqueue.Counter); ok {
		return c.Count(ctx)
	}
	return b.queue.Len(), nil
}

// Drain processes tasks until the queue is empty or ctx is done. Rejected
// or failed tasks are logged and skipped. It returns the number of tasks
// consumed. An error reading the queue length is returned rather than
// treated as an empty queue.
func (b *WorkerBundle) Drain(ctx context.Context, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := 0
	for {
		left, err := b.pending(ctx)
		if err != nil {
			return n, fmt.Errorf("queue length: %w", err)
		}
		if left == 0 {
			return n, nil
		}

		processed, err := b.Worker.ProcessOne(ctx)
		if !processed {
			return n, err
		}
		n++
		if err != nil {
			logger.Warn("task not applied", slog.Any("error", err))
		}
	}
}
