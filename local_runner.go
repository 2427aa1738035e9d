package flowstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/flowstate/internal/taskqueue"
	"github.com/petrijr/flowstate/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a Worker
// to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := flowstate.NewLocalRunner()
//
//	// Synchronous transitions (no queue/worker involved):
//	inst, err := runner.Engine.Create(ctx, "order-1", order)
//	inst, err = runner.Engine.Validate(ctx, "order-1")
//
//	// Asynchronous commands. Commands for one instance are only applied in
//	// enqueue order when a single worker runs; with more workers a
//	// transition may be processed before the create it depends on.
//	_ = runner.StartWorkers(ctx, 1)
//	id, _ := runner.CreateAsync(ctx, "", order)
//	_ = runner.TransitionAsync(ctx, id, flowstate.OpValidate)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	// Logger receives worker loop errors. Defaults to slog.Default().
	Logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine
// built with opts, an in-memory queue and a Worker.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(opts ...Option) *LocalRunner {
	eng := NewInMemoryEngine(opts...)
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.New(eng, q)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
		Logger: slog.Default(),
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("flowstate: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer r.wg.Done()
			runWorkerLoop(ctx, r.Worker, logger.With(slog.Int("worker", workerID)))
		}(i)
	}

	return nil
}

// runWorkerLoop processes tasks until ctx is done. A bad task is logged and
// skipped so it cannot stop the loop.
func runWorkerLoop(ctx context.Context, w *worker.Worker, logger *slog.Logger) {
	for {
		processed, err := w.ProcessOne(ctx)
		if err == nil {
			continue
		}
		if !processed {
			// Cancellation is a clean shutdown signal.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, taskqueue.ErrQueueClosed) {
				return
			}
			logger.Error("dequeue failed", slog.Any("error", err))
			continue
		}
		if errors.Is(err, ErrInvalidTransition) {
			logger.Warn("task rejected", slog.Any("error", err))
			continue
		}
		logger.Error("task failed", slog.Any("error", err))
	}
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Close stops accepting commands, lets running workers finish what is
// already queued and waits for them to exit. The runner cannot be restarted
// afterwards.
func (r *LocalRunner) Close() {
	if q, ok := r.Queue.(*taskqueue.InMemoryQueue); ok {
		q.Close()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
}

// CreateAsync enqueues the creation of an instance and returns its ID,
// generating one if id is empty.
func (r *LocalRunner) CreateAsync(ctx context.Context, id string, payload any) (string, error) {
	return r.Worker.EnqueueCreate(ctx, id, payload)
}

// TransitionAsync enqueues op for the instance. Whether op is legal is
// decided when a worker processes it.
func (r *LocalRunner) TransitionAsync(ctx context.Context, id string, op Operation) error {
	return r.Worker.EnqueueTransition(ctx, id, op)
}
