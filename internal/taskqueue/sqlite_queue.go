package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

// SQLiteQueue is a persistent task queue implementation backed by SQLite.
// It is safe for concurrent use, using simple FIFO semantics based on an
// auto-incrementing sequence. A dequeued row is deleted in the same
// transaction that selects it, so a task is handed to one worker only.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			data BLOB NOT NULL,
			enqueued_at INTEGER NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (data, enqueued_at)
		VALUES (?, ?)`,
		data,
		t.EnqueuedAt.UnixNano(),
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, err := q.claim(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			// Nothing available: sleep a bit and retry.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(q.pollInterval):
				continue
			}
		}
		if err != nil {
			return nil, err
		}
		return DecodeTask(data)
	}
}

// claim deletes the oldest row and returns its data.
func (q *SQLiteQueue) claim(ctx context.Context) ([]byte, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq  int64
		data []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT seq, data
		FROM tasks
		ORDER BY seq
		LIMIT 1`).Scan(&seq, &data)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE seq = ?`, seq); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return data, nil
}

// Count returns the number of queued tasks.
func (q *SQLiteQueue) Count(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Len is Count without a context. A failed lookup is logged and reported as
// zero.
func (q *SQLiteQueue) Len() int {
	n, err := q.Count(context.Background())
	if err != nil {
		slog.Warn("sqlite queue length unavailable", slog.Any("error", err))
		return 0
	}
	return n
}
