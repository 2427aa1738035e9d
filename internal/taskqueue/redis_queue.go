package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on a Redis list. Producers LPUSH gob-encoded
// tasks and workers BRPOP them, so every task goes to exactly one worker.
type RedisQueue struct {
	client *redis.Client
	key    string

	// blockFor bounds a single BRPOP so cancellation is noticed promptly.
	blockFor time.Duration
}

// NewRedisQueue creates a queue stored under key, which defaults to
// "flowstate:tasks".
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "flowstate:tasks"
	}
	return &RedisQueue{
		client:   client,
		key:      key,
		blockFor: time.Second,
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, q.blockFor, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}

		// res is [key, value].
		return DecodeTask([]byte(res[1]))
	}
}

// Count returns the number of queued tasks.
func (q *RedisQueue) Count(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (q *RedisQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.Count(ctx)
	if err != nil {
		slog.Warn("redis queue length unavailable", slog.Any("error", err))
		return 0
	}
	return n
}
