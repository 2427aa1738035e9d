package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowstate/pkg/api"
)

// RedisInstanceStore is an InstanceStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>inst:<id>   => HASH {state, payload, created_at, updated_at}
//	<prefix>hist:<id>   => LIST of gob-encoded transition records
//	<prefix>idx:all     => ZSET of instance IDs scored by creation time
//
// Transitions WATCH the instance hash, so a concurrent change to the same
// instance aborts the MULTI block and is reported as ErrStateConflict.
type RedisInstanceStore struct {
	client *redis.Client
	prefix string
}

var _ InstanceStore = (*RedisInstanceStore)(nil)

// NewRedisInstanceStore creates a RedisInstanceStore.
// prefix is optional but recommended (e.g. "flowstate:").
func NewRedisInstanceStore(client *redis.Client, prefix string) *RedisInstanceStore {
	if prefix == "" {
		prefix = "flowstate:"
	}
	return &RedisInstanceStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisInstanceStore) keyInstance(id string) string {
	return s.prefix + "inst:" + id
}

func (s *RedisInstanceStore) keyHistory(id string) string {
	return s.prefix + "hist:" + id
}

func (s *RedisInstanceStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisInstanceStore) SaveInstance(ctx context.Context, snap api.InstanceSnapshot) error {
	payload, err := EncodeValue(snap.Payload)
	if err != nil {
		return err
	}
	records := make([]any, 0, len(snap.History))
	for _, rec := range snap.History {
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		records = append(records, data)
	}

	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = snap.CreatedAt
	}

	key := s.keyInstance(snap.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrInstanceExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"state", string(snap.State),
				"payload", payload,
				"created_at", snap.CreatedAt.UnixNano(),
				"updated_at", updated.UnixNano(),
			)
			if len(records) > 0 {
				pipe.RPush(ctx, s.keyHistory(snap.ID), records...)
			}
			pipe.ZAdd(ctx, s.keyAll(), redis.Z{
				Score:  float64(snap.CreatedAt.UnixNano()),
				Member: snap.ID,
			})
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrInstanceExists
	}
	return err
}

func (s *RedisInstanceStore) GetInstance(ctx context.Context, id string) (api.InstanceSnapshot, error) {
	// MULTI/EXEC so a concurrent AppendTransition cannot land between the reads.
	pipe := s.client.TxPipeline()
	fieldsCmd := pipe.HGetAll(ctx, s.keyInstance(id))
	histCmd := pipe.LRange(ctx, s.keyHistory(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return api.InstanceSnapshot{}, err
	}

	fields, err := fieldsCmd.Result()
	if err != nil {
		return api.InstanceSnapshot{}, err
	}
	if len(fields) == 0 {
		return api.InstanceSnapshot{}, ErrInstanceNotFound
	}

	snap, err := decodeRedisFields(id, fields)
	if err != nil {
		return api.InstanceSnapshot{}, err
	}

	raw, err := histCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return api.InstanceSnapshot{}, err
	}
	for _, r := range raw {
		rec, err := decodeRecord([]byte(r))
		if err != nil {
			return api.InstanceSnapshot{}, fmt.Errorf("decode history of %s: %w", id, err)
		}
		snap.History = append(snap.History, rec)
	}
	return snap, nil
}

func decodeRedisFields(id string, fields map[string]string) (api.InstanceSnapshot, error) {
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return api.InstanceSnapshot{}, fmt.Errorf("instance %s: created_at: %w", id, err)
	}
	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return api.InstanceSnapshot{}, fmt.Errorf("instance %s: updated_at: %w", id, err)
	}
	payload, err := DecodeValue([]byte(fields["payload"]))
	if err != nil {
		return api.InstanceSnapshot{}, fmt.Errorf("decode payload of %s: %w", id, err)
	}

	return api.InstanceSnapshot{
		ID:        id,
		Payload:   payload,
		State:     api.State(fields["state"]),
		CreatedAt: fromUnixNano(created),
		UpdatedAt: fromUnixNano(updated),
	}, nil
}

func (s *RedisInstanceStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]api.InstanceSnapshot, error) {
	ids, err := s.client.ZRange(ctx, s.keyAll(), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var out []api.InstanceSnapshot
	for _, id := range ids {
		snap, err := s.GetInstance(ctx, id)
		if err != nil {
			if errors.Is(err, ErrInstanceNotFound) {
				// Index entry without an instance; skip it.
				continue
			}
			return nil, err
		}
		if filter.State != "" && snap.State != filter.State {
			continue
		}
		out = append(out, snap)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *RedisInstanceStore) AppendTransition(ctx context.Context, id string, rec api.TransitionRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	key := s.keyInstance(id)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		state, err := tx.HGet(ctx, key, "state").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrInstanceNotFound
			}
			return err
		}
		if api.State(state) != rec.From {
			return ErrStateConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"state", string(rec.To),
				"updated_at", rec.At.UnixNano(),
			)
			pipe.RPush(ctx, s.keyHistory(id), data)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrStateConflict
	}
	return err
}
