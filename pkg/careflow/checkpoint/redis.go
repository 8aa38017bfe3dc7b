package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each checkpoint in a hash {version, data, updated_at}
// and relies on WATCH/MULTI for compare-and-set. Expiry uses key TTLs.
type RedisStore struct {
	client *redis.Client
	cfg    storeConfig
	prefix string
}

// NewRedisStore connects to the Redis server at redisURL
// (e.g. "redis://localhost:6379/0").
func NewRedisStore(ctx context.Context, redisURL string, opts ...Option) (*RedisStore, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client. Close closes the client.
func NewRedisStoreFromClient(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, cfg: applyOptions(opts), prefix: "checkpoint"}
}

func (r *RedisStore) recordKey(key Key) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, key.SessionID, key.Workflow)
}

func (r *RedisStore) indexKey(sessionID string) string {
	return fmt.Sprintf("%s-index:%s", r.prefix, sessionID)
}

// Put implements Store.
func (r *RedisStore) Put(ctx context.Context, key Key, data []byte, expectedVersion int64) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	rk := r.recordKey(key)
	now := r.cfg.now()
	var next int64

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, rk, "version").Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		if current != expectedVersion {
			return &ConflictError{Key: key, Expected: expectedVersion, Actual: current}
		}

		next = current + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rk,
				"version", next,
				"data", data,
				"updated_at", now.UnixNano(),
			)
			pipe.SAdd(ctx, r.indexKey(key.SessionID), key.Workflow)
			if r.cfg.ttl > 0 {
				pipe.PExpire(ctx, rk, r.cfg.ttl)
				pipe.PExpire(ctx, r.indexKey(key.SessionID), r.cfg.ttl)
			}
			return nil
		})
		return err
	}, rk)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, &ConflictError{Key: key, Expected: expectedVersion, Actual: -1}
	}
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return 0, conflict
		}
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}
	return next, nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key Key) (*Record, error) {
	rk := r.recordKey(key)

	var (
		fields *redis.MapStringStringCmd
		ttl    *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, rk)
		ttl = pipe.PTTL(ctx, rk)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	m := fields.Val()
	if len(m) == 0 {
		return nil, ErrNotFound
	}

	version, err := strconv.ParseInt(m["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: bad version %q: %w", m["version"], err)
	}
	updated, _ := strconv.ParseInt(m["updated_at"], 10, 64)

	rec := &Record{
		Key:       key,
		Data:      []byte(m["data"]),
		Version:   version,
		UpdatedAt: fromUnixNanos(updated),
	}
	if d := ttl.Val(); d > 0 {
		rec.ExpiresAt = r.cfg.now().Add(d)
	}
	return rec, nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, key Key) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.recordKey(key))
		pipe.SRem(ctx, r.indexKey(key.SessionID), key.Workflow)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// DeleteSession implements Store.
func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	ik := r.indexKey(sessionID)
	workflows, err := r.client.SMembers(ctx, ik).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list session checkpoints: %w", err)
	}

	keys := make([]string, 0, len(workflows)+1)
	for _, wf := range workflows {
		keys = append(keys, r.recordKey(Key{SessionID: sessionID, Workflow: wf}))
	}
	keys = append(keys, ik)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete session checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
