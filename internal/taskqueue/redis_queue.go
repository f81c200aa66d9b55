package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using a single Redis list:
//
//	<prefix>tasks
//
// Values are gob-encoded Task structs. Enqueue is LPUSH and Dequeue is BRPOP,
// so the list is FIFO across any number of producers and consumers.
type RedisQueue struct {
	client *redis.Client
	key    string

	// pollTimeout bounds each BRPOP so a cancelled ctx is noticed.
	pollTimeout time.Duration
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "sagaflow:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "sagaflow:"
	}
	return &RedisQueue{
		client:      client,
		key:         prefix + "tasks",
		pollTimeout: time.Second,
	}
}

var _ Queue = (*RedisQueue)(nil)

// Enqueue pushes a task onto the Redis list (LPUSH).
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue blocks on BRPOP until a task is available or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// BRPop returns [key, value]
		res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if len(res) != 2 {
			slog.WarnContext(ctx, "redis queue: unexpected BRPOP reply", slog.Any("reply", res))
			continue
		}

		return DecodeTask([]byte(res[1]))
	}
}

// Len returns the approximate number of tasks queued (LLEN).
func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		slog.Warn("redis queue: LLEN failed", slog.String("key", q.key), slog.Any("error", err))
		return 0
	}
	return int(n)
}
