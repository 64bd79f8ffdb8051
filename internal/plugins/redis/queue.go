package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisMessageQueue keeps one LIST per offline user.
type RedisMessageQueue struct {
	rdb        *redis.Client
	defaultTTL time.Duration
}

func NewRedisMessageQueue(rdb *redis.Client, defaultTTL time.Duration) *RedisMessageQueue {
	return &RedisMessageQueue{rdb: rdb, defaultTTL: defaultTTL}
}

// Enqueue appends payload and (re)sets the expiry of the whole queue.
// ttl <= 0 falls back to the default; a non-positive default means no expiry.
func (q *RedisMessageQueue) Enqueue(ctx context.Context, userID uuid.UUID, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = q.defaultTTL
	}
	key := messageQueueKey(userID)
	pipe := q.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return storeErr("queue.enqueue", err)
}

// Drain reads and deletes the queue inside MULTI/EXEC, so an enqueue can
// land either before (and be returned) or after (and stay queued), never in between.
func (q *RedisMessageQueue) Drain(ctx context.Context, userID uuid.UUID) ([][]byte, error) {
	key := messageQueueKey(userID)
	pipe := q.rdb.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storeErr("queue.drain", err)
	}
	out := make([][]byte, 0, len(items.Val()))
	for _, item := range items.Val() {
		out = append(out, []byte(item))
	}
	return out, nil
}
