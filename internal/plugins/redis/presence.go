package redis

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisPresenceStore struct {
	rdb       *redis.Client
	scanCount int64
}

func NewRedisPresenceStore(rdb *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{
		rdb:       rdb,
		scanCount: 100,
	}
}

// AddConnection refreshes the liveness marker and adds connID to the user's set in one MULTI.
func (p *RedisPresenceStore) AddConnection(
	ctx context.Context,
	userID uuid.UUID,
	connID string,
	ttl time.Duration,
) (int64, error) {
	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, connectionMarkerKey(connID), "active", ttl)
	added := pipe.SAdd(ctx, userConnectionsKey(userID), connID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storeErr("presence.add", err)
	}
	return added.Val(), nil
}

func (p *RedisPresenceStore) RemoveConnection(
	ctx context.Context,
	userID uuid.UUID,
	connID string,
) (int64, error) {
	pipe := p.rdb.TxPipeline()
	removed := pipe.SRem(ctx, userConnectionsKey(userID), connID)
	pipe.Del(ctx, connectionMarkerKey(connID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storeErr("presence.remove", err)
	}
	return removed.Val(), nil
}

func (p *RedisPresenceStore) ListConnections(ctx context.Context, userID uuid.UUID) ([]string, error) {
	members, err := p.rdb.SMembers(ctx, userConnectionsKey(userID)).Result()
	if err != nil {
		return nil, storeErr("presence.list", err)
	}
	return members, nil
}

func (p *RedisPresenceStore) TouchConnection(ctx context.Context, connID string, ttl time.Duration) error {
	return storeErr("presence.touch", p.rdb.Set(ctx, connectionMarkerKey(connID), "active", ttl).Err())
}

// SweepStale walks every user connection set and removes members whose
// liveness marker is gone, i.e. connections left behind by a crashed process.
func (p *RedisPresenceStore) SweepStale(ctx context.Context) (int, error) {
	removed := 0
	iter := p.rdb.Scan(ctx, 0, userConnectionsPattern, p.scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !strings.HasSuffix(key, ":connections") {
			continue
		}
		n, err := p.sweepKey(ctx, key)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, storeErr("presence.sweep", err)
	}
	return removed, nil
}

func (p *RedisPresenceStore) sweepKey(ctx context.Context, key string) (int, error) {
	members, err := p.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return 0, storeErr("presence.sweep", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	pipe := p.rdb.Pipeline()
	checks := make([]*redis.IntCmd, len(members))
	for i, connID := range members {
		checks[i] = pipe.Exists(ctx, connectionMarkerKey(connID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storeErr("presence.sweep", err)
	}
	var stale []any
	for i, cmd := range checks {
		if cmd.Val() == 0 {
			stale = append(stale, members[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := p.rdb.SRem(ctx, key, stale...).Result()
	if err != nil {
		return 0, storeErr("presence.sweep", err)
	}
	return int(n), nil
}
