package redis

import (
	"context"
	"errors"
	"net"

	"messenger/internal/config"
	"messenger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Key layout shared by every instance of the service.

func userConnectionsKey(userID uuid.UUID) string {
	return "user:" + userID.String() + ":connections"
}

func connectionMarkerKey(connID string) string {
	return "connection:" + connID + ":last_active"
}

func messageQueueKey(userID uuid.UUID) string {
	return "user:" + userID.String() + ":message_queue"
}

func draftKey(userID, chatID uuid.UUID) string {
	return "user:" + userID.String() + ":chat:" + chatID.String() + ":draft"
}

const userConnectionsPattern = "user:*:connections"

// storeErr classifies a go-redis failure for the callers.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return domain.NewStoreError(domain.StoreConnection, op, err)
	default:
		return domain.NewStoreError(domain.StoreQuery, op, err)
	}
}
