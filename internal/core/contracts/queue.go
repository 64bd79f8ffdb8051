package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OfflineQueue is the durable per-user list of payloads that found no live connection.
type OfflineQueue interface {
	// Enqueue appends payload and sets the queue expiry to ttl, or the store default when ttl is 0.
	Enqueue(ctx context.Context, userID uuid.UUID, payload []byte, ttl time.Duration) error
	// Drain returns the whole queue in enqueue order and deletes it in one step.
	Drain(ctx context.Context, userID uuid.UUID) ([][]byte, error)
}
