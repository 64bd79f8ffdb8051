package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PresenceStore is the durable user -> connection set shared by every instance.
// Each connection also owns a liveness marker that expires after ttl unless touched.
type PresenceStore interface {
	// AddConnection adds connID to the user's set and (re)starts its marker. Returns 0 or 1.
	AddConnection(ctx context.Context, userID uuid.UUID, connID string, ttl time.Duration) (int64, error)
	// RemoveConnection removes connID from the user's set. Returns 0 or 1.
	RemoveConnection(ctx context.Context, userID uuid.UUID, connID string) (int64, error)
	ListConnections(ctx context.Context, userID uuid.UUID) ([]string, error)
	TouchConnection(ctx context.Context, connID string, ttl time.Duration) error
	// SweepStale drops set members whose liveness marker has expired.
	SweepStale(ctx context.Context) (int, error)
}

// Presence is the error-free view of the registry used by the connection manager.
// Store failures degrade to "no known connections".
type Presence interface {
	Add(ctx context.Context, userID uuid.UUID, connID string) int64
	Remove(ctx context.Context, userID uuid.UUID, connID string) int64
	List(ctx context.Context, userID uuid.UUID) []string
	Touch(ctx context.Context, connID string)
}
