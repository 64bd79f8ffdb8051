package contracts

import (
	"context"

	"github.com/google/uuid"
)

// ConnectionManager owns the live connections held by this process.
type ConnectionManager interface {
	// Connect stores the client under a fresh connection id and registers its presence.
	Connect(ctx context.Context, c Client, userID uuid.UUID) string
	// Disconnect is idempotent and does not close the transport.
	Disconnect(ctx context.Context, connID string)
	// Send writes one payload to one connection. A transport failure disconnects it.
	Send(ctx context.Context, connID string, payload any) bool
	// BroadcastToUser returns how many of the user's connections got the payload.
	BroadcastToUser(ctx context.Context, userID uuid.UUID, payload any) int
	// BroadcastToChat fans out to every listed user except exclude (uuid.Nil excludes nobody).
	BroadcastToChat(ctx context.Context, chatID uuid.UUID, payload any, userIDs []uuid.UUID, exclude uuid.UUID) int
}

// Client is the minimal transport handle the manager needs.
type Client interface {
	Send(ctx context.Context, data []byte) error
	Close(code int, reason string)
}

// Close codes used when the server ends a connection.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)
