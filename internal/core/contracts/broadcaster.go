package contracts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageBroadcaster is the delivery facade used by higher level services.
// It never queues on its own; callers decide when a zero count means AddToQueue.
type MessageBroadcaster interface {
	BroadcastToUser(ctx context.Context, userID uuid.UUID, message any) int
	BroadcastToChat(ctx context.Context, chatID uuid.UUID, message any, userIDs []uuid.UUID, exclude uuid.UUID) int
	AddToQueue(ctx context.Context, userID uuid.UUID, message any, ttl time.Duration) bool
	GetQueuedMessages(ctx context.Context, userID uuid.UUID) []json.RawMessage
}
