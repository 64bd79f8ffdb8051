package services

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"messenger/internal/core/contracts"
	"messenger/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
)

// Broadcaster joins live delivery and the offline queue behind one API.
// It never queues on its own: callers decide what a zero delivery count means.
type Broadcaster struct {
	conns    contracts.ConnectionManager
	queue    contracts.OfflineQueue
	enqueued metric.Int64Counter
	log      *slog.Logger
}

func NewBroadcaster(
	log *slog.Logger,
	conns contracts.ConnectionManager,
	queue contracts.OfflineQueue,
) *Broadcaster {
	return &Broadcaster{
		log:      log,
		conns:    conns,
		queue:    queue,
		enqueued: int64Counter("queue.enqueued", "Messages parked in offline queues"),
	}
}

func (b *Broadcaster) BroadcastToUser(ctx context.Context, userID uuid.UUID, message any) int {
	return b.conns.BroadcastToUser(ctx, userID, message)
}

func (b *Broadcaster) BroadcastToChat(
	ctx context.Context,
	chatID uuid.UUID,
	message any,
	userIDs []uuid.UUID,
	exclude uuid.UUID,
) int {
	return b.conns.BroadcastToChat(ctx, chatID, message, userIDs, exclude)
}

// AddToQueue stores message for userID with a queued_at stamp. ttl 0 uses the queue default.
func (b *Broadcaster) AddToQueue(ctx context.Context, userID uuid.UUID, message any, ttl time.Duration) bool {
	data, err := stampQueuedAt(message, time.Now().UTC())
	if err != nil {
		b.log.ErrorContext(ctx, "broadcaster - add to queue - marshal failed",
			logging.User(userID.String()), logging.Err(err))
		return false
	}
	if err := b.queue.Enqueue(ctx, userID, data, ttl); err != nil {
		b.log.ErrorContext(ctx, "broadcaster - add to queue - enqueue failed",
			logging.User(userID.String()), logging.Err(err))
		return false
	}
	b.enqueued.Add(ctx, 1)
	b.log.InfoContext(ctx, "broadcaster - add to queue - queued", logging.User(userID.String()))
	return true
}

// GetQueuedMessages drains the user's queue. Entries that are not valid JSON are dropped.
func (b *Broadcaster) GetQueuedMessages(ctx context.Context, userID uuid.UUID) []json.RawMessage {
	items, err := b.queue.Drain(ctx, userID)
	if err != nil {
		b.log.ErrorContext(ctx, "broadcaster - get queued messages - drain failed",
			logging.User(userID.String()), logging.Err(err))
		return nil
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		if !json.Valid(item) {
			b.log.WarnContext(ctx, "broadcaster - get queued messages - skipping undecodable entry",
				logging.User(userID.String()))
			continue
		}
		out = append(out, json.RawMessage(item))
	}
	return out
}

func stampQueuedAt(message any, at time.Time) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return data, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	stamp, err := json.Marshal(at)
	if err != nil {
		return nil, err
	}
	fields["queued_at"] = stamp
	return json.Marshal(fields)
}
