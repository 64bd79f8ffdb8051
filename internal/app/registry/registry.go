package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"messenger/internal/core/contracts"
	"messenger/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var meter = otel.Meter("messenger/registry")

// Registry is the process-local connection manager. It exclusively owns the
// open client handles; everything else reaches them through its methods.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]contracts.Client // connection_id → client
	owners   map[string]uuid.UUID        // connection_id → user_id
	presence contracts.Presence
	log      *slog.Logger

	active     metric.Int64UpDownCounter
	deliveries metric.Int64Counter
}

func NewRegistry(log *slog.Logger, presence contracts.Presence) *Registry {
	r := &Registry{
		clients:  make(map[string]contracts.Client),
		owners:   make(map[string]uuid.UUID),
		presence: presence,
		log:      log,
	}
	var err error
	if r.active, err = meter.Int64UpDownCounter("ws.connections.active",
		metric.WithDescription("Open connections held by this process")); err != nil {
		r.active = noop.Int64UpDownCounter{}
	}
	if r.deliveries, err = meter.Int64Counter("ws.deliveries",
		metric.WithDescription("Outbound frame writes by outcome")); err != nil {
		r.deliveries = noop.Int64Counter{}
	}
	return r
}

func (r *Registry) Connect(ctx context.Context, c contracts.Client, userID uuid.UUID) string {
	connID := uuid.NewString()
	r.mu.Lock()
	r.clients[connID] = c
	r.owners[connID] = userID
	r.mu.Unlock()

	r.presence.Add(ctx, userID, connID)
	r.active.Add(ctx, 1)
	r.log.InfoContext(ctx, "registry - connect - registered",
		logging.User(userID.String()), logging.Connection(connID))
	return connID
}

// Disconnect forgets the connection. The transport is left to the caller.
func (r *Registry) Disconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	userID, ok := r.owners[connID]
	delete(r.clients, connID)
	delete(r.owners, connID)
	r.mu.Unlock()
	if !ok {
		return
	}

	r.presence.Remove(ctx, userID, connID)
	r.active.Add(ctx, -1)
	r.log.InfoContext(ctx, "registry - disconnect - removed",
		logging.User(userID.String()), logging.Connection(connID))
}

func (r *Registry) Send(ctx context.Context, connID string, payload any) bool {
	r.mu.RLock()
	c := r.clients[connID]
	r.mu.RUnlock()
	if c == nil {
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.ErrorContext(ctx, "registry - send - marshal failed",
			logging.Connection(connID), logging.Err(err))
		return false
	}
	if err := c.Send(ctx, data); err != nil {
		r.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		r.log.WarnContext(ctx, "registry - send - write failed, dropping connection",
			logging.Connection(connID), logging.Err(err))
		r.Disconnect(ctx, connID)
		return false
	}
	r.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "delivered")))
	r.presence.Touch(ctx, connID)
	return true
}

// BroadcastToUser resolves the user's connections through presence and counts successful writes.
func (r *Registry) BroadcastToUser(ctx context.Context, userID uuid.UUID, payload any) int {
	sent := 0
	for _, connID := range r.presence.List(ctx, userID) {
		if r.Send(ctx, connID, payload) {
			sent++
		}
	}
	return sent
}

func (r *Registry) BroadcastToChat(
	ctx context.Context,
	chatID uuid.UUID,
	payload any,
	userIDs []uuid.UUID,
	exclude uuid.UUID,
) int {
	sent := 0
	for _, userID := range userIDs {
		if exclude != uuid.Nil && userID == exclude {
			continue
		}
		sent += r.BroadcastToUser(ctx, userID, payload)
	}
	r.log.DebugContext(ctx, "registry - broadcast to chat - done",
		logging.Chat(chatID.String()), logging.Count(sent))
	return sent
}

// LocalConnections snapshots the connection ids held by this process.
func (r *Registry) LocalConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every held transport, used on shutdown.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	clients := make([]contracts.Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()
	for _, c := range clients {
		c.Close(code, reason)
	}
}
