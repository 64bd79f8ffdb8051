package services

import (
	"context"
	"log/slog"
	"time"

	"messenger/internal/core/contracts"
	"messenger/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// PresenceRegistry is the error-free presence API. Store failures are logged
// and degrade to "no known connections", which pushes delivery onto the offline queue.
type PresenceRegistry struct {
	store contracts.PresenceStore
	ttl   time.Duration
	swept metric.Int64Counter
	log   *slog.Logger
}

func NewPresenceRegistry(
	log *slog.Logger,
	store contracts.PresenceStore,
	ttl time.Duration,
) *PresenceRegistry {
	return &PresenceRegistry{
		log:   log,
		store: store,
		ttl:   ttl,
		swept: int64Counter("presence.swept", "Stale presence entries removed by the sweeper"),
	}
}

func (p *PresenceRegistry) Add(ctx context.Context, userID uuid.UUID, connID string) int64 {
	n, err := p.store.AddConnection(ctx, userID, connID, p.ttl)
	if err != nil {
		p.log.ErrorContext(ctx, "presence - add - store failed",
			logging.User(userID.String()), logging.Connection(connID), logging.Err(err))
		return 0
	}
	return n
}

func (p *PresenceRegistry) Remove(ctx context.Context, userID uuid.UUID, connID string) int64 {
	n, err := p.store.RemoveConnection(ctx, userID, connID)
	if err != nil {
		p.log.ErrorContext(ctx, "presence - remove - store failed",
			logging.User(userID.String()), logging.Connection(connID), logging.Err(err))
		return 0
	}
	return n
}

func (p *PresenceRegistry) List(ctx context.Context, userID uuid.UUID) []string {
	conns, err := p.store.ListConnections(ctx, userID)
	if err != nil {
		p.log.ErrorContext(ctx, "presence - list - store failed",
			logging.User(userID.String()), logging.Err(err))
		return nil
	}
	return conns
}

func (p *PresenceRegistry) Touch(ctx context.Context, connID string) {
	if err := p.store.TouchConnection(ctx, connID, p.ttl); err != nil {
		p.log.WarnContext(ctx, "presence - touch - store failed",
			logging.Connection(connID), logging.Err(err))
	}
}

// Sweep removes presence entries whose liveness marker expired.
func (p *PresenceRegistry) Sweep(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "PresenceRegistry.Sweep")
	defer span.End()
	n, err := p.store.SweepStale(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		p.log.ErrorContext(ctx, "presence - sweep - store failed", logging.Err(err))
	}
	span.SetAttributes(attribute.Int("removed", n))
	if n > 0 {
		p.swept.Add(ctx, int64(n))
		p.log.InfoContext(ctx, "presence - sweep - removed stale connections", logging.Count(n))
	}
	return n
}
