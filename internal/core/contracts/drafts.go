package contracts

import (
	"context"

	"messenger/internal/core/domain"

	"github.com/google/uuid"
)

type DraftStore interface {
	Save(ctx context.Context, d *domain.Draft) error
	// Get returns nil, nil when no draft exists.
	Get(ctx context.Context, userID, chatID uuid.UUID) (*domain.Draft, error)
	Delete(ctx context.Context, userID, chatID uuid.UUID) (bool, error)
}

// DraftCleaner drops a draft once its message has been sent.
type DraftCleaner interface {
	Delete(ctx context.Context, userID, chatID uuid.UUID) (bool, error)
}
