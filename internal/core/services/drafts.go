package services

import (
	"context"
	"errors"
	"log/slog"

	"messenger/internal/core/contracts"
	"messenger/internal/core/domain"
	"messenger/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DraftService stores drafts and pushes every change to all of the owner's
// connections so open tabs stay in sync. Drafts are private: nothing goes chat-wide.
type DraftService struct {
	chats       domain.ChatRepository
	store       contracts.DraftStore
	broadcaster contracts.MessageBroadcaster
	log         *slog.Logger
}

func NewDraftService(
	log *slog.Logger,
	chats domain.ChatRepository,
	store contracts.DraftStore,
	broadcaster contracts.MessageBroadcaster,
) *DraftService {
	return &DraftService{
		log:         log,
		chats:       chats,
		store:       store,
		broadcaster: broadcaster,
	}
}

// CheckAccess returns ErrChatNotFound or ErrNotParticipant unless userID is on
// the chat's roster. Save, Get and Delete trust their caller to have checked.
func (s *DraftService) CheckAccess(ctx context.Context, userID, chatID uuid.UUID) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		if !errors.Is(err, domain.ErrChatNotFound) {
			s.log.ErrorContext(ctx, "drafts - check access - roster lookup failed",
				logging.Chat(chatID.String()), logging.Err(err))
		}
		return err
	}
	if !chat.HasParticipant(userID) {
		return domain.ErrNotParticipant
	}
	return nil
}

// Save overwrites the draft with a fresh server timestamp. Last write wins.
func (s *DraftService) Save(ctx context.Context, userID, chatID uuid.UUID, text string) (*domain.Draft, error) {
	ctx, span := tracer.Start(ctx, "DraftService.Save", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("chat_id", chatID.String()),
	))
	defer span.End()

	d := domain.NewDraft(userID, chatID, text)
	if err := s.store.Save(ctx, d); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.log.ErrorContext(ctx, "drafts - save - store failed",
			logging.User(userID.String()), logging.Chat(chatID.String()), logging.Err(err))
		return nil, err
	}
	n := s.broadcaster.BroadcastToUser(ctx, userID, domain.NewDraftEvent(domain.TypeDraftUpdate, d))
	span.SetAttributes(attribute.Int("delivered", n))
	return d, nil
}

func (s *DraftService) Get(ctx context.Context, userID, chatID uuid.UUID) (*domain.Draft, error) {
	d, err := s.store.Get(ctx, userID, chatID)
	if err != nil {
		s.log.ErrorContext(ctx, "drafts - get - store failed",
			logging.User(userID.String()), logging.Chat(chatID.String()), logging.Err(err))
		return nil, err
	}
	return d, nil
}

// Delete reports whether a draft existed. Only an actual removal is broadcast.
func (s *DraftService) Delete(ctx context.Context, userID, chatID uuid.UUID) (bool, error) {
	ctx, span := tracer.Start(ctx, "DraftService.Delete", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("chat_id", chatID.String()),
	))
	defer span.End()

	ok, err := s.store.Delete(ctx, userID, chatID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		s.log.ErrorContext(ctx, "drafts - delete - store failed",
			logging.User(userID.String()), logging.Chat(chatID.String()), logging.Err(err))
		return false, err
	}
	if ok {
		s.broadcaster.BroadcastToUser(ctx, userID, domain.DraftEvent{
			Type:   domain.TypeDraftDelete,
			ChatID: chatID.String(),
		})
	}
	return ok, nil
}
