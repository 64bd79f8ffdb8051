package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"messenger/internal/core/contracts"
	"messenger/internal/core/domain"
	"messenger/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type SendMessageInput struct {
	ChatID         uuid.UUID
	SenderID       uuid.UUID
	Text           string
	IdempotencyKey string
	// ExcludeSender skips the sender's own connections during fan-out.
	ExcludeSender bool
}

type SendResult struct {
	Message   *domain.Message
	Duplicate bool
	Delivered int
	Queued    int
}

type MessageService struct {
	chats       domain.ChatRepository
	repo        domain.MessageRepository
	broadcaster contracts.MessageBroadcaster
	drafts      contracts.DraftCleaner
	txManager   contracts.TxManager
	queueTTL    time.Duration
	log         *slog.Logger
}

func NewMessageService(
	log *slog.Logger,
	chats domain.ChatRepository,
	repo domain.MessageRepository,
	broadcaster contracts.MessageBroadcaster,
	drafts contracts.DraftCleaner,
	txManager contracts.TxManager,
	queueTTL time.Duration,
) *MessageService {
	return &MessageService{
		log:         log,
		chats:       chats,
		repo:        repo,
		broadcaster: broadcaster,
		drafts:      drafts,
		txManager:   txManager,
		queueTTL:    queueTTL,
	}
}

// SendMessage persists a message once per idempotency key and fans it out.
// Recipients with no live connection get it in their offline queue.
// A duplicate returns the stored original and is not broadcast again.
func (s *MessageService) SendMessage(ctx context.Context, in SendMessageInput) (*SendResult, error) {
	ctx, span := tracer.Start(ctx, "MessageService.SendMessage", trace.WithAttributes(
		attribute.String("chat_id", in.ChatID.String()),
		attribute.String("sender_id", in.SenderID.String()),
	))
	defer span.End()

	chat, err := s.memberChat(ctx, in.ChatID, in.SenderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	msg, err := domain.NewMessage(in.ChatID, in.SenderID, in.Text, in.IdempotencyKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var stored *domain.Message
	duplicate := false
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByIdempotencyKey(txCtx, in.ChatID, in.SenderID, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			stored, duplicate = existing, true
			return nil
		}
		if stored, err = s.repo.Create(txCtx, msg); err != nil {
			return err
		}
		// a concurrent send with the same key won the insert
		duplicate = stored.ID != msg.ID
		return nil
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.log.ErrorContext(ctx, "messages - send message - persist failed",
			logging.Chat(in.ChatID.String()), logging.User(in.SenderID.String()), logging.Err(err))
		return nil, err
	}

	res := &SendResult{Message: stored, Duplicate: duplicate}
	if duplicate {
		s.log.InfoContext(ctx, "messages - send message - duplicate idempotency key",
			logging.Chat(in.ChatID.String()), logging.Message(stored.ID.String()))
		return res, nil
	}

	event := newChatEvent(stored)
	for _, userID := range chat.ParticipantIDs() {
		if in.ExcludeSender && userID == in.SenderID {
			continue
		}
		n := s.broadcaster.BroadcastToUser(ctx, userID, event)
		res.Delivered += n
		if n == 0 && userID != in.SenderID && s.broadcaster.AddToQueue(ctx, userID, event, s.queueTTL) {
			res.Queued++
		}
	}

	if s.drafts != nil {
		if _, err := s.drafts.Delete(ctx, in.SenderID, in.ChatID); err != nil {
			s.log.WarnContext(ctx, "messages - send message - clear draft failed",
				logging.User(in.SenderID.String()), logging.Chat(in.ChatID.String()), logging.Err(err))
		}
	}

	span.SetAttributes(attribute.Int("delivered", res.Delivered), attribute.Int("queued", res.Queued))
	s.log.InfoContext(ctx, "messages - send message - success",
		logging.Message(stored.ID.String()), logging.Chat(in.ChatID.String()),
		"delivered", res.Delivered, "queued", res.Queued)
	return res, nil
}

// MarkAsRead returns false when the message is unknown or userID is not in its chat.
// The other participants get a read_status event.
func (s *MessageService) MarkAsRead(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	ctx, span := tracer.Start(ctx, "MessageService.MarkAsRead", trace.WithAttributes(
		attribute.String("message_id", messageID.String()),
		attribute.String("user_id", userID.String()),
	))
	defer span.End()

	ok, err := s.repo.UpdateReadStatus(ctx, messageID, userID, true)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "messages - mark as read - update failed",
			logging.Message(messageID.String()), logging.User(userID.String()), logging.Err(err))
		return false, err
	}
	if !ok {
		return false, nil
	}

	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		s.log.WarnContext(ctx, "messages - mark as read - lookup for broadcast failed",
			logging.Message(messageID.String()), logging.Err(err))
		return true, nil
	}
	chat, err := s.chats.GetChat(ctx, msg.ChatID)
	if err != nil {
		s.log.WarnContext(ctx, "messages - mark as read - roster for broadcast failed",
			logging.Chat(msg.ChatID.String()), logging.Err(err))
		return true, nil
	}
	s.broadcaster.BroadcastToChat(ctx, chat.ID, domain.ReadStatusEvent{
		Type: domain.TypeReadStatus,
		Status: domain.ReadStatus{
			MessageID: messageID.String(),
			ChatID:    chat.ID.String(),
			UserID:    userID.String(),
			Read:      true,
		},
	}, chat.ParticipantIDs(), userID)
	return true, nil
}

func (s *MessageService) MarkAllAsRead(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	ctx, span := tracer.Start(ctx, "MessageService.MarkAllAsRead", trace.WithAttributes(
		attribute.String("chat_id", chatID.String()),
		attribute.String("user_id", userID.String()),
	))
	defer span.End()

	chat, err := s.memberChat(ctx, chatID, userID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	n, err := s.repo.MarkAllAsRead(ctx, chatID, userID)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "messages - mark all as read - update failed",
			logging.Chat(chatID.String()), logging.User(userID.String()), logging.Err(err))
		return 0, err
	}
	if n > 0 {
		s.broadcaster.BroadcastToChat(ctx, chatID, domain.ReadStatusEvent{
			Type: domain.TypeAllReadStatus,
			Status: domain.ReadStatus{
				ChatID: chatID.String(),
				UserID: userID.String(),
				Read:   true,
				Count:  n,
			},
		}, chat.ParticipantIDs(), userID)
	}
	return n, nil
}

func (s *MessageService) GetUnreadCount(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	if _, err := s.memberChat(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return s.repo.GetUnreadCount(ctx, chatID, userID)
}

// GetChatMessages pages history newest first. limit is clamped to 1..100, 0 means 50.
func (s *MessageService) GetChatMessages(
	ctx context.Context,
	chatID, userID uuid.UUID,
	limit int,
	before *uuid.UUID,
) ([]domain.Message, error) {
	if _, err := s.memberChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	msgs, err := s.repo.GetChatMessages(ctx, chatID, limit, before)
	if err != nil {
		s.log.ErrorContext(ctx, "messages - get chat messages - query failed",
			logging.Chat(chatID.String()), logging.Err(err))
		return nil, err
	}
	return msgs, nil
}

func (s *MessageService) memberChat(ctx context.Context, chatID, userID uuid.UUID) (*domain.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		if !errors.Is(err, domain.ErrChatNotFound) {
			s.log.ErrorContext(ctx, "messages - roster lookup failed",
				logging.Chat(chatID.String()), logging.Err(err))
		}
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return chat, nil
}

func newChatEvent(m *domain.Message) domain.ChatEvent {
	return domain.ChatEvent{
		Type:      domain.TypeChat,
		MessageID: m.ID.String(),
		ChatID:    m.ChatID.String(),
		SenderID:  m.SenderID.String(),
		Content:   m.Text,
		Timestamp: m.CreatedAt,
	}
}
