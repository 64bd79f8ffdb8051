package services

import (
	"context"
	"log/slog"

	"messenger/internal/core/contracts"
	"messenger/internal/core/domain"
	"messenger/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DraftSyncService drives one draft-sync connection bound to a single chat.
type DraftSyncService struct {
	chats  domain.ChatRepository
	drafts *DraftService
	conns  contracts.ConnectionManager
	log    *slog.Logger
}

func NewDraftSyncService(
	log *slog.Logger,
	chats domain.ChatRepository,
	drafts *DraftService,
	conns contracts.ConnectionManager,
) *DraftSyncService {
	return &DraftSyncService{
		log:    log,
		chats:  chats,
		drafts: drafts,
		conns:  conns,
	}
}

// Open checks membership, registers the connection and pushes the current
// draft. On failure the client is closed and ok is false.
func (s *DraftSyncService) Open(
	ctx context.Context,
	c contracts.Client,
	userID, chatID uuid.UUID,
) (connID string, ok bool) {
	ctx, span := tracer.Start(ctx, "DraftSyncService.Open", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("chat_id", chatID.String()),
	))
	defer span.End()

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil || chat == nil || !chat.HasParticipant(userID) {
		if err != nil {
			span.RecordError(err)
		}
		s.log.WarnContext(ctx, "draft sync - open - access denied",
			logging.User(userID.String()), logging.Chat(chatID.String()), logging.Err(err))
		c.Close(contracts.ClosePolicyViolation, "Not authorized to access this chat")
		return "", false
	}

	connID = s.conns.Connect(ctx, c, userID)
	d, err := s.drafts.Get(ctx, userID, chatID)
	if err == nil && d != nil && !s.conns.Send(ctx, connID, domain.NewDraftEvent(domain.TypeDraftInit, d)) {
		err = domain.ErrClientClosed
	}
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "draft sync - open - init failed",
			logging.Connection(connID), logging.Err(err))
		s.conns.Disconnect(ctx, connID)
		c.Close(contracts.CloseInternalError, "Error initializing connection")
		return "", false
	}
	s.log.InfoContext(ctx, "draft sync - open - ready",
		logging.User(userID.String()), logging.Chat(chatID.String()), logging.Connection(connID))
	return connID, true
}

// HandleMessage applies one client frame. Errors are reported back as error
// frames and never end the connection.
func (s *DraftSyncService) HandleMessage(
	ctx context.Context,
	connID string,
	userID, chatID uuid.UUID,
	raw []byte,
) {
	in, problem := decodeFrame(raw)
	if problem != "" {
		s.conns.Send(ctx, connID, domain.NewError(problem))
		return
	}
	switch in.Type {
	case domain.TypeDraftUpdate:
		if _, err := s.drafts.Save(ctx, userID, chatID, in.Text); err != nil {
			s.conns.Send(ctx, connID, domain.NewError("Failed to save draft"))
		}
	case domain.TypeDraftDelete:
		if ok, err := s.drafts.Delete(ctx, userID, chatID); err != nil || !ok {
			s.conns.Send(ctx, connID, domain.NewError("Failed to delete draft"))
		}
	default:
		s.log.DebugContext(ctx, "draft sync - handle message - unknown type",
			logging.Connection(connID), logging.FrameType(in.Type))
		s.conns.Send(ctx, connID, domain.NewError("Unknown message type: "+in.Type))
	}
}

func (s *DraftSyncService) HandleDisconnect(ctx context.Context, connID string) {
	s.conns.Disconnect(ctx, connID)
}
