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
	"go.opentelemetry.io/otel/trace"
)

const connectedMessage = "Connected to WebSocket server"

// ManagerService runs the main live channel: greeting, offline backlog and the
// chat / typing / read frame loop. Frames of one connection must be handled in order.
type ManagerService struct {
	conns       contracts.ConnectionManager
	broadcaster contracts.MessageBroadcaster
	chats       domain.ChatRepository
	messages    *MessageService
	log         *slog.Logger
}

func NewManagerService(
	log *slog.Logger,
	conns contracts.ConnectionManager,
	broadcaster contracts.MessageBroadcaster,
	chats domain.ChatRepository,
	messages *MessageService,
) *ManagerService {
	return &ManagerService{
		log:         log,
		conns:       conns,
		broadcaster: broadcaster,
		chats:       chats,
		messages:    messages,
	}
}

// HandleConnect registers an authenticated client, greets it and pushes the
// offline backlog as one batch. A batch that cannot be written goes back to the queue.
func (m *ManagerService) HandleConnect(ctx context.Context, c contracts.Client, userID uuid.UUID) string {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleConnect", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
	))
	defer span.End()

	connID := m.conns.Connect(ctx, c, userID)
	if !m.conns.Send(ctx, connID, domain.SystemEvent{
		Type:      domain.TypeSystem,
		Message:   connectedMessage,
		Timestamp: time.Now().UTC(),
	}) {
		m.log.WarnContext(ctx, "manager - handle connect - greeting failed", logging.Connection(connID))
		return connID
	}

	queued := m.broadcaster.GetQueuedMessages(ctx, userID)
	if len(queued) == 0 {
		return connID
	}
	span.SetAttributes(attribute.Int("queued", len(queued)))
	if !m.conns.Send(ctx, connID, domain.QueuedMessagesEvent{
		Type:      domain.TypeQueuedMessages,
		Messages:  queued,
		Count:     len(queued),
		Timestamp: time.Now().UTC(),
	}) {
		for _, msg := range queued {
			m.broadcaster.AddToQueue(ctx, userID, msg, 0)
		}
		m.log.WarnContext(ctx, "manager - handle connect - backlog push failed, requeued",
			logging.Connection(connID), logging.Count(len(queued)))
		return connID
	}
	m.log.InfoContext(ctx, "manager - handle connect - backlog delivered",
		logging.User(userID.String()), logging.Connection(connID), logging.Count(len(queued)))
	return connID
}

func (m *ManagerService) HandleDisconnect(ctx context.Context, connID string) {
	m.conns.Disconnect(ctx, connID)
}

// HandleMessage processes one inbound frame. Every problem is answered with an
// error frame; nothing here closes the connection.
func (m *ManagerService) HandleMessage(ctx context.Context, connID string, userID uuid.UUID, raw []byte) {
	in, problem := decodeFrame(raw)
	if problem != "" {
		m.log.DebugContext(ctx, "manager - handle message - bad frame", logging.Connection(connID))
		m.sendError(ctx, connID, problem)
		return
	}
	ctx, span := tracer.Start(ctx, "ManagerService.HandleMessage", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("frame_type", in.Type),
		attribute.Int("payload_size", len(raw)),
	))
	defer span.End()

	switch in.Type {
	case domain.TypeChat:
		m.handleChat(ctx, connID, userID, in)
	case domain.TypeTyping:
		m.handleTyping(ctx, connID, userID, in)
	case domain.TypeRead:
		m.handleRead(ctx, connID, userID, in)
	default:
		m.log.DebugContext(ctx, "manager - handle message - unknown type",
			logging.Connection(connID), logging.FrameType(in.Type))
		m.sendError(ctx, connID, "Unknown message type: "+in.Type)
	}
}

func (m *ManagerService) handleChat(ctx context.Context, connID string, userID uuid.UUID, in domain.InboundFrame) {
	if in.ChatID == "" || in.Content == "" {
		m.sendError(ctx, connID, "Missing required fields")
		return
	}
	chatID, err := uuid.Parse(in.ChatID)
	if err != nil {
		m.sendError(ctx, connID, "Invalid chat_id format")
		return
	}
	key := in.IdempotencyKey
	if key == "" {
		key = "ws_" + uuid.NewString()
	}
	res, err := m.messages.SendMessage(ctx, SendMessageInput{
		ChatID:         chatID,
		SenderID:       userID,
		Text:           in.Content,
		IdempotencyKey: key,
		ExcludeSender:  true,
	})
	if err != nil {
		m.log.WarnContext(ctx, "manager - handle chat - send failed",
			logging.Connection(connID), logging.Chat(in.ChatID), logging.Err(err))
		m.sendError(ctx, connID, chatErrorText(err))
		return
	}
	ack := newChatEvent(res.Message)
	ack.Status = domain.StatusSent
	m.conns.Send(ctx, connID, ack)
}

func (m *ManagerService) handleTyping(ctx context.Context, connID string, userID uuid.UUID, in domain.InboundFrame) {
	if in.ChatID == "" {
		m.sendError(ctx, connID, "Missing chat_id")
		return
	}
	chatID, err := uuid.Parse(in.ChatID)
	if err != nil {
		m.sendError(ctx, connID, "Invalid chat_id format")
		return
	}
	chat, err := m.messages.memberChat(ctx, chatID, userID)
	if err != nil {
		m.sendError(ctx, connID, chatErrorText(err))
		return
	}
	event := domain.TypingEvent{
		Type:      domain.TypeTyping,
		ChatID:    chatID.String(),
		UserID:    userID.String(),
		IsTyping:  in.IsTyping,
		Timestamp: time.Now().UTC(),
	}
	m.broadcaster.BroadcastToChat(ctx, chatID, event, chat.ParticipantIDs(), userID)
	event.Status = domain.StatusSent
	m.conns.Send(ctx, connID, event)
}

func (m *ManagerService) handleRead(ctx context.Context, connID string, userID uuid.UUID, in domain.InboundFrame) {
	if in.MessageID == "" {
		m.sendError(ctx, connID, "Missing message_id")
		return
	}
	messageID, err := uuid.Parse(in.MessageID)
	if err != nil {
		m.sendError(ctx, connID, "Invalid message_id format")
		return
	}
	ok, err := m.messages.MarkAsRead(ctx, messageID, userID)
	if err != nil || !ok {
		m.sendError(ctx, connID, "Failed to mark message as read")
		return
	}
	m.conns.Send(ctx, connID, domain.ReadEvent{
		Type:      domain.TypeRead,
		MessageID: messageID.String(),
		UserID:    userID.String(),
		Timestamp: time.Now().UTC(),
		Status:    domain.StatusReceived,
	})
}

func (m *ManagerService) sendError(ctx context.Context, connID, text string) {
	m.conns.Send(ctx, connID, domain.NewError(text))
}

func chatErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrChatNotFound):
		return "Chat not found"
	case errors.Is(err, domain.ErrNotParticipant):
		return "You are not a member of this chat"
	case errors.Is(err, domain.ErrEmptyText):
		return "Missing required fields"
	case errors.Is(err, domain.ErrInvalidIdempotencyKey):
		return "Invalid idempotency_key"
	default:
		return "Failed to send message"
	}
}
