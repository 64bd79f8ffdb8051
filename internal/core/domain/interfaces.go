package domain

import (
	"context"

	"github.com/google/uuid"
)

// ChatRepository is the read-only chat roster. The core never mutates it.
type ChatRepository interface {
	// GetChat returns ErrChatNotFound when the chat does not exist.
	GetChat(ctx context.Context, chatID uuid.UUID) (*Chat, error)
}

// MessageRepository handles message persistence and read receipts.
type MessageRepository interface {
	// Create inserts the message. A row with the same (chat, sender, idempotency key)
	// wins and is returned instead.
	Create(ctx context.Context, msg *Message) (*Message, error)
	// FindByIdempotencyKey returns nil, nil when no message matches.
	FindByIdempotencyKey(ctx context.Context, chatID, senderID uuid.UUID, key string) (*Message, error)
	GetByID(ctx context.Context, messageID uuid.UUID) (*Message, error)
	// UpdateReadStatus returns false when the message does not exist or the
	// user is not a participant of its chat.
	UpdateReadStatus(ctx context.Context, messageID, userID uuid.UUID, read bool) (bool, error)
	MarkAllAsRead(ctx context.Context, chatID, userID uuid.UUID) (int64, error)
	GetUnreadCount(ctx context.Context, chatID, userID uuid.UUID) (int64, error)
	// GetChatMessages pages newest first; before is an optional message id cursor.
	GetChatMessages(ctx context.Context, chatID uuid.UUID, limit int, before *uuid.UUID) ([]Message, error)
}
