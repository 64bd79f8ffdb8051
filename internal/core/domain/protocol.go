package domain

import (
	"encoding/json"
	"time"
)

const (
	TypeSystem         = "system"
	TypeQueuedMessages = "queued_messages"
	TypeChat           = "chat"
	TypeTyping         = "typing"
	TypeRead           = "read"
	TypeReadStatus     = "read_status"
	TypeAllReadStatus  = "all_read_status"
	TypeError          = "error"
	TypeDraftInit      = "draft_init"
	TypeDraftUpdate    = "draft_update"
	TypeDraftDelete    = "draft_delete"
)

const (
	StatusSent     = "sent"
	StatusReceived = "received"
)

// InboundFrame is the union of every client-to-server frame. Fields not used
// by a type are left empty.
type InboundFrame struct {
	Type           string `json:"type"`
	ChatID         string `json:"chat_id,omitempty"`
	Content        string `json:"content,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Text           string `json:"text,omitempty"`
}

// SystemEvent is sent once when the live channel becomes ready.
type SystemEvent struct {
	Type      string    `json:"type"` // "system"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// QueuedMessagesEvent carries everything drained from the offline queue.
type QueuedMessagesEvent struct {
	Type      string            `json:"type"` // "queued_messages"
	Messages  []json.RawMessage `json:"messages"`
	Count     int               `json:"count"`
	Timestamp time.Time         `json:"timestamp"`
}

// ChatEvent is broadcast to participants and echoed to the sender with Status set.
type ChatEvent struct {
	Type      string    `json:"type"` // "chat"
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Status    string    `json:"status,omitempty"`
}

// TypingEvent is ephemeral and never persisted.
type TypingEvent struct {
	Type      string    `json:"type"` // "typing"
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status,omitempty"`
}

// ReadEvent confirms a read receipt to the reader.
type ReadEvent struct {
	Type      string    `json:"type"` // "read"
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status,omitempty"`
}

type ReadStatus struct {
	MessageID string `json:"message_id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	UserID    string `json:"user_id"`
	Read      bool   `json:"read,omitempty"`
	Count     int64  `json:"count,omitempty"`
}

// ReadStatusEvent tells the other participants that a user read something.
type ReadStatusEvent struct {
	Type   string     `json:"type"` // "read_status" | "all_read_status"
	Status ReadStatus `json:"status"`
}

// DraftEvent covers draft_init, draft_update and draft_delete.
type DraftEvent struct {
	Type      string     `json:"type"`
	ChatID    string     `json:"chat_id"`
	Text      *string    `json:"text,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ErrorMessage is the WS-safe error frame.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

func NewDraftEvent(typ string, d *Draft) DraftEvent {
	text := d.Text
	updatedAt := d.UpdatedAt
	return DraftEvent{
		Type:      typ,
		ChatID:    d.ChatID.String(),
		Text:      &text,
		UpdatedAt: &updatedAt,
	}
}
