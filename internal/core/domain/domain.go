package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

const maxIdempotencyKeyLen = 255

// Chat is the read-only roster view of a conversation.
type Chat struct {
	ID           uuid.UUID
	Type         ChatType
	Name         string
	Participants []Participant
	CreatedAt    time.Time
}

// Participant is one (user, role) entry of a chat roster.
type Participant struct {
	UserID uuid.UUID
	Role   string
}

func (c *Chat) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (c *Chat) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Message is a persisted chat entry. IdempotencyKey is unique per (chat, sender).
type Message struct {
	ID             uuid.UUID
	ChatID         uuid.UUID
	SenderID       uuid.UUID
	Text           string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewMessage(chatID, senderID uuid.UUID, text, idempotencyKey string) (*Message, error) {
	now := time.Now().UTC()
	m := &Message{
		ID:             uuid.New(),
		ChatID:         chatID,
		SenderID:       senderID,
		Text:           text,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyText
	}
	return ValidateIdempotencyKey(m.IdempotencyKey)
}

func ValidateIdempotencyKey(key string) error {
	if strings.TrimSpace(key) == "" || len(key) > maxIdempotencyKeyLen {
		return ErrInvalidIdempotencyKey
	}
	return nil
}

// Draft is an unsent message body for one (user, chat). Last write wins.
type Draft struct {
	UserID    uuid.UUID
	ChatID    uuid.UUID
	Text      string
	UpdatedAt time.Time
}

func NewDraft(userID, chatID uuid.UUID, text string) *Draft {
	return &Draft{
		UserID:    userID,
		ChatID:    chatID,
		Text:      text,
		UpdatedAt: time.Now().UTC(),
	}
}
