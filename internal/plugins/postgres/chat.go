package postgres

import (
	"context"
	"database/sql"
	"errors"

	"messenger/internal/core/domain"

	"github.com/google/uuid"
)

// ChatRepo reads chat rosters. Chats are created and edited elsewhere.
type ChatRepo struct {
	db *sql.DB
}

func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) GetChat(ctx context.Context, chatID uuid.UUID) (*domain.Chat, error) {
	exec := GetExecutor(ctx, r.db)
	var c domain.Chat
	var typ string
	err := exec.QueryRowContext(ctx, `
		SELECT id, type, COALESCE(name, ''), created_at
		FROM chats
		WHERE id = $1
	`, chatID).Scan(&c.ID, &typ, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChatNotFound
	}
	if err != nil {
		return nil, dbErr("chats.get", err)
	}
	c.Type = domain.ChatType(typ)

	rows, err := exec.QueryContext(ctx, `
		SELECT user_id, role
		FROM chat_participants
		WHERE chat_id = $1
		ORDER BY user_id
	`, chatID)
	if err != nil {
		return nil, dbErr("chats.participants", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.UserID, &p.Role); err != nil {
			return nil, dbErr("chats.participants", err)
		}
		c.Participants = append(c.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("chats.participants", err)
	}
	return &c, nil
}
