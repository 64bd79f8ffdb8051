package postgres

import (
	"context"
	"database/sql"
	"errors"

	"messenger/internal/core/domain"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{
		db: db,
	}
}

const messageColumns = `id, chat_id, sender_id, text, idempotency_key, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(
		&m.ID,
		&m.ChatID,
		&m.SenderID,
		&m.Text,
		&m.IdempotencyKey,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts msg. When (chat, sender, idempotency key) already exists the
// stored row is returned untouched.
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	exec := GetExecutor(ctx, r.db)
	stored, err := scanMessage(exec.QueryRowContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chat_id, sender_id, idempotency_key) DO NOTHING
		RETURNING `+messageColumns,
		msg.ID,
		msg.ChatID,
		msg.SenderID,
		msg.Text,
		msg.IdempotencyKey,
		msg.CreatedAt,
		msg.UpdatedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := r.FindByIdempotencyKey(ctx, msg.ChatID, msg.SenderID, msg.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, dbErr("messages.create", errors.New("conflicting row vanished"))
		}
		return existing, nil
	}
	if err != nil {
		return nil, dbErr("messages.create", err)
	}
	return stored, nil
}

func (r *MessageRepo) FindByIdempotencyKey(
	ctx context.Context,
	chatID, senderID uuid.UUID,
	key string,
) (*domain.Message, error) {
	exec := GetExecutor(ctx, r.db)
	m, err := scanMessage(exec.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = $1 AND sender_id = $2 AND idempotency_key = $3
	`, chatID, senderID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("messages.find_by_key", err)
	}
	return m, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	exec := GetExecutor(ctx, r.db)
	m, err := scanMessage(exec.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, dbErr("messages.get", err)
	}
	return m, nil
}

// UpdateReadStatus upserts the receipt only when userID belongs to the message's chat.
func (r *MessageRepo) UpdateReadStatus(ctx context.Context, messageID, userID uuid.UUID, read bool) (bool, error) {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		INSERT INTO message_status (message_id, user_id, read, read_at)
		SELECT m.id, p.user_id, $3, CASE WHEN $3 THEN now() END
		FROM messages m
		JOIN chat_participants p ON p.chat_id = m.chat_id AND p.user_id = $2
		WHERE m.id = $1
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET read = EXCLUDED.read, read_at = EXCLUDED.read_at
	`, messageID, userID, read)
	if err != nil {
		return false, dbErr("messages.update_read_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("messages.update_read_status", err)
	}
	return n > 0, nil
}

// MarkAllAsRead marks every message from other senders as read and returns how many changed.
func (r *MessageRepo) MarkAllAsRead(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		INSERT INTO message_status (message_id, user_id, read, read_at)
		SELECT m.id, $2, TRUE, now()
		FROM messages m
		WHERE m.chat_id = $1 AND m.sender_id <> $2
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET read = TRUE, read_at = now()
		WHERE message_status.read = FALSE
	`, chatID, userID)
	if err != nil {
		return 0, dbErr("messages.mark_all_as_read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbErr("messages.mark_all_as_read", err)
	}
	return n, nil
}

func (r *MessageRepo) GetUnreadCount(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	exec := GetExecutor(ctx, r.db)
	var n int64
	err := exec.QueryRowContext(ctx, `
		SELECT count(*)
		FROM messages m
		LEFT JOIN message_status s ON s.message_id = m.id AND s.user_id = $2
		WHERE m.chat_id = $1 AND m.sender_id <> $2 AND COALESCE(s.read, FALSE) = FALSE
	`, chatID, userID).Scan(&n)
	if err != nil {
		return 0, dbErr("messages.unread_count", err)
	}
	return n, nil
}

// GetChatMessages returns up to limit messages newest first, older than before when set.
func (r *MessageRepo) GetChatMessages(
	ctx context.Context,
	chatID uuid.UUID,
	limit int,
	before *uuid.UUID,
) ([]domain.Message, error) {
	exec := GetExecutor(ctx, r.db)
	var (
		rows *sql.Rows
		err  error
	)
	if before == nil {
		rows, err = exec.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, chatID, limit)
	} else {
		rows, err = exec.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE chat_id = $1
			AND created_at < (SELECT created_at FROM messages WHERE id = $3)
			ORDER BY created_at DESC
			LIMIT $2
		`, chatID, limit, *before)
	}
	if err != nil {
		return nil, dbErr("messages.history", err)
	}
	defer rows.Close()
	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, dbErr("messages.history", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("messages.history", err)
	}
	return msgs, nil
}
