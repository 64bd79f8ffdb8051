package server

import (
	"context"
	"sort"
	"sync"

	"messenger/internal/core/domain"

	"github.com/google/uuid"
)

type rosters struct {
	mu    sync.Mutex
	chats map[uuid.UUID]*domain.Chat
}

func newRosters() *rosters {
	return &rosters{chats: make(map[uuid.UUID]*domain.Chat)}
}

func (r *rosters) add(members ...uuid.UUID) uuid.UUID {
	c := &domain.Chat{ID: uuid.New(), Type: domain.ChatGroup}
	for _, m := range members {
		c.Participants = append(c.Participants, domain.Participant{UserID: m, Role: domain.RoleMember})
	}
	r.mu.Lock()
	r.chats[c.ID] = c
	r.mu.Unlock()
	return c.ID
}

func (r *rosters) GetChat(_ context.Context, chatID uuid.UUID) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatID]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	return c, nil
}

type msgKey struct {
	chat, sender uuid.UUID
	key          string
}

type messageRows struct {
	mu     sync.Mutex
	chats  *rosters
	byID   map[uuid.UUID]*domain.Message
	byKey  map[msgKey]*domain.Message
	readBy map[uuid.UUID]map[uuid.UUID]bool
}

func newMessageRows(chats *rosters) *messageRows {
	return &messageRows{
		chats:  chats,
		byID:   make(map[uuid.UUID]*domain.Message),
		byKey:  make(map[msgKey]*domain.Message),
		readBy: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (r *messageRows) Create(_ context.Context, m *domain.Message) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := msgKey{m.ChatID, m.SenderID, m.IdempotencyKey}
	if existing, ok := r.byKey[k]; ok {
		return existing, nil
	}
	cp := *m
	r.byID[cp.ID] = &cp
	r.byKey[k] = &cp
	return &cp, nil
}

func (r *messageRows) FindByIdempotencyKey(_ context.Context, chatID, senderID uuid.UUID, key string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey[msgKey{chatID, senderID, key}], nil
}

func (r *messageRows) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[id]; ok {
		return m, nil
	}
	return nil, domain.ErrMessageNotFound
}

func (r *messageRows) UpdateReadStatus(ctx context.Context, messageID, userID uuid.UUID, read bool) (bool, error) {
	m, err := r.GetByID(ctx, messageID)
	if err != nil {
		return false, nil
	}
	chat, _ := r.chats.GetChat(ctx, m.ChatID)
	if chat == nil || !chat.HasParticipant(userID) {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mark(messageID, userID, read)
	return true, nil
}

func (r *messageRows) mark(messageID, userID uuid.UUID, read bool) {
	if r.readBy[messageID] == nil {
		r.readBy[messageID] = make(map[uuid.UUID]bool)
	}
	r.readBy[messageID][userID] = read
}

func (r *messageRows) MarkAllAsRead(_ context.Context, chatID, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, m := range r.byID {
		if m.ChatID == chatID && m.SenderID != userID && !r.readBy[id][userID] {
			r.mark(id, userID, true)
			n++
		}
	}
	return n, nil
}

func (r *messageRows) GetUnreadCount(_ context.Context, chatID, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, m := range r.byID {
		if m.ChatID == chatID && m.SenderID != userID && !r.readBy[id][userID] {
			n++
		}
	}
	return n, nil
}

func (r *messageRows) GetChatMessages(_ context.Context, chatID uuid.UUID, limit int, _ *uuid.UUID) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.byID {
		if m.ChatID == chatID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type inlineTx struct{}

func (inlineTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
