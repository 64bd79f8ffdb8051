package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"messenger/internal/core/contracts"
	"messenger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// frame decodes a sent payload the way a client would see it.
func frame(t *testing.T, payload any) map[string]any {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

type fakeClient struct {
	closeCode   int
	closeReason string
}

func (c *fakeClient) Send(context.Context, []byte) error { return nil }

func (c *fakeClient) Close(code int, reason string) {
	if c.closeCode == 0 {
		c.closeCode, c.closeReason = code, reason
	}
}

// fakeConns is an in-memory connection manager that records every payload.
type fakeConns struct {
	mu      sync.Mutex
	next    int
	byUser  map[uuid.UUID][]string
	owners  map[string]uuid.UUID
	sent    map[string][]any
	// budget caps how many sends succeed on a connection before writes fail.
	budget map[string]int
}

func newFakeConns() *fakeConns {
	return &fakeConns{
		byUser:  make(map[uuid.UUID][]string),
		owners:  make(map[string]uuid.UUID),
		sent:    make(map[string][]any),
		budget:  make(map[string]int),
	}
}

func (f *fakeConns) Connect(_ context.Context, _ contracts.Client, userID uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("conn-%d", f.next)
	f.byUser[userID] = append(f.byUser[userID], id)
	f.owners[id] = userID
	return id
}

func (f *fakeConns) Disconnect(_ context.Context, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.owners[connID]
	if !ok {
		return
	}
	delete(f.owners, connID)
	ids := f.byUser[userID]
	for i, id := range ids {
		if id == connID {
			f.byUser[userID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

func (f *fakeConns) Send(ctx context.Context, connID string, payload any) bool {
	f.mu.Lock()
	_, known := f.owners[connID]
	left, limited := f.budget[connID]
	failing := known && limited && left <= 0
	if known && !failing {
		f.sent[connID] = append(f.sent[connID], payload)
		if limited {
			f.budget[connID] = left - 1
		}
	}
	f.mu.Unlock()
	if failing {
		f.Disconnect(ctx, connID)
		return false
	}
	return known
}

func (f *fakeConns) BroadcastToUser(ctx context.Context, userID uuid.UUID, payload any) int {
	f.mu.Lock()
	ids := append([]string(nil), f.byUser[userID]...)
	f.mu.Unlock()
	n := 0
	for _, id := range ids {
		if f.Send(ctx, id, payload) {
			n++
		}
	}
	return n
}

func (f *fakeConns) BroadcastToChat(ctx context.Context, _ uuid.UUID, payload any, userIDs []uuid.UUID, exclude uuid.UUID) int {
	n := 0
	for _, id := range userIDs {
		if exclude != uuid.Nil && id == exclude {
			continue
		}
		n += f.BroadcastToUser(ctx, id, payload)
	}
	return n
}

func (f *fakeConns) frames(t *testing.T, connID string) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent[connID]))
	for _, p := range f.sent[connID] {
		out = append(out, frame(t, p))
	}
	return out
}

func (f *fakeConns) types(t *testing.T, connID string) []string {
	t.Helper()
	var out []string
	for _, fr := range f.frames(t, connID) {
		out = append(out, fr["type"].(string))
	}
	return out
}

type memQueue struct {
	mu    sync.Mutex
	items map[uuid.UUID][][]byte
	ttls  map[uuid.UUID]time.Duration
	err   error
}

func newMemQueue() *memQueue {
	return &memQueue{
		items: make(map[uuid.UUID][][]byte),
		ttls:  make(map[uuid.UUID]time.Duration),
	}
}

func (q *memQueue) Enqueue(_ context.Context, userID uuid.UUID, payload []byte, ttl time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items[userID] = append(q.items[userID], payload)
	q.ttls[userID] = ttl
	return nil
}

func (q *memQueue) Drain(_ context.Context, userID uuid.UUID) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	items := q.items[userID]
	delete(q.items, userID)
	return items, nil
}

func (q *memQueue) len(userID uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[userID])
}

type draftKey struct{ user, chat uuid.UUID }

type memDrafts struct {
	mu      sync.Mutex
	drafts  map[draftKey]domain.Draft
	saveErr error
	getErr  error
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[draftKey]domain.Draft)}
}

func (s *memDrafts) Save(_ context.Context, d *domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.drafts[draftKey{d.UserID, d.ChatID}] = *d
	return nil
}

func (s *memDrafts) Get(_ context.Context, userID, chatID uuid.UUID) (*domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	d, ok := s.drafts[draftKey{userID, chatID}]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *memDrafts) Delete(_ context.Context, userID, chatID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := draftKey{userID, chatID}
	_, ok := s.drafts[k]
	delete(s.drafts, k)
	return ok, nil
}

type fakeChats struct {
	chats map[uuid.UUID]*domain.Chat
	err   error
}

func newFakeChats(chats ...*domain.Chat) *fakeChats {
	f := &fakeChats{chats: make(map[uuid.UUID]*domain.Chat)}
	for _, c := range chats {
		f.chats[c.ID] = c
	}
	return f
}

func (f *fakeChats) GetChat(_ context.Context, chatID uuid.UUID) (*domain.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.chats[chatID]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	return c, nil
}

func newChat(members ...uuid.UUID) *domain.Chat {
	c := &domain.Chat{ID: uuid.New(), Type: domain.ChatGroup}
	if len(members) == 2 {
		c.Type = domain.ChatPrivate
	}
	for i, id := range members {
		role := domain.RoleMember
		if i == 0 {
			role = domain.RoleAdmin
		}
		c.Participants = append(c.Participants, domain.Participant{UserID: id, Role: role})
	}
	return c
}

type idemKey struct {
	chat, sender uuid.UUID
	key          string
}

type readKey struct{ msg, user uuid.UUID }

// memMessages is a message store with the same idempotency and read rules as the SQL one.
type memMessages struct {
	mu          sync.Mutex
	chats       *fakeChats
	byID        map[uuid.UUID]*domain.Message
	byKey       map[idemKey]*domain.Message
	reads       map[readKey]bool
	createCalls int
	createErr   error
}

func newMemMessages(chats *fakeChats) *memMessages {
	return &memMessages{
		chats: chats,
		byID:  make(map[uuid.UUID]*domain.Message),
		byKey: make(map[idemKey]*domain.Message),
		reads: make(map[readKey]bool),
	}
}

func (r *memMessages) Create(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return nil, r.createErr
	}
	k := idemKey{msg.ChatID, msg.SenderID, msg.IdempotencyKey}
	if existing, ok := r.byKey[k]; ok {
		return existing, nil
	}
	cp := *msg
	r.byID[cp.ID] = &cp
	r.byKey[k] = &cp
	return &cp, nil
}

func (r *memMessages) FindByIdempotencyKey(_ context.Context, chatID, senderID uuid.UUID, key string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey[idemKey{chatID, senderID, key}], nil
}

func (r *memMessages) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return m, nil
}

func (r *memMessages) UpdateReadStatus(ctx context.Context, messageID, userID uuid.UUID, read bool) (bool, error) {
	m, err := r.GetByID(ctx, messageID)
	if err != nil {
		return false, nil
	}
	chat, err := r.chats.GetChat(ctx, m.ChatID)
	if err != nil || !chat.HasParticipant(userID) {
		return false, nil
	}
	r.mu.Lock()
	r.reads[readKey{messageID, userID}] = read
	r.mu.Unlock()
	return true, nil
}

func (r *memMessages) MarkAllAsRead(_ context.Context, chatID, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, m := range r.byID {
		if m.ChatID == chatID && m.SenderID != userID && !r.reads[readKey{id, userID}] {
			r.reads[readKey{id, userID}] = true
			n++
		}
	}
	return n, nil
}

func (r *memMessages) GetUnreadCount(_ context.Context, chatID, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, m := range r.byID {
		if m.ChatID == chatID && m.SenderID != userID && !r.reads[readKey{id, userID}] {
			n++
		}
	}
	return n, nil
}

func (r *memMessages) GetChatMessages(_ context.Context, chatID uuid.UUID, limit int, _ *uuid.UUID) ([]domain.Message, error) {
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

type passTx struct{ calls int }

func (p *passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

var errStoreDown = domain.NewStoreError(domain.StoreConnection, "test", errors.New("connection refused"))
