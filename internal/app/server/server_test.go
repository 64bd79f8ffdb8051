package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"messenger/internal/app/registry"
	"messenger/internal/app/server/handlers"
	"messenger/internal/config"
	"messenger/internal/core/contracts"
	"messenger/internal/core/services"
	redisPlugin "messenger/internal/plugins/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	ts     *httptest.Server
	tokens *services.TokenService
	chats  *rosters
	rows   *messageRows
	hub    *registry.Registry
	mr     *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	env := &testEnv{
		tokens: services.NewTokenService("test-secret", "messenger-test", time.Minute),
		chats:  newRosters(),
		mr:     mr,
	}
	env.rows = newMessageRows(env.chats)

	presence := services.NewPresenceRegistry(log, redisPlugin.NewRedisPresenceStore(rdb), time.Hour)
	env.hub = registry.NewRegistry(log, presence)
	bcast := services.NewBroadcaster(log, env.hub, redisPlugin.NewRedisMessageQueue(rdb, time.Hour))
	drafts := services.NewDraftService(log, env.chats, redisPlugin.NewRedisDraftStore(rdb, time.Hour), bcast)
	msgs := services.NewMessageService(log, env.chats, env.rows, bcast, drafts, inlineTx{}, time.Hour)
	manager := services.NewManagerService(log, env.hub, bcast, env.chats, msgs)
	draftSync := services.NewDraftSyncService(log, env.chats, drafts, env.hub)

	wsCfg := config.WebSocketConfig{ReadLimit: 64 * 1024, WriteTimeout: time.Second, SendBuffer: 16}
	srv := NewServer(log, "messenger-test", ":0", env.tokens,
		handlers.NewWSHandler(log, wsCfg, env.tokens, manager, draftSync),
		handlers.NewRESTHandler(log, msgs, drafts),
		handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
	)
	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		env.hub.CloseAll(contracts.CloseGoingAway, "test over")
		env.ts.Close()
	})
	return env
}

func (e *testEnv) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok, err := e.tokens.GenerateToken(userID)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) dial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.ts.URL, "http") + path + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// live opens the main channel and waits for the greeting, so the connection is registered.
func (e *testEnv) live(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	conn := e.dial(t, "/ws", e.token(t, userID))
	greeting := readFrame(t, conn)
	require.Equal(t, "system", greeting["type"])
	require.Equal(t, "Connected to WebSocket server", greeting["message"])
	return conn
}

func (e *testEnv) do(t *testing.T, method, path string, userID uuid.UUID, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f map[string]any
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func sendFrame(t *testing.T, conn *websocket.Conn, f map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
	assert.Equal(t, code, ce.Code)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", data)
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.mr.Close()
	resp2, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestLive_RejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "/ws", "not-a-token")
	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestLive_MessageReachesEveryTabOfEveryParticipant(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := uuid.New(), uuid.New()
	chatID := env.chats.add(alice, bob)

	a1 := env.live(t, alice)
	a2 := env.live(t, alice)
	b1 := env.live(t, bob)

	resp := env.do(t, http.MethodPost, "/chats/"+chatID.String()+"/messages", alice,
		map[string]string{"text": "hi", "idempotency_key": "k1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, c := range []*websocket.Conn{a1, a2, b1} {
		f := readFrame(t, c)
		assert.Equal(t, "chat", f["type"])
		assert.Equal(t, "hi", f["content"])
		assert.Equal(t, alice.String(), f["sender_id"])
	}
}

func TestLive_OfflineRecipientGetsBacklogOnConnect(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := uuid.New(), uuid.New()
	chatID := env.chats.add(alice, bob)

	resp := env.do(t, http.MethodPost, "/chats/"+chatID.String()+"/messages", alice,
		map[string]string{"text": "while you were out", "idempotency_key": "k1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	b := env.live(t, bob)
	batch := readFrame(t, b)
	require.Equal(t, "queued_messages", batch["type"])
	assert.EqualValues(t, 1, batch["count"])
	msgs := batch["messages"].([]any)
	require.Len(t, msgs, 1)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "while you were out", first["content"])
	assert.NotEmpty(t, first["queued_at"])

	// the queue was drained
	b2 := env.live(t, bob)
	expectSilence(t, b2)
}

func TestLive_ChatFrameAckAndIdempotentRetry(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := uuid.New(), uuid.New()
	chatID := env.chats.add(alice, bob)
	a := env.live(t, alice)
	b := env.live(t, bob)

	frame := map[string]any{"type": "chat", "chat_id": chatID.String(), "content": "hello", "idempotency_key": "same"}
	sendFrame(t, a, frame)
	ack := readFrame(t, a)
	assert.Equal(t, "sent", ack["status"])
	got := readFrame(t, b)
	assert.Equal(t, "chat", got["type"])
	assert.Equal(t, ack["message_id"], got["message_id"])

	sendFrame(t, a, frame)
	retry := readFrame(t, a)
	assert.Equal(t, ack["message_id"], retry["message_id"])
	expectSilence(t, b)
}

func TestLive_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := uuid.New(), uuid.New()
	chatID := env.chats.add(alice, bob)
	a := env.live(t, alice)
	b := env.live(t, bob)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := readFrame(t, a)
	assert.Equal(t, "error", f["type"])
	assert.Equal(t, "Invalid JSON", f["message"])

	sendFrame(t, a, map[string]any{"type": "bogus"})
	f = readFrame(t, a)
	assert.Equal(t, "Unknown message type: bogus", f["message"])

	sendFrame(t, a, map[string]any{"type": "typing", "chat_id": chatID.String(), "is_typing": true})
	typing := readFrame(t, b)
	assert.Equal(t, "typing", typing["type"])
	assert.Equal(t, true, typing["is_typing"])
	assert.Equal(t, "sent", readFrame(t, a)["status"])
}

func TestLive_ReadReceipt(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := uuid.New(), uuid.New()
	chatID := env.chats.add(alice, bob)
	a := env.live(t, alice)
	b := env.live(t, bob)

	sendFrame(t, a, map[string]any{"type": "chat", "chat_id": chatID.String(), "content": "read me", "idempotency_key": "r1"})
	ack := readFrame(t, a)
	readFrame(t, b)

	sendFrame(t, b, map[string]any{"type": "read", "message_id": ack["message_id"]})
	confirm := readFrame(t, b)
	assert.Equal(t, "read", confirm["type"])
	assert.Equal(t, "received", confirm["status"])

	status := readFrame(t, a)
	assert.Equal(t, "read_status", status["type"])
	inner := status["status"].(map[string]any)
	assert.Equal(t, bob.String(), inner["user_id"])
	assert.Equal(t, ack["message_id"], inner["message_id"])
}

func TestDrafts_SyncAcrossTabs(t *testing.T) {
	env := newTestEnv(t)
	alice := uuid.New()
	chatID := env.chats.add(alice)
	path := "/ws/drafts/" + chatID.String()

	resp := env.do(t, http.MethodPut, "/chats/"+chatID.String()+"/draft", alice, map[string]string{"text": "start"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tab1 := env.dial(t, path, env.token(t, alice))
	tab2 := env.dial(t, path, env.token(t, alice))
	for _, tab := range []*websocket.Conn{tab1, tab2} {
		first := readFrame(t, tab)
		require.Equal(t, "draft_init", first["type"])
		require.Equal(t, "start", first["text"])
	}

	sendFrame(t, tab1, map[string]any{"type": "draft_update", "text": "hello"})
	update := readFrame(t, tab2)
	assert.Equal(t, "draft_update", update["type"])
	assert.Equal(t, "hello", update["text"])
	assert.Equal(t, chatID.String(), update["chat_id"])

	sendFrame(t, tab1, map[string]any{"type": "nope"})
	// tab1 sees its own echo first
	assert.Equal(t, "draft_update", readFrame(t, tab1)["type"])
	assert.Equal(t, "Unknown message type: nope", readFrame(t, tab1)["message"])

	sendFrame(t, tab2, map[string]any{"type": "draft_delete"})
	assert.Equal(t, "draft_delete", readFrame(t, tab1)["type"])

	get := env.do(t, http.MethodGet, "/chats/"+chatID.String()+"/draft", alice, nil)
	assert.Equal(t, http.StatusNotFound, get.StatusCode)
}

func TestREST_DraftRoutesRequireMembership(t *testing.T) {
	env := newTestEnv(t)
	owner, outsider := uuid.New(), uuid.New()
	chatID := env.chats.add(owner)
	path := "/chats/" + chatID.String() + "/draft"
	watcher := env.live(t, outsider)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"save on foreign chat", http.MethodPut, path, http.StatusForbidden},
		{"get on foreign chat", http.MethodGet, path, http.StatusForbidden},
		{"delete on foreign chat", http.MethodDelete, path, http.StatusForbidden},
		{"save on unknown chat", http.MethodPut, "/chats/" + uuid.NewString() + "/draft", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body any
			if tc.method == http.MethodPut {
				body = map[string]string{"text": "sneaky"}
			}
			resp := env.do(t, tc.method, tc.path, outsider, body)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}

	// nothing was stored or pushed for the rejected writes
	expectSilence(t, watcher)
	for _, key := range env.mr.Keys() {
		assert.False(t, strings.HasSuffix(key, ":draft"), key)
	}
}

func TestDrafts_NonParticipantIsClosed(t *testing.T) {
	env := newTestEnv(t)
	outsider := uuid.New()
	chatID := env.chats.add(uuid.New())

	conn := env.dial(t, "/ws/drafts/"+chatID.String(), env.token(t, outsider))
	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestREST_ReadAndUnread(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := uuid.New(), uuid.New()
	chatID := env.chats.add(alice, bob)
	base := "/chats/" + chatID.String()

	var sent struct {
		ID string `json:"id"`
	}
	for _, key := range []string{"k1", "k2"} {
		resp := env.do(t, http.MethodPost, base+"/messages", alice, map[string]string{"text": "m-" + key, "idempotency_key": key})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	}

	dup := env.do(t, http.MethodPost, base+"/messages", alice, map[string]string{"text": "m-k2", "idempotency_key": "k2"})
	assert.Equal(t, http.StatusOK, dup.StatusCode)

	var unread map[string]int64
	resp := env.do(t, http.MethodGet, base+"/unread", bob, nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unread))
	assert.EqualValues(t, 2, unread["unread_count"])

	resp = env.do(t, http.MethodPost, "/messages/"+sent.ID+"/read", bob, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/read", bob, nil)
	var marked struct {
		MarkedCount int64 `json:"marked_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&marked))
	assert.EqualValues(t, 1, marked.MarkedCount)

	resp = env.do(t, http.MethodGet, base+"/messages?limit=10", bob, nil)
	var history []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	assert.Len(t, history, 2)

	outsider := env.do(t, http.MethodGet, base+"/messages", uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, outsider.StatusCode)

	missing := env.do(t, http.MethodPost, "/messages/"+uuid.NewString()+"/read", bob, nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestREST_RequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/chats/" + uuid.NewString() + "/unread")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
