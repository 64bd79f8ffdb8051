package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"messenger/internal/app/server/ws"
	"messenger/internal/config"
	"messenger/internal/core/contracts"
	"messenger/internal/core/services"
	"messenger/pkg/logging"
	"messenger/pkg/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	auth     contracts.Authenticator
	manager  *services.ManagerService
	drafts   *services.DraftSyncService
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(
	log *slog.Logger,
	cfg config.WebSocketConfig,
	auth contracts.Authenticator,
	manager *services.ManagerService,
	drafts *services.DraftSyncService,
) *WSHandler {
	h := &WSHandler{
		log:     log,
		cfg:     cfg,
		auth:    auth,
		manager: manager,
		drafts:  drafts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if !cfg.CheckOrigin {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return h
}

// accessToken looks at the token query parameter, then the token cookie, then
// the Authorization header. Browsers cannot set headers on a websocket handshake.
func accessToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value
	}
	return middleware.BearerToken(r)
}

// open upgrades the request and authenticates it. Authentication happens after
// the upgrade so a rejected client still gets a policy-violation close frame.
func (h *WSHandler) open(w http.ResponseWriter, r *http.Request) (*ws.RuntimeClient, *ws.WebSocket, uuid.UUID, bool) {
	log := logging.FromContext(r.Context(), h.log)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade - failed", logging.Err(err))
		return nil, nil, uuid.Nil, false
	}
	socket := ws.NewWebSocket(conn, h.cfg.ReadLimit, h.cfg.WriteTimeout, h.cfg.PongWait)
	client := ws.NewClient(socket, h.cfg.SendBuffer)

	userID, err := h.auth.ValidateToken(accessToken(r))
	if err != nil {
		log.WarnContext(r.Context(), "ws handler - authenticate - rejected", logging.Err(err))
		client.Close(contracts.ClosePolicyViolation, "Authentication failed")
		return nil, nil, uuid.Nil, false
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("user.id", userID.String()))
	return client, socket, userID, true
}

// Live serves the main channel: chat, typing and read frames.
func (h *WSHandler) Live(w http.ResponseWriter, r *http.Request) {
	client, socket, userID, ok := h.open(w, r)
	if !ok {
		return
	}
	log := logging.FromContext(r.Context(), h.log)
	// the session outlives the handshake request
	ctx := context.WithoutCancel(r.Context())

	connID := h.manager.HandleConnect(ctx, client, userID)
	log.InfoContext(ctx, "ws handler - live - connection established",
		logging.User(userID.String()), logging.Connection(connID))

	// frames are handled inline to keep per-connection ordering
	err := socket.ReadLoop(func(data []byte) {
		h.manager.HandleMessage(ctx, connID, userID, data)
	})
	if err != nil {
		log.DebugContext(ctx, "ws handler - live - read loop ended", logging.Connection(connID), logging.Err(err))
	}
	h.manager.HandleDisconnect(ctx, connID)
	client.Close(contracts.CloseNormal, "")
	log.InfoContext(ctx, "ws handler - live - connection closed", logging.Connection(connID))
}

// Drafts serves the draft sync channel of one chat.
func (h *WSHandler) Drafts(w http.ResponseWriter, r *http.Request) {
	chatID, chatErr := uuid.Parse(r.PathValue("chat_id"))
	client, socket, userID, ok := h.open(w, r)
	if !ok {
		return
	}
	log := logging.FromContext(r.Context(), h.log)
	if chatErr != nil {
		client.Close(contracts.ClosePolicyViolation, "Invalid chat id")
		return
	}
	ctx := context.WithoutCancel(r.Context())

	connID, ok := h.drafts.Open(ctx, client, userID, chatID)
	if !ok {
		return
	}
	err := socket.ReadLoop(func(data []byte) {
		h.drafts.HandleMessage(ctx, connID, userID, chatID, data)
	})
	if err != nil {
		log.DebugContext(ctx, "ws handler - drafts - read loop ended", logging.Connection(connID), logging.Err(err))
	}
	h.drafts.HandleDisconnect(ctx, connID)
	client.Close(contracts.CloseNormal, "")
}
