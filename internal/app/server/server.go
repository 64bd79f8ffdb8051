package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"messenger/internal/app/server/handlers"
	"messenger/internal/core/contracts"
	"messenger/pkg/middleware"
)

type Server struct {
	mux     *http.ServeMux
	srv     *http.Server
	app     string
	auth    contracts.Authenticator
	ws      *handlers.WSHandler
	rest    *handlers.RESTHandler
	health  *handlers.HealthHandler
	log     *slog.Logger
	handler http.Handler
}

func NewServer(
	log *slog.Logger,
	app, addr string,
	auth contracts.Authenticator,
	wsHandler *handlers.WSHandler,
	restHandler *handlers.RESTHandler,
	healthHandler *handlers.HealthHandler,
) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		app:    app,
		auth:   auth,
		ws:     wsHandler,
		rest:   restHandler,
		health: healthHandler,
		log:    log,
	}
	s.routes()
	s.handler = middleware.TracerMiddleware(app)(middleware.RequestLogger(log)(s.mux))
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.auth)
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	// Public
	s.mux.HandleFunc("GET /healthz", s.health.Health)

	// Websockets authenticate after the upgrade
	s.mux.HandleFunc("GET /ws", s.ws.Live)
	s.mux.HandleFunc("GET /ws/drafts/{chat_id}", s.ws.Drafts)

	// REST
	s.mux.Handle("POST /chats/{chat_id}/messages", protected(s.rest.SendMessage))
	s.mux.Handle("GET /chats/{chat_id}/messages", protected(s.rest.ListMessages))
	s.mux.Handle("POST /chats/{chat_id}/read", protected(s.rest.MarkAllAsRead))
	s.mux.Handle("GET /chats/{chat_id}/unread", protected(s.rest.UnreadCount))
	s.mux.Handle("GET /chats/{chat_id}/draft", protected(s.rest.GetDraft))
	s.mux.Handle("PUT /chats/{chat_id}/draft", protected(s.rest.SaveDraft))
	s.mux.Handle("DELETE /chats/{chat_id}/draft", protected(s.rest.DeleteDraft))
	s.mux.Handle("POST /messages/{message_id}/read", protected(s.rest.MarkAsRead))
	s.mux.Handle("POST /messages/read/batch", protected(s.rest.MarkBatchAsRead))
}

// Handler is the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks until the server stops. A graceful Shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("server - start - listening", "address", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests. Hijacked websocket connections are not
// tracked by net/http and must be closed by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
