package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"messenger/internal/core/domain"
	"messenger/internal/core/services"
	"messenger/pkg/logging"
	"messenger/pkg/middleware"

	"github.com/google/uuid"
)

type messageResponse struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsRead    bool      `json:"is_read"`
}

type readStatusResponse struct {
	MarkedCount int64 `json:"marked_count"`
	Success     bool  `json:"success"`
}

type draftResponse struct {
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toMessageResponse(m *domain.Message, viewer uuid.UUID) messageResponse {
	return messageResponse{
		ID:        m.ID.String(),
		ChatID:    m.ChatID.String(),
		SenderID:  m.SenderID.String(),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		IsRead:    m.SenderID == viewer,
	}
}

// RESTHandler exposes the request/response side of messaging. Every route
// expects AuthMiddleware in front of it.
type RESTHandler struct {
	messages *services.MessageService
	drafts   *services.DraftService
	log      *slog.Logger
}

func NewRESTHandler(log *slog.Logger, messages *services.MessageService, drafts *services.DraftService) *RESTHandler {
	return &RESTHandler{log: log, messages: messages, drafts: drafts}
}

// pathIDs resolves the caller and the uuid path value name.
func pathIDs(w http.ResponseWriter, r *http.Request, name string) (userID, id uuid.UUID, ok bool) {
	userID, ok = middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name+" format")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func (h *RESTHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := pathIDs(w, r, "chat_id")
	if !ok {
		return
	}
	var req struct {
		Text           string `json:"text"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}
	res, err := h.messages.SendMessage(r.Context(), services.SendMessageInput{
		ChatID:         chatID,
		SenderID:       userID,
		Text:           req.Text,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		logging.FromContext(r.Context(), h.log).WarnContext(r.Context(), "rest handler - send message - failed",
			logging.Chat(chatID.String()), logging.Err(err))
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, toMessageResponse(res.Message, userID))
}

func (h *RESTHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := pathIDs(w, r, "chat_id")
	if !ok {
		return
	}
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	var before *uuid.UUID
	if raw := q.Get("before_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid before_id format")
			return
		}
		before = &id
	}
	msgs, err := h.messages.GetChatMessages(r.Context(), chatID, userID, limit, before)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageResponse(&msgs[i], userID))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RESTHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, messageID, ok := pathIDs(w, r, "message_id")
	if !ok {
		return
	}
	marked, err := h.messages.MarkAsRead(r.Context(), messageID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !marked {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	writeJSON(w, http.StatusOK, readStatusResponse{MarkedCount: 1, Success: true})
}

func (h *RESTHandler) MarkBatchAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	ids := make([]uuid.UUID, 0, len(req.MessageIDs))
	for _, raw := range req.MessageIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid message ID format")
			return
		}
		ids = append(ids, id)
	}
	var marked int64
	for _, id := range ids {
		done, err := h.messages.MarkAsRead(r.Context(), id, userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if done {
			marked++
		}
	}
	writeJSON(w, http.StatusOK, readStatusResponse{MarkedCount: marked, Success: len(ids) == 0 || marked > 0})
}

func (h *RESTHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := pathIDs(w, r, "chat_id")
	if !ok {
		return
	}
	n, err := h.messages.MarkAllAsRead(r.Context(), chatID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readStatusResponse{MarkedCount: n, Success: n > 0})
}

func (h *RESTHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := pathIDs(w, r, "chat_id")
	if !ok {
		return
	}
	n, err := h.messages.GetUnreadCount(r.Context(), chatID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread_count": n})
}

// draftAccess resolves the caller and chat and rejects anyone off the roster.
func (h *RESTHandler) draftAccess(w http.ResponseWriter, r *http.Request) (userID, chatID uuid.UUID, ok bool) {
	userID, chatID, ok = pathIDs(w, r, "chat_id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	if err := h.drafts.CheckAccess(r.Context(), userID, chatID); err != nil {
		writeDomainError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, chatID, true
}

func (h *RESTHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := h.draftAccess(w, r)
	if !ok {
		return
	}
	d, err := h.drafts.Get(r.Context(), userID, chatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Draft not found")
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{ChatID: d.ChatID.String(), Text: d.Text, UpdatedAt: d.UpdatedAt})
}

func (h *RESTHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := h.draftAccess(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	d, err := h.drafts.Save(r.Context(), userID, chatID, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save draft")
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{ChatID: d.ChatID.String(), Text: d.Text, UpdatedAt: d.UpdatedAt})
}

func (h *RESTHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := h.draftAccess(w, r)
	if !ok {
		return
	}
	deleted, err := h.drafts.Delete(r.Context(), userID, chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete draft")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Draft not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
