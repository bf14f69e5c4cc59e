package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shijian-backend/internal/chat"
	"shijian-backend/internal/middleware"
	"shijian-backend/internal/models"
)

type assistantChatter interface {
	SimpleChat(ctx context.Context, message string) (string, error)
}

type tokenParser interface {
	ParseToken(tokenStr string) (uuid.UUID, error)
}

type ChatHandler struct {
	assistant assistantChatter
	sessions  *chat.Registry
	hub       streamer
	tokens    tokenParser
	logger    *slog.Logger
}

func NewChatHandler(assistant assistantChatter, sessions *chat.Registry, hub streamer, tokens tokenParser) *ChatHandler {
	return &ChatHandler{
		assistant: assistant,
		sessions:  sessions,
		hub:       hub,
		tokens:    tokens,
		logger:    slog.Default().With("component", "chat_handler"),
	}
}

// AskQuestion answers a single question without keeping any session state.
func (h *ChatHandler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
		return
	}

	reply, err := h.assistant.SimpleChat(r.Context(), req.Message)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("AI_ERROR", err.Error(), r))
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: reply})
}

// ─── Sessions ───

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	conv := h.sessions.Create(middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusCreated, conv.State())
}

func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv.State())
}

func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	h.sessions.Delete(conv.ID())
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted"})
}

func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	conv.OpenChat()
	writeJSON(w, http.StatusOK, conv.State())
}

func (h *ChatHandler) Close(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	conv.CloseChat()
	writeJSON(w, http.StatusOK, conv.State())
}

// SendMessage accepts a user message and streams the reply in the
// background. Progress is delivered over the session websocket.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var req models.ChatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
		return
	}

	reply, err := conv.Begin(context.Background(), req.Content)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	go reply.Stream()
	h.logger.Debug("chat send accepted", "session_id", conv.ID(), "message_id", reply.MessageID())

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": conv.ID(),
		"message_id": reply.MessageID(),
		"status":     "accepted",
	})
}

func (h *ChatHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	conv.ClearMessages()
	writeJSON(w, http.StatusOK, conv.State())
}

// Stream attaches a websocket client to the session. The current state is
// sent first, followed by every chat event. Browsers cannot set headers on
// websocket upgrades, so owned sessions take the access token from ?token=.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	conv, found := h.sessions.Get(id)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat session not found", r))
		return
	}

	if conv.Owner() != uuid.Nil {
		userID := middleware.GetUserID(r.Context())
		if token := r.URL.Query().Get("token"); userID == uuid.Nil && token != "" {
			if parsed, err := h.tokens.ParseToken(token); err == nil {
				userID = parsed
			}
		}
		if userID != conv.Owner() {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
			return
		}
	}

	h.hub.Serve(w, r, chat.Channel(id), models.WSMessage{Type: models.WSChatState, Payload: conv.State()})
}

// loadSession resolves the {id} session and checks that the caller may use
// it. Anonymous sessions are open to anyone holding the ID.
func (h *ChatHandler) loadSession(w http.ResponseWriter, r *http.Request) (*chat.Conversation, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return nil, false
	}

	conv, ok := h.sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat session not found", r))
		return nil, false
	}

	if owner := conv.Owner(); owner != uuid.Nil && owner != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, false
	}

	return conv, true
}
