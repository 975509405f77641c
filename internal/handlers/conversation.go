package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adi-253/chatsync/internal/display"
	"github.com/adi-253/chatsync/internal/models"
	"github.com/adi-253/chatsync/internal/store"
)

// Engine is the store surface the local API drives.
type Engine interface {
	LoadConversations(ctx context.Context) error
	LoadMessages(ctx context.Context, chatID string, limit int) error
	Conversations() []*models.Conversation
	Conversation(chatID string) (*models.Conversation, bool)
	Messages(chatID string) []*models.Message
	LastError() string

	SendMessage(ctx context.Context, chatID, content string, kind models.MessageType, opts models.SendOptions) (*models.Message, error)
	SendOptimistic(ctx context.Context, chatID, content string, kind models.MessageType, opts models.SendOptions) (*models.Message, error)
	DiscardFailed(localID string) bool
	EditMessage(ctx context.Context, messageID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) (*models.Message, error)
	StarMessage(ctx context.Context, messageID string, starred bool) (*models.Message, error)
	AddReaction(ctx context.Context, messageID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, emoji string) error
	PinMessage(ctx context.Context, chatID, messageID string) error
	UnpinMessage(ctx context.Context, chatID, messageID string) error

	CreateChat(ctx context.Context, in store.ChatInput) (*models.Conversation, error)
	DeleteChat(ctx context.Context, chatID string) error
	PinChat(ctx context.Context, chatID string) error
	UnpinChat(ctx context.Context, chatID string) error
	MuteChat(ctx context.Context, chatID string) error
	UnmuteChat(ctx context.Context, chatID string) error

	CreatePoll(ctx context.Context, chatID string, in store.PollInput) (*models.Message, error)
	VoteInPoll(ctx context.Context, pollID string, optionIDs []string) error

	SetTypingStatus(chatID, userID string, typing bool)
	Reset()
}

// Viewer names the signed-in user.
type Viewer interface {
	CurrentUserID() (string, bool)
}

// ConversationHandler contains HTTP handlers for conversation operations.
type ConversationHandler struct {
	engine Engine
	viewer Viewer
}

// NewConversationHandler creates a new ConversationHandler instance.
func NewConversationHandler(engine Engine, viewer Viewer) *ConversationHandler {
	return &ConversationHandler{engine: engine, viewer: viewer}
}

// ListConversations handles GET /api/conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Conversations())
}

// RefreshConversations handles POST /api/conversations/refresh
// Reloads the conversation list from the server.
func (h *ConversationHandler) RefreshConversations(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.LoadConversations(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Conversations())
}

type createChatRequest struct {
	Kind    models.ChatKind `json:"kind"`
	Name    string          `json:"name"`
	Members []string        `json:"members"`
}

// CreateChat handles POST /api/conversations
func (h *ConversationHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	conv, err := h.engine.CreateChat(r.Context(), store.ChatInput{Kind: req.Kind, Name: req.Name, Members: req.Members})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// DeleteChat handles DELETE /api/conversations/{id}
func (h *ConversationHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteChat(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages handles GET /api/conversations/{id}/messages
func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if _, ok := h.engine.Conversation(chatID); !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Messages(chatID))
}

// RefreshMessages handles POST /api/conversations/{id}/refresh
// Query params:
//   - limit: page size, the configured default when absent
func (h *ConversationHandler) RefreshMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if err := h.engine.LoadMessages(r.Context(), chatID, limit); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Messages(chatID))
}

// Timeline handles GET /api/conversations/{id}/timeline
// Query params:
//   - first_unread: key of the first unread message
//   - avatars: "sender_change" to collapse repeated avatars
func (h *ConversationHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	opts := display.Options{FirstUnreadID: r.URL.Query().Get("first_unread")}
	if h.viewer != nil {
		opts.CurrentUserID, _ = h.viewer.CurrentUserID()
	}
	if r.URL.Query().Get("avatars") == "sender_change" {
		opts.Avatars = display.AvatarOnSenderChange
	}
	writeJSON(w, http.StatusOK, display.Sequence(h.engine.Messages(chatID), opts))
}

type sendRequest struct {
	Content string             `json:"content"`
	Type    models.MessageType `json:"type"`
	ReplyTo string             `json:"reply_to"`
	// Ephemeral is a duration string such as "30s"
	Ephemeral string `json:"ephemeral"`
	MediaPath string `json:"media_path"`
}

// SendMessage handles POST /api/conversations/{id}/messages
// Query params:
//   - optimistic: "1" shows the message before the insert completes and
//     keeps it as failed if the insert does not
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = models.MessageText
	}
	opts := models.SendOptions{ReplyTo: req.ReplyTo, MediaPath: req.MediaPath}
	if req.Ephemeral != "" {
		d, err := time.ParseDuration(req.Ephemeral)
		if err != nil || d <= 0 {
			badRequest(w, "ephemeral must be a positive duration")
			return
		}
		opts.Ephemeral = d
	}
	send := h.engine.SendMessage
	if r.URL.Query().Get("optimistic") == "1" {
		send = h.engine.SendOptimistic
	}
	msg, err := send(r.Context(), chi.URLParam(r, "id"), req.Content, req.Type, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// DiscardMessage handles DELETE /api/conversations/{id}/messages/{localID}
// Only a failed optimistic send can be discarded.
func (h *ConversationHandler) DiscardMessage(w http.ResponseWriter, r *http.Request) {
	if !h.engine.DiscardFailed(chi.URLParam(r, "localID")) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no failed message with that id"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// Typing handles POST /api/conversations/{id}/typing for the signed-in user
func (h *ConversationHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	uid, ok := "", false
	if h.viewer != nil {
		uid, ok = h.viewer.CurrentUserID()
	}
	if !ok {
		writeError(w, models.ErrUnauthenticated)
		return
	}
	h.engine.SetTypingStatus(chi.URLParam(r, "id"), uid, req.IsTyping)
	w.WriteHeader(http.StatusNoContent)
}

// toggle adapts a pair of per-chat flag operations to POST (set) and
// DELETE (clear).
func (h *ConversationHandler) toggle(set, unset func(ctx context.Context, chatID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op := set
		if r.Method == http.MethodDelete {
			op = unset
		}
		if err := op(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PinChat handles POST|DELETE /api/conversations/{id}/pin
func (h *ConversationHandler) PinChat() http.HandlerFunc {
	return h.toggle(h.engine.PinChat, h.engine.UnpinChat)
}

// MuteChat handles POST|DELETE /api/conversations/{id}/mute
func (h *ConversationHandler) MuteChat() http.HandlerFunc {
	return h.toggle(h.engine.MuteChat, h.engine.UnmuteChat)
}

type pollRequest struct {
	Question       string     `json:"question"`
	Options        []string   `json:"options"`
	MultipleChoice bool       `json:"multiple_choice"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// CreatePoll handles POST /api/conversations/{id}/polls
func (h *ConversationHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	msg, err := h.engine.CreatePoll(r.Context(), chi.URLParam(r, "id"), store.PollInput{
		Question:       req.Question,
		Options:        req.Options,
		MultipleChoice: req.MultipleChoice,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
