package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MessageHandler contains HTTP handlers for operations on a single message
// or poll.
type MessageHandler struct {
	engine Engine
}

// NewMessageHandler creates a new MessageHandler instance.
func NewMessageHandler(engine Engine) *MessageHandler {
	return &MessageHandler{engine: engine}
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// AddReaction handles POST /api/messages/{id}/reactions
func (h *MessageHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := decode(r, &req); err != nil || req.Emoji == "" {
		badRequest(w, "emoji is required")
		return
	}
	if err := h.engine.AddReaction(r.Context(), chi.URLParam(r, "id"), req.Emoji); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveReaction handles DELETE /api/messages/{id}/reactions/{emoji}
func (h *MessageHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveReaction(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "emoji")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pinRequest struct {
	ChatID string `json:"chat_id"`
}

// Pin handles POST|DELETE /api/messages/{id}/pin
// Body: {"chat_id": "..."}
func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decode(r, &req); err != nil || req.ChatID == "" {
		badRequest(w, "chat_id is required")
		return
	}
	op := h.engine.PinMessage
	if r.Method == http.MethodDelete {
		op = h.engine.UnpinMessage
	}
	if err := op(r.Context(), req.ChatID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editRequest struct {
	Content string `json:"content"`
}

// Edit handles PATCH /api/messages/{id}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	msg, err := h.engine.EditMessage(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /api/messages/{id}
// The message stays in the list marked deleted.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.engine.DeleteMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Star handles POST|DELETE /api/messages/{id}/star
func (h *MessageHandler) Star(w http.ResponseWriter, r *http.Request) {
	msg, err := h.engine.StarMessage(r.Context(), chi.URLParam(r, "id"), r.Method != http.MethodDelete)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type voteRequest struct {
	OptionIDs []string `json:"option_ids"`
}

// Vote handles POST /api/polls/{id}/votes
func (h *MessageHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := h.engine.VoteInPoll(r.Context(), chi.URLParam(r, "id"), req.OptionIDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
