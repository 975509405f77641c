package handlers

import (
	"net/http"
)

// Session is the sign-in state the local API switches.
type Session interface {
	Viewer
	SignIn(userID string)
	SignOut()
}

// SessionResponse is the body of GET and POST /api/session.
type SessionResponse struct {
	UserID   string `json:"user_id,omitempty"`
	SignedIn bool   `json:"signed_in"`
}

// SessionHandler signs users in and out. Signing out, or switching to a
// different user, empties the store before the new user's chats load.
type SessionHandler struct {
	engine  Engine
	session Session
}

// NewSessionHandler creates a new SessionHandler instance.
func NewSessionHandler(engine Engine, session Session) *SessionHandler {
	return &SessionHandler{engine: engine, session: session}
}

func (h *SessionHandler) current() SessionResponse {
	id, ok := h.session.CurrentUserID()
	return SessionResponse{UserID: id, SignedIn: ok}
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current())
}

type signInRequest struct {
	UserID string `json:"user_id"`
}

// SignIn handles POST /api/session
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(r, &req); err != nil || req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	if id, ok := h.session.CurrentUserID(); ok && id != req.UserID {
		h.engine.Reset()
	}
	h.session.SignIn(req.UserID)
	if err := h.engine.LoadConversations(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.current())
}

// SignOut handles DELETE /api/session
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.session.SignOut()
	h.engine.Reset()
	w.WriteHeader(http.StatusNoContent)
}
