package websocket

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from another origin in development; CORS middleware
	// gates the rest of the API
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Viewer resolves the participant a connection speaks for when the query
// does not name one.
type Viewer interface {
	CurrentUserID() (string, bool)
}

// Handler handles WebSocket connections
type Handler struct {
	hub    *Hub
	viewer Viewer
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, viewer Viewer) *Handler {
	return &Handler{hub: hub, viewer: viewer}
}

// ServeWS handles WebSocket upgrade requests at /ws/{id} where id is a chat
// id. Query params: participant_id
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if chatID == "" {
		http.Error(w, "chat ID required", http.StatusBadRequest)
		return
	}

	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" && h.viewer != nil {
		participantID, _ = h.viewer.CurrentUserID()
	}
	if participantID == "" {
		http.Error(w, "participant_id required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn().Err(err).Str("chat_id", chatID).Msg("upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, chatID, participantID)
	if !h.hub.join(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.hub.log.Info().Str("client", client.ID).Str("chat_id", chatID).Str("participant", participantID).Msg("ui connected")

	go client.WritePump()
	go client.ReadPump()
}
