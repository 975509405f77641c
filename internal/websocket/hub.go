package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/adi-253/chatsync/internal/models"
	"github.com/adi-253/chatsync/internal/store"
)

// Engine is the part of the store the hub reads from and forwards UI
// signals to.
type Engine interface {
	Messages(chatID string) []*models.Message
	TypingUsers(chatID string) []string
	OnlineUsers() []string
	SetTypingStatus(chatID, userID string, typing bool)
	SetOnlineStatus(userID string, online bool)
	SetActiveConversation(chatID string)
}

// Frame is the JSON envelope of every message pushed to a UI client.
type Frame struct {
	Type    string `json:"type"`
	ChatID  string `json:"chat_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Frame types
const (
	FrameMessages      = "messages"
	FrameConversations = "conversations"
	FrameTyping        = "typing"
	FramePresence      = "presence"
	FrameToast         = "toast"
)

// Toast is the payload of a toast frame.
type Toast struct {
	Level store.NoticeLevel `json:"level"`
	Text  string            `json:"text"`
}

// inbound is the format of messages from UI clients
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type typingPayload struct {
	IsTyping bool `json:"is_typing"`
}

// BroadcastMessage is a frame addressed to one conversation's clients, or
// to every client when ChatID is empty.
type BroadcastMessage struct {
	ChatID  string
	Message []byte
}

// Hub maintains the set of connected UI clients grouped by conversation and
// pushes store changes and notifications to them.
type Hub struct {
	engine Engine
	log    zerolog.Logger

	// rooms maps chat id to the clients watching it
	rooms map[string]map[*Client]bool

	// presence counts open connections per participant
	presence map[string]int

	register   chan *Client
	unregister chan *Client

	// broadcast is buffered; producers drop frames rather than block
	broadcast chan *BroadcastMessage

	// done is closed when Run returns
	done     chan struct{}
	doneOnce sync.Once

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(engine Engine, log zerolog.Logger) *Hub {
	return &Hub{
		engine:     engine,
		log:        log.With().Str("component", "hub").Logger(),
		rooms:      make(map[string]map[*Client]bool),
		presence:   make(map[string]int),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-ctx.Done():
			h.closeAll()
			h.doneOnce.Do(func() { close(h.done) })
			return nil
		}
	}
}

// join hands client to the event loop. It reports false once the hub has
// stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.rooms[client.ChatID] == nil {
		h.rooms[client.ChatID] = make(map[*Client]bool)
	}
	h.rooms[client.ChatID][client] = true
	h.presence[client.ParticipantID]++
	first := h.presence[client.ParticipantID] == 1
	count := len(h.rooms[client.ChatID])
	h.mu.Unlock()

	h.log.Debug().Str("client", client.ID).Str("chat_id", client.ChatID).Int("clients", count).Msg("client joined")
	if first && h.engine != nil {
		h.engine.SetOnlineStatus(client.ParticipantID, true)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	offline := h.removeLocked(client)
	h.mu.Unlock()
	if offline && h.engine != nil {
		h.engine.SetOnlineStatus(client.ParticipantID, false)
	}
}

// removeLocked drops client and reports whether it was the participant's
// last connection.
func (h *Hub) removeLocked(client *Client) bool {
	clients, ok := h.rooms[client.ChatID]
	if !ok || !clients[client] {
		return false
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.ChatID)
	}
	h.presence[client.ParticipantID]--
	if h.presence[client.ParticipantID] > 0 {
		return false
	}
	delete(h.presence, client.ParticipantID)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for c := range clients {
			close(c.send)
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.presence = make(map[string]int)
}

// deliver sends msg to its audience. A client whose buffer is full misses
// the frame; dead connections are found by the ping loop.
func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for chatID, clients := range h.rooms {
		if msg.ChatID != "" && chatID != msg.ChatID {
			continue
		}
		for c := range clients {
			select {
			case c.send <- msg.Message:
			default:
				h.log.Debug().Str("client", c.ID).Msg("client buffer full, frame dropped")
			}
		}
	}
}

// publish queues a frame without blocking.
func (h *Hub) publish(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Error().Err(err).Str("type", f.Type).Msg("encode frame")
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{ChatID: f.ChatID, Message: data}:
	default:
		h.log.Warn().Str("type", f.Type).Msg("broadcast queue full, dropping frame")
	}
}

// Notify implements store.Notifier by pushing a toast to every client.
func (h *Hub) Notify(level store.NoticeLevel, text string) {
	h.publish(Frame{Type: FrameToast, Payload: Toast{Level: level, Text: text}})
}

// HandleChange turns a store change into a frame for the affected clients.
// Register it with store.OnChange.
func (h *Hub) HandleChange(c store.Change) {
	if c.ChatID != "" && c.Kind != store.ChangeConversations && h.RoomClientCount(c.ChatID) == 0 {
		return
	}
	switch c.Kind {
	case store.ChangeMessages:
		h.publish(Frame{Type: FrameMessages, ChatID: c.ChatID, Payload: h.engine.Messages(c.ChatID)})
	case store.ChangeTyping:
		h.publish(Frame{Type: FrameTyping, ChatID: c.ChatID, Payload: h.engine.TypingUsers(c.ChatID)})
	case store.ChangePresence:
		h.publish(Frame{Type: FramePresence, Payload: h.engine.OnlineUsers()})
	case store.ChangeConversations:
		h.publish(Frame{Type: FrameConversations, Payload: map[string]string{"chat_id": c.ChatID}})
	}
}

// handleInbound applies a signal sent by a UI client.
func (h *Hub) handleInbound(c *Client, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.Debug().Err(err).Str("client", c.ID).Msg("unparseable client frame")
		return
	}
	switch msg.Type {
	case "typing":
		var p typingPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.log.Debug().Err(err).Msg("bad typing payload")
			return
		}
		h.engine.SetTypingStatus(c.ChatID, c.ParticipantID, p.IsTyping)
	case "focus":
		h.engine.SetActiveConversation(c.ChatID)
	default:
		h.log.Debug().Str("type", msg.Type).Msg("ignoring client frame")
	}
}

// RoomClientCount returns the number of connected clients for a chat.
func (h *Hub) RoomClientCount(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}
