package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// UI clients only send small control frames
	maxMessageSize = 4 * 1024
)

// Client is one UI connection watching a conversation.
type Client struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound frames
	send chan []byte

	// ID names the connection in logs
	ID string

	ChatID        string
	ParticipantID string
}

// NewClient creates a new Client instance
func NewClient(hub *Hub, conn *websocket.Conn, chatID, participantID string) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 64),
		ID:            uuid.NewString(),
		ChatID:        chatID,
		ParticipantID: participantID,
	}
}

// ReadPump forwards client signals to the hub until the connection closes.
// This runs in its own goroutine per client
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("client", c.ID).Msg("read error")
			}
			break
		}
		c.hub.handleInbound(c, message)
	}
}

// WritePump pumps frames from the hub to the WebSocket connection
// This runs in its own goroutine per client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one frame per message so the UI can parse each as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
