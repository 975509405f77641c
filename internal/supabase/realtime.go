package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/adi-253/chatsync/internal/config"
	"github.com/adi-253/chatsync/internal/models"
)

const (
	// Time allowed to write a frame to the server
	writeWait = 10 * time.Second

	// Phoenix closes sockets that miss heartbeats for 60s
	heartbeatPeriod = 30 * time.Second

	// Time allowed to read the next frame, heartbeat replies included
	readWait = 2 * heartbeatPeriod

	maxFrameSize = 1 << 20
)

// phoenixMessage is the frame format of the Realtime socket (vsn 1.0.0).
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type postgresChange struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type changePayload struct {
	Data struct {
		Type      string         `json:"type"`
		Table     string         `json:"table"`
		Record    map[string]any `json:"record"`
		OldRecord map[string]any `json:"old_record"`
	} `json:"data"`
}

// channel is one joined topic and the handler its changes are delivered to.
type channel struct {
	topic   string
	changes []postgresChange
	handler func(models.ChangeEvent)
}

// Realtime is a client for Supabase Realtime postgres_changes. It keeps one
// socket, joins one topic per subscribed scope and rejoins every topic after
// a reconnect. Events for a topic are delivered in arrival order from a
// single goroutine.
type Realtime struct {
	endpoint    string
	accessToken string
	dialer      *websocket.Dialer
	limiter     *rate.Limiter
	log         zerolog.Logger

	send chan []byte
	ref  atomic.Uint64

	mu        sync.Mutex
	connected bool
	channels  map[string]*channel
}

// NewRealtime creates a realtime client for the project in cfg. Call Run to
// connect; subscriptions made before that are joined once connected.
func NewRealtime(cfg *config.Config, log zerolog.Logger) *Realtime {
	return &Realtime{
		endpoint:    realtimeEndpoint(cfg.SupabaseURL, cfg.SupabaseKey),
		accessToken: cfg.AccessToken,
		dialer:      websocket.DefaultDialer,
		limiter:     rate.NewLimiter(rate.Every(2*time.Second), 1),
		log:         log.With().Str("component", "realtime").Logger(),
		send:        make(chan []byte, 256),
		channels:    make(map[string]*channel),
	}
}

func realtimeEndpoint(baseURL, apiKey string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	return u + "/realtime/v1/websocket?" + q.Encode()
}

// changesFor lists the postgres_changes filters that make up a scope.
// Reaction and poll option rows carry no chat id; they arrive once on the
// shared scope and the store ignores ids it does not hold.
func changesFor(scope models.Scope) []postgresChange {
	c := func(table, filter string) postgresChange {
		return postgresChange{Event: "*", Schema: "public", Table: table, Filter: filter}
	}
	switch scope.Kind {
	case models.ScopeConversation:
		f := "chat_id=eq." + scope.ID
		return []postgresChange{
			c(models.TableMessages, f),
			c(models.TablePinned, f),
			c(models.TableVoice, f),
			c(models.TableParticipants, f),
		}
	case models.ScopeShared:
		return []postgresChange{
			c(models.TableReactions, ""),
			c(models.TablePollOptions, ""),
		}
	case models.ScopeMessage:
		return []postgresChange{
			c(models.TableMessages, "id=eq."+scope.ID),
			c(models.TableReactions, "message_id=eq."+scope.ID),
		}
	case models.ScopePoll:
		return []postgresChange{
			c(models.TablePolls, "id=eq."+scope.ID),
			c(models.TablePollOptions, "poll_id=eq."+scope.ID),
		}
	case models.ScopeVoiceChannel:
		return []postgresChange{c(models.TableVoice, "id=eq."+scope.ID)}
	}
	return nil
}

// Subscribe joins the topic for scope and delivers its changes to handler.
// The returned function leaves the topic.
func (r *Realtime) Subscribe(ctx context.Context, scope models.Scope, handler func(models.ChangeEvent)) (func(), error) {
	changes := changesFor(scope)
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: unknown scope kind %q", models.ErrInvalidArgument, scope.Kind)
	}

	topic := "realtime:" + scope.Key()
	r.mu.Lock()
	if _, exists := r.channels[topic]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: already subscribed to %s", models.ErrInvalidArgument, topic)
	}
	ch := &channel{topic: topic, changes: changes, handler: handler}
	r.channels[topic] = ch
	connected := r.connected
	r.mu.Unlock()

	if connected {
		if err := r.enqueue(ctx, r.joinFrame(ch)); err != nil {
			r.remove(ch)
			return nil, err
		}
	}
	r.log.Debug().Str("topic", topic).Msg("subscribed")

	var once sync.Once
	return func() {
		once.Do(func() {
			if r.remove(ch) {
				r.tryEnqueue(r.frame(topic, "phx_leave", struct{}{}))
			}
		})
	}, nil
}

// remove drops ch and reports whether the socket is up.
func (r *Realtime) remove(ch *channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.channels[ch.topic]; ok && cur == ch {
		delete(r.channels, ch.topic)
	}
	return r.connected
}

func (r *Realtime) frame(topic, event string, payload any) []byte {
	raw, _ := json.Marshal(payload)
	b, _ := json.Marshal(phoenixMessage{
		Topic:   topic,
		Event:   event,
		Payload: raw,
		Ref:     strconv.FormatUint(r.ref.Add(1), 10),
	})
	return b
}

func (r *Realtime) joinFrame(ch *channel) []byte {
	payload := map[string]any{
		"config": map[string]any{
			"postgres_changes": ch.changes,
		},
	}
	if r.accessToken != "" {
		payload["access_token"] = r.accessToken
	}
	return r.frame(ch.topic, "phx_join", payload)
}

func (r *Realtime) enqueue(ctx context.Context, frame []byte) error {
	select {
	case r.send <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryEnqueue drops the frame when the send buffer is full.
func (r *Realtime) tryEnqueue(frame []byte) {
	select {
	case r.send <- frame:
	default:
		r.log.Warn().Msg("send buffer full, dropping frame")
	}
}

// Run connects and keeps the socket alive until ctx is cancelled,
// reconnecting at most once every two seconds.
func (r *Realtime) Run(ctx context.Context) error {
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil
		}
		conn, _, err := r.dialer.DialContext(ctx, r.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn().Err(err).Msg("dial failed")
			continue
		}
		r.log.Info().Msg("connected")
		err = r.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		r.log.Warn().Err(err).Msg("connection lost, reconnecting")
	}
}

func (r *Realtime) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		r.writePump(conn, stop)
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	r.mu.Lock()
	r.connected = true
	joins := make([][]byte, 0, len(r.channels))
	for _, ch := range r.channels {
		joins = append(joins, r.joinFrame(ch))
	}
	r.mu.Unlock()
	for _, j := range joins {
		if err := r.enqueue(ctx, j); err != nil {
			break
		}
	}

	err := r.readPump(conn)

	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()
	close(stop)
	conn.Close()
	<-writeDone
	return err
}

// readPump reads frames until the connection fails and dispatches
// postgres_changes to the owning channel.
func (r *Realtime) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrameSize)
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg phoenixMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.log.Warn().Err(err).Msg("unparseable frame")
			continue
		}

		switch msg.Event {
		case "postgres_changes":
			r.dispatch(msg)
		case "phx_error", "system":
			r.log.Warn().Str("topic", msg.Topic).RawJSON("payload", msg.Payload).Msg("channel notice")
		case "phx_close":
			r.log.Info().Str("topic", msg.Topic).Msg("channel closed")
		}
	}
}

func (r *Realtime) dispatch(msg phoenixMessage) {
	r.mu.Lock()
	ch := r.channels[msg.Topic]
	r.mu.Unlock()
	if ch == nil {
		return
	}

	var p changePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		r.log.Warn().Err(err).Str("topic", msg.Topic).Msg("bad change payload")
		return
	}
	evType, err := parseEventType(p.Data.Type)
	if err != nil {
		r.log.Warn().Err(err).Str("topic", msg.Topic).Msg("skipping change")
		return
	}
	ch.handler(models.ChangeEvent{
		Type:      evType,
		Table:     p.Data.Table,
		Record:    p.Data.Record,
		OldRecord: p.Data.OldRecord,
	})
}

func parseEventType(s string) (models.EventType, error) {
	switch strings.ToUpper(s) {
	case "INSERT":
		return models.EventInsert, nil
	case "UPDATE":
		return models.EventUpdate, nil
	case "DELETE":
		return models.EventDelete, nil
	}
	return "", errors.New("unknown change type " + s)
}

// writePump drains queued frames to conn and sends heartbeats.
func (r *Realtime) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-r.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, r.frame("phoenix", "heartbeat", struct{}{})); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
