package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/chatsync/internal/models"
	"github.com/adi-253/chatsync/internal/store"
)

type typingCall struct {
	chatID, userID string
	typing         bool
}

type fakeEngine struct {
	mu     sync.Mutex
	typing []typingCall
	online map[string]bool
	active string
}

func (f *fakeEngine) Messages(chatID string) []*models.Message {
	return []*models.Message{{ID: "m1", ChatID: chatID, Content: "hi", Reactions: []models.Reaction{}}}
}

func (f *fakeEngine) TypingUsers(chatID string) []string { return []string{"u2"} }

func (f *fakeEngine) OnlineUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, on := range f.online {
		if on {
			out = append(out, id)
		}
	}
	return out
}

func (f *fakeEngine) SetTypingStatus(chatID, userID string, typing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingCall{chatID, userID, typing})
}

func (f *fakeEngine) SetOnlineStatus(userID string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = online
}

func (f *fakeEngine) SetActiveConversation(chatID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = chatID
}

func (f *fakeEngine) isOnline(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[id]
}

type viewer string

func (v viewer) CurrentUserID() (string, bool) { return string(v), v != "" }

type harness struct {
	hub    *Hub
	engine *fakeEngine
	srv    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	engine := &fakeEngine{online: map[string]bool{}}
	hub := NewHub(engine, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Get("/ws/{id}", NewHandler(hub, viewer("me")).ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &harness{hub: hub, engine: engine, srv: srv}
}

func (h *harness) dial(t *testing.T, chatID, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/" + chatID + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.hub.RoomClientCount(chatID) > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestNotifyReachesEveryClient(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t, "c1", "")
	b := h.dial(t, "c2", "?participant_id=u9")

	h.hub.Notify(store.NoticeError, "Failed to send message")

	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		assert.Equal(t, FrameToast, f.Type)
		payload := f.Payload.(map[string]any)
		assert.Equal(t, "error", payload["level"])
		assert.Equal(t, "Failed to send message", payload["text"])
	}
}

func TestChangeGoesToItsConversation(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t, "c1", "")
	b := h.dial(t, "c2", "")

	h.hub.HandleChange(store.Change{Kind: store.ChangeMessages, ChatID: "c2"})
	f := readFrame(t, b)
	assert.Equal(t, FrameMessages, f.Type)
	assert.Equal(t, "c2", f.ChatID)

	h.hub.HandleChange(store.Change{Kind: store.ChangeTyping, ChatID: "c1"})
	f = readFrame(t, a)
	assert.Equal(t, FrameTyping, f.Type)
	assert.Equal(t, []any{"u2"}, f.Payload)
}

func TestChangeForUnwatchedChatIsDropped(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t, "c1", "")

	h.hub.HandleChange(store.Change{Kind: store.ChangeMessages, ChatID: "elsewhere"})
	h.hub.Notify(store.NoticeInfo, "marker")

	// the first frame a sees is the marker, not the other chat's messages
	f := readFrame(t, a)
	assert.Equal(t, FrameToast, f.Type)
}

func TestClientSignalsReachEngine(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "c1", "")
	assert.True(t, h.engine.isOnline("me"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","payload":{"is_typing":true}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"focus"}`)))

	require.Eventually(t, func() bool {
		h.engine.mu.Lock()
		defer h.engine.mu.Unlock()
		return h.engine.active == "c1"
	}, time.Second, 5*time.Millisecond)

	h.engine.mu.Lock()
	assert.Equal(t, []typingCall{{"c1", "me", true}}, h.engine.typing)
	h.engine.mu.Unlock()
}

func TestLastConnectionMarksOffline(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t, "c1", "")
	b := h.dial(t, "c2", "")

	a.Close()
	require.Eventually(t, func() bool { return h.hub.RoomClientCount("c1") == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.engine.isOnline("me"))

	b.Close()
	require.Eventually(t, func() bool { return !h.engine.isOnline("me") }, time.Second, 5*time.Millisecond)
}

func TestMissingParticipantIsRejected(t *testing.T) {
	engine := &fakeEngine{online: map[string]bool{}}
	hub := NewHub(engine, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/ws/{id}", NewHandler(hub, viewer("")).ServeWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/c1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestNotifyNeverBlocks(t *testing.T) {
	hub := NewHub(&fakeEngine{online: map[string]bool{}}, zerolog.Nop())
	// no Run loop: the queue fills and further frames are dropped
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Notify(store.NoticeInfo, "x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
}
