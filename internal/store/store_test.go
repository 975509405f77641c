package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/models"
)

var (
	t0        = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	errRemote = errors.New("connection reset")
)

type fakeIdentity struct{ id string }

func (f fakeIdentity) CurrentUserID() (string, bool) { return f.id, f.id != "" }

type notice struct {
	level NoticeLevel
	text  string
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (f *fakeNotifier) Notify(level NoticeLevel, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice{level, text})
}

func (f *fakeNotifier) errors() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, x := range f.notices {
		if x.level == NoticeError {
			n++
		}
	}
	return n
}

type scheduled struct {
	chatID, key string
	at          time.Time
}

type fakeScheduler struct {
	mu    sync.Mutex
	items []scheduled
}

func (f *fakeScheduler) Schedule(chatID, key string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, scheduled{chatID, key, at})
}

// fakeRemote serves canned rows and records every call. Setting err makes
// every call fail.
type fakeRemote struct {
	mu    sync.Mutex
	err   error
	calls []string

	chats    []mapper.Record
	messages map[string][]mapper.Record
	nextID   int

	// onInsertMessage runs just before InsertMessage returns its row
	onInsertMessage func(rec mapper.Record)

	// failOn fails only the named calls
	failOn map[string]error

	// pinRow replaces the row InsertPinnedMessage returns
	pinRow mapper.Record
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{messages: make(map[string][]mapper.Record)}
}

func (f *fakeRemote) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if err, ok := f.failOn[call]; ok {
		return err
	}
	return f.err
}

func (f *fakeRemote) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRemote) ListConversations(ctx context.Context, memberID string) ([]mapper.Record, error) {
	if err := f.record("list_conversations"); err != nil {
		return nil, err
	}
	return f.chats, nil
}

func (f *fakeRemote) ListMessages(ctx context.Context, chatID string, limit int) ([]mapper.Record, error) {
	if err := f.record("list_messages"); err != nil {
		return nil, err
	}
	rows := f.messages[chatID]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeRemote) InsertMessage(ctx context.Context, row map[string]any) (mapper.Record, error) {
	if err := f.record("insert_message"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	f.mu.Unlock()

	rec := mapper.Record{"id": id, "created_at": t0.Format(time.RFC3339Nano), "updated_at": t0.Format(time.RFC3339Nano)}
	for k, v := range row {
		rec[k] = v
	}
	if f.onInsertMessage != nil {
		f.onInsertMessage(rec)
	}
	return rec, nil
}

func (f *fakeRemote) UpdateMessage(ctx context.Context, messageID string, fields map[string]any) (mapper.Record, error) {
	if err := f.record("update_message"); err != nil {
		return nil, err
	}
	for _, rows := range f.messages {
		for _, r := range rows {
			if r["id"] == messageID {
				out := mapper.Record{}
				for k, v := range r {
					out[k] = v
				}
				for k, v := range fields {
					out[k] = v
				}
				out["updated_at"] = t0.Add(time.Hour).Format(time.RFC3339Nano)
				return out, nil
			}
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRemote) InsertReaction(ctx context.Context, messageID, userID, emoji string) error {
	return f.record("insert_reaction")
}

func (f *fakeRemote) DeleteReaction(ctx context.Context, messageID, userID, emoji string) error {
	return f.record("delete_reaction")
}

func (f *fakeRemote) InsertPoll(ctx context.Context, poll map[string]any, options []map[string]any) (mapper.Record, error) {
	if err := f.record("insert_poll"); err != nil {
		return nil, err
	}
	rec := mapper.Record{"id": "p1"}
	for k, v := range poll {
		rec[k] = v
	}
	opts := make([]any, len(options))
	for i, o := range options {
		opts[i] = map[string]any{"id": fmt.Sprintf("o%d", i+1), "text": o["text"], "votes": float64(0)}
	}
	rec["poll_options"] = opts
	return rec, nil
}

func (f *fakeRemote) UpsertPollVote(ctx context.Context, pollID, userID string, optionIDs []string) error {
	return f.record("upsert_vote")
}

func (f *fakeRemote) InsertPinnedMessage(ctx context.Context, chatID, messageID, userID string) (mapper.Record, error) {
	if err := f.record("insert_pin"); err != nil {
		return nil, err
	}
	if f.pinRow != nil {
		return f.pinRow, nil
	}
	return mapper.Record{"id": "pin-" + messageID, "chat_id": chatID, "message_id": messageID, "pinned_by": userID,
		"pinned_at": t0.Format(time.RFC3339Nano)}, nil
}

func (f *fakeRemote) DeletePinnedMessage(ctx context.Context, chatID, messageID string) error {
	return f.record("delete_pin")
}

func (f *fakeRemote) UpdateMembership(ctx context.Context, chatID, userID string, fields map[string]any) error {
	return f.record("update_membership")
}

func (f *fakeRemote) DeleteMembership(ctx context.Context, chatID, userID string) error {
	return f.record("delete_membership")
}

func (f *fakeRemote) InsertChat(ctx context.Context, chat map[string]any, members []map[string]any) (mapper.Record, error) {
	if err := f.record("insert_chat"); err != nil {
		return nil, err
	}
	rec := mapper.Record{"id": "new-chat"}
	for k, v := range chat {
		rec[k] = v
	}
	parts := make([]any, len(members))
	for i, m := range members {
		parts[i] = map[string]any(m)
	}
	rec["chat_participants"] = parts
	return rec, nil
}

type harness struct {
	store    *Store
	remote   *fakeRemote
	notifier *fakeNotifier
	sched    *fakeScheduler
	now      time.Time
}

func newHarness(t *testing.T, userID string) *harness {
	t.Helper()
	h := &harness{
		remote:   newFakeRemote(),
		notifier: &fakeNotifier{},
		sched:    &fakeScheduler{},
		now:      t0,
	}
	h.store = New(Options{
		Remote:        h.remote,
		Identity:      fakeIdentity{id: userID},
		Notifier:      h.notifier,
		Log:           zerolog.Nop(),
		TypingTimeout: 60 * time.Millisecond,
		Now:           func() time.Time { return h.now },
	})
	h.store.SetScheduler(h.sched)
	t.Cleanup(h.store.Close)
	return h
}

func msgRec(id, chatID, sender string, created time.Time) mapper.Record {
	ts := created.Format(time.RFC3339Nano)
	return mapper.Record{
		"id":         id,
		"chat_id":    chatID,
		"sender_id":  sender,
		"content":    "message " + id,
		"type":       "text",
		"created_at": ts,
		"updated_at": ts,
	}
}

func chatRec(id string, members ...string) mapper.Record {
	parts := make([]any, len(members))
	for i, m := range members {
		parts[i] = map[string]any{"user_id": m, "role": "member"}
	}
	return mapper.Record{"id": id, "type": "group", "name": "chat " + id, "chat_participants": parts}
}

func ids(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Key()
	}
	return out
}

func TestLoadConversations(t *testing.T) {
	h := newHarness(t, "u1")
	h.remote.chats = []mapper.Record{chatRec("c1", "u1", "u2"), {"type": "group"}, chatRec("c2", "u1")}

	require.NoError(t, h.store.LoadConversations(context.Background()))
	convs := h.store.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "c1", convs[0].ID)
	assert.Equal(t, "c2", convs[1].ID)
	assert.Empty(t, h.store.LastError())
}

func TestLoadConversationsDropsLostChats(t *testing.T) {
	h := newHarness(t, "u1")
	h.remote.chats = []mapper.Record{chatRec("c1", "u1"), chatRec("c2", "u1")}
	require.NoError(t, h.store.LoadConversations(context.Background()))
	require.NoError(t, h.store.AddMessage("c2", msgRec("m1", "c2", "u1", t0)))

	h.remote.chats = []mapper.Record{chatRec("c1", "u1")}
	require.NoError(t, h.store.LoadConversations(context.Background()))
	assert.Len(t, h.store.Conversations(), 1)
	assert.Empty(t, h.store.Messages("c2"))
	_, ok := h.store.Message("m1")
	assert.False(t, ok)
}

func TestLoadFailureSetsLastError(t *testing.T) {
	h := newHarness(t, "u1")
	h.remote.err = errRemote

	err := h.store.LoadConversations(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Equal(t, "Failed to load chats", h.store.LastError())
	assert.Equal(t, 1, h.notifier.errors())

	h.remote.err = nil
	require.NoError(t, h.store.LoadConversations(context.Background()))
	assert.Empty(t, h.store.LastError())
}

func TestLoadErrorsClearPerSource(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()
	h.remote.chats = []mapper.Record{chatRec("c1", "u1", "u2")}
	h.remote.messages["c1"] = []mapper.Record{msgRec("m1", "c1", "u2", t0)}
	h.remote.failOn = map[string]error{"list_conversations": errRemote}

	require.Error(t, h.store.LoadConversations(ctx))
	require.NoError(t, h.store.LoadMessages(ctx, "c1", 0))
	assert.Equal(t, "Failed to load chats", h.store.LastError())

	h.remote.failOn = map[string]error{"list_messages": errRemote}
	require.NoError(t, h.store.LoadConversations(ctx))
	require.Error(t, h.store.LoadMessages(ctx, "c1", 0))
	require.NoError(t, h.store.LoadConversations(ctx))
	assert.Equal(t, "Failed to load messages", h.store.LastError())

	h.remote.failOn = nil
	require.NoError(t, h.store.LoadMessages(ctx, "c1", 0))
	assert.Empty(t, h.store.LastError())
}

func TestResetEmptiesStore(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()
	h.remote.chats = []mapper.Record{chatRec("c1", "u1", "u2")}
	h.remote.messages["c1"] = []mapper.Record{msgRec("m1", "c1", "u2", t0)}
	require.NoError(t, h.store.LoadConversations(ctx))
	require.NoError(t, h.store.LoadMessages(ctx, "c1", 0))
	h.store.SetOnlineStatus("u2", true)
	h.store.SetTypingStatus("c1", "u2", true)
	h.store.SetActiveConversation("c1")

	var kinds []ChangeKind
	h.store.OnChange(func(c Change) { kinds = append(kinds, c.Kind) })
	h.store.Reset()

	assert.Empty(t, h.store.Conversations())
	assert.Empty(t, h.store.Messages("c1"))
	assert.Empty(t, h.store.OnlineUsers())
	assert.Empty(t, h.store.TypingUsers("c1"))
	assert.Empty(t, h.store.ActiveConversation())
	_, ok := h.store.Message("m1")
	assert.False(t, ok)
	assert.Equal(t, []ChangeKind{ChangeConversations, ChangePresence}, kinds)

	// the store keeps working for the next session
	require.NoError(t, h.store.LoadConversations(ctx))
	assert.Len(t, h.store.Conversations(), 1)
}

func TestUnauthenticatedShortCircuits(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	_, err := h.store.SendMessage(ctx, "c1", "hi", models.MessageText, models.SendOptions{})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	assert.ErrorIs(t, h.store.AddReaction(ctx, "m1", "👍"), models.ErrUnauthenticated)
	assert.ErrorIs(t, h.store.VoteInPoll(ctx, "p1", []string{"o1"}), models.ErrUnauthenticated)
	assert.ErrorIs(t, h.store.MuteChat(ctx, "c1"), models.ErrUnauthenticated)
	assert.ErrorIs(t, h.store.LoadConversations(ctx), models.ErrUnauthenticated)

	assert.Zero(t, h.remote.callCount())
}

func TestMessagesReturnsCopies(t *testing.T) {
	h := newHarness(t, "u1")
	require.NoError(t, h.store.AddMessage("c1", msgRec("m1", "c1", "u2", t0)))

	got := h.store.Messages("c1")
	got[0].Content = "changed"
	got[0].Reactions = append(got[0].Reactions, models.Reaction{Emoji: "x"})

	m, ok := h.store.Message("m1")
	require.True(t, ok)
	assert.Equal(t, "message m1", m.Content)
	assert.Empty(t, m.Reactions)
}

func TestActiveConversation(t *testing.T) {
	h := newHarness(t, "u1")
	h.store.SetActiveConversation("c1")
	assert.Equal(t, "c1", h.store.ActiveConversation())
}

func TestListenersSeeChanges(t *testing.T) {
	h := newHarness(t, "u1")
	var mu sync.Mutex
	var got []Change
	h.store.OnChange(func(c Change) {
		// listeners run without the store lock held
		_ = h.store.Messages(c.ChatID)
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})

	require.NoError(t, h.store.AddMessage("c1", msgRec("m1", "c1", "u2", t0)))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, Change{Kind: ChangeMessages, ChatID: "c1"}, got[0])
}
