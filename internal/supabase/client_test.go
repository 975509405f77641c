package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/chatsync/internal/config"
	"github.com/adi-253/chatsync/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := &config.Config{
		SupabaseURL: srv.URL,
		SupabaseKey: "anon",
		AccessToken: "jwt",
		MediaBucket: "chat-media",
	}
	return NewClient(cfg, zerolog.Nop())
}

func TestListMessagesBuildsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/messages", r.URL.Path)
		assert.Equal(t, "eq.c1", r.URL.Query().Get("chat_id"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":"m2","chat_id":"c1"},{"id":"m1","chat_id":"c1"}]`))
	})

	rows, err := c.ListMessages(context.Background(), "c1", 50)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "m2", rows[0]["id"])
}

func TestListConversationsFiltersByMember(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/chats", r.URL.Path)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("members.user_id"))
		assert.Contains(t, r.URL.Query().Get("select"), "chat_participants!inner")
		w.Write([]byte(`[{"id":"c1"}]`))
	})
	rows, err := c.ListConversations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAPIErrorIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value"}`))
	})

	_, err := c.InsertMessage(context.Background(), map[string]any{"content": "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransport))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "23505", apiErr.Code)
	assert.Equal(t, "duplicate key value", apiErr.Message)
}

func TestUnreachableIsTransport(t *testing.T) {
	c := NewClient(&config.Config{SupabaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	_, err := c.ListMessages(context.Background(), "c1", 10)
	assert.ErrorIs(t, err, models.ErrTransport)
}

func TestUpsertPollVoteMergesDuplicates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/poll_votes", r.URL.Path)
		assert.Equal(t, "poll_id,user_id", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{"o1", "o2"}, body["option_ids"])
		w.Write([]byte(`[]`))
	})
	require.NoError(t, c.UpsertPollVote(context.Background(), "p1", "u1", []string{"o1", "o2"}))
}

func TestInsertPollEmbedsOptions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/polls":
			w.Write([]byte(`[{"id":"p1","question":"Q?","message_id":"m1"}]`))
		case "/rest/v1/poll_options":
			var opts []map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
			require.Len(t, opts, 2)
			assert.Equal(t, "p1", opts[0]["poll_id"])
			assert.Equal(t, float64(1), opts[1]["position"])
			w.Write([]byte(`[{"id":"o1","text":"A"},{"id":"o2","text":"B"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	rec, err := c.InsertPoll(context.Background(),
		map[string]any{"question": "Q?", "message_id": "m1"},
		[]map[string]any{{"text": "A"}, {"text": "B"}})
	require.NoError(t, err)
	opts, ok := rec["poll_options"].([]any)
	require.True(t, ok)
	assert.Len(t, opts, 2)
}

func TestDeleteReactionFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "eq.m1", q.Get("message_id"))
		assert.Equal(t, "eq.u1", q.Get("user_id"))
		assert.Equal(t, "eq.👍", q.Get("emoji"))
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeleteReaction(context.Background(), "m1", "u1", "👍"))
}

func TestUploadFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/chat-media/c1/photo.png", r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "png-bytes", string(body))
		w.Write([]byte(`{"Key":"chat-media/c1/photo.png"}`))
	})

	local := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(local, []byte("png-bytes"), 0o600))

	u, err := c.UploadFile(context.Background(), local, "c1/photo.png")
	require.NoError(t, err)
	assert.Equal(t, c.baseURL+"/storage/v1/object/public/chat-media/c1/photo.png", u)
}
