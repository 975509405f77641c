package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adi-253/chatsync/internal/config"
	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/models"
)

// Client is a wrapper around the Supabase REST API (PostgREST and Storage).
// Requests carry the anon key and, when signed in, the user's access token
// so row level security scopes every query to the current user.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	bucket      string
	httpClient  *http.Client
	log         zerolog.Logger
}

// APIError is the structured failure PostgREST returns for rejected calls.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase error (status %d, code %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error (status %d): %s", e.Status, e.Message)
}

// Unwrap lets callers match every API failure against models.ErrTransport.
func (e *APIError) Unwrap() error { return models.ErrTransport }

// NewClient creates a new Supabase client with the given configuration.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.SupabaseURL, "/"),
		apiKey:      cfg.SupabaseKey,
		accessToken: cfg.AccessToken,
		bucket:      cfg.MediaBucket,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("component", "supabase").Logger(),
	}
}

func (c *Client) bearer() string {
	if c.accessToken != "" {
		return c.accessToken
	}
	return c.apiKey
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
}

// doRequest executes a request against /rest/v1/{table}. prefer is sent as
// the Prefer header; representation is always requested so writes echo the
// stored row.
func (c *Client) doRequest(ctx context.Context, method, table string, query url.Values, body any, prefer ...string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", strings.Join(append([]string{"return=representation"}, prefer...), ","))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", models.ErrTransport, method, table, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", models.ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	c.log.Debug().Str("method", method).Str("table", table).Int("status", resp.StatusCode).Msg("request")
	return respBody, nil
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func decodeRows(body []byte) ([]mapper.Record, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []mapper.Record{}, nil
	}
	var rows []mapper.Record
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: failed to parse rows: %v", models.ErrTransport, err)
	}
	return rows, nil
}

func decodeOne(body []byte, table string) (mapper.Record, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s write returned no row", models.ErrNotFound, table)
	}
	return rows[0], nil
}

func eq(v string) string { return "eq." + v }

const messageSelect = "*,message_reactions(*),polls(*,poll_options(*),poll_votes(*))"

const chatSelect = "*,members:chat_participants!inner(user_id),chat_participants(*),pinned_messages(*),voice_channels(*)"

// ListConversations returns every chat memberID belongs to, with
// participants, pins and voice channels embedded.
func (c *Client) ListConversations(ctx context.Context, memberID string) ([]mapper.Record, error) {
	q := url.Values{}
	q.Set("select", chatSelect)
	q.Set("members.user_id", eq(memberID))
	q.Set("order", "updated_at.desc")
	body, err := c.doRequest(ctx, http.MethodGet, models.TableChats, q, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows(body)
}

// ListMessages returns the newest limit messages of a chat, newest first.
func (c *Client) ListMessages(ctx context.Context, chatID string, limit int) ([]mapper.Record, error) {
	q := url.Values{}
	q.Set("select", messageSelect)
	q.Set("chat_id", eq(chatID))
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))
	body, err := c.doRequest(ctx, http.MethodGet, models.TableMessages, q, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows(body)
}

// InsertMessage stores a new message and returns the persisted row.
func (c *Client) InsertMessage(ctx context.Context, row map[string]any) (mapper.Record, error) {
	q := url.Values{}
	q.Set("select", messageSelect)
	body, err := c.doRequest(ctx, http.MethodPost, models.TableMessages, q, row)
	if err != nil {
		return nil, err
	}
	return decodeOne(body, models.TableMessages)
}

// UpdateMessage patches a message and returns the updated row.
func (c *Client) UpdateMessage(ctx context.Context, messageID string, fields map[string]any) (mapper.Record, error) {
	q := url.Values{}
	q.Set("id", eq(messageID))
	q.Set("select", messageSelect)
	body, err := c.doRequest(ctx, http.MethodPatch, models.TableMessages, q, fields)
	if err != nil {
		return nil, err
	}
	return decodeOne(body, models.TableMessages)
}

// InsertReaction records that userID reacted to messageID with emoji.
// A duplicate is ignored so the call is idempotent.
func (c *Client) InsertReaction(ctx context.Context, messageID, userID, emoji string) error {
	q := url.Values{}
	q.Set("on_conflict", "message_id,user_id,emoji")
	row := map[string]any{"message_id": messageID, "user_id": userID, "emoji": emoji}
	_, err := c.doRequest(ctx, http.MethodPost, models.TableReactions, q, row, "resolution=ignore-duplicates")
	return err
}

// DeleteReaction removes one (message, user, emoji) reaction.
func (c *Client) DeleteReaction(ctx context.Context, messageID, userID, emoji string) error {
	q := url.Values{}
	q.Set("message_id", eq(messageID))
	q.Set("user_id", eq(userID))
	q.Set("emoji", eq(emoji))
	_, err := c.doRequest(ctx, http.MethodDelete, models.TableReactions, q, nil)
	return err
}

// InsertPoll stores a poll and its options. The returned record has the
// options embedded under poll_options, matching the shape of a fetched poll.
func (c *Client) InsertPoll(ctx context.Context, poll map[string]any, options []map[string]any) (mapper.Record, error) {
	body, err := c.doRequest(ctx, http.MethodPost, models.TablePolls, nil, poll)
	if err != nil {
		return nil, err
	}
	rec, err := decodeOne(body, models.TablePolls)
	if err != nil {
		return nil, err
	}

	pollID, _ := rec["id"].(string)
	for i := range options {
		options[i]["poll_id"] = pollID
		options[i]["position"] = i
	}
	body, err = c.doRequest(ctx, http.MethodPost, models.TablePollOptions, nil, options)
	if err != nil {
		return nil, err
	}
	opts, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	embedded := make([]any, len(opts))
	for i, o := range opts {
		embedded[i] = o
	}
	rec["poll_options"] = embedded
	return rec, nil
}

// UpsertPollVote replaces userID's full selection for a poll.
func (c *Client) UpsertPollVote(ctx context.Context, pollID, userID string, optionIDs []string) error {
	q := url.Values{}
	q.Set("on_conflict", "poll_id,user_id")
	row := map[string]any{"poll_id": pollID, "user_id": userID, "option_ids": optionIDs}
	_, err := c.doRequest(ctx, http.MethodPost, models.TablePollVotes, q, row, "resolution=merge-duplicates")
	return err
}

// InsertPinnedMessage pins a message in a chat.
func (c *Client) InsertPinnedMessage(ctx context.Context, chatID, messageID, userID string) (mapper.Record, error) {
	q := url.Values{}
	q.Set("on_conflict", "chat_id,message_id")
	row := map[string]any{"chat_id": chatID, "message_id": messageID, "pinned_by": userID}
	body, err := c.doRequest(ctx, http.MethodPost, models.TablePinned, q, row, "resolution=merge-duplicates")
	if err != nil {
		return nil, err
	}
	return decodeOne(body, models.TablePinned)
}

// DeletePinnedMessage unpins a message. Unpinning twice is not an error.
func (c *Client) DeletePinnedMessage(ctx context.Context, chatID, messageID string) error {
	q := url.Values{}
	q.Set("chat_id", eq(chatID))
	q.Set("message_id", eq(messageID))
	_, err := c.doRequest(ctx, http.MethodDelete, models.TablePinned, q, nil)
	return err
}

// UpdateMembership patches the member's own flags on a chat (is_muted, is_pinned).
func (c *Client) UpdateMembership(ctx context.Context, chatID, userID string, fields map[string]any) error {
	q := url.Values{}
	q.Set("chat_id", eq(chatID))
	q.Set("user_id", eq(userID))
	_, err := c.doRequest(ctx, http.MethodPatch, models.TableParticipants, q, fields)
	return err
}

// DeleteMembership removes userID from a chat.
func (c *Client) DeleteMembership(ctx context.Context, chatID, userID string) error {
	q := url.Values{}
	q.Set("chat_id", eq(chatID))
	q.Set("user_id", eq(userID))
	_, err := c.doRequest(ctx, http.MethodDelete, models.TableParticipants, q, nil)
	return err
}

// InsertChat creates a chat and its memberships, returning the chat row with
// chat_participants embedded.
func (c *Client) InsertChat(ctx context.Context, chat map[string]any, members []map[string]any) (mapper.Record, error) {
	body, err := c.doRequest(ctx, http.MethodPost, models.TableChats, nil, chat)
	if err != nil {
		return nil, err
	}
	rec, err := decodeOne(body, models.TableChats)
	if err != nil {
		return nil, err
	}
	chatID, _ := rec["id"].(string)
	if chatID == "" {
		return nil, errors.New("chat insert returned no id")
	}
	for i := range members {
		members[i]["chat_id"] = chatID
	}
	body, err = c.doRequest(ctx, http.MethodPost, models.TableParticipants, nil, members)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	embedded := make([]any, len(rows))
	for i, r := range rows {
		embedded[i] = r
	}
	rec["chat_participants"] = embedded
	return rec, nil
}
