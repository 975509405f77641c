// Package store owns the local view of conversations, messages and presence
// and keeps it consistent with the remote store.
//
// A Store is created once per signed-in session and handed to every
// consumer. All state sits behind one RWMutex; remote calls are never made
// while it is held, so push-event merges and sweeper removals can interleave
// with a write that is waiting on the network. Listeners and the notifier
// are always invoked without the lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/metrics"
	"github.com/adi-253/chatsync/internal/models"
)

// Remote is the request/response interface of the remote store.
type Remote interface {
	ListConversations(ctx context.Context, memberID string) ([]mapper.Record, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]mapper.Record, error)
	InsertMessage(ctx context.Context, row map[string]any) (mapper.Record, error)
	UpdateMessage(ctx context.Context, messageID string, fields map[string]any) (mapper.Record, error)
	InsertReaction(ctx context.Context, messageID, userID, emoji string) error
	DeleteReaction(ctx context.Context, messageID, userID, emoji string) error
	InsertPoll(ctx context.Context, poll map[string]any, options []map[string]any) (mapper.Record, error)
	UpsertPollVote(ctx context.Context, pollID, userID string, optionIDs []string) error
	InsertPinnedMessage(ctx context.Context, chatID, messageID, userID string) (mapper.Record, error)
	DeletePinnedMessage(ctx context.Context, chatID, messageID string) error
	UpdateMembership(ctx context.Context, chatID, userID string, fields map[string]any) error
	DeleteMembership(ctx context.Context, chatID, userID string) error
	InsertChat(ctx context.Context, chat map[string]any, members []map[string]any) (mapper.Record, error)
}

// Identity answers who the current actor is.
type Identity interface {
	CurrentUserID() (string, bool)
}

// NoticeLevel classifies a user-visible notification.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeInfo    NoticeLevel = "info"
)

// Notifier shows a transient message to the user. It must not block.
type Notifier interface {
	Notify(level NoticeLevel, text string)
}

// Uploader stores a local media file and returns its durable URL.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, destPath string) (string, error)
}

// Scheduler is told about every ephemeral message that enters local state.
type Scheduler interface {
	Schedule(chatID, messageKey string, at time.Time)
}

// ChangeKind says which part of the state a Change touched.
type ChangeKind string

const (
	ChangeConversations ChangeKind = "conversations"
	ChangeMessages      ChangeKind = "messages"
	ChangeTyping        ChangeKind = "typing"
	ChangePresence      ChangeKind = "presence"
)

// Change is emitted to listeners after every state mutation.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	ChatID string     `json:"chat_id,omitempty"`
}

// Options configures a Store. Remote and Identity are required.
type Options struct {
	Remote   Remote
	Identity Identity
	Notifier Notifier
	Uploader Uploader
	Log      zerolog.Logger
	Metrics  *metrics.Metrics

	// PageSize is used by LoadMessages when called with limit <= 0
	PageSize int

	// TypingTimeout removes a typing user after this much inactivity
	TypingTimeout time.Duration

	Now func() time.Time
}

type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// Store is the single source of truth for conversation state.
type Store struct {
	remote   Remote
	identity Identity
	notifier Notifier
	uploader Uploader
	log      zerolog.Logger
	metrics  *metrics.Metrics
	pageSize int
	typingTO time.Duration
	now      func() time.Time

	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	order         []string
	timelines     map[string]*timeline
	// index maps a message key to its chat id
	index     map[string]string
	typing    map[string]map[string]*typingEntry
	typingGen uint64
	online    map[string]struct{}
	active    string
	// loadErrors holds the text of each failed list load by source
	loadErrors map[string]string
	closed     bool
	scheduler  Scheduler

	listenersMu sync.RWMutex
	listeners   []func(Change)
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		remote:        opts.Remote,
		identity:      opts.Identity,
		notifier:      opts.Notifier,
		uploader:      opts.Uploader,
		log:           opts.Log.With().Str("component", "store").Logger(),
		metrics:       opts.Metrics,
		pageSize:      opts.PageSize,
		typingTO:      opts.TypingTimeout,
		now:           opts.Now,
		conversations: make(map[string]*models.Conversation),
		timelines:     make(map[string]*timeline),
		index:         make(map[string]string),
		typing:        make(map[string]map[string]*typingEntry),
		online:        make(map[string]struct{}),
		loadErrors:    make(map[string]string),
	}
}

// SetScheduler wires the expiry sweeper. Messages already held are not
// rescheduled.
func (s *Store) SetScheduler(sch Scheduler) {
	s.mu.Lock()
	s.scheduler = sch
	s.mu.Unlock()
}

// OnChange registers fn to be called after every mutation.
func (s *Store) OnChange(fn func(Change)) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

func (s *Store) emit(changes ...Change) {
	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()
	for _, c := range changes {
		for _, fn := range listeners {
			fn(c)
		}
	}
}

func (s *Store) notify(level NoticeLevel, text string) {
	if s.notifier != nil {
		s.notifier.Notify(level, text)
	}
}

// actor returns the current user or ErrUnauthenticated.
func (s *Store) actor() (string, error) {
	if s.identity == nil {
		return "", models.ErrUnauthenticated
	}
	id, ok := s.identity.CurrentUserID()
	if !ok {
		return "", models.ErrUnauthenticated
	}
	return id, nil
}

// fail records a failed remote operation: it counts it, logs it, shows
// text to the user and returns err annotated with op. Errors that do not
// already carry a taxonomy sentinel are classified as transport failures.
func (s *Store) fail(op string, err error, text string) error {
	s.metrics.WriteFailed(op)
	s.log.Warn().Err(err).Str("op", op).Msg("remote operation failed")
	s.notify(NoticeError, text)
	switch {
	case errors.Is(err, models.ErrTransport),
		errors.Is(err, models.ErrMalformedRecord),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrInvalidArgument):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrTransport, err)
}

func (s *Store) schedule(msgs ...*models.Message) {
	s.mu.RLock()
	sch := s.scheduler
	s.mu.RUnlock()
	if sch == nil {
		return
	}
	for _, m := range msgs {
		if m != nil && m.IsTemporary && m.ExpiresAt != nil {
			sch.Schedule(m.ChatID, m.Key(), *m.ExpiresAt)
		}
	}
}

// Conversations returns copies of all conversations in display order.
func (s *Store) Conversations() []*models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.conversations[id].Clone())
	}
	return out
}

// Conversation returns a copy of one conversation.
func (s *Store) Conversation(chatID string) (*models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[chatID]
	return c.Clone(), ok
}

// Messages returns copies of a conversation's messages, newest first.
func (s *Store) Messages(chatID string) []*models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.timelines[chatID]
	if t == nil {
		return []*models.Message{}
	}
	return t.list()
}

// Message looks a message up by persisted or local id.
func (s *Store) Message(key string) (*models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, _ := s.findLocked(key)
	return m.Clone(), m != nil
}

// LastError is the persistent error text of a failed list load. Each
// source is cleared only by its own next successful load. The conversation
// list wins over the focused chat, which wins over any other chat.
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if text, ok := s.loadErrors[conversationsSource]; ok {
		return text
	}
	if text, ok := s.loadErrors[s.active]; ok {
		return text
	}
	sources := make([]string, 0, len(s.loadErrors))
	for src := range s.loadErrors {
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return ""
	}
	sort.Strings(sources)
	return s.loadErrors[sources[0]]
}

// SetActiveConversation records which conversation the UI has focused.
func (s *Store) SetActiveConversation(chatID string) {
	s.mu.Lock()
	s.active = chatID
	s.mu.Unlock()
}

func (s *Store) ActiveConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Close stops pending typing timers. The store must not be used afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, users := range s.typing {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	s.typing = make(map[string]map[string]*typingEntry)
	s.closed = true
}

// Reset drops every conversation, message and presence entry so the store
// can serve the next signed-in user. Listeners see one conversations change.
func (s *Store) Reset() {
	s.mu.Lock()
	for _, users := range s.typing {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	s.conversations = make(map[string]*models.Conversation)
	s.order = nil
	s.timelines = make(map[string]*timeline)
	s.index = make(map[string]string)
	s.typing = make(map[string]map[string]*typingEntry)
	s.online = make(map[string]struct{})
	s.loadErrors = make(map[string]string)
	s.active = ""
	s.mu.Unlock()

	s.log.Info().Msg("store reset")
	s.emit(Change{Kind: ChangeConversations}, Change{Kind: ChangePresence})
}

// findLocked returns the message stored under key and its chat id.
func (s *Store) findLocked(key string) (*models.Message, string) {
	chatID, ok := s.index[key]
	if !ok {
		return nil, ""
	}
	t := s.timelines[chatID]
	if t == nil {
		return nil, ""
	}
	return t.get(key), chatID
}

// findPersistedLocked is findLocked for writes that need a persisted id.
func (s *Store) findPersistedLocked(messageID string) (*models.Message, error) {
	m, _ := s.findLocked(messageID)
	if m == nil {
		return nil, fmt.Errorf("%w: message %s", models.ErrNotFound, messageID)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("%w: message %s is not sent yet", models.ErrInvalidArgument, messageID)
	}
	return m, nil
}

func (s *Store) findPollLocked(pollID string) *models.Message {
	for _, t := range s.timelines {
		for _, key := range t.order {
			if m := t.byKey[key]; m.Poll != nil && m.Poll.ID == pollID {
				return m
			}
		}
	}
	return nil
}

func (s *Store) timelineLocked(chatID string) *timeline {
	t := s.timelines[chatID]
	if t == nil {
		t = newTimeline()
		s.timelines[chatID] = t
	}
	return t
}

func (s *Store) dropConversationLocked(chatID string) {
	delete(s.conversations, chatID)
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	if t := s.timelines[chatID]; t != nil {
		for _, key := range t.order {
			delete(s.index, key)
		}
		delete(s.timelines, chatID)
	}
	if users := s.typing[chatID]; users != nil {
		for _, e := range users {
			e.timer.Stop()
		}
		delete(s.typing, chatID)
	}
	if chatID != conversationsSource {
		delete(s.loadErrors, chatID)
	}
	if s.active == chatID {
		s.active = ""
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
