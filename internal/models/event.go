package models

// EventType is the kind of change carried by a push event.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Tables emitted by the remote store's change feed.
const (
	TableChats        = "chats"
	TableParticipants = "chat_participants"
	TableMessages     = "messages"
	TableReactions    = "message_reactions"
	TablePolls        = "polls"
	TablePollOptions  = "poll_options"
	TablePollVotes    = "poll_votes"
	TablePinned       = "pinned_messages"
	TableVoice        = "voice_channels"
)

// ChangeEvent is a single change notification from the push feed.
// Record is the new row; OldRecord is the previous row for updates and
// deletes when the feed provides it.
type ChangeEvent struct {
	Type      EventType      `json:"event"`
	Table     string         `json:"table"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record,omitempty"`
}

// ScopeKind selects what a push-feed subscription is filtered on.
type ScopeKind string

const (
	ScopeConversation ScopeKind = "conversation"
	ScopeMessage      ScopeKind = "message"
	ScopePoll         ScopeKind = "poll"
	ScopeVoiceChannel ScopeKind = "voice_channel"
	// ScopeShared carries tables whose rows have no chat id
	ScopeShared ScopeKind = "shared"
)

// Scope names one push-feed subscription.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// Key is stable per scope and is used to keep one pipe per scope.
func (s Scope) Key() string {
	return string(s.Kind) + ":" + s.ID
}

func ConversationScope(chatID string) Scope {
	return Scope{Kind: ScopeConversation, ID: chatID}
}

// SharedScope is the single subscription for reaction and poll option rows,
// which cannot be filtered by chat.
func SharedScope() Scope {
	return Scope{Kind: ScopeShared, ID: "reactions"}
}
