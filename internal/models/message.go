package models

import "time"

// MessageType tags the content payload of a message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageVoice    MessageType = "voice"
	MessageFile     MessageType = "file"
	MessagePoll     MessageType = "poll"
	MessageLocation MessageType = "location"
	MessageSticker  MessageType = "sticker"
	MessageSystem   MessageType = "system"
)

// HasMedia reports whether messages of this type carry an uploaded file.
func (t MessageType) HasMedia() bool {
	switch t {
	case MessageImage, MessageVideo, MessageVoice, MessageFile:
		return true
	}
	return false
}

// SyncState tracks a locally speculated mutation until the remote store
// confirms or rejects it.
type SyncState string

const (
	SyncConfirmed SyncState = "confirmed"
	SyncPending   SyncState = "pending"
	SyncFailed    SyncState = "failed"
)

// Message represents a single chat message as held in local state.
type Message struct {
	// ID is the persisted identifier assigned by the remote store.
	// Empty while the message only exists as an optimistic entry.
	ID string `json:"id,omitempty"`

	// LocalID identifies an optimistic entry that has not been persisted yet.
	// It is cleared in the same step that sets ID.
	LocalID string `json:"local_id,omitempty"`

	// ChatID is the conversation this message belongs to
	ChatID string `json:"chat_id"`

	// SenderID is empty for system messages and deleted accounts
	SenderID string `json:"sender_id,omitempty"`

	Content  string      `json:"content"`
	Type     MessageType `json:"type"`
	MediaURL string      `json:"media_url,omitempty"`

	// Reactions are ordered by first appearance of each emoji
	Reactions []Reaction `json:"reactions"`

	IsEdited    bool `json:"is_edited"`
	IsDeleted   bool `json:"is_deleted"`
	IsStarred   bool `json:"is_starred"`
	IsTemporary bool `json:"is_temporary"`

	// ExpiresAt is only meaningful when IsTemporary is set
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	ForwardCount int          `json:"forward_count"`
	ReplyToID    string       `json:"reply_to_id,omitempty"`
	Translation  *Translation `json:"translation,omitempty"`
	Poll         *Poll        `json:"poll,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// State is SyncConfirmed for anything that came from the remote store
	State SyncState `json:"state"`
}

// Translation holds a machine translation of the message content.
type Translation struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// Key returns whichever identifier currently names the message.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.LocalID
}

// Expired reports whether an ephemeral message is past its expiry at now.
// Non-temporary messages never expire regardless of ExpiresAt.
func (m *Message) Expired(now time.Time) bool {
	if !m.IsTemporary || m.ExpiresAt == nil {
		return false
	}
	return !m.ExpiresAt.After(now)
}

// Clone returns a deep copy so callers can read state without holding locks.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Reactions != nil {
		c.Reactions = make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			c.Reactions[i] = r.Clone()
		}
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		c.ExpiresAt = &t
	}
	if m.Translation != nil {
		t := *m.Translation
		c.Translation = &t
	}
	c.Poll = m.Poll.Clone()
	return &c
}

// SendOptions carries the optional parts of an outgoing message.
type SendOptions struct {
	// Ephemeral, when positive, makes the message self-destruct after this long
	Ephemeral time.Duration
	ReplyTo   string
	// MediaPath is a local file uploaded before the insert for media types
	MediaPath string
}
