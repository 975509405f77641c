package models

import "time"

// ChatKind distinguishes one-to-one chats from multi-member ones.
type ChatKind string

const (
	ChatDirect    ChatKind = "direct"
	ChatGroup     ChatKind = "group"
	ChatChannel   ChatKind = "channel"
	ChatBroadcast ChatKind = "broadcast"
)

// Valid reports whether k is one of the known chat kinds.
func (k ChatKind) Valid() bool {
	switch k {
	case ChatDirect, ChatGroup, ChatChannel, ChatBroadcast:
		return true
	}
	return false
}

// Role of a participant inside a conversation.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Conversation represents a chat the current user is a member of.
// Conversations are never hard-deleted locally; leaving one drops it from
// the local set.
type Conversation struct {
	// ID is the unique identifier of the chat
	ID string `json:"id"`

	Kind   ChatKind `json:"kind"`
	Name   string   `json:"name"`
	Avatar string   `json:"avatar"`

	// Participants lists every member together with their role
	Participants []Participant `json:"participants"`

	// PinnedMessages is ordered newest pin first
	PinnedMessages []PinnedMessage `json:"pinned_messages"`

	VoiceChannels []VoiceChannel `json:"voice_channels"`

	// Settings holds free-form customization (theme, wallpaper, nicknames)
	Settings map[string]string `json:"settings,omitempty"`

	IsArchived bool `json:"is_archived"`

	// Encryption is opaque metadata carried through untouched
	Encryption map[string]any `json:"encryption,omitempty"`

	LastMessage *string   `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Participant is a member of a conversation. Muted and Pinned are the
// member's own flags on the chat.
type Participant struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Muted  bool   `json:"is_muted"`
	Pinned bool   `json:"is_pinned"`
}

// PinnedMessage records that a message was pinned in a chat.
type PinnedMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	PinnedBy  string    `json:"pinned_by,omitempty"`
	PinnedAt  time.Time `json:"pinned_at"`
	State     SyncState `json:"state,omitempty"`
}

// VoiceChannel is a live audio room inside a conversation.
type VoiceChannel struct {
	ID               string   `json:"id"`
	ChatID           string   `json:"chat_id"`
	Name             string   `json:"name"`
	Capacity         int      `json:"capacity"`
	IsActive         bool     `json:"is_active"`
	Participants     []string `json:"participants"`
	ParticipantCount int      `json:"participant_count"`
}

// User is the public profile of an account.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Avatar       string     `json:"avatar"`
	Bio          string     `json:"bio"`
	IsOnline     bool       `json:"is_online"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	Achievements []string   `json:"achievements"`
}

// Member returns the participant entry for userID.
func (c *Conversation) Member(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// IsPinned reports whether messageID is in the pinned list.
func (c *Conversation) IsPinned(messageID string) bool {
	for _, p := range c.PinnedMessages {
		if p.MessageID == messageID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = append([]Participant(nil), c.Participants...)
	cp.PinnedMessages = append([]PinnedMessage(nil), c.PinnedMessages...)
	cp.VoiceChannels = make([]VoiceChannel, len(c.VoiceChannels))
	for i, v := range c.VoiceChannels {
		v.Participants = append([]string(nil), v.Participants...)
		cp.VoiceChannels[i] = v
	}
	if c.Settings != nil {
		cp.Settings = make(map[string]string, len(c.Settings))
		for k, v := range c.Settings {
			cp.Settings[k] = v
		}
	}
	if c.LastMessage != nil {
		s := *c.LastMessage
		cp.LastMessage = &s
	}
	return &cp
}
