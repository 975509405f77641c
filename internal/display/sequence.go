// Package display turns a conversation's message list into the flat
// sequence the UI paints: date headers, the unread divider and messages.
package display

import (
	"time"

	"github.com/adi-253/chatsync/internal/models"
)

// Kind tags an Item.
type Kind string

const (
	KindDateHeader    Kind = "date_header"
	KindUnreadDivider Kind = "unread_divider"
	KindMessage       Kind = "message"
)

// AvatarRule decides when a message item shows its sender's avatar.
type AvatarRule int

const (
	// AvatarAlways decorates every message
	AvatarAlways AvatarRule = iota
	// AvatarOnSenderChange shows the avatar only when the next older message
	// has a different sender or falls on a different date
	AvatarOnSenderChange
)

// Item is one entry of the rendered sequence.
type Item struct {
	Kind Kind `json:"kind"`

	// Date is the UTC calendar date (YYYY-MM-DD) of a date header
	Date string `json:"date,omitempty"`

	Message    *models.Message `json:"message,omitempty"`
	ShowAvatar bool            `json:"show_avatar,omitempty"`
}

// Options is the auxiliary state a pass depends on.
type Options struct {
	FirstUnreadID string
	CurrentUserID string
	Avatars       AvatarRule
}

const dateLayout = "2006-01-02"

func dateOf(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Sequence walks messages in the given (newest-first) order. A date header
// precedes the first message of each distinct date and a single unread
// divider precedes the first unread message unless the viewer sent it.
// The result only depends on its arguments.
func Sequence(messages []*models.Message, opts Options) []Item {
	items := make([]Item, 0, len(messages)+4)
	prevDate := ""
	dividerDone := false

	for i, m := range messages {
		if m == nil {
			continue
		}
		date := dateOf(m.CreatedAt)
		if date != prevDate {
			items = append(items, Item{Kind: KindDateHeader, Date: date})
			prevDate = date
		}

		if !dividerDone && opts.FirstUnreadID != "" && m.Key() == opts.FirstUnreadID {
			dividerDone = true
			if opts.CurrentUserID == "" || m.SenderID != opts.CurrentUserID {
				items = append(items, Item{Kind: KindUnreadDivider})
			}
		}

		items = append(items, Item{
			Kind:       KindMessage,
			Message:    m.Clone(),
			ShowAvatar: showAvatar(messages, i, date, opts.Avatars),
		})
	}
	return items
}

func showAvatar(messages []*models.Message, i int, date string, rule AvatarRule) bool {
	if rule != AvatarOnSenderChange {
		return true
	}
	for j := i + 1; j < len(messages); j++ {
		older := messages[j]
		if older == nil {
			continue
		}
		return older.SenderID != messages[i].SenderID || dateOf(older.CreatedAt) != date
	}
	return true
}

// Dividers counts the unread dividers in items.
func Dividers(items []Item) int {
	n := 0
	for _, it := range items {
		if it.Kind == KindUnreadDivider {
			n++
		}
	}
	return n
}
