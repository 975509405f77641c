package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/models"
)

// PinMessage pins a message in a conversation. The pin appears at the head
// of the pinned list immediately and is withdrawn if the remote write fails.
func (s *Store) PinMessage(ctx context.Context, chatID, messageID string) error {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to pin messages")
		return err
	}

	s.mu.Lock()
	c, ok := s.conversations[chatID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: chat %s", models.ErrNotFound, chatID)
	}
	added := !c.IsPinned(messageID)
	if added {
		pin := models.PinnedMessage{
			ChatID:    chatID,
			MessageID: messageID,
			PinnedBy:  uid,
			PinnedAt:  s.now().UTC(),
			State:     models.SyncPending,
		}
		c.PinnedMessages = append([]models.PinnedMessage{pin}, c.PinnedMessages...)
	}
	s.mu.Unlock()
	if added {
		s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	}

	rec, err := s.remote.InsertPinnedMessage(ctx, chatID, messageID, uid)
	var confirmed *models.PinnedMessage
	if err == nil {
		// the write landed; an unreadable echo keeps the local pin
		var mapErr error
		if confirmed, mapErr = mapper.MapPinnedMessage(rec); mapErr != nil {
			s.log.Warn().Err(mapErr).Str("chat_id", chatID).Str("message_id", messageID).Msg("unreadable pinned message row")
			confirmed = nil
		}
	}

	s.mu.Lock()
	if c, ok := s.conversations[chatID]; ok {
		for i := range c.PinnedMessages {
			if c.PinnedMessages[i].MessageID != messageID {
				continue
			}
			switch {
			case err != nil && added:
				c.PinnedMessages = append(c.PinnedMessages[:i:i], c.PinnedMessages[i+1:]...)
			case confirmed != nil:
				c.PinnedMessages[i] = *confirmed
			default:
				c.PinnedMessages[i].State = models.SyncConfirmed
			}
			break
		}
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeConversations, ChatID: chatID})

	if err != nil {
		return s.fail("pin_message", err, "Failed to pin message")
	}
	s.notify(NoticeSuccess, "Message pinned")
	return nil
}

// UnpinMessage removes a pin, restoring it in place if the delete fails.
func (s *Store) UnpinMessage(ctx context.Context, chatID, messageID string) error {
	if _, err := s.actor(); err != nil {
		s.notify(NoticeError, "Sign in to unpin messages")
		return err
	}

	s.mu.Lock()
	c, ok := s.conversations[chatID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: chat %s", models.ErrNotFound, chatID)
	}
	pos := -1
	var removed models.PinnedMessage
	for i, p := range c.PinnedMessages {
		if p.MessageID == messageID {
			pos, removed = i, p
			c.PinnedMessages = append(c.PinnedMessages[:i:i], c.PinnedMessages[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if pos >= 0 {
		s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	}

	err := s.remote.DeletePinnedMessage(ctx, chatID, messageID)
	if err != nil {
		if pos >= 0 {
			s.mu.Lock()
			if c, ok := s.conversations[chatID]; ok && !c.IsPinned(messageID) {
				if pos > len(c.PinnedMessages) {
					pos = len(c.PinnedMessages)
				}
				c.PinnedMessages = append(c.PinnedMessages[:pos:pos], append([]models.PinnedMessage{removed}, c.PinnedMessages[pos:]...)...)
			}
			s.mu.Unlock()
			s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
		}
		return s.fail("unpin_message", err, "Failed to unpin message")
	}
	s.notify(NoticeSuccess, "Message unpinned")
	return nil
}

// MuteChat sets the current user's muted flag on a conversation.
func (s *Store) MuteChat(ctx context.Context, chatID string) error {
	return s.setMemberFlag(ctx, chatID, "is_muted", true, "Chat muted")
}

func (s *Store) UnmuteChat(ctx context.Context, chatID string) error {
	return s.setMemberFlag(ctx, chatID, "is_muted", false, "Chat unmuted")
}

// PinChat sets the current user's pinned flag on a conversation.
func (s *Store) PinChat(ctx context.Context, chatID string) error {
	return s.setMemberFlag(ctx, chatID, "is_pinned", true, "Chat pinned")
}

func (s *Store) UnpinChat(ctx context.Context, chatID string) error {
	return s.setMemberFlag(ctx, chatID, "is_pinned", false, "Chat unpinned")
}

func memberFlag(p *models.Participant, name string) *bool {
	if name == "is_muted" {
		return &p.Muted
	}
	return &p.Pinned
}

func (s *Store) setMemberFlag(ctx context.Context, chatID, name string, value bool, success string) error {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to change chat settings")
		return err
	}

	s.mu.Lock()
	c, ok := s.conversations[chatID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: chat %s", models.ErrNotFound, chatID)
	}
	member, ok := c.Member(uid)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: not a member of chat %s", models.ErrNotFound, chatID)
	}
	flag := memberFlag(member, name)
	prev := *flag
	*flag = value
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeConversations, ChatID: chatID})

	if err := s.remote.UpdateMembership(ctx, chatID, uid, map[string]any{name: value}); err != nil {
		s.mu.Lock()
		if c, ok := s.conversations[chatID]; ok {
			if member, ok := c.Member(uid); ok {
				*memberFlag(member, name) = prev
			}
		}
		s.mu.Unlock()
		s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
		return s.fail("update_"+strings.TrimPrefix(name, "is_"), err, "Failed to update chat")
	}
	s.notify(NoticeSuccess, success)
	return nil
}

// DeleteChat removes the current user from a conversation and drops it
// locally once the remote store has accepted that.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to delete chats")
		return err
	}
	if err := s.remote.DeleteMembership(ctx, chatID, uid); err != nil {
		return s.fail("delete_chat", err, "Failed to delete chat")
	}
	s.mu.Lock()
	s.dropConversationLocked(chatID)
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	s.notify(NoticeSuccess, "Chat deleted")
	return nil
}

// ChatInput describes a conversation to create.
type ChatInput struct {
	Kind    models.ChatKind
	Name    string
	Members []string
}

// CreateChat creates a conversation owned by the current user with the
// given members and adds it to the head of the list.
func (s *Store) CreateChat(ctx context.Context, in ChatInput) (*models.Conversation, error) {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to create chats")
		return nil, err
	}
	if in.Kind == "" {
		in.Kind = models.ChatDirect
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown chat kind %q", models.ErrInvalidArgument, in.Kind)
	}

	others := make([]string, 0, len(in.Members))
	seen := map[string]bool{uid: true}
	for _, m := range in.Members {
		if m = strings.TrimSpace(m); m != "" && !seen[m] {
			seen[m] = true
			others = append(others, m)
		}
	}
	if in.Kind == models.ChatDirect && len(others) != 1 {
		return nil, fmt.Errorf("%w: a direct chat has exactly one other member", models.ErrInvalidArgument)
	}
	if in.Kind != models.ChatDirect && strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: %s chats need a name", models.ErrInvalidArgument, in.Kind)
	}

	members := []map[string]any{{"user_id": uid, "role": string(models.RoleOwner)}}
	for _, m := range others {
		members = append(members, map[string]any{"user_id": m, "role": string(models.RoleMember)})
	}
	chat := map[string]any{"type": string(in.Kind), "created_by": uid}
	if name := strings.TrimSpace(in.Name); name != "" {
		chat["name"] = name
	}

	rec, err := s.remote.InsertChat(ctx, chat, members)
	if err != nil {
		return nil, s.fail("create_chat", err, "Failed to create chat")
	}
	c, err := mapper.MapConversation(rec)
	if err != nil {
		return nil, s.fail("create_chat", err, "Failed to create chat")
	}

	s.mu.Lock()
	if _, exists := s.conversations[c.ID]; !exists {
		s.order = append([]string{c.ID}, s.order...)
	}
	s.conversations[c.ID] = c
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeConversations, ChatID: c.ID})
	s.notify(NoticeSuccess, "Chat created")
	return c.Clone(), nil
}

// EditMessage replaces the content of one of the current user's messages.
func (s *Store) EditMessage(ctx context.Context, messageID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is empty", models.ErrInvalidArgument)
	}
	return s.patchMessage(ctx, "edit_message", messageID, true,
		map[string]any{"content": content, "is_edited": true},
		func(m *models.Message) {
			m.Content = content
			m.IsEdited = true
		}, "Failed to edit message")
}

// DeleteMessage soft-deletes one of the current user's messages. The entry
// stays in the timeline flagged as deleted.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) (*models.Message, error) {
	return s.patchMessage(ctx, "delete_message", messageID, true,
		map[string]any{"is_deleted": true},
		func(m *models.Message) { m.IsDeleted = true }, "Failed to delete message")
}

// StarMessage sets or clears the starred flag of a message.
func (s *Store) StarMessage(ctx context.Context, messageID string, starred bool) (*models.Message, error) {
	return s.patchMessage(ctx, "star_message", messageID, false,
		map[string]any{"is_starred": starred},
		func(m *models.Message) { m.IsStarred = starred }, "Failed to star message")
}

// patchMessage applies mutate locally, writes fields remotely and then
// merges the returned row, or restores the previous copy on failure.
func (s *Store) patchMessage(ctx context.Context, op, messageID string, ownOnly bool, fields map[string]any, mutate func(*models.Message), text string) (*models.Message, error) {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to change messages")
		return nil, err
	}

	s.mu.Lock()
	m, err := s.findPersistedLocked(messageID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if ownOnly && m.SenderID != uid {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: message %s belongs to another user", models.ErrInvalidArgument, messageID)
	}
	prev := m.Clone()
	mutate(m)
	m.State = models.SyncPending
	chatID := m.ChatID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})

	rec, err := s.remote.UpdateMessage(ctx, messageID, fields)
	var updated *models.Message
	if err == nil {
		updated, err = mapper.MapMessage(rec)
	}

	var out *models.Message
	s.mu.Lock()
	if t := s.timelines[chatID]; t != nil {
		if cur := t.get(messageID); cur != nil {
			if err != nil {
				prev.Reactions = cur.Reactions
				t.replace(messageID, prev)
			} else {
				cur.State = models.SyncConfirmed
				s.mergeLocked(updated, true)
				out = t.get(messageID).Clone()
			}
		}
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})

	if err != nil {
		return nil, s.fail(op, err, text)
	}
	if out == nil {
		out = updated
	}
	return out, nil
}
