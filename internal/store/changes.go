package store

import (
	"fmt"

	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/models"
)

// applyPinChange mirrors pinned_messages inserts and deletes.
func (s *Store) applyPinChange(ev models.ChangeEvent) error {
	r := row(ev)
	chatID, messageID := field(r, "chat_id"), field(r, "message_id")
	if ev.Type == models.EventDelete && chatID == "" {
		return s.unpinByID(field(r, "id"))
	}
	if chatID == "" || messageID == "" {
		return fmt.Errorf("%w: pinned message row needs chat_id and message_id", models.ErrMalformedRecord)
	}

	s.mu.Lock()
	c, ok := s.conversations[chatID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	changed := false
	if ev.Type == models.EventDelete {
		for i, p := range c.PinnedMessages {
			if p.MessageID == messageID {
				c.PinnedMessages = append(c.PinnedMessages[:i:i], c.PinnedMessages[i+1:]...)
				changed = true
				break
			}
		}
	} else {
		pin, err := mapper.MapPinnedMessage(r)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		replaced := false
		for i := range c.PinnedMessages {
			if c.PinnedMessages[i].MessageID == messageID {
				c.PinnedMessages[i] = *pin
				replaced = true
				break
			}
		}
		if !replaced {
			c.PinnedMessages = append([]models.PinnedMessage{*pin}, c.PinnedMessages...)
		}
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	}
	return nil
}

// unpinByID handles delete events that only carry the primary key.
func (s *Store) unpinByID(pinID string) error {
	if pinID == "" {
		return fmt.Errorf("%w: pinned message delete without id", models.ErrMalformedRecord)
	}
	s.mu.Lock()
	var chatID string
	for id, c := range s.conversations {
		for i, p := range c.PinnedMessages {
			if p.ID == pinID {
				c.PinnedMessages = append(c.PinnedMessages[:i:i], c.PinnedMessages[i+1:]...)
				chatID = id
				break
			}
		}
		if chatID != "" {
			break
		}
	}
	s.mu.Unlock()
	if chatID != "" {
		s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	}
	return nil
}

// applyVoiceChange keeps a conversation's voice channel list current.
func (s *Store) applyVoiceChange(ev models.ChangeEvent) error {
	r := row(ev)
	id, chatID := field(r, "id"), field(r, "chat_id")
	if id == "" {
		return fmt.Errorf("%w: voice channel row without id", models.ErrMalformedRecord)
	}

	var vc *models.VoiceChannel
	if ev.Type != models.EventDelete {
		var err error
		if vc, err = mapper.MapVoiceChannel(r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	changed := false
	for cid, c := range s.conversations {
		if chatID != "" && cid != chatID {
			continue
		}
		pos := -1
		for i := range c.VoiceChannels {
			if c.VoiceChannels[i].ID == id {
				pos = i
				break
			}
		}
		switch {
		case vc == nil && pos >= 0:
			c.VoiceChannels = append(c.VoiceChannels[:pos:pos], c.VoiceChannels[pos+1:]...)
			chatID, changed = cid, true
		case vc != nil && pos >= 0:
			c.VoiceChannels[pos] = *vc
			changed = true
		case vc != nil:
			c.VoiceChannels = append(c.VoiceChannels, *vc)
			changed = true
		}
		if changed {
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	}
	return nil
}

// applyParticipantChange tracks membership. Losing the current user's
// membership drops the whole conversation.
func (s *Store) applyParticipantChange(ev models.ChangeEvent) error {
	r := row(ev)
	chatID, userID := field(r, "chat_id"), field(r, "user_id")
	if chatID == "" || userID == "" {
		return fmt.Errorf("%w: participant row needs chat_id and user_id", models.ErrMalformedRecord)
	}
	uid, _ := s.actor()

	s.mu.Lock()
	c, ok := s.conversations[chatID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if ev.Type == models.EventDelete {
		if userID == uid {
			s.dropConversationLocked(chatID)
		} else {
			for i, p := range c.Participants {
				if p.UserID == userID {
					c.Participants = append(c.Participants[:i:i], c.Participants[i+1:]...)
					break
				}
			}
		}
		s.mu.Unlock()
		s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
		return nil
	}

	p, err := mapper.MapParticipant(r)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if cur, ok := c.Member(userID); ok {
		*cur = *p
	} else {
		c.Participants = append(c.Participants, *p)
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	return nil
}

// applyChatChange updates conversation metadata. Embedded relations are
// not part of a push row, so the held ones are kept.
func (s *Store) applyChatChange(ev models.ChangeEvent) error {
	r := row(ev)
	id := field(r, "id")
	if id == "" {
		return fmt.Errorf("%w: chat row without id", models.ErrMalformedRecord)
	}
	s.mu.Lock()
	c, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if ev.Type == models.EventDelete {
		s.dropConversationLocked(id)
	} else {
		updated, err := mapper.MapConversation(r)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if _, has := r["type"]; has {
			c.Kind = updated.Kind
		}
		c.Name = updated.Name
		c.Avatar = updated.Avatar
		c.IsArchived = updated.IsArchived
		if updated.Encryption != nil {
			c.Encryption = updated.Encryption
		}
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeConversations, ChatID: id})
	return nil
}
