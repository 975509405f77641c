package store

import (
	"context"
	"fmt"

	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/models"
)

// LoadConversations replaces the conversation list with every chat the
// current user is a member of. Chats that are no longer returned are
// dropped together with their messages. Rows that fail to map are skipped.
func (s *Store) LoadConversations(ctx context.Context) error {
	uid, err := s.actor()
	if err != nil {
		return err
	}

	recs, err := s.remote.ListConversations(ctx, uid)
	if err != nil {
		s.setLoadError(conversationsSource, "Failed to load chats")
		return s.fail("load_conversations", err, "Failed to load chats")
	}

	convs := make([]*models.Conversation, 0, len(recs))
	for _, rec := range recs {
		c, err := mapper.MapConversation(rec)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping malformed chat row")
			continue
		}
		convs = append(convs, c)
	}

	s.mu.Lock()
	keep := make(map[string]bool, len(convs))
	for _, c := range convs {
		keep[c.ID] = true
	}
	for _, id := range append([]string(nil), s.order...) {
		if !keep[id] {
			s.dropConversationLocked(id)
		}
	}
	s.order = s.order[:0]
	for _, c := range convs {
		if contains(s.order, c.ID) {
			continue
		}
		s.conversations[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	delete(s.loadErrors, conversationsSource)
	s.mu.Unlock()

	s.log.Info().Int("count", len(convs)).Msg("conversations loaded")
	s.emit(Change{Kind: ChangeConversations})
	return nil
}

// LoadMessages fetches the newest page of a conversation and replaces the
// local list with it. Messages that arrived by push but fall outside the
// page are dropped; reloading the same page twice yields the same list.
func (s *Store) LoadMessages(ctx context.Context, chatID string, limit int) error {
	if chatID == "" {
		return fmt.Errorf("%w: chat id is required", models.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	uid, _ := s.actor()

	recs, err := s.remote.ListMessages(ctx, chatID, limit)
	if err != nil {
		s.setLoadError(chatID, "Failed to load messages")
		return s.fail("load_messages", err, "Failed to load messages")
	}

	msgs := make([]*models.Message, 0, len(recs))
	for _, rec := range recs {
		m, err := mapper.MapMessage(rec)
		if err != nil {
			s.log.Warn().Err(err).Str("chat_id", chatID).Msg("skipping malformed message row")
			continue
		}
		if m.ChatID != chatID {
			continue
		}
		if m.Poll != nil && uid != "" {
			if votes := mapper.MessagePollVotes(rec, uid); votes != nil {
				m.Poll.MyVotes = votes
			}
		}
		msgs = append(msgs, m)
	}

	s.mu.Lock()
	if old := s.timelines[chatID]; old != nil {
		for _, key := range old.order {
			delete(s.index, key)
		}
	}
	t := newTimeline()
	for _, m := range msgs {
		if t.get(m.Key()) != nil {
			continue
		}
		t.push(m)
		s.index[m.Key()] = chatID
	}
	s.timelines[chatID] = t
	delete(s.loadErrors, chatID)
	s.mu.Unlock()

	s.schedule(msgs...)
	s.log.Debug().Str("chat_id", chatID).Int("count", len(msgs)).Msg("messages loaded")
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	return nil
}

// conversationsSource keys the conversation list's load error; message
// loads are keyed by chat id.
const conversationsSource = ""

func (s *Store) setLoadError(source, text string) {
	s.mu.Lock()
	s.loadErrors[source] = text
	s.mu.Unlock()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
