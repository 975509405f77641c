package store

import (
	"fmt"
	"time"

	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/models"
)

type mergeResult int

const (
	mergeInserted mergeResult = iota
	mergeUpdated
	mergeIgnored
)

// mergeLocked folds m into its conversation's timeline by id. A message
// already present is replaced only when m is at least as new; with
// overwriteEqual unset an equal updated_at counts as a redelivery. Reactions
// and polls live in their own tables, so the held copies survive a replace
// that does not carry them.
func (s *Store) mergeLocked(m *models.Message, overwriteEqual bool) mergeResult {
	t := s.timelineLocked(m.ChatID)
	existing := t.get(m.ID)
	if existing == nil {
		t.insert(m)
		s.index[m.ID] = m.ChatID
		return mergeInserted
	}

	if m.UpdatedAt.Before(existing.UpdatedAt) {
		return mergeIgnored
	}
	if !overwriteEqual && m.UpdatedAt.Equal(existing.UpdatedAt) {
		return mergeIgnored
	}
	if len(m.Reactions) == 0 {
		m.Reactions = existing.Reactions
	}
	if m.Poll == nil {
		m.Poll = existing.Poll
	} else if existing.Poll != nil && len(m.Poll.MyVotes) == 0 {
		m.Poll.MyVotes = existing.Poll.MyVotes
	}
	t.replace(m.ID, m)
	return mergeUpdated
}

func (s *Store) mergeMessage(m *models.Message, overwriteEqual bool) mergeResult {
	return s.merge(m, overwriteEqual, true)
}

// merge folds m in under the lock and publishes the result. With
// allowInsert unset a message that is not already held is skipped.
func (s *Store) merge(m *models.Message, overwriteEqual, allowInsert bool) mergeResult {
	s.mu.Lock()
	if !allowInsert && !s.heldLocked(m) {
		s.mu.Unlock()
		s.log.Debug().Str("chat_id", m.ChatID).Str("message", m.ID).Msg("ignoring update for message outside the window")
		return mergeIgnored
	}
	res := s.mergeLocked(m, overwriteEqual)
	s.mu.Unlock()

	if res == mergeIgnored {
		s.metrics.DuplicateIgnored()
		return res
	}
	s.schedule(m)
	s.emit(Change{Kind: ChangeMessages, ChatID: m.ChatID})
	return res
}

func (s *Store) heldLocked(m *models.Message) bool {
	t := s.timelines[m.ChatID]
	return t != nil && t.get(m.ID) != nil
}

// AddMessage merges a raw message row delivered outside the request path.
// Delivering the same row twice leaves a single entry.
func (s *Store) AddMessage(chatID string, rec mapper.Record) error {
	m, err := mapper.MapMessage(rec)
	if err != nil {
		return err
	}
	if chatID != "" && m.ChatID != chatID {
		return fmt.Errorf("%w: message %s belongs to chat %s", models.ErrInvalidArgument, m.ID, m.ChatID)
	}
	s.mergeMessage(m, false)
	return nil
}

// ApplyChange merges one push event into local state. Events for entities
// that are not held locally are ignored, so unfiltered subscriptions are
// safe to route here.
func (s *Store) ApplyChange(ev models.ChangeEvent) error {
	var err error
	switch ev.Table {
	case models.TableMessages:
		err = s.applyMessageChange(ev)
	case models.TableReactions:
		err = s.applyReactionChange(ev)
	case models.TablePolls:
		err = s.applyPollChange(ev)
	case models.TablePollOptions:
		err = s.applyPollOptionChange(ev)
	case models.TablePinned:
		err = s.applyPinChange(ev)
	case models.TableVoice:
		err = s.applyVoiceChange(ev)
	case models.TableParticipants:
		err = s.applyParticipantChange(ev)
	case models.TableChats:
		err = s.applyChatChange(ev)
	default:
		s.log.Debug().Str("table", ev.Table).Msg("ignoring change for untracked table")
		return nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("table", ev.Table).Str("event", string(ev.Type)).Msg("change not applied")
		return err
	}
	s.metrics.EventMerged(ev.Table, string(ev.Type))
	return nil
}

// row picks the record that identifies the entity: the old record for
// deletes, the new one otherwise.
func row(ev models.ChangeEvent) mapper.Record {
	if ev.Type == models.EventDelete && len(ev.OldRecord) > 0 {
		return ev.OldRecord
	}
	if ev.Record != nil {
		return ev.Record
	}
	return ev.OldRecord
}

func field(r mapper.Record, name string) string {
	v, _ := r[name].(string)
	return v
}

func (s *Store) applyMessageChange(ev models.ChangeEvent) error {
	if ev.Type == models.EventDelete {
		id := field(row(ev), "id")
		if id == "" {
			return fmt.Errorf("%w: message delete without id", models.ErrMalformedRecord)
		}
		s.mu.Lock()
		m, chatID := s.findLocked(id)
		if m != nil {
			m.IsDeleted = true
			m.Content = ""
		}
		s.mu.Unlock()
		if m != nil {
			s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
		}
		return nil
	}

	m, err := mapper.MapMessage(ev.Record)
	if err != nil {
		return err
	}
	// only inserts may grow the list; an update for a message outside the
	// loaded window stays out of it
	update := ev.Type == models.EventUpdate
	s.merge(m, update, !update)
	return nil
}

// Expire removes an ephemeral message if it is past its expiry at now.
// It reports whether anything was removed.
func (s *Store) Expire(chatID, key string, now time.Time) bool {
	s.mu.Lock()
	t := s.timelines[chatID]
	if t == nil {
		s.mu.Unlock()
		return false
	}
	m := t.get(key)
	if m == nil || !m.Expired(now) {
		s.mu.Unlock()
		return false
	}
	t.remove(key)
	delete(s.index, key)
	s.mu.Unlock()

	s.metrics.MessageExpired()
	s.log.Debug().Str("chat_id", chatID).Str("message", key).Msg("ephemeral message expired")
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	return true
}
