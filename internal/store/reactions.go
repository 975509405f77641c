package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/adi-253/chatsync/internal/models"
)

// AddReaction records the current user's emoji on a message. The local
// aggregate changes immediately in the Pending state and is rolled back if
// the remote insert fails. Adding a reaction the user already holds only
// repeats the idempotent remote write.
func (s *Store) AddReaction(ctx context.Context, messageID, emoji string) error {
	return s.react(ctx, messageID, emoji, true)
}

// RemoveReaction withdraws the current user's emoji from a message.
func (s *Store) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	return s.react(ctx, messageID, emoji, false)
}

func (s *Store) react(ctx context.Context, messageID, emoji string, add bool) error {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to react")
		return err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return fmt.Errorf("%w: emoji is required", models.ErrInvalidArgument)
	}

	s.mu.Lock()
	m, err := s.findPersistedLocked(messageID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	chatID := m.ChatID
	apply, undo := models.AddReaction, models.RemoveReaction
	if !add {
		apply, undo = undo, apply
	}
	var changed bool
	m.Reactions, changed = apply(m.Reactions, emoji, uid)
	if changed {
		setReactionState(m, emoji, models.SyncPending)
	}
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	}

	op := "add_reaction"
	if add {
		err = s.remote.InsertReaction(ctx, messageID, uid, emoji)
	} else {
		op = "remove_reaction"
		err = s.remote.DeleteReaction(ctx, messageID, uid, emoji)
	}

	s.mu.Lock()
	if m, _ := s.findLocked(messageID); m != nil && changed {
		if err != nil {
			m.Reactions, _ = undo(m.Reactions, emoji, uid)
		}
		setReactionState(m, emoji, models.SyncConfirmed)
	}
	s.mu.Unlock()

	if err != nil {
		s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
		return s.fail(op, err, "Failed to update reaction")
	}
	if changed {
		s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	}
	return nil
}

func setReactionState(m *models.Message, emoji string, state models.SyncState) {
	for i := range m.Reactions {
		if m.Reactions[i].Emoji == emoji {
			m.Reactions[i].State = state
			return
		}
	}
}

// applyReactionChange folds a message_reactions row into the aggregate.
// Inserts and deletes are set operations on the user list, so redelivered
// or reordered events converge.
func (s *Store) applyReactionChange(ev models.ChangeEvent) error {
	r := row(ev)
	messageID, userID, emoji := field(r, "message_id"), field(r, "user_id"), field(r, "emoji")
	if messageID == "" || userID == "" || emoji == "" {
		return fmt.Errorf("%w: reaction row needs message_id, user_id and emoji", models.ErrMalformedRecord)
	}

	s.mu.Lock()
	m, chatID := s.findLocked(messageID)
	if m == nil {
		s.mu.Unlock()
		return nil
	}
	var changed bool
	switch ev.Type {
	case models.EventDelete:
		m.Reactions, changed = models.RemoveReaction(m.Reactions, emoji, userID)
	default:
		m.Reactions, changed = models.AddReaction(m.Reactions, emoji, userID)
		setReactionState(m, emoji, models.SyncConfirmed)
	}
	s.mu.Unlock()

	if changed {
		s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	} else {
		s.metrics.DuplicateIgnored()
	}
	return nil
}
