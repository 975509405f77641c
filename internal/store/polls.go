package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/models"
)

// PollInput describes a poll to create.
type PollInput struct {
	Question       string
	Options        []string
	MultipleChoice bool
	ExpiresAt      *time.Time
}

// CreatePoll posts a poll message with its options and merges the result.
func (s *Store) CreatePoll(ctx context.Context, chatID string, in PollInput) (*models.Message, error) {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to create polls")
		return nil, err
	}
	question := strings.TrimSpace(in.Question)
	if chatID == "" || question == "" {
		return nil, fmt.Errorf("%w: poll needs a chat and a question", models.ErrInvalidArgument)
	}
	options := make([]map[string]any, 0, len(in.Options))
	for _, o := range in.Options {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, map[string]any{"text": o})
		}
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("%w: poll needs at least two options", models.ErrInvalidArgument)
	}

	rec, err := s.remote.InsertMessage(ctx, map[string]any{
		"chat_id":   chatID,
		"sender_id": uid,
		"content":   question,
		"type":      string(models.MessagePoll),
	})
	if err != nil {
		return nil, s.fail("create_poll", err, "Failed to create poll")
	}
	msgID := field(rec, "id")
	poll := map[string]any{
		"message_id":         msgID,
		"question":           question,
		"is_multiple_choice": in.MultipleChoice,
	}
	if in.ExpiresAt != nil {
		poll["expires_at"] = in.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	pollRec, err := s.remote.InsertPoll(ctx, poll, options)
	if err != nil {
		s.discardPollMessage(ctx, msgID)
		return nil, s.fail("create_poll", err, "Failed to create poll")
	}
	rec["polls"] = []any{map[string]any(pollRec)}

	msg, err := mapper.MapMessage(rec)
	if err != nil {
		return nil, s.fail("create_poll", err, "Failed to create poll")
	}
	s.mergeMessage(msg, true)
	s.notify(NoticeSuccess, "Poll created")
	return msg.Clone(), nil
}

// discardPollMessage soft-deletes a poll message whose poll row was never
// written so no question without options is left in the chat.
func (s *Store) discardPollMessage(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if _, err := s.remote.UpdateMessage(ctx, messageID, map[string]any{"is_deleted": true}); err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Msg("poll message left without a poll")
	}
}

// VoteInPoll replaces the current user's selection in a poll. Counts and
// percentages change locally at once and are restored if the upsert fails.
// A single-choice poll accepts exactly one option.
func (s *Store) VoteInPoll(ctx context.Context, pollID string, optionIDs []string) error {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to vote")
		return err
	}
	if len(optionIDs) == 0 {
		return fmt.Errorf("%w: no option selected", models.ErrInvalidArgument)
	}

	s.mu.Lock()
	m := s.findPollLocked(pollID)
	if m == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: poll %s", models.ErrNotFound, pollID)
	}
	p := m.Poll
	if p.Expired(s.now()) {
		s.mu.Unlock()
		return fmt.Errorf("%w: poll %s is closed", models.ErrInvalidArgument, pollID)
	}
	if !p.MultipleChoice && len(optionIDs) > 1 {
		s.mu.Unlock()
		return fmt.Errorf("%w: poll %s allows a single option", models.ErrInvalidArgument, pollID)
	}
	for _, id := range optionIDs {
		if _, ok := p.Option(id); !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: poll %s has no option %s", models.ErrInvalidArgument, pollID, id)
		}
	}
	prev := p.MyVotes
	p.ApplyVote(optionIDs)
	p.State = models.SyncPending
	chatID := m.ChatID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})

	err = s.remote.UpsertPollVote(ctx, pollID, uid, optionIDs)

	s.mu.Lock()
	if m := s.findPollLocked(pollID); m != nil {
		if err != nil {
			m.Poll.ApplyVote(prev)
		}
		m.Poll.State = models.SyncConfirmed
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})

	if err != nil {
		return s.fail("vote_poll", err, "Failed to record vote")
	}
	return nil
}

// applyPollChange updates poll metadata from a polls row.
func (s *Store) applyPollChange(ev models.ChangeEvent) error {
	if ev.Type == models.EventDelete {
		return nil
	}
	p, err := mapper.MapPoll(ev.Record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	m := s.findPollLocked(p.ID)
	if m == nil {
		s.mu.Unlock()
		return nil
	}
	m.Poll.Question = p.Question
	m.Poll.MultipleChoice = p.MultipleChoice
	m.Poll.ExpiresAt = p.ExpiresAt
	chatID := m.ChatID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	return nil
}

// applyPollOptionChange takes the server's vote count for one option and
// rederives the total and percentages.
func (s *Store) applyPollOptionChange(ev models.ChangeEvent) error {
	if ev.Type == models.EventDelete {
		return nil
	}
	r := ev.Record
	pollID, optionID := field(r, "poll_id"), field(r, "id")
	if pollID == "" || optionID == "" {
		return fmt.Errorf("%w: poll option row needs id and poll_id", models.ErrMalformedRecord)
	}
	votes, ok := number(r, "votes")
	if !ok {
		votes, ok = number(r, "vote_count")
	}
	if !ok {
		return nil
	}

	s.mu.Lock()
	m := s.findPollLocked(pollID)
	if m == nil {
		s.mu.Unlock()
		return nil
	}
	p := m.Poll
	o, found := p.Option(optionID)
	if !found {
		p.Options = append(p.Options, models.PollOption{ID: optionID, Text: firstNonEmpty(field(r, "text"), field(r, "option_text"))})
		o = &p.Options[len(p.Options)-1]
	}
	o.Votes = votes
	total := 0
	for _, opt := range p.Options {
		total += opt.Votes
	}
	p.TotalVotes = total
	p.Recompute()
	chatID := m.ChatID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	return nil
}

func number(r mapper.Record, name string) (int, bool) {
	switch v := r[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
