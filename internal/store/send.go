package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adi-253/chatsync/internal/mapper"
	"github.com/adi-253/chatsync/internal/models"
)

const localIDPrefix = "local-"

// SendMessage persists a message and merges the stored row into local
// state. Nothing is shown before the remote store accepts it, and a push
// event for the same id arriving first is absorbed by the merge.
func (s *Store) SendMessage(ctx context.Context, chatID, content string, kind models.MessageType, opts models.SendOptions) (*models.Message, error) {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to send messages")
		return nil, err
	}
	if kind == "" {
		kind = models.MessageText
	}
	if err := validateSend(chatID, content, kind, opts); err != nil {
		return nil, err
	}

	row, err := s.messageRow(ctx, chatID, uid, content, kind, opts)
	if err != nil {
		return nil, s.fail("upload_media", err, "Failed to upload attachment")
	}
	rec, err := s.remote.InsertMessage(ctx, row)
	if err != nil {
		return nil, s.fail("send_message", err, "Failed to send message")
	}
	msg, err := mapper.MapMessage(rec)
	if err != nil {
		return nil, s.fail("send_message", err, "Failed to send message")
	}

	s.mergeMessage(msg, false)
	return msg.Clone(), nil
}

// SendOptimistic shows the message immediately under a local id and swaps
// it for the persisted row once the insert succeeds. On failure the entry
// stays in place marked SyncFailed so the user can retry or discard it.
func (s *Store) SendOptimistic(ctx context.Context, chatID, content string, kind models.MessageType, opts models.SendOptions) (*models.Message, error) {
	uid, err := s.actor()
	if err != nil {
		s.notify(NoticeError, "Sign in to send messages")
		return nil, err
	}
	if kind == "" {
		kind = models.MessageText
	}
	if err := validateSend(chatID, content, kind, opts); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	local := &models.Message{
		LocalID:   localIDPrefix + uuid.NewString(),
		ChatID:    chatID,
		SenderID:  uid,
		Content:   content,
		Type:      kind,
		Reactions: []models.Reaction{},
		ReplyToID: opts.ReplyTo,
		CreatedAt: now,
		UpdatedAt: now,
		State:     models.SyncPending,
	}
	if opts.Ephemeral > 0 {
		exp := now.Add(opts.Ephemeral)
		local.IsTemporary = true
		local.ExpiresAt = &exp
	}

	s.mu.Lock()
	s.timelineLocked(chatID).insert(local)
	s.index[local.LocalID] = chatID
	s.mu.Unlock()
	s.schedule(local)
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})

	row, err := s.messageRow(ctx, chatID, uid, content, kind, opts)
	if err != nil {
		return s.markFailed(local, s.fail("upload_media", err, "Failed to upload attachment"))
	}
	rec, err := s.remote.InsertMessage(ctx, row)
	if err != nil {
		return s.markFailed(local, s.fail("send_message", err, "Failed to send message"))
	}
	msg, err := mapper.MapMessage(rec)
	if err != nil {
		return s.markFailed(local, s.fail("send_message", err, "Failed to send message"))
	}

	s.mu.Lock()
	t := s.timelineLocked(chatID)
	if t.get(msg.ID) != nil {
		// the push event won the race; the local entry is redundant
		t.remove(local.LocalID)
	} else if !t.replace(local.LocalID, msg) {
		t.insert(msg)
	}
	delete(s.index, local.LocalID)
	s.index[msg.ID] = chatID
	s.mu.Unlock()

	s.schedule(msg)
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	return msg.Clone(), nil
}

// DiscardFailed removes an optimistic entry that failed to send.
func (s *Store) DiscardFailed(localID string) bool {
	s.mu.Lock()
	m, chatID := s.findLocked(localID)
	if m == nil || m.ID != "" || m.State != models.SyncFailed {
		s.mu.Unlock()
		return false
	}
	s.timelines[chatID].remove(localID)
	delete(s.index, localID)
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	return true
}

func (s *Store) markFailed(local *models.Message, err error) (*models.Message, error) {
	s.mu.Lock()
	var out *models.Message
	if m, _ := s.findLocked(local.LocalID); m != nil {
		m.State = models.SyncFailed
		out = m.Clone()
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ChatID: local.ChatID})
	return out, err
}

func validateSend(chatID, content string, kind models.MessageType, opts models.SendOptions) error {
	if chatID == "" {
		return fmt.Errorf("%w: chat id is required", models.ErrInvalidArgument)
	}
	if opts.Ephemeral < 0 {
		return fmt.Errorf("%w: negative ephemeral duration", models.ErrInvalidArgument)
	}
	if kind.HasMedia() {
		if opts.MediaPath == "" {
			return fmt.Errorf("%w: %s message needs a media file", models.ErrInvalidArgument, kind)
		}
		return nil
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content is empty", models.ErrInvalidArgument)
	}
	return nil
}

// messageRow builds the insert payload, uploading the attachment first
// when there is one.
func (s *Store) messageRow(ctx context.Context, chatID, uid, content string, kind models.MessageType, opts models.SendOptions) (map[string]any, error) {
	row := map[string]any{
		"chat_id":   chatID,
		"sender_id": uid,
		"content":   content,
		"type":      string(kind),
	}
	if opts.ReplyTo != "" {
		row["reply_to"] = opts.ReplyTo
	}
	if opts.Ephemeral > 0 {
		row["is_temporary"] = true
		row["expires_at"] = s.now().UTC().Add(opts.Ephemeral).Format(time.RFC3339Nano)
	}
	if kind.HasMedia() && opts.MediaPath != "" {
		if s.uploader == nil {
			return nil, fmt.Errorf("%w: no media uploader configured", models.ErrInvalidArgument)
		}
		dest := chatID + "/" + uuid.NewString() + filepath.Ext(opts.MediaPath)
		u, err := s.uploader.UploadFile(ctx, opts.MediaPath, dest)
		if err != nil {
			return nil, err
		}
		row["media_url"] = u
	}
	return row, nil
}
