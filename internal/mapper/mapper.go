package mapper

import (
	"sort"

	"github.com/adi-253/chatsync/internal/models"
)

// MapUser maps a users row. Only id is required.
func MapUser(r Record) (*models.User, error) {
	id, err := requiredString(r, "user", "id")
	if err != nil {
		return nil, err
	}
	display := str(r, "display_name")
	if display == "" {
		display = str(r, "full_name")
	}
	return &models.User{
		ID:           id,
		Username:     str(r, "username"),
		DisplayName:  display,
		Avatar:       str(r, "avatar_url"),
		Bio:          str(r, "bio"),
		IsOnline:     boolean(r, "is_online"),
		LastSeen:     optTime(r, "last_seen"),
		Achievements: stringList(r, "achievements"),
	}, nil
}

// MapMessage maps a messages row together with any embedded reactions and
// poll. id and chat_id are required; sender_id is required unless the
// message is a system message or has been deleted.
func MapMessage(r Record) (*models.Message, error) {
	id, err := requiredString(r, "message", "id")
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(r, "message", "chat_id")
	if err != nil {
		return nil, err
	}

	msgType := models.MessageType(str(r, "type"))
	if msgType == "" {
		msgType = models.MessageType(str(r, "message_type"))
	}
	if msgType == "" {
		msgType = models.MessageText
	}

	m := &models.Message{
		ID:           id,
		ChatID:       chatID,
		SenderID:     str(r, "sender_id"),
		Content:      str(r, "content"),
		Type:         msgType,
		MediaURL:     str(r, "media_url"),
		IsEdited:     boolean(r, "is_edited"),
		IsDeleted:    boolean(r, "is_deleted"),
		IsStarred:    boolean(r, "is_starred"),
		IsTemporary:  boolean(r, "is_temporary"),
		ExpiresAt:    optTime(r, "expires_at"),
		ForwardCount: integer(r, "forward_count"),
		ReplyToID:    str(r, "reply_to"),
		State:        models.SyncConfirmed,
	}
	if m.ReplyToID == "" {
		m.ReplyToID = str(r, "reply_to_id")
	}
	if m.SenderID == "" && msgType != models.MessageSystem && !m.IsDeleted {
		return nil, malformed("message", "sender_id")
	}
	if t, ok := timestamp(r, "created_at"); ok {
		m.CreatedAt = t
	}
	if t, ok := timestamp(r, "updated_at"); ok {
		m.UpdatedAt = t
	} else {
		m.UpdatedAt = m.CreatedAt
	}

	if tr := object(r, "translation"); tr != nil {
		m.Translation = &models.Translation{Language: str(tr, "language"), Text: str(tr, "text")}
	} else if text := str(r, "translated_content"); text != "" {
		m.Translation = &models.Translation{Language: str(r, "translated_language"), Text: text}
	}

	m.Reactions = MapReactions(r)

	if polls := rows(r, "polls"); len(polls) > 0 {
		p, err := MapPoll(polls[0])
		if err != nil {
			return nil, err
		}
		m.Poll = p
	}
	return m, nil
}

// MapReactions aggregates a message's reactions. It accepts either raw
// message_reactions rows (one per user and emoji) or pre-aggregated
// reactions entries.
func MapReactions(r Record) []models.Reaction {
	out := []models.Reaction{}
	for _, row := range rows(r, "message_reactions") {
		emoji, user := str(row, "emoji"), str(row, "user_id")
		if emoji == "" || user == "" {
			continue
		}
		out, _ = models.AddReaction(out, emoji, user)
	}
	for _, row := range rows(r, "reactions") {
		emoji := str(row, "emoji")
		if emoji == "" {
			continue
		}
		for _, user := range stringList(row, "users") {
			out, _ = models.AddReaction(out, emoji, user)
		}
	}
	return out
}

// MapPoll maps a polls row and its embedded poll_options. The total is
// taken from total_votes when present and summed from the options otherwise.
func MapPoll(r Record) (*models.Poll, error) {
	id, err := requiredString(r, "poll", "id")
	if err != nil {
		return nil, err
	}
	question, err := requiredString(r, "poll", "question")
	if err != nil {
		return nil, err
	}

	p := &models.Poll{
		ID:             id,
		MessageID:      str(r, "message_id"),
		Question:       question,
		MultipleChoice: boolean(r, "is_multiple_choice") || boolean(r, "multiple_choice"),
		ExpiresAt:      optTime(r, "expires_at"),
		MyVotes:        stringList(r, "my_votes"),
		Options:        []models.PollOption{},
		State:          models.SyncConfirmed,
	}

	opts := rows(r, "poll_options")
	if len(opts) == 0 {
		opts = rows(r, "options")
	}
	sort.SliceStable(opts, func(i, j int) bool {
		return integer(opts[i], "position") < integer(opts[j], "position")
	})
	sum := 0
	for _, o := range opts {
		optID, err := requiredString(o, "poll_option", "id")
		if err != nil {
			return nil, err
		}
		text := str(o, "text")
		if text == "" {
			text = str(o, "option_text")
		}
		votes := integer(o, "votes")
		if votes == 0 {
			votes = integer(o, "vote_count")
		}
		sum += votes
		p.Options = append(p.Options, models.PollOption{ID: optID, Text: text, Votes: votes})
	}

	if _, ok := r["total_votes"]; ok {
		p.TotalVotes = integer(r, "total_votes")
	} else {
		p.TotalVotes = sum
	}
	p.Recompute()
	return p, nil
}

// VotesOf returns the option ids userID selected according to the embedded
// poll_votes rows of a poll record.
func VotesOf(r Record, userID string) []string {
	for _, v := range rows(r, "poll_votes") {
		if str(v, "user_id") == userID {
			return stringList(v, "option_ids")
		}
	}
	return nil
}

// MapVoiceChannel maps a voice_channels row. The participant count is
// always derived from the participant list.
func MapVoiceChannel(r Record) (*models.VoiceChannel, error) {
	id, err := requiredString(r, "voice_channel", "id")
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(r, "voice_channel", "chat_id")
	if err != nil {
		return nil, err
	}
	participants := stringList(r, "participants")
	for _, p := range rows(r, "voice_participants") {
		if u := str(p, "user_id"); u != "" {
			participants = append(participants, u)
		}
	}
	return &models.VoiceChannel{
		ID:               id,
		ChatID:           chatID,
		Name:             str(r, "name"),
		Capacity:         integer(r, "capacity"),
		IsActive:         boolean(r, "is_active"),
		Participants:     participants,
		ParticipantCount: len(participants),
	}, nil
}

// MapPinnedMessage maps a pinned_messages row.
func MapPinnedMessage(r Record) (*models.PinnedMessage, error) {
	id, err := requiredString(r, "pinned_message", "id")
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(r, "pinned_message", "chat_id")
	if err != nil {
		return nil, err
	}
	messageID, err := requiredString(r, "pinned_message", "message_id")
	if err != nil {
		return nil, err
	}
	p := &models.PinnedMessage{
		ID:        id,
		ChatID:    chatID,
		MessageID: messageID,
		PinnedBy:  str(r, "pinned_by"),
		State:     models.SyncConfirmed,
	}
	if t, ok := timestamp(r, "pinned_at"); ok {
		p.PinnedAt = t
	} else if t, ok := timestamp(r, "created_at"); ok {
		p.PinnedAt = t
	}
	return p, nil
}

// MapParticipant maps a chat_participants row.
func MapParticipant(r Record) (*models.Participant, error) {
	userID, err := requiredString(r, "chat_participant", "user_id")
	if err != nil {
		return nil, err
	}
	role := models.Role(str(r, "role"))
	if role == "" {
		role = models.RoleMember
	}
	return &models.Participant{
		UserID: userID,
		Role:   role,
		Muted:  boolean(r, "is_muted"),
		Pinned: boolean(r, "is_pinned"),
	}, nil
}

// MapConversation maps a chats row with its embedded participants, pins and
// voice channels. Unknown kinds fall back to group for multi-member chats
// and direct otherwise.
func MapConversation(r Record) (*models.Conversation, error) {
	id, err := requiredString(r, "chat", "id")
	if err != nil {
		return nil, err
	}

	c := &models.Conversation{
		ID:             id,
		Kind:           models.ChatKind(str(r, "type")),
		Name:           str(r, "name"),
		Avatar:         str(r, "avatar_url"),
		IsArchived:     boolean(r, "is_archived"),
		Encryption:     object(r, "encryption"),
		Participants:   []models.Participant{},
		PinnedMessages: []models.PinnedMessage{},
		VoiceChannels:  []models.VoiceChannel{},
	}

	for _, row := range rows(r, "chat_participants") {
		p, err := MapParticipant(row)
		if err != nil {
			return nil, err
		}
		c.Participants = append(c.Participants, *p)
	}
	if !c.Kind.Valid() {
		if len(c.Participants) > 2 {
			c.Kind = models.ChatGroup
		} else {
			c.Kind = models.ChatDirect
		}
	}

	for _, row := range rows(r, "pinned_messages") {
		p, err := MapPinnedMessage(row)
		if err != nil {
			return nil, err
		}
		c.PinnedMessages = append(c.PinnedMessages, *p)
	}
	sort.SliceStable(c.PinnedMessages, func(i, j int) bool {
		return c.PinnedMessages[i].PinnedAt.After(c.PinnedMessages[j].PinnedAt)
	})

	for _, row := range rows(r, "voice_channels") {
		v, err := MapVoiceChannel(row)
		if err != nil {
			return nil, err
		}
		c.VoiceChannels = append(c.VoiceChannels, *v)
	}

	if settings := object(r, "settings"); settings != nil {
		c.Settings = make(map[string]string, len(settings))
		for k := range settings {
			c.Settings[k] = str(settings, k)
		}
	}
	if last := str(r, "last_message"); last != "" {
		c.LastMessage = &last
	}
	if t, ok := timestamp(r, "created_at"); ok {
		c.CreatedAt = t
	}
	if t, ok := timestamp(r, "updated_at"); ok {
		c.UpdatedAt = t
	}
	return c, nil
}

// MessagePollVotes is VotesOf for the first poll embedded in a message row.
func MessagePollVotes(r Record, userID string) []string {
	polls := rows(r, "polls")
	if len(polls) == 0 {
		return nil
	}
	return VotesOf(polls[0], userID)
}
