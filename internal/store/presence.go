package store

import "time"

// SetTypingStatus marks userID as typing in a conversation or clears it.
// A typing user is removed automatically after the typing timeout; every
// further keystroke re-arms that timer instead of removing and re-adding
// the user, so the indicator never flickers while typing continues.
func (s *Store) SetTypingStatus(chatID, userID string, typing bool) {
	if chatID == "" || userID == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	users := s.typing[chatID]
	entry := users[userID]
	changed := false

	if typing {
		if users == nil {
			users = make(map[string]*typingEntry)
			s.typing[chatID] = users
		}
		s.typingGen++
		gen := s.typingGen
		if entry != nil {
			entry.timer.Stop()
			entry.gen = gen
		} else {
			entry = &typingEntry{gen: gen}
			users[userID] = entry
			changed = true
		}
		entry.timer = time.AfterFunc(s.typingTO, func() { s.typingExpired(chatID, userID, gen) })
	} else if entry != nil {
		entry.timer.Stop()
		delete(users, userID)
		if len(users) == 0 {
			delete(s.typing, chatID)
		}
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.emit(Change{Kind: ChangeTyping, ChatID: chatID})
	}
}

// typingExpired runs on the timer goroutine. A stale generation means the
// timer was re-armed after it fired.
func (s *Store) typingExpired(chatID, userID string, gen uint64) {
	s.mu.Lock()
	users := s.typing[chatID]
	entry := users[userID]
	if entry == nil || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.typing, chatID)
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeTyping, ChatID: chatID})
}

// TypingUsers returns the users currently typing in a conversation, sorted.
func (s *Store) TypingUsers(chatID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.typing[chatID])
}

// SetOnlineStatus records whether userID is connected.
func (s *Store) SetOnlineStatus(userID string, online bool) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	_, was := s.online[userID]
	if online {
		s.online[userID] = struct{}{}
	} else {
		delete(s.online, userID)
	}
	s.mu.Unlock()
	if was != online {
		s.emit(Change{Kind: ChangePresence})
	}
}

// OnlineUsers returns every user currently marked online, sorted.
func (s *Store) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.online)
}

func (s *Store) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}
