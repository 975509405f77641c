// Package identity tracks who the current actor is for the lifetime of a
// signed-in session.
package identity

import "sync"

// Session holds the current user id. The zero value is signed out.
type Session struct {
	mu     sync.RWMutex
	userID string
}

// NewSession returns a session signed in as userID; an empty id means
// signed out.
func NewSession(userID string) *Session {
	return &Session{userID: userID}
}

// CurrentUserID returns the signed-in user and whether there is one.
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// SignIn makes userID the current actor.
func (s *Session) SignIn(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// SignOut leaves the session signed out.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.userID = ""
	s.mu.Unlock()
}
