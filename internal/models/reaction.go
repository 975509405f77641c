package models

import "sort"

// Reaction is the aggregate view of one emoji on one message.
// Count is always the size of Users; a user holding several different
// emoji on the same message appears in several aggregates.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`

	// State is SyncPending while a local add/remove awaits the remote write
	State SyncState `json:"state,omitempty"`
}

func (r Reaction) Clone() Reaction {
	r.Users = append([]string(nil), r.Users...)
	return r
}

// HasUser reports whether userID holds this reaction.
func (r *Reaction) HasUser(userID string) bool {
	for _, u := range r.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// AddReaction adds userID to the emoji aggregate, creating it if needed.
// It returns false when the user already held the reaction.
func AddReaction(list []Reaction, emoji, userID string) ([]Reaction, bool) {
	for i := range list {
		if list[i].Emoji != emoji {
			continue
		}
		if list[i].HasUser(userID) {
			return list, false
		}
		list[i].Users = append(list[i].Users, userID)
		sort.Strings(list[i].Users)
		list[i].Count = len(list[i].Users)
		return list, true
	}
	return append(list, Reaction{Emoji: emoji, Count: 1, Users: []string{userID}}), true
}

// RemoveReaction drops userID from the emoji aggregate. Aggregates left
// without users are removed. It returns false when nothing changed.
func RemoveReaction(list []Reaction, emoji, userID string) ([]Reaction, bool) {
	for i := range list {
		if list[i].Emoji != emoji {
			continue
		}
		users := list[i].Users[:0:0]
		for _, u := range list[i].Users {
			if u != userID {
				users = append(users, u)
			}
		}
		if len(users) == len(list[i].Users) {
			return list, false
		}
		if len(users) == 0 {
			return append(list[:i:i], list[i+1:]...), true
		}
		list[i].Users = users
		list[i].Count = len(users)
		return list, true
	}
	return list, false
}
