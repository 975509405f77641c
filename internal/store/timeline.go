package store

import "github.com/adi-253/chatsync/internal/models"

// timeline is a conversation's message list: messages keyed by id plus a
// separate newest-first order, so repeated delivery of an id is a lookup
// rather than a second entry.
type timeline struct {
	order []string
	byKey map[string]*models.Message
}

func newTimeline() *timeline {
	return &timeline{byKey: make(map[string]*models.Message)}
}

func (t *timeline) get(key string) *models.Message {
	return t.byKey[key]
}

func (t *timeline) len() int { return len(t.order) }

// insert places m before the first message that is not newer than it, so
// a message with the latest timestamp lands at the head.
func (t *timeline) insert(m *models.Message) {
	key := m.Key()
	pos := len(t.order)
	for i, k := range t.order {
		if !t.byKey[k].CreatedAt.After(m.CreatedAt) {
			pos = i
			break
		}
	}
	t.order = append(t.order, "")
	copy(t.order[pos+1:], t.order[pos:])
	t.order[pos] = key
	t.byKey[key] = m
}

// push appends m as the oldest message. Callers feeding a newest-first
// page keep its order exactly, ties included.
func (t *timeline) push(m *models.Message) {
	key := m.Key()
	t.order = append(t.order, key)
	t.byKey[key] = m
}

// replace swaps the message stored under oldKey for m in the same position.
// m's key may differ from oldKey.
func (t *timeline) replace(oldKey string, m *models.Message) bool {
	if _, ok := t.byKey[oldKey]; !ok {
		return false
	}
	newKey := m.Key()
	delete(t.byKey, oldKey)
	t.byKey[newKey] = m
	if newKey != oldKey {
		for i, k := range t.order {
			if k == oldKey {
				t.order[i] = newKey
				break
			}
		}
	}
	return true
}

func (t *timeline) remove(key string) bool {
	if _, ok := t.byKey[key]; !ok {
		return false
	}
	delete(t.byKey, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// list returns deep copies in display order.
func (t *timeline) list() []*models.Message {
	out := make([]*models.Message, len(t.order))
	for i, k := range t.order {
		out[i] = t.byKey[k].Clone()
	}
	return out
}
