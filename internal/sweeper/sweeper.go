// Package sweeper removes ephemeral messages once they expire.
package sweeper

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Expirer removes a message if it is expired at now and reports whether it
// did. The store re-checks expiry, so stale queue entries are harmless.
type Expirer interface {
	Expire(chatID, key string, now time.Time) bool
}

type entry struct {
	chatID string
	key    string
	at     time.Time
}

// expiryQueue is a min-heap ordered by expiry time.
type expiryQueue []entry

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q expiryQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *expiryQueue) Push(x any)        { *q = append(*q, x.(entry)) }
func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// Sweeper keeps every scheduled expiry in a heap and on each tick removes
// the messages that are due. It runs as a background goroutine.
type Sweeper struct {
	target   Expirer
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu     sync.Mutex
	queue  expiryQueue
	queued map[string]time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a sweeper that checks for due messages every interval.
func New(target Expirer, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		now:      time.Now,
		log:      log.With().Str("component", "sweeper").Logger(),
		queued:   make(map[string]time.Time),
		stopChan: make(chan struct{}),
	}
}

// Schedule queues a message for removal at at. Scheduling the same message
// for the same instant again is ignored.
func (s *Sweeper) Schedule(chatID, key string, at time.Time) {
	id := chatID + "/" + key
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.queued[id]; ok && prev.Equal(at) {
		return
	}
	s.queued[id] = at
	heap.Push(&s.queue, entry{chatID: chatID, key: key, at: at})
}

// Pending returns the number of queued expiries.
func (s *Sweeper) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Sweep removes every message due at now and returns how many the target
// actually removed.
func (s *Sweeper) Sweep(now time.Time) int {
	var due []entry
	s.mu.Lock()
	for s.queue.Len() > 0 && !s.queue[0].at.After(now) {
		e := heap.Pop(&s.queue).(entry)
		id := e.chatID + "/" + e.key
		if at, ok := s.queued[id]; ok && at.Equal(e.at) {
			delete(s.queued, id)
		}
		due = append(due, e)
	}
	s.mu.Unlock()

	removed := 0
	for _, e := range due {
		if s.target.Expire(e.chatID, e.key, now) {
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("expired messages swept")
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled or Stop is called.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(s.now())
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return nil
		case <-s.stopChan:
			s.log.Info().Msg("sweeper stopped")
			return nil
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
