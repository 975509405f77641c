package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mu      sync.Mutex
	expires map[string]time.Time
	removed []string
}

func (f *fakeTarget) Expire(chatID, key string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.expires[key]
	if !ok || at.After(now) {
		return false
	}
	delete(f.expires, key)
	f.removed = append(f.removed, key)
	return true
}

func (f *fakeTarget) removedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestSweepRemovesInExpiryOrder(t *testing.T) {
	target := &fakeTarget{expires: map[string]time.Time{
		"a": base.Add(3 * time.Second),
		"b": base.Add(1 * time.Second),
		"c": base.Add(10 * time.Second),
	}}
	s := New(target, time.Second, zerolog.Nop())
	for key, at := range target.expires {
		s.Schedule("c1", key, at)
	}
	s.Schedule("c1", "b", base.Add(time.Second))
	assert.Equal(t, 3, s.Pending())

	assert.Equal(t, 0, s.Sweep(base))
	assert.Equal(t, 2, s.Sweep(base.Add(5*time.Second)))
	assert.Equal(t, []string{"b", "a"}, target.removedKeys())
	assert.Equal(t, 1, s.Pending())

	assert.Equal(t, 1, s.Sweep(base.Add(time.Minute)))
	assert.Zero(t, s.Pending())
}

func TestSweepToleratesStaleEntries(t *testing.T) {
	target := &fakeTarget{expires: map[string]time.Time{}}
	s := New(target, time.Second, zerolog.Nop())
	s.Schedule("c1", "gone", base)

	assert.Equal(t, 0, s.Sweep(base.Add(time.Second)))
	assert.Zero(t, s.Pending())
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	target := &fakeTarget{expires: map[string]time.Time{"m1": base}}
	s := New(target, 10*time.Millisecond, zerolog.Nop())
	s.now = func() time.Time { return base.Add(time.Second) }
	s.Schedule("c1", "m1", base)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(target.removedKeys()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(&fakeTarget{}, 10*time.Millisecond, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	s.Stop()
	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
