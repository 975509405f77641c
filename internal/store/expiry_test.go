package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/chatsync/internal/sweeper"
)

func TestSweeperRemovesEphemeralMessages(t *testing.T) {
	h := newHarness(t, "u1")
	h.now = time.Now()
	sw := sweeper.New(h.store, 10*time.Millisecond, zerolog.Nop())
	h.store.SetScheduler(sw)

	expires := time.Now().Add(50 * time.Millisecond).UTC()
	temp := msgRec("temp", "c1", "u2", t0)
	temp["is_temporary"] = true
	temp["expires_at"] = expires.Format(time.RFC3339Nano)
	keep := msgRec("keep", "c1", "u2", t0.Add(-time.Minute))
	keep["expires_at"] = t0.Format(time.RFC3339Nano)

	require.NoError(t, h.store.AddMessage("c1", keep))
	require.NoError(t, h.store.AddMessage("c1", temp))
	assert.Equal(t, 1, sw.Pending())
	// a non-temporary message is never removed, even when queued
	sw.Schedule("c1", "keep", t0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		_, ok := h.store.Message("temp")
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.False(t, time.Now().Before(expires))
	assert.Equal(t, []string{"keep"}, ids(h.store.Messages("c1")))
	assert.Zero(t, sw.Pending())
}
