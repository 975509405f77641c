// Package realtime routes push-feed subscriptions into the conversation
// store.
package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/adi-253/chatsync/internal/metrics"
	"github.com/adi-253/chatsync/internal/models"
)

// Feed delivers remote change events for a scope until unsubscribed.
type Feed interface {
	Subscribe(ctx context.Context, scope models.Scope, handler func(models.ChangeEvent)) (func(), error)
}

// Sink receives every delivered change event.
type Sink interface {
	ApplyChange(ev models.ChangeEvent) error
}

// Bridge owns the set of live subscriptions. Each scope is subscribed at
// most once and every event is forwarded to the sink.
type Bridge struct {
	feed    Feed
	sink    Sink
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	scope       models.Scope
	unsubscribe func()
}

func NewBridge(feed Feed, sink Sink, log zerolog.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		feed:    feed,
		sink:    sink,
		log:     log.With().Str("component", "bridge").Logger(),
		metrics: m,
		subs:    make(map[string]subscription),
	}
}

// Watch subscribes to scope. Watching a scope twice is a no-op.
func (b *Bridge) Watch(ctx context.Context, scope models.Scope) error {
	key := scope.Key()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[key]; ok {
		return nil
	}

	unsubscribe, err := b.feed.Subscribe(ctx, scope, b.forward)
	if err != nil {
		return err
	}
	b.subs[key] = subscription{scope: scope, unsubscribe: unsubscribe}
	b.metrics.SetSubscriptions(len(b.subs))
	b.log.Debug().Str("scope", key).Msg("watching")
	return nil
}

// WatchConversation subscribes to everything that happens inside a chat.
func (b *Bridge) WatchConversation(ctx context.Context, chatID string) error {
	return b.Watch(ctx, models.ConversationScope(chatID))
}

// Unwatch cancels the subscription for scope if there is one.
func (b *Bridge) Unwatch(scope models.Scope) {
	b.mu.Lock()
	sub, ok := b.subs[scope.Key()]
	if ok {
		delete(b.subs, scope.Key())
		b.metrics.SetSubscriptions(len(b.subs))
	}
	b.mu.Unlock()
	if ok {
		sub.unsubscribe()
	}
}

// SyncConversations makes the conversation subscriptions match chatIDs:
// new chats are watched and chats no longer listed are released. The shared
// reaction scope is held while at least one chat is watched. Other scope
// kinds are left alone.
func (b *Bridge) SyncConversations(ctx context.Context, chatIDs []string) error {
	want := make(map[string]bool, len(chatIDs))
	for _, id := range chatIDs {
		want[models.ConversationScope(id).Key()] = true
	}

	b.mu.Lock()
	var stale []models.Scope
	for key, sub := range b.subs {
		if sub.scope.Kind == models.ScopeConversation && !want[key] {
			stale = append(stale, sub.scope)
		}
	}
	b.mu.Unlock()
	for _, scope := range stale {
		b.Unwatch(scope)
	}

	var firstErr error
	if len(chatIDs) == 0 {
		b.Unwatch(models.SharedScope())
	} else if err := b.Watch(ctx, models.SharedScope()); err != nil {
		b.log.Warn().Err(err).Msg("shared subscribe failed")
		firstErr = err
	}
	for _, id := range chatIDs {
		if err := b.WatchConversation(ctx, id); err != nil {
			b.log.Warn().Err(err).Str("chat_id", id).Msg("subscribe failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Active returns the keys of every live subscription, sorted.
func (b *Bridge) Active() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for key := range b.subs {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Close releases every subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]subscription)
	b.metrics.SetSubscriptions(0)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.unsubscribe()
	}
}

func (b *Bridge) forward(ev models.ChangeEvent) {
	if err := b.sink.ApplyChange(ev); err != nil {
		b.log.Debug().Err(err).Str("table", ev.Table).Msg("event rejected")
	}
}
