package core

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription identifies one handler registered on an EventBus.
type Subscription struct {
	EventID string
	key     string
}

type subscriber struct {
	key string
	fn  func(IEvent)
}

// EventBus is the publish/subscribe surface shared by the session client and
// its consumers. Handlers run synchronously on the emitting goroutine, in
// registration order, so per-emitter ordering is preserved for every
// subscriber.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriber
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]subscriber),
	}
}

// On registers fn for every event whose GetId() equals eventID.
func (b *EventBus) On(eventID string, fn func(IEvent)) Subscription {
	sub := Subscription{EventID: eventID, key: uuid.New().String()}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventID] = append(b.subscribers[eventID], subscriber{key: sub.key, fn: fn})
	return sub
}

// Off removes a handler. It reports false when the subscription is unknown.
func (b *EventBus) Off(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.EventID]
	for i, s := range subs {
		if s.key != sub.key {
			continue
		}
		next := make([]subscriber, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subscribers, sub.EventID)
		} else {
			b.subscribers[sub.EventID] = next
		}
		return true
	}
	return false
}

// Emit delivers ev to the handlers registered for its id. Handlers may call
// On/Off re-entrantly; changes apply from the next Emit.
func (b *EventBus) Emit(ev IEvent) {
	b.mu.RLock()
	subs := b.subscribers[ev.GetId()]
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// HasSubscribers reports whether any handler listens for eventID.
func (b *EventBus) HasSubscribers(eventID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventID]) > 0
}

// Subscribe registers a handler typed by its event. The id is taken from the
// zero value of T, so event types must return a constant id from a nil
// receiver.
func Subscribe[T IEvent](b *EventBus, fn func(T)) Subscription {
	var zero T
	return b.On(zero.GetId(), func(ev IEvent) {
		if typed, ok := ev.(T); ok {
			fn(typed)
		}
	})
}
