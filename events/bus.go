// Package events provides an in-process publish/subscribe bus for
// conversation lifecycle events.
//
// Subscribers receive events on a buffered channel. Publishing never
// blocks: when a subscriber falls behind, its oldest pending events are
// dropped and counted, so a stalled consumer cannot stall the service.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/recall/compaction"
	"github.com/youssefsiam38/recall/conversation"
)

// EventType represents the type of event.
type EventType string

// Event types that can be subscribed to.
const (
	EventConversationCreated  EventType = "conversation_created"
	EventMessageAppended      EventType = "message_appended"
	EventCompactionApplied    EventType = "compaction_applied"
	EventConversationSaved    EventType = "conversation_saved"
	EventSaveFailed           EventType = "save_failed"
	EventConversationArchived EventType = "conversation_archived"
	EventConversationDeleted  EventType = "conversation_deleted"
	EventPurgeCompleted       EventType = "purge_completed"
)

// Event is a single bus notification. Only the fields relevant to the
// event type are populated.
type Event struct {
	Type           EventType             `json:"type"`
	ConversationID string                `json:"conversation_id,omitempty"`
	At             time.Time             `json:"at"`
	Message        *conversation.Message `json:"message,omitempty"`
	Compaction     *compaction.Result    `json:"compaction,omitempty"`
	Err            string                `json:"error,omitempty"`
	Purged         int64                 `json:"purged,omitempty"`
}

// subscriptionBuffer is the per-subscriber channel capacity.
const subscriptionBuffer = 32

// Subscription is an active registration on the bus. Receive from
// Events until it is closed by Unsubscribe or Bus.Close.
type Subscription struct {
	id      int64
	types   map[EventType]bool
	ch      chan Event
	dropped atomic.Int64
	bus     *Bus
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the
// subscriber did not keep up.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Unsubscribe removes the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int64]*Subscription
	nextID int64
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int64]*Subscription)}
}

// Subscribe registers for the given event types. With no types, the
// subscription receives every event. Subscribing to a closed bus
// returns a subscription whose channel is already closed.
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	sub := &Subscription{
		ch:  make(chan Event, subscriptionBuffer),
		bus: b,
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}
	sub.id = b.nextID
	b.nextID++
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers the event to every matching subscriber without
// blocking. A zero At is stamped with the current time.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	// Sends happen under the read lock and channel closes under the
	// write lock, so a send can never hit a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
			continue
		default:
		}
		// Buffer full: discard the oldest pending event to make room.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}

func (b *Bus) unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Close shuts down the bus and closes every subscriber channel.
// Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
