// Package events provides an in-process publish/subscribe bus for session
// lifecycle and status-change notifications.
package events

import (
	"sync"
	"time"
)

// Event types published on the bus.
const (
	TypeSessionCreated = "session.created"
	TypeSessionKilled  = "session.killed"
	TypeStatusChanged  = "session.status_changed"
	TypeClientAttached = "session.client_attached"
	TypeClientDetached = "session.client_detached"
)

// BusEvent is the minimal contract for events carried on the bus.
type BusEvent interface {
	EventType() string
}

// BaseEvent carries the fields shared by all bus events.
type BaseEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session,omitempty"`
}

// EventType implements BusEvent.
func (e BaseEvent) EventType() string { return e.Type }

// SessionEvent is published for lifecycle and status transitions.
type SessionEvent struct {
	BaseEvent

	Status  string            `json:"status,omitempty"`
	Client  string            `json:"client,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// NewSessionEvent constructs a session event with a UTC timestamp.
func NewSessionEvent(eventType, session string) SessionEvent {
	return SessionEvent{
		BaseEvent: BaseEvent{
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Session:   session,
		},
	}
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose channel is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan BusEvent
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan BusEvent)}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan BusEvent, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan BusEvent, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer space.
func (b *Bus) Publish(ev BusEvent) {
	if ev == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
