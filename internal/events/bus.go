// Package events is a typed in-process pub/sub used to tell views that data changed.
package events

import (
	"context"
	"sync"
)

// Topic names a class of change.
type Topic int

const (
	// LoansChanged fires after a loan is created, approved or rejected.
	LoansChanged Topic = iota + 1
	// ProfileChanged fires after the profile is saved.
	ProfileChanged
	// SessionChanged fires after every session state transition.
	SessionChanged
	// Navigate fires when the view layer must move to another view.
	Navigate
)

func (t Topic) String() string {
	switch t {
	case LoansChanged:
		return "loans-changed"
	case ProfileChanged:
		return "profile-changed"
	case SessionChanged:
		return "session-changed"
	case Navigate:
		return "navigate"
	}
	return "unknown"
}

// Event is delivered to subscribers. Payload depends on the topic.
type Event struct {
	Topic   Topic
	Payload any
}

// Handler runs synchronously on the publisher's goroutine.
type Handler func(ctx context.Context, ev Event)

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]sub
}

type sub struct {
	id int
	fn Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{subs: map[Topic][]sub{}} }

// Subscribe registers fn for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], sub{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, s := range list {
				if s.id == id {
					b.subs[topic] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to the current subscribers of ev.Topic.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	list := append([]sub(nil), b.subs[ev.Topic]...)
	b.mu.RUnlock()
	for _, s := range list {
		s.fn(ctx, ev)
	}
}
