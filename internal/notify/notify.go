// Package notify fans notification events out to subscribers.
package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type Kind string

const (
	KindFanDrift  Kind = "fan.drift"
	KindReadiness Kind = "readiness.changed"
	KindPolicy    Kind = "policy.changed"
)

const (
	subscriberBuffer = 50
	recentEvents     = 100
)

// Event is a single notification. Fan fields are set for KindFanDrift only.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Message   string

	FanID         string
	OldRPM        int
	NewRPM        int
	ManualControl bool
}

func (e *Event) String() string {
	if e.Kind == KindFanDrift {
		return fmt.Sprintf("%s: %d -> %d RPM (manual control: %t)", e.FanID, e.OldRPM, e.NewRPM, e.ManualControl)
	}

	return e.Message
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker delivers every published event to all current subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type Broker struct {
	subscribers map[string]Subscriber
	recent      []*Event
	mu          sync.RWMutex
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]Subscriber),
	}
}

// Subscribe registers id and returns its channel. Subscribing an id twice
// replaces the previous subscription.
func (b *Broker) Subscribe(id string) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subscribers[id]; ok {
		close(old)
	}

	sub := make(Subscriber, subscriberBuffer)
	b.subscribers[id] = sub

	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub)
	}
}

// Subscribers returns the ids of current subscribers, sorted.
func (b *Broker) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recent = append(b.recent, event)
	if len(b.recent) > recentEvents {
		b.recent = b.recent[len(b.recent)-recentEvents:]
	}

	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// Recent returns up to n of the latest events, oldest first.
func (b *Broker) Recent(n int) []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}

	return append([]*Event(nil), b.recent[len(b.recent)-n:]...)
}

// Consume calls fn for every event on sub until ctx is done or sub is closed.
func Consume(ctx context.Context, sub Subscriber, fn func(*Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			fn(event)
		}
	}
}
