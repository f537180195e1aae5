package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Subscription represents a subscription to events.
type Subscription struct {
	Ch     chan Event
	Types  []Type
	Target string
}

// Store defines the interface for persisting events (C3), implemented
// by internal/repository against the relational store.
type Store interface {
	Save(event *Event) error
	GetPending(target string, types []Type) ([]*Event, error)
	MarkDelivered(eventID string) error
}

// Backpressure configuration constants, unchanged from the teacher's
// internal/events/bus.go: bounded retry, then drop and log.
const (
	MaxBackpressureRetries = 3
	BackpressureRetryDelay = 10 * time.Millisecond
)

// Bus manages event subscriptions, local delivery, and an optional
// mirror of every event onto an in-process embedded NATS server.
type Bus struct {
	subscribers map[string][]*Subscription
	store       Store
	mu          sync.RWMutex
	dropped     uint64

	bridge *natsBridge
	log    *logrus.Entry
}

// NewBus creates a new event bus. bridge may be nil if no embedded NATS
// transport was configured.
func NewBus(store Store, bridge *natsBridge) *Bus {
	return &Bus{
		subscribers: make(map[string][]*Subscription),
		store:       store,
		bridge:      bridge,
		log:         logrus.WithField("component", "events"),
	}
}

// Subscribe creates a new subscription for target and types. Nil/empty
// types receives every event.
func (b *Bus) Subscribe(target string, types []Type) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		Ch:     make(chan Event, 100),
		Types:  types,
		Target: target,
	}
	b.subscribers[target] = append(b.subscribers[target], sub)
	return sub.Ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(target string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, exists := b.subscribers[target]
	if !exists {
		return
	}
	for i, sub := range subs {
		if sub.Ch == ch {
			close(sub.Ch)
			b.subscribers[target] = append(subs[:i], subs[i+1:]...)
			if len(b.subscribers[target]) == 0 {
				delete(b.subscribers, target)
			}
			return
		}
	}
}

// Publish sends event to every matching local subscriber and, if an
// embedded NATS bridge is configured, mirrors it onto that server, where
// in-process NATS subscribers can receive it. This never crosses a
// network or process boundary — the embedded server binds no listener.
func (b *Bus) Publish(event *Event) {
	if b.store != nil {
		if err := b.store.Save(event); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"event_type": event.Type, "target": event.Target, "event_id": event.ID,
			}).Error("failed to persist event")
		}
	}

	if b.bridge != nil {
		b.bridge.publish(event)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var targetSubs []*Subscription
	if event.Target == "all" {
		for _, subs := range b.subscribers {
			targetSubs = append(targetSubs, subs...)
		}
	} else {
		if subs, exists := b.subscribers[event.Target]; exists {
			targetSubs = append(targetSubs, subs...)
		}
		if subs, exists := b.subscribers["all"]; exists {
			targetSubs = append(targetSubs, subs...)
		}
	}

	for _, sub := range targetSubs {
		if b.matchesTypes(event.Type, sub.Types) {
			b.sendWithBackpressure(sub, event)
		}
	}
}

// sendWithBackpressure retries a bounded number of times before
// dropping the event and logging it, never blocking Publish
// indefinitely on a slow subscriber.
func (b *Bus) sendWithBackpressure(sub *Subscription, event *Event) {
	select {
	case sub.Ch <- *event:
		return
	default:
	}

	for retry := 1; retry <= MaxBackpressureRetries; retry++ {
		time.Sleep(BackpressureRetryDelay)
		select {
		case sub.Ch <- *event:
			b.log.WithFields(logrus.Fields{
				"event_type": event.Type, "target": event.Target, "event_id": event.ID, "retry": retry,
			}).Debug("event delivered after retry")
			return
		default:
		}
	}

	dropped := atomic.AddUint64(&b.dropped, 1)
	b.log.WithFields(logrus.Fields{
		"event_type": event.Type, "target": event.Target, "source": event.Source,
		"event_id": event.ID, "total_dropped": dropped,
	}).Warn("dropped event after exhausting backpressure retries")
}

// GetPendingEvents retrieves pending events from the store for target.
func (b *Bus) GetPendingEvents(target string, types []Type) ([]*Event, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.GetPending(target, types)
}

// MarkDelivered marks an event as delivered in the store.
func (b *Bus) MarkDelivered(eventID string) error {
	if b.store == nil {
		return nil
	}
	return b.store.MarkDelivered(eventID)
}

// DroppedEventCount returns the total number of events dropped due to
// full subscriber channels.
func (b *Bus) DroppedEventCount() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

func (b *Bus) matchesTypes(eventType Type, types []Type) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == eventType {
			return true
		}
	}
	return false
}

// Shutdown closes the embedded NATS bridge, if any.
func (b *Bus) Shutdown() {
	if b.bridge != nil {
		b.bridge.close()
	}
}
