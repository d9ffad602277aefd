package pipeline

import (
	"context"
	"sync"
)

// EventBus provides pub/sub for alert artifacts
// Subscribers receive every alert attempt published by the controller
type EventBus struct {
	subscribers map[*eventSubscription]bool
	order       []*eventSubscription
	mu          sync.RWMutex
}

type eventSubscription struct {
	cameraFilter string // Empty string means receive all cameras
	channel      chan *AlertArtifact
	handler      AlertHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for alerts from all cameras
// Returns an unsubscribe function
func (b *EventBus) Subscribe(handler AlertHandler) func() {
	return b.add(&eventSubscription{handler: handler})
}

// SubscribeCamera registers a handler for alerts from a specific camera
// Returns an unsubscribe function
func (b *EventBus) SubscribeCamera(cameraID string, handler AlertHandler) func() {
	return b.add(&eventSubscription{cameraFilter: cameraID, handler: handler})
}

// SubscribeChannel returns a channel that receives alerts
// Returns the channel and an unsubscribe function
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan *AlertArtifact, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan *AlertArtifact, bufferSize)
	sub := &eventSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.order = append(b.order, sub)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			b.remove(sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

func (b *EventBus) add(sub *eventSubscription) func() {
	b.mu.Lock()
	b.subscribers[sub] = true
	b.order = append(b.order, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		b.remove(sub)
		b.mu.Unlock()
	}
}

// remove must be called with mu held
func (b *EventBus) remove(sub *eventSubscription) {
	delete(b.subscribers, sub)
	for i, s := range b.order {
		if s == sub {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish sends an alert to all subscribers in subscription order
func (b *EventBus) Publish(ctx context.Context, artifact *AlertArtifact) {
	if artifact == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.order {
		if sub.cameraFilter != "" && sub.cameraFilter != artifact.CameraID {
			continue
		}

		// Handlers run synchronously, so whatever an earlier subscriber sets
		// on the artifact (the mirror's object key) is seen by later ones.
		if sub.handler != nil {
			sub.handler.OnAlert(ctx, artifact)
		} else if sub.channel != nil {
			select {
			case sub.channel <- artifact:
			default:
				// Channel full, skip this alert
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
	b.order = nil
}
