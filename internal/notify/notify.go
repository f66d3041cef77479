// Package notify fans task change events out to connected devices.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type EventType string

const (
	EventCreated EventType = "task.created"
	EventUpdated EventType = "task.updated"
	EventDeleted EventType = "task.deleted"
	// EventMessage is a free-form notification sent by an operator.
	EventMessage EventType = "message"
)

// Event describes a change on the server.
type Event struct {
	Type   EventType `json:"type"`
	TaskID int64     `json:"taskId,omitempty"`
	Title  string    `json:"title,omitempty"`
	Body   string    `json:"body,omitempty"`
	At     int64     `json:"at"`
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Broker publishes events and hands them out to subscribers.
type Broker interface {
	Publisher
	// Subscribe returns a channel of events and a function that ends the
	// subscription and closes the channel.
	Subscribe() (<-chan Event, func())
}

const subscriberBuffer = 64

// Hub is an in-process Broker. Slow subscribers lose events rather than
// blocking publishers.
type Hub struct {
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[chan Event]struct{}),
	}
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("subscriber too slow, event dropped", zap.String("type", string(ev.Type)))
		}
	}
	return nil
}

func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
