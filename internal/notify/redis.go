package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis channel task events travel on.
const DefaultChannel = "tasks"

// RedisBroker relays events through Redis pub/sub so every server instance
// sees the changes made on the others. Local subscribers are served by an
// embedded Hub fed from the Redis subscription.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger

	wg     sync.WaitGroup
	pubsub *redis.PubSub
}

func NewRedisBroker(client *redis.Client, channel string, logger *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		hub:     NewHub(logger),
		logger:  logger,
	}
}

// Start subscribes to the channel and forwards messages to local
// subscribers until ctx is done or Close is called.
func (b *RedisBroker) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription to be confirmed so no event published
	// after Start returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.pubsub = pubsub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("malformed event on redis channel", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			b.hub.Publish(ctx, ev)
		}
	}()

	b.logger.Info("relaying task events through redis", zap.String("channel", b.channel))
	return nil
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe() (<-chan Event, func()) {
	return b.hub.Subscribe()
}

// Close ends the Redis subscription and waits for the relay to stop.
func (b *RedisBroker) Close() error {
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
