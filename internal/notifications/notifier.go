package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"minisocial/internal/observability"

	"github.com/redis/go-redis/v9"
)

// FeedChannel is the redis channel every instance's hub listens on.
const FeedChannel = "feed:broadcast"

// Notifier publishes feed events into redis so every instance can fan them out.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether the notifier has a redis client behind it.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishFeed sends an encoded event to all instances.
func (n *Notifier) PublishFeed(ctx context.Context, payload []byte) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, FeedChannel, payload).Err()
}

// StartFeedSubscriber subscribes to FeedChannel and calls onMessage for each
// payload until ctx is cancelled. It returns once the subscription is live.
func (n *Notifier) StartFeedSubscriber(ctx context.Context, onMessage func(payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, FeedChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", FeedChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("panic in feed subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Payload)
				}()
			}
		}
	}()

	return nil
}
