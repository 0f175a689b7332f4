package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"minisocial/internal/observability"
)

// Feed event names.
const (
	EventNewPost     = "new-post"
	EventPostUpdated = "post-updated"
	EventPostDeleted = "post-deleted"
)

// Broadcaster emits a named event to every connected feed client.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) error
}

// Envelope is the wire form of a feed event.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// FeedBroadcaster publishes through redis when a notifier is available and
// delivers straight to the local hub otherwise.
type FeedBroadcaster struct {
	hub      *Hub
	notifier *Notifier
}

// NewFeedBroadcaster builds a broadcaster over hub. notifier may be nil.
func NewFeedBroadcaster(hub *Hub, notifier *Notifier) *FeedBroadcaster {
	return &FeedBroadcaster{hub: hub, notifier: notifier}
}

// Broadcast encodes the event once and fans it out. A failed publish falls
// back to the local hub and is reported to the caller.
func (b *FeedBroadcaster) Broadcast(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(Envelope{Type: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	if b.notifier.Enabled() {
		perr := b.notifier.PublishFeed(ctx, data)
		if perr == nil {
			observability.BroadcastEvents.WithLabelValues(event, "redis").Inc()
			return nil
		}
		observability.GlobalLogger.WarnContext(ctx, "feed publish failed, delivering locally",
			slog.String("event", event), slog.String("error", perr.Error()))
		b.deliverLocal(event, data)
		return fmt.Errorf("publish %s event: %w", event, perr)
	}

	b.deliverLocal(event, data)
	return nil
}

func (b *FeedBroadcaster) deliverLocal(event string, data []byte) {
	if b.hub == nil {
		return
	}
	b.hub.BroadcastAll(data)
	observability.BroadcastEvents.WithLabelValues(event, "local").Inc()
}
