package testutil

import (
	"context"
	"sync"
)

// BroadcastEvent is one call recorded by RecordingBroadcaster.
type BroadcastEvent struct {
	Event   string
	Payload any
}

// RecordingBroadcaster captures broadcasts instead of delivering them. Err,
// when set, is returned from every Broadcast after recording.
type RecordingBroadcaster struct {
	mu     sync.Mutex
	events []BroadcastEvent
	Err    error
}

func (b *RecordingBroadcaster) Broadcast(_ context.Context, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, BroadcastEvent{Event: event, Payload: payload})
	return b.Err
}

// Events returns a copy of everything broadcast so far.
func (b *RecordingBroadcaster) Events() []BroadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BroadcastEvent(nil), b.events...)
}
