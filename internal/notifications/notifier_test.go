package notifications

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishFeed(context.Background(), []byte("payload")))
	assert.NoError(t, n.StartFeedSubscriber(context.Background(), func(string) {
		t.Fatal("no messages expected")
	}))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}

func TestNotifier_PublishReachesSubscriber(t *testing.T) {
	_, rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payloads := make(chan string, 1)
	require.NoError(t, n.StartFeedSubscriber(ctx, func(p string) { payloads <- p }))
	require.NoError(t, n.PublishFeed(ctx, []byte(`{"type":"post-deleted","payload":"abc"}`)))

	select {
	case p := <-payloads:
		assert.JSONEq(t, `{"type":"post-deleted","payload":"abc"}`, p)
	case <-ctx.Done():
		t.Fatal("context ended before delivery")
	case <-timeAfter():
		t.Fatal("payload never delivered")
	}
}

func TestNotifier_SubscriberSurvivesPanics(t *testing.T) {
	_, rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan string, 2)
	require.NoError(t, n.StartFeedSubscriber(ctx, func(p string) {
		seen <- p
		if p == "boom" {
			panic("handler failed")
		}
	}))

	require.NoError(t, n.PublishFeed(ctx, []byte("boom")))
	require.NoError(t, n.PublishFeed(ctx, []byte("after")))

	assert.Equal(t, "boom", waitFor(t, seen))
	assert.Equal(t, "after", waitFor(t, seen))
}

func TestNotifier_SubscribeFailsWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	err := NewNotifier(rdb).StartFeedSubscriber(context.Background(), func(string) {})
	assert.Error(t, err)
}
