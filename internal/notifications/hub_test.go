package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()

	a, err := hub.Register(AnonymousUser, nil)
	require.NoError(t, err)
	b, err := hub.Register(7, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.ClientCount())

	hub.UnregisterClient(a)
	hub.UnregisterClient(a)
	assert.Equal(t, 1, hub.ClientCount())

	hub.UnregisterClient(b)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_PerUserLimitSkipsAnonymous(t *testing.T) {
	hub := NewHub()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(3, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(3, nil)
	assert.ErrorIs(t, err, ErrUserLimit)

	for i := 0; i < maxConnsPerUser+5; i++ {
		_, err := hub.Register(AnonymousUser, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2*maxConnsPerUser+5, hub.ClientCount())
}

func TestHub_BroadcastAllReachesEveryClient(t *testing.T) {
	hub := NewHub()
	clients := make([]*Client, 0, 3)
	for _, uid := range []uint{AnonymousUser, 1, 1} {
		c, err := hub.Register(uid, nil)
		require.NoError(t, err)
		clients = append(clients, c)
	}

	hub.BroadcastAll([]byte(`{"type":"new-post"}`))

	for i, c := range clients {
		select {
		case msg := <-c.Send:
			assert.JSONEq(t, `{"type":"new-post"}`, string(msg), "client %d", i)
		default:
			t.Fatalf("client %d received nothing", i)
		}
	}
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	hub := NewHub()
	_, err := hub.Register(1, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.ClientCount())

	_, err = hub.Register(2, nil)
	assert.ErrorIs(t, err, ErrHubShuttered)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(1, nil)
	require.NoError(t, err)

	for i := 0; i < cap(c.Send)+10; i++ {
		c.TrySend([]byte("x"))
	}
	assert.Len(t, c.Send, cap(c.Send))
}

func TestClient_TrySendOnClosedChannelDoesNotPanic(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(1, nil)
	require.NoError(t, err)
	close(c.Send)

	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}
