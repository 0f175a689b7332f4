// Package notifications delivers feed events to connected websocket clients.
package notifications

import (
	"context"
	"errors"
	"sync"

	"minisocial/internal/middleware"
	"minisocial/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per authenticated user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// AnonymousUser is the user id anonymous feed viewers register under.
const AnonymousUser uint = 0

var (
	ErrServerFull   = errors.New("server connection limit reached")
	ErrUserLimit    = errors.New("user connection limit reached")
	ErrHubShuttered = errors.New("hub is shutting down")
)

// Hub tracks the feed sockets open on this instance, keyed by user id.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	closed     bool
	log        *observability.WSLogger
}

// NewHub creates an empty feed hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[uint]map[*Client]struct{}),
		log:   observability.NewWSLogger("feed"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "feed" }

// Register adds a connection for userID. Anonymous viewers share one bucket
// and are bounded only by the global cap.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubShuttered
	}
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if userID != AnonymousUser && len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserLimit
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	total := h.totalConns
	h.mu.Unlock()

	middleware.ActiveWebSockets.Inc()
	h.log.LogConnect(context.Background(), userID, total)
	return client, nil
}

// UnregisterClient removes client. Removing a client twice is a no-op.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		middleware.ActiveWebSockets.Dec()
		h.log.LogDisconnect(context.Background(), client.UserID, "closed")
	}
}

// ClientCount returns the number of registered sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// BroadcastAll queues message on every registered socket.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(message)
		}
	}
}

// StartWiring subscribes this hub to the feed channel so events published by
// any instance reach the local sockets.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartFeedSubscriber(ctx, func(payload string) {
		h.BroadcastAll([]byte(payload))
	})
}

// Shutdown closes every socket with CloseGoingAway and rejects new registrations.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	for userID, userConns := range conns {
		for client := range userConns {
			middleware.ActiveWebSockets.Dec()
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				h.log.LogError(ctx, userID, err, "close_message")
			}
			if err := client.Conn.Close(); err != nil {
				h.log.LogError(ctx, userID, err, "close")
			}
		}
	}
	return nil
}
