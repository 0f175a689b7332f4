package notifications

import (
	"context"
	"fmt"
	"time"

	"minisocial/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Feed viewers only send control frames; keep the read limit small.
	maxMessageSize = 4096

	sendBuffer = 256
)

var dropNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

// WSHub is what a Client needs from the hub that owns it.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is a middleman between one websocket connection and its hub.
type Client struct {
	Hub WSHub

	// The websocket connection. Nil in tests that only inspect Send.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// UserID is 0 for anonymous viewers.
	UserID uint
}

// NewClient creates a new Client instance
func NewClient(hub WSHub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
	}
}

// ReadPump drains frames until the peer goes away, then unregisters the
// client. The feed is one way so data frames are dropped; reading keeps the
// pong deadline moving.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.NewWSLogger(c.Hub.Name()).LogError(context.Background(), c.UserID, err, "read")
			}
			break
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues message without blocking. A full buffer drops the message
// and tries to tell the client so it can re-fetch the feed.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "full").Inc()
		observability.NewWSLogger(c.Hub.Name()).LogError(context.Background(), c.UserID,
			fmt.Errorf("send buffer full (%d)", cap(c.Send)), "backpressure")

		select {
		case c.Send <- dropNotice:
		default:
		}
	}
}
