package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"minisocial/internal/middleware"
	"minisocial/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// EventConnected is sent to a socket once it is registered with the hub.
const EventConnected = "connected"

// FeedWebsocketHandler registers the connection with the feed hub and pumps
// events to it until the peer goes away. Anonymous connections are allowed.
func (s *Server) FeedWebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals("userID").(uint)

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("feed websocket rejected",
				slog.Uint64("user_id", uint64(uid)),
				slog.String("error", err.Error()),
			)
			msg, _ := json.Marshal(fiber.Map{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
			_ = conn.Close()
			return
		}

		hello, _ := json.Marshal(notifications.Envelope{
			Type:    EventConnected,
			Payload: fiber.Map{"user_id": uid, "clients": s.hub.ClientCount()},
		})
		client.TrySend(hello)

		go client.WritePump()
		client.ReadPump()
	})
}

// StartHubWiring subscribes the hub to redis. Start calls it; tests that
// serve the app themselves call it directly.
func (s *Server) StartHubWiring(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}
	return s.hub.StartWiring(ctx, s.notifier)
}
