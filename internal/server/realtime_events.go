package server

import (
	"context"
	"log/slog"

	"minisocial/internal/middleware"
)

// publishFeedEvent broadcasts to every feed socket. Delivery is fire-and-forget:
// failures are logged and never fail the request that caused them.
func (s *Server) publishFeedEvent(ctx context.Context, event string, payload any) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(ctx, event, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "feed broadcast failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
