// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// GlobalLogger is the logger repository and websocket loggers write through.
// The server replaces it with the context-aware request logger at startup.
var GlobalLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetGlobalLogger swaps the logger used by RepoLogger and WSLogger.
func SetGlobalLogger(l *slog.Logger) {
	if l != nil {
		GlobalLogger = l
	}
}

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableRepoLogging bool
	EnableWSLogging   bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableRepoLogging: true,
	EnableWSLogging:   true,
}

// RepoLogger provides structured logging for repository mutations.
type RepoLogger struct {
	store      string
	collection string
}

// NewRepoLogger creates a RepoLogger for one collection (or table) of a store driver.
func NewRepoLogger(store, collection string) *RepoLogger {
	return &RepoLogger{store: store, collection: collection}
}

func (l *RepoLogger) log(ctx context.Context, op string, fields []slog.Attr) {
	if !Config.EnableRepoLogging {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields)+3)
	attrs = append(attrs,
		slog.String("store", l.store),
		slog.String("collection", l.collection),
		slog.String("operation", op),
	)
	attrs = append(attrs, fields...)
	GlobalLogger.LogAttrs(ctx, slog.LevelInfo, "repository "+op, attrs...)
}

// LogCreate logs a repository insert.
func (l *RepoLogger) LogCreate(ctx context.Context, fields ...slog.Attr) {
	l.log(ctx, "create", fields)
}

// LogUpdate logs an in-place update (edit, like toggle, comment append).
func (l *RepoLogger) LogUpdate(ctx context.Context, fields ...slog.Attr) {
	l.log(ctx, "update", fields)
}

// LogDelete logs a repository delete.
func (l *RepoLogger) LogDelete(ctx context.Context, fields ...slog.Attr) {
	l.log(ctx, "delete", fields)
}

// LogError logs a failed repository operation.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string) {
	if !Config.EnableRepoLogging || err == nil {
		return
	}
	GlobalLogger.ErrorContext(ctx, "repository error",
		slog.String("store", l.store),
		slog.String("collection", l.collection),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// WSLogger provides structured logging for WebSocket operations.
type WSLogger struct {
	hubName string
}

// NewWSLogger creates a new WSLogger for the given hub.
func NewWSLogger(hubName string) *WSLogger {
	return &WSLogger{hubName: hubName}
}

// LogConnect logs a WebSocket connection event. Anonymous viewers have userID 0.
func (l *WSLogger) LogConnect(ctx context.Context, userID uint, clients int) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hubName),
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("clients", clients),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID uint, reason string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hubName),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("reason", reason),
	)
}

// LogError logs a WebSocket error event.
func (l *WSLogger) LogError(ctx context.Context, userID uint, err error, eventType string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hubName),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}
