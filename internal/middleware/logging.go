// Package middleware provides the fiber middleware stack: logging, tracing,
// metrics, rate limiting and token parsing.
package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the global structured logger instance used throughout the application.
var Logger *slog.Logger

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// ctxHandler is a slog.Handler that adds context values to the log record.
type ctxHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing it to the underlying handler.
func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if rid, ok := ctx.Value(RequestIDKey).(string); ok {
		r.AddAttrs(slog.String("request_id", rid))
	}
	if uid, ok := ctx.Value(UserIDKey).(uint); ok {
		r.AddAttrs(slog.Any("user_id", uid))
	}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok {
		r.AddAttrs(slog.String("trace_id", tid))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func init() {
	Logger = NewLogger(os.Stdout, os.Getenv("APP_ENV"))
}

// NewLogger builds the context-aware logger: JSON in production, text elsewhere.
func NewLogger(w io.Writer, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	switch strings.ToLower(env) {
	case "production", "prod":
		handler = slog.NewJSONHandler(w, opts)
	case "test":
		opts.Level = slog.LevelWarn
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(&ctxHandler{handler})
}

// ContextMiddleware copies the request id, user id and trace id from fiber
// locals into the request context so deeper layers log them.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(withLocals(c))
		return c.Next()
	}
}

func withLocals(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()

	if rid, ok := c.Locals("requestid").(string); ok {
		ctx = context.WithValue(ctx, RequestIDKey, rid)
	}
	if uid, ok := c.Locals("userID").(uint); ok {
		ctx = context.WithValue(ctx, UserIDKey, uid)
	}
	if tid, ok := c.Locals("traceID").(string); ok {
		ctx = context.WithValue(ctx, TraceIDKey, tid)
	}
	return ctx
}

// StructuredLogger returns a Fiber middleware for logging requests using slog
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		path := c.Path()
		if strings.HasPrefix(path, "/health") || path == "/metrics" {
			return err
		}

		fields := []any{
			slog.Int("status", c.Response().StatusCode()),
			slog.String("method", c.Method()),
			slog.String("path", path),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get("User-Agent")),
		}

		// Auth runs after this middleware registered, so refresh the context for user_id.
		ctx := withLocals(c)
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			Logger.ErrorContext(ctx, "request failed", fields...)
		} else {
			Logger.InfoContext(ctx, "request processed", fields...)
		}

		return err
	}
}
