package middleware

import (
	"fmt"

	"minisocial/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware opens a server span per request and exposes its trace id
// in the X-Trace-ID response header.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		carrier := propagation.HeaderCarrier{}
		for k, v := range c.GetReqHeaders() {
			carrier[k] = v
		}
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)

		ctx, span := observability.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.url", c.OriginalURL()),
				attribute.String("http.client_ip", c.IP()),
				attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		c.Set("X-Trace-ID", traceID)
		if rid := c.Locals("requestid"); rid != nil {
			span.SetAttributes(attribute.String("request.id", fmt.Sprintf("%v", rid)))
		}

		c.SetUserContext(ctx)
		err := c.Next()

		// Route is only resolved once the handler chain ran.
		span.SetName(c.Method() + " " + c.Route().Path)
		status := c.Response().StatusCode()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if uid, ok := c.Locals("userID").(uint); ok {
			span.SetAttributes(attribute.Int64("user.id", int64(uid)))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}

		return err
	}
}
