package middleware

import (
	"time"

	"roomcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TracingMiddleware opens a span per HTTP request and tags it with the room
// and session the request acts on, when known.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, c.FullPath())
		defer span.End()

		span.SetAttributes(
			attribute.String("http.host", c.Request.Host),
			attribute.String("http.remote_addr", c.ClientIP()),
		)
		if room := c.Param("name"); room != "" {
			span.SetAttributes(tracing.RoomNameKey.String(room))
		}

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		// session middleware has resolved the caller by now
		if session := SessionFromContext(c); session != nil && session.IsLoggedIn {
			span.SetAttributes(tracing.UserIDKey.Int64(session.UserID))
		}
		span.SetAttributes(
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
		)
		if c.Writer.Status() >= 400 {
			span.SetStatus(codes.Error, c.Errors.String())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}
