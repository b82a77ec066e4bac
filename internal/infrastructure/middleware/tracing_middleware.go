package middleware

import (
	"net/http"

	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

const HeaderTraceID = "X-Trace-ID"

// TracingMiddleware opens a server span per request, continuing any trace
// the caller propagated, and echoes the trace id in X-Trace-ID.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		parent := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracing.TraceHTTPRequest(parent, c.Request.Method, route)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Header(HeaderTraceID, sc.TraceID().String())
		}
		span.SetAttributes(
			attribute.String("http.client_ip", c.ClientIP()),
			attribute.String("request.id", RequestIDFrom(c)),
		)

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, c.Errors.String())
		}
	}
}
