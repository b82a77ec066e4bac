package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"

	requestIDKey = "request_id"
)

// RequestIDMiddleware propagates or assigns a request id and stores it in
// both the gin context and the request context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestIDMiddleware.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// HTTPMetrics receives one observation per request.
type HTTPMetrics interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// AccessLogMiddleware logs every request and feeds the request metrics.
// metrics may be nil.
func AccessLogMiddleware(log *logger.ContextLogger, metrics HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if metrics != nil {
			metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), duration)
		}

		log.LogRequest(c.Request.Context(), logger.RequestLog{
			Method:   c.Request.Method,
			Route:    route,
			Status:   c.Writer.Status(),
			Duration: duration,
			ClientIP: c.ClientIP(),
		})
	}
}

// BodyLimitMiddleware caps request bodies at maxBytes.
func BodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
