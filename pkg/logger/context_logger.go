package logger

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	meetingIDKey ctxKey = "meeting_id"
)

// WithRequestID stores the request id for later log enrichment.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithMeetingID stores the meeting a request is operating on.
func WithMeetingID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, meetingIDKey, id)
}

// ContextLogger enriches log entries with the request id, meeting id and
// trace id carried by a request context.
type ContextLogger struct {
	logger *zap.Logger
}

func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{
		logger: logger,
	}
}

// WithContext returns the base logger with the fields found in ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.Logger {
	var fields []zapcore.Field

	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctx.Value(meetingIDKey).(string); ok && id != "" {
		fields = append(fields, zap.String("meeting_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}

	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// RequestLog is one completed HTTP request.
type RequestLog struct {
	Method   string
	Route    string
	Status   int
	Duration time.Duration
	ClientIP string
}

// LogRequest writes the access log line for r. Server errors are logged at
// error level, client errors at warn.
func (cl *ContextLogger) LogRequest(ctx context.Context, r RequestLog) {
	fields := []zapcore.Field{
		zap.String("method", r.Method),
		zap.String("route", r.Route),
		zap.Int("status", r.Status),
		zap.Duration("duration", r.Duration),
		zap.String("client_ip", r.ClientIP),
	}

	log := cl.WithContext(ctx)
	switch {
	case r.Status >= 500:
		log.Error("request completed", fields...)
	case r.Status >= 400:
		log.Warn("request completed", fields...)
	default:
		log.Info("request completed", fields...)
	}
}
