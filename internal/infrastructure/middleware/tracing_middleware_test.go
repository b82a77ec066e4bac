package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		_ = tp.Shutdown(t.Context())
	})
	return recorder
}

func TestTracingMiddleware_ContinuesCallerTrace(t *testing.T) {
	recorder := withRecorder(t)

	router := gin.New()
	router.Use(TracingMiddleware())
	router.GET("/bot/streams", func(c *gin.Context) { c.Status(http.StatusOK) })

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/bot/streams", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, traceID, w.Header().Get(HeaderTraceID))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "http.GET /bot/streams", spans[0].Name())
	assert.Equal(t, traceID, spans[0].SpanContext().TraceID().String())
}

func TestTracingMiddleware_MarksServerErrors(t *testing.T) {
	recorder := withRecorder(t)

	router := gin.New()
	router.Use(TracingMiddleware())
	router.GET("/ready", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
