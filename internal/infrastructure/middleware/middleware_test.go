package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/logger"
	apperrors "github.com/ulearning-intl/bigbluebutton-streaming/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_AppError(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.POST("/x", func(c *gin.Context) {
		_ = c.Error(apperrors.NewCapacityExceededError(5, 5))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	assert.Equal(t, "CAPACITY_EXCEEDED", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.NotNil(t, body["details"])
}

func TestErrorHandler_PlainErrorIs500(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode(t, w)["error"])
}

func TestRecovery_KeepsServing(t *testing.T) {
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("handler bug") })
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	var fromCtx string
	router.GET("/x", func(c *gin.Context) {
		fromCtx = logger.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, fromCtx)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "abc-123", fromCtx)
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeHTTPMetrics struct {
	got []recordedRequest
}

func (f *fakeHTTPMetrics) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.got = append(f.got, recordedRequest{method, route, status})
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := &fakeHTTPMetrics{}

	router := gin.New()
	router.Use(RequestIDMiddleware(), AccessLogMiddleware(logger.NewContextLogger(zap.New(core)), metrics))
	router.GET("/bot/streams", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bot/streams", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, []recordedRequest{
		{http.MethodGet, "/bot/streams", http.StatusOK},
		{http.MethodGet, "unmatched", http.StatusNotFound},
	}, metrics.got)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestBodyLimit(t *testing.T) {
	router := gin.New()
	router.Use(BodyLimitMiddleware(8))
	router.POST("/x", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString("short")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString("much longer than eight bytes")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func corsRouter(origins ...string) *gin.Engine {
	router := gin.New()
	router.Use(CORSMiddleware(origins))
	router.POST("/bot/start", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func corsRequest(router http.Handler, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/bot/start", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS_AllowedOrigin(t *testing.T) {
	router := corsRouter("https://bbb.example.com")

	w := corsRequest(router, http.MethodOptions, "https://bbb.example.com")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://bbb.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	// the library canonicalizes header names
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), strings.ToLower(HeaderRequestID))

	w = corsRequest(router, http.MethodPost, "https://bbb.example.com")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Expose-Headers")), strings.ToLower(HeaderRequestID))
}

func TestCORS_RefusesOtherOrigins(t *testing.T) {
	router := corsRouter("https://bbb.example.com")

	w := corsRequest(router, http.MethodOptions, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))

	w = corsRequest(router, http.MethodPost, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// non-browser callers send no Origin
	assert.Equal(t, http.StatusOK, corsRequest(router, http.MethodPost, "").Code)
}

func TestCORS_Wildcard(t *testing.T) {
	w := corsRequest(corsRouter("*"), http.MethodPost, "https://anywhere.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyListDisables(t *testing.T) {
	w := corsRequest(corsRouter(), http.MethodPost, "https://anywhere.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
