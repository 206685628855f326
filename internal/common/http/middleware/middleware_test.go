package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"autograde/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDContextKey))
	})
	return r
}

func TestRequestIDKeepsIncomingHeader(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-1")
	newRouter().ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "req-1" {
		t.Fatalf("header = %q, want req-1", got)
	}
	if w.Body.String() != "req-1" {
		t.Fatalf("context request id = %q", w.Body.String())
	}
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if got := w.Header().Get(requestIDHeader); got == "" || got != w.Body.String() {
		t.Fatalf("generated id mismatch: header %q body %q", got, w.Body.String())
	}
}

func TestRequestLoggerLogsRoute(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.SetLogger(logger.NewFromCore(core))
	defer logger.SetLogger(prev)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-2")
	newRouter().ServeHTTP(w, req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/ping" || fields["request_id"] != "req-2" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Fatalf("unexpected status field %v", fields["status"])
	}
}
