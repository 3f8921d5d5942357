package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serveLogged(t *testing.T, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	rec := httptest.NewRecorder()
	RequestLogger(zap.New(core))(h).ServeHTTP(rec, req)
	return rec, logs
}

func TestRequestLogger_LogsRequests(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/logical-fks/p/staleness", nil)
	rec, logs := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "HTTP request", entry.Message)
	assert.Equal(t, zapcore.DebugLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, int64(http.StatusOK), ctx["status"])
	assert.Equal(t, int64(11), ctx["bytes"])
	assert.Equal(t, "/api/logical-fks/p/staleness", ctx["path"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), ctx["request_id"])
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")

	rec, logs := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {}, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", logs.All()[0].ContextMap()["request_id"])
}

func TestRequestLogger_ServerErrorsLogAtWarn(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/logical-fks/p/detect", nil)
	_, logs := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, req)

	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "HTTP request failed", entry.Message)
}

func TestRequestLogger_NilLogger_PassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestLogger_FirstStatusWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec, logs := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.WriteHeader(http.StatusInternalServerError)
	}, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(http.StatusBadRequest), logs.All()[0].ContextMap()["status"])
}

func TestResponseWriter_WriteImpliesOK(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.True(t, rw.headerWritten)
	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, 5, rw.bytes)
}
