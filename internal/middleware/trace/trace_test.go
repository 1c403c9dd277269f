package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familybudget/internal/log"
)

func TestMiddlewareGeneratesRequestID(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, log.Discard())

	var seen string
	var ctxLogger *log.Logger
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		ctxLogger = log.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/budget-items", nil))

	require.True(t, strings.HasPrefix(seen, "req_"))
	assert.Len(t, strings.TrimPrefix(seen, "req_"), 21)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, log.ComponentTrace, ctxLogger.Component())
	assert.Equal(t, int64(1), m.GetMetrics().TotalRequests)
}

func TestMiddlewareKeepsInboundRequestID(t *testing.T) {
	m := NewMiddleware(nil, log.Discard())
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.True(t, strings.HasPrefix(rec.Header().Get(HeaderRequestID), "req_"))
}

func TestGenerateRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := GenerateRequestID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestMiddlewareRejectsUnsafeInboundID(t *testing.T) {
	m := NewMiddleware(nil, log.Discard())
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc\nlevel=ERROR")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, strings.HasPrefix(rec.Header().Get(HeaderRequestID), "req_"))
}

func TestMetricsCountServerErrors(t *testing.T) {
	m := NewMiddleware(nil, log.Discard())
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))

	for _, path := range []string{"/ok", "/boom", "/ok"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := m.GetMetrics()
	assert.Equal(t, int64(3), got.TotalRequests)
	assert.Equal(t, int64(1), got.ServerErrors)
	assert.Equal(t, int64(0), got.InFlight)
}
