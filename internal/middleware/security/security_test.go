package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/budgets", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestClientIP(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name, remote, xff, xri, want string
	}{
		{"direct", "203.0.113.7:4000", "", "", "203.0.113.7"},
		{"untrusted forwarder ignored", "203.0.113.7:4000", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy xff", "10.1.2.3:80", "198.51.100.1, 10.1.2.3", "", "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:80", "", "198.51.100.2", "198.51.100.2"},
		{"bad xff falls back", "10.1.2.3:80", "garbage", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, d.ClientIP(r))
		})
	}
}

func TestIsSuspicious(t *testing.T) {
	d := NewDetector()

	assert.False(t, d.IsSuspicious(httptest.NewRequest(http.MethodGet, "/api/v1/budget-items?search=rent", nil)))
	assert.True(t, d.IsSuspicious(httptest.NewRequest(http.MethodGet, "/.env", nil)))
	assert.True(t, d.IsSuspicious(httptest.NewRequest(http.MethodGet, "/api?file=../../secret", nil)))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "sqlmap/1.7")
	assert.True(t, d.IsSuspicious(r))

	require.NoError(t, d.AddTrustedProxy("100.64.0.0/10"))
	assert.Error(t, d.AddTrustedProxy("nope"))
	assert.Equal(t, int64(3), d.GetMetrics().SuspiciousRequests)
}
