package trace

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"familybudget/internal/log"
)

type requestIDKey struct{}

const (
	// HeaderRequestID carries the request ID in both directions.
	HeaderRequestID = "X-Request-ID"

	requestIDPrefix = "req_"
	maxInboundIDLen = 64
)

// Middleware assigns every request an ID, scopes a logger to it and logs
// the request boundaries.
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.Logger
	events    *log.StructuredLogger

	total      atomic.Int64
	inFlight   atomic.Int64
	serverErrs atomic.Int64
	totalMicro atomic.Int64
}

// Metrics is a snapshot of the middleware counters.
type Metrics struct {
	TotalRequests       int64
	InFlight            int64
	ServerErrors        int64
	AverageResponseTime time.Duration
}

func NewMiddleware(extractIP func(*http.Request) string, logger *log.Logger) *Middleware {
	l := logger.WithComponent(log.ComponentTrace)
	return &Middleware{
		extractIP: extractIP,
		logger:    l,
		events:    log.NewStructuredLogger(l),
	}
}

// Middleware keeps a well-formed inbound X-Request-ID and generates one
// otherwise. The ID is echoed on the response.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.total.Add(1)
		m.inFlight.Add(1)
		defer m.inFlight.Add(-1)

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(HeaderRequestID)
		if !validInboundID(requestID) {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = log.NewContext(ctx, m.logger.With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		m.events.LogHTTPStart(ctx, r, clientIP)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		m.totalMicro.Add(elapsed.Microseconds())
		if rw.status >= http.StatusInternalServerError {
			m.serverErrs.Add(1)
		}
		m.events.LogHTTPEnd(ctx, r, rw.status, elapsed.Milliseconds(), clientIP)
	})
}

// validInboundID accepts short IDs made of URL-safe characters only, so a
// client cannot inject arbitrary text into log lines.
func validInboundID(id string) bool {
	if id == "" || len(id) > maxInboundIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// GenerateRequestID returns "req_" followed by a 21 character nanoid.
func GenerateRequestID() string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("%s%d", requestIDPrefix, time.Now().UnixNano())
	}
	return requestIDPrefix + id
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (m *Middleware) GetMetrics() Metrics {
	total := m.total.Load()
	var avg time.Duration
	if total > 0 {
		avg = time.Duration(m.totalMicro.Load()/total) * time.Microsecond
	}
	return Metrics{
		TotalRequests:       total,
		InFlight:            m.inFlight.Load(),
		ServerErrors:        m.serverErrs.Load(),
		AverageResponseTime: avg,
	}
}
