// Package ratelimit throttles requests per client key with token buckets
// from golang.org/x/time/rate.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const day = 24 * time.Hour

// Limiter provides rate limiting functionality
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	hits         int64

	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
	idleTTL         time.Duration
	now             func() time.Time
}

type clientInfo struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerDay  int
	Burst           int
	CleanupInterval time.Duration
	// IdleTTL drops a client's bucket after this long without requests.
	IdleTTL time.Duration
}

// DefaultConfig allows 1000 requests a day per client.
func DefaultConfig() Config {
	return Config{
		RequestsPerDay:  1000,
		Burst:           100,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         day,
	}
}

// NewLimiter creates a new rate limiter
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerDay <= 0 {
		config.RequestsPerDay = def.RequestsPerDay
	}
	if config.Burst <= 0 {
		config.Burst = min(def.Burst, config.RequestsPerDay)
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}

	rl := &Limiter{
		clients:         make(map[string]*clientInfo),
		stopCleanup:     make(chan struct{}),
		limit:           rate.Every(day / time.Duration(config.RequestsPerDay)),
		burst:           config.Burst,
		cleanupInterval: config.CleanupInterval,
		idleTTL:         config.IdleTTL,
		now:             time.Now,
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a request for key may proceed now.
func (rl *Limiter) Allow(key string) bool {
	ok, _ := rl.reserve(key)
	return ok
}

// reserve takes a token for key. When none is left it returns the time
// until the next one.
func (rl *Limiter) reserve(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	client, exists := rl.clients[key]
	if !exists {
		client = &clientInfo{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = now
	rl.mu.Unlock()

	r := client.limiter.ReserveN(now, 1)
	if !r.OK() {
		atomic.AddInt64(&rl.hits, 1)
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		atomic.AddInt64(&rl.hits, 1)
		return false, delay
	}
	return true, 0
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes clients idle for longer than idleTTL. A
// dropped client starts again with a full bucket.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	for key, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

// GetMetrics returns current rate limiting metrics
func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   atomic.LoadInt64(&rl.hits),
		ClientCount: int64(rl.ActiveClients()),
	}
}

// Middleware creates HTTP middleware for rate limiting. extractKey picks
// the client key, usually its IP. onLimit writes the rejection; when nil a
// plain 429 is sent. Retry-After is set before onLimit runs.
func (rl *Limiter) Middleware(extractKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, delay := rl.reserve(extractKey(r))
			if !ok {
				retry := max(1, int(delay.Round(time.Second)/time.Second))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
