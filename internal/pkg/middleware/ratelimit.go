package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/hash"
)

// APIKeyHeader identifies a caller independently of its address.
const APIKeyHeader = "X-Api-Key"

// visitor is the bucket and last activity of one client.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter gives every client its own token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*visitor
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	idle     time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the refill rate of each client's bucket.
	RequestsPerSecond float64
	// Burst is the bucket size.
	Burst int
	// CleanupInterval is how often idle clients are swept.
	CleanupInterval time.Duration
	// IdleTimeout is how long a client may stay silent before it is forgotten.
	IdleTimeout time.Duration
}

// DefaultRateLimiterConfig returns the server defaults. Each answer fans
// out into several upstream calls, so the per-client budget is small.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		CleanupInterval:   time.Minute,
		IdleTimeout:       5 * time.Minute,
	}
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop. Call
// Stop to end the loop.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	rl := &RateLimiter{
		clients: make(map[string]*visitor),
		rate:    rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		cleanup: cfg.CleanupInterval,
		idle:    cfg.IdleTimeout,
		done:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) visit(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.clients[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := now.Add(-rl.idle)
	for key, v := range rl.clients {
		if v.lastSeen.Before(threshold) {
			delete(rl.clients, key)
		}
	}
}

// Stop ends the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Allow reports whether client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.visit(client, time.Now()).Allow()
}

// retryAfter is how long client must wait for its next token, rounded up
// to whole seconds.
func (rl *RateLimiter) retryAfter(client string) int {
	lim := rl.visit(client, time.Now())
	r := lim.Reserve()
	if !r.OK() {
		return 1
	}
	delay := r.Delay()
	r.Cancel()
	return max(1, int(math.Ceil(delay.Seconds())))
}

// Middleware rejects requests over the client's budget with 429 and a
// Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		if !rl.Allow(client) {
			wait := rl.retryAfter(client)
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			apperrors.WriteErrorWithStatus(w, http.StatusTooManyRequests, apperrors.RateLimitedError(wait))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey buckets callers by API key when one is sent, else by address.
// Keys are hashed so they never sit in memory in clear.
func clientKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return "key:" + hash.SHA256Short([]byte(key), 16)
	}
	return "ip:" + getClientIP(r)
}

// getClientIP returns the first forwarded address, then X-Real-IP, then
// the host part of RemoteAddr.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
