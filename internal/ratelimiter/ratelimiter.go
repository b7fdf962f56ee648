package ratelimiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides request rate limiting using the token bucket algorithm.
//
// This implementation wraps golang.org/x/time/rate:
//  1. Tokens are added to the bucket at a constant rate (requests per second)
//  2. Each request consumes one token from the bucket
//  3. If the bucket is empty, the request is rejected
//  4. Burst capacity allows temporary spikes above the sustained rate
//
// With per-client limiting enabled, every client address gets its own
// bucket. Buckets idle for longer than the eviction window are dropped.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int

	global *rate.Limiter

	perClient bool
	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
	idleAfter time.Duration
	now       func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// DefaultIdleEviction is how long an idle client bucket is kept.
const DefaultIdleEviction = 10 * time.Minute

// New creates a new RateLimiter with the specified rate and burst capacity.
//
// Parameters:
//   - requestsPerSecond: Maximum sustained rate (tokens added per second)
//   - burst: Maximum burst size (bucket capacity in tokens)
//   - perClient: One bucket per client address instead of a shared one
//
// Special cases:
//   - requestsPerSecond = 0: No rate limiting (unlimited)
//   - burst = 0: defaults to requestsPerSecond
func New(requestsPerSecond, burst uint, perClient bool) *RateLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond == 0 {
		limit = rate.Inf
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	r := &RateLimiter{
		limit:     limit,
		burst:     int(burst),
		perClient: perClient,
		idleAfter: DefaultIdleEviction,
		now:       time.Now,
	}
	if perClient {
		r.clients = make(map[string]*client)
	} else {
		r.global = rate.NewLimiter(limit, int(burst))
	}
	return r
}

// Unlimited reports whether the limiter never rejects.
func (r *RateLimiter) Unlimited() bool {
	return r.limit == rate.Inf
}

// Allow checks if a request from key is allowed under the current rate
// limit, consuming a token if so. key is ignored for a shared limiter.
func (r *RateLimiter) Allow(key string) bool {
	if r.Unlimited() {
		return true
	}
	if !r.perClient {
		return r.global.Allow()
	}
	return r.clientLimiter(key).Allow()
}

func (r *RateLimiter) clientLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) > r.idleAfter {
		for k, c := range r.clients {
			if now.Sub(c.lastSeen) > r.idleAfter {
				delete(r.clients, k)
			}
		}
		r.lastSweep = now
	}

	c, ok := r.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Clients returns the number of tracked client buckets.
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// ClientKey returns the address used to bucket r: the host part of
// RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit by calling reject instead of
// next. A nil or unlimited limiter returns next unchanged.
func Middleware(limiter *RateLimiter, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limiter.Unlimited() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientKey(r)) {
				w.Header().Set("Retry-After", "1")
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
