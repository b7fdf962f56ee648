package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew verifies rate limiter creation with different parameters.
func TestNew(t *testing.T) {
	tests := []struct {
		name              string
		requestsPerSecond uint
		burst             uint
		perClient         bool
		unlimited         bool
	}{
		{name: "standard rate", requestsPerSecond: 100, burst: 200},
		{name: "per client", requestsPerSecond: 10, burst: 20, perClient: true},
		{name: "burst defaults to rate", requestsPerSecond: 5},
		{name: "unlimited (zero rate)", unlimited: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.requestsPerSecond, tt.burst, tt.perClient)
			require.NotNil(t, limiter)
			assert.Equal(t, tt.unlimited, limiter.Unlimited())
		})
	}
}

// TestAllow verifies that Allow() correctly enforces rate limits.
func TestAllow(t *testing.T) {
	// 10 req/s, burst of 10
	limiter := New(10, 10, false)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(""), "request %d should be allowed (within burst)", i)
	}
	assert.False(t, limiter.Allow(""), "request should be rate-limited after burst exhausted")

	// 100ms at 10 req/s is one token
	time.Sleep(110 * time.Millisecond)
	assert.True(t, limiter.Allow(""), "request should be allowed after token replenishment")
}

func TestAllow_Unlimited(t *testing.T) {
	limiter := New(0, 0, false)
	for i := 0; i < 10_000; i++ {
		require.True(t, limiter.Allow(""))
	}
}

func TestAllow_PerClient(t *testing.T) {
	limiter := New(1, 2, true)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	// Another client has its own bucket.
	assert.True(t, limiter.Allow("10.0.0.2"))
	assert.Equal(t, 2, limiter.Clients())
}

func TestAllow_EvictsIdleClients(t *testing.T) {
	limiter := New(1, 1, true)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	limiter.Allow("b")
	require.Equal(t, 2, limiter.Clients())

	now = now.Add(DefaultIdleEviction + time.Second)
	limiter.Allow("c")
	assert.Equal(t, 1, limiter.Clients())
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	assert.Equal(t, "192.0.2.7", ClientKey(r))

	r.RemoteAddr = "not-an-address"
	assert.Equal(t, "not-an-address", ClientKey(r))
}

func TestMiddleware(t *testing.T) {
	rejected := 0
	reject := func(w http.ResponseWriter, r *http.Request) {
		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	h := Middleware(New(1, 1, false), reject)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, rejected)
}

func TestMiddleware_Disabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	reject := func(w http.ResponseWriter, r *http.Request) { t.Fatal("unexpected rejection") }

	h := Middleware(nil, reject)(ok)
	assert.NotNil(t, h)

	h = Middleware(New(0, 0, false), reject)(ok)
	for i := 0; i < 100; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
}
