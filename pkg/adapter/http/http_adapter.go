// Package http serves the file manager API over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/internal/ratelimiter"
	"github.com/marmos91/dittofm/pkg/finder"
	"github.com/marmos91/dittofm/pkg/metrics"
	"github.com/marmos91/dittofm/pkg/registry"
)

// CodeTooManyRequests is the envelope code of rate-limited requests.
const CodeTooManyRequests = "TooManyRequests"

// HTTPAdapter implements adapter.Adapter for the file manager API.
//
// It owns the listener and the http.Server, and wraps the finder router
// in the middleware chain: request logging, CORS, rate limiting.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. http.Server.Shutdown stops accepting and waits for in-flight requests
//     (up to ShutdownTimeout)
//  3. Remaining connections are force-closed
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown runs at most once.
type HTTPAdapter struct {
	config   HTTPConfig
	registry *registry.Registry
	metrics  metrics.FinderMetrics
	limiter  *ratelimiter.RateLimiter

	server       *http.Server
	shutdownOnce sync.Once
	shutdownErr  error
	ready        chan struct{}

	// boundPort is the port actually bound, set once Serve listens
	boundPort atomic.Int32
}

// HTTPConfig holds configuration parameters for the HTTP server.
//
// Default values (applied by New if zero):
//   - Host: 127.0.0.1
//   - ReadHeaderTimeout: 10s
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - StreamIdleTimeout: 60s
//
// ReadTimeout and WriteTimeout are not exposed: uploads and downloads can
// legitimately take longer than any fixed bound, so streams are guarded by
// StreamIdleTimeout instead.
type HTTPConfig struct {
	// Host is the interface to bind. Use "0.0.0.0" or "::" for all
	// interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the TCP port to listen on. 0 picks a free port.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// ReadHeaderTimeout bounds reading request headers.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"min=0"`

	// IdleTimeout closes keep-alive connections idle for longer.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// StreamIdleTimeout aborts uploads and downloads that make no progress
	// for this long.
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout" yaml:"stream_idle_timeout" validate:"min=0"`

	// Finder configures the command router. Populated from the limits
	// section of the configuration.
	Finder finder.Config `mapstructure:"-" yaml:"-" jsonschema:"-"`

	// CORS configures cross-origin access.
	CORS CORSConfig `mapstructure:"-" yaml:"-" jsonschema:"-"`

	// RateLimit configures request rate limiting.
	RateLimit RateLimitConfig `mapstructure:"-" yaml:"-" jsonschema:"-"`
}

// RateLimitConfig configures the token bucket in front of the API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables rate limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the bucket capacity. 0 defaults to RequestsPerSecond.
	Burst uint `mapstructure:"burst" yaml:"burst"`

	// PerClient keeps one bucket per client address.
	PerClient bool `mapstructure:"per_client" yaml:"per_client"`
}

// DefaultHost keeps the API on loopback unless configured otherwise.
const DefaultHost = "127.0.0.1"

func (c *HTTPConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.StreamIdleTimeout == 0 {
		c.StreamIdleTimeout = 60 * time.Second
	}
}

func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadHeaderTimeout < 0 || c.IdleTimeout < 0 || c.StreamIdleTimeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// New creates an HTTP adapter. A nil m disables metrics.
//
// Returns an error if the configuration is invalid.
func New(config HTTPConfig, m metrics.FinderMetrics) (*HTTPAdapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid HTTP config: %w", err)
	}
	if config.Finder.StreamIdleTimeout == 0 {
		config.Finder.StreamIdleTimeout = config.StreamIdleTimeout
	}
	if m == nil {
		m = metrics.NewNoopFinderMetrics()
	}

	var limiter *ratelimiter.RateLimiter
	if rl := config.RateLimit; rl.RequestsPerSecond > 0 {
		limiter = ratelimiter.New(rl.RequestsPerSecond, rl.Burst, rl.PerClient)
		logger.Debug("HTTP rate limit: %d req/s, burst %d, per client: %t", rl.RequestsPerSecond, rl.Burst, rl.PerClient)
	}

	return &HTTPAdapter{
		config:  config,
		metrics: m,
		limiter: limiter,
		ready:   make(chan struct{}),
	}, nil
}

// SetRegistry injects the storage registry.
func (s *HTTPAdapter) SetRegistry(reg *registry.Registry) {
	s.registry = reg
	logger.Debug("HTTP adapter registry configured (%d storages)", reg.CountStorages())
}

// Handler builds the full handler: finder routes behind the middleware
// chain. SetRegistry must have been called.
func (s *HTTPAdapter) Handler() http.Handler {
	mux := http.NewServeMux()
	finder.New(s.registry, s.config.Finder, s.metrics).Routes(mux)

	var h http.Handler = mux
	h = ratelimiter.Middleware(s.limiter, s.reject)(h)
	h = corsMiddleware(s.config.CORS)(h)
	h = logger.Middleware(h)
	return h
}

func (s *HTTPAdapter) reject(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordRateLimited()
	finder.WriteError(w, http.StatusTooManyRequests, CodeTooManyRequests, "rate limit exceeded")
}

// Serve listens on the configured address and blocks until ctx is
// cancelled or the server fails.
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("HTTP adapter: registry not set")
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on %s: %w", addr, err)
	}
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcp.Port))
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	close(s.ready)

	logger.Info("HTTP server listening on %s", listener.Addr())
	logger.Debug("HTTP config: read_header_timeout=%v idle_timeout=%v stream_idle_timeout=%v max_upload=%d",
		s.config.ReadHeaderTimeout, s.config.IdleTimeout, s.config.StreamIdleTimeout, s.config.Finder.MaxUploadSize)

	go func() {
		<-ctx.Done()
		logger.Info("HTTP shutdown signal received: %v", ctx.Err())
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	err = s.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down; connections still open when ctx
// expires are force-closed.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	select {
	case <-s.ready:
	default:
		// Never started.
		return nil
	}

	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			logger.Warn("HTTP shutdown timeout exceeded: %v - forcing closure", err)
			_ = s.server.Close()
			s.shutdownErr = fmt.Errorf("HTTP shutdown: %w", err)
			return
		}
		logger.Info("HTTP graceful shutdown complete")
	})
	return s.shutdownErr
}

// Protocol returns "HTTP".
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}

// Port returns the bound port once serving, the configured port before.
func (s *HTTPAdapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Ready is closed once the listener is bound.
func (s *HTTPAdapter) Ready() <-chan struct{} {
	return s.ready
}
