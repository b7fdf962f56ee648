package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StorageSource is the part of the storage registry the metrics server
// reports on.
type StorageSource interface {
	ListStorages() []string
	DefaultStorage() string
	Sealed() bool
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Host to bind to. Empty binds all interfaces.
	Host string

	// Port to listen on. Zero picks an ephemeral port.
	Port int
}

// Server is the operator-facing HTTP listener, separate from the file
// manager API:
//   - GET /metrics: Prometheus exposition (503 while metrics are disabled)
//   - GET /readyz: storage readiness, 503 until the registry is sealed
type Server struct {
	addr   string
	server *http.Server

	mu       sync.RWMutex
	storages StorageSource
	port     int

	ready        chan struct{}
	shutdownOnce sync.Once
}

type readiness struct {
	Status         string   `json:"status"`
	DefaultStorage string   `json:"default_storage,omitempty"`
	Storages       []string `json:"storages"`
}

// NewServer creates a stopped metrics server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	s := &Server{
		addr:  net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		port:  config.Port,
		ready: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /readyz", s.serveReady)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func metricsHandler() http.Handler {
	if reg := GetRegistry(); reg != nil {
		return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
	})
}

// SetStorages attaches the storage registry reported by /readyz.
func (s *Server) SetStorages(src StorageSource) {
	s.mu.Lock()
	s.storages = src
	s.mu.Unlock()
}

func (s *Server) serveReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	src := s.storages
	s.mu.RUnlock()

	body := readiness{Status: "starting", Storages: []string{}}
	status := http.StatusServiceUnavailable
	if src != nil && src.Sealed() {
		body.Status = "ok"
		body.DefaultStorage = src.DefaultStorage()
		body.Storages = src.ListStorages()
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start binds the listener and serves until ctx is cancelled, then shuts
// down gracefully. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		s.mu.Lock()
		s.port = tcp.Port
		s.mu.Unlock()
	}
	close(s.ready)
	logger.Info("Metrics server listening on %s", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		// ctx is already done; shutdown needs a fresh deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the bound port once Ready is closed, the configured one
// before that.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}
