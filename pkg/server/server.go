package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/adapter"
	"github.com/marmos91/dittofm/pkg/registry"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve already called")

// stopTimeout bounds the Stop() calls issued during shutdown.
const stopTimeout = 30 * time.Second

// DittoServer manages the lifecycle of protocol adapters that expose a
// shared storage registry.
//
// Lifecycle:
//  1. Creation: New() with a sealed registry
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown of all adapters
//
// Thread safety:
// DittoServer is safe for concurrent use. Serve() may only be called once;
// AddAdapter() fails once Serve() has been called.
//
// Example usage:
//
//	srv := server.New(reg)
//	if err := srv.AddAdapter(httpAdapter); err != nil {
//	    return err
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	if err := srv.Serve(ctx); err != nil {
//	    return err
//	}
type DittoServer struct {
	// registry is the storage registry shared by all adapters
	registry *registry.Registry

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// mu protects adapters and served
	mu     sync.RWMutex
	served bool
}

// New creates a DittoServer serving the storages of reg.
//
// Panics if reg is nil (programmer error).
func New(reg *registry.Registry) *DittoServer {
	if reg == nil {
		panic("registry cannot be nil")
	}
	return &DittoServer{
		registry: reg,
		adapters: make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter injects the registry into a and registers it.
//
// Returns an error if Serve() was already called, if an adapter for the
// same protocol is registered, or if both adapters want the same fixed port.
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// On either event every adapter receives Stop() in reverse registration
// order, and Serve waits for all of them to return.
//
// Returns:
//   - nil after a graceful shutdown triggered by ctx
//   - the first adapter error if an adapter failed
//   - an error if no adapter is registered or Serve was already called
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting DittoServer with %d adapter(s) and %d storage(s)", len(adapters), s.registry.CountStorages())

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(ctx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
			case ctx.Err() != nil:
				logger.Debug("%s adapter stopped: %v", protocol, err)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed - initiating shutdown of all adapters", adapterErr.protocol)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}
	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("DittoServer stopped")
	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters calls Stop() on every adapter in reverse registration
// order, logging failures and carrying on.
func (s *DittoServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Registry returns the shared storage registry.
func (s *DittoServer) Registry() *registry.Registry {
	return s.registry
}
