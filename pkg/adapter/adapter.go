package adapter

import (
	"context"

	"github.com/marmos91/dittofm/pkg/registry"
)

// Adapter is a protocol front end that can be managed by the server.
//
// Each adapter exposes the storages of a shared registry over one protocol
// and provides a uniform lifecycle.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Registry injection: SetRegistry() provides the storages
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetRegistry() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must stop accepting requests, let
	// in-flight ones finish within the shutdown timeout and return nil.
	// If Serve returns before cancellation, the server treats it as fatal
	// and stops all other adapters.
	Serve(ctx context.Context) error

	// SetRegistry injects the sealed storage registry.
	//
	// Called exactly once by the server before Serve().
	SetRegistry(reg *registry.Registry)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must be idempotent and safe to call concurrently with
	// Serve(). ctx bounds the shutdown.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Port returns the TCP port the adapter is listening on, or the
	// configured port before Serve().
	Port() int
}
