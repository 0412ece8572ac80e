package adapter

import (
	"context"

	"github.com/marmos91/dittomx/pkg/auth"
	"github.com/marmos91/dittomx/pkg/registry"
)

// Backends holds the shared services every adapter serves connections
// against.
type Backends struct {
	// Registry answers Execute and listener requests. Required.
	Registry registry.Registry

	// Authenticator validates Logon requests. A nil authenticator rejects
	// every Logon.
	Authenticator auth.Authenticator

	// Observer is told about connections opening and closing. Optional.
	Observer ConnectionObserver
}

// ConnectionObserver receives connection lifecycle events.
//
// registry.ServerObject implements it to publish connection counters and
// notifications through the registry itself.
type ConnectionObserver interface {
	ConnectionOpened(connectionID, remoteAddr string)
	ConnectionClosed(connectionID string)
}

// Adapter represents a transport-specific server adapter that can be managed
// by DittoServer.
//
// Each adapter accepts client streams over one transport (raw TCP,
// WebSocket) and runs the DittoMX connection engine on each of them. All
// adapters share the same registry and authenticator.
//
// Lifecycle:
//  1. Creation: Adapter is created with transport-specific configuration
//  2. Backend injection: SetBackends() provides the shared services
//  3. Startup: Serve() starts the server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetBackends() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Stop active connections and wait for them (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, DittoServer treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetBackends injects the shared registry, authenticator and observer.
	//
	// Called exactly once by DittoServer before Serve().
	SetBackends(backends Backends)

	// Stop initiates graceful shutdown.
	//
	// Implementations must be idempotent, safe to call concurrently with
	// Serve() and must respect the context timeout.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable transport name for logging and
	// metrics, e.g. "MX" or "WebSocket".
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// Returns 0 if the adapter has not yet started.
	Port() int
}
