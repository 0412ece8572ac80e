package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/metrics"
)

// DefaultStopTimeout bounds the Stop() calls issued during shutdown when
// no timeout is configured.
const DefaultStopTimeout = 30 * time.Second

// ErrAlreadyServed is returned by Serve when it is called more than once.
var ErrAlreadyServed = errors.New("server: Serve already called")

// DittoServer manages the lifecycle of multiple protocol adapters that share
// one registry and authenticator.
//
// Architecture:
// Each transport (raw TCP, WebSocket) is an Adapter running the same
// connection engine. All adapters share the same Backends, so a client sees
// the same managed objects and notifications regardless of transport.
//
// Lifecycle:
//  1. Creation: New() with the shared backends
//  2. Registration: AddAdapter() for each transport
//  3. Startup: Serve() starts all adapters (and the metrics server) concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown of all adapters
//
// Thread safety:
// DittoServer is safe for concurrent use. AddAdapter() may be called concurrently
// with other methods. Serve() should only be called once per server instance.
//
// Example usage:
//
//	server := New(adapter.Backends{Registry: reg, Authenticator: authn})
//	server.AddAdapter(mx.New(mxConfig, nil))
//	server.AddAdapter(ws.New(wsConfig, nil))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := server.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type DittoServer struct {
	// backends are injected into every adapter
	backends adapter.Backends

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// metricsServer is optional; started and stopped alongside the adapters
	metricsServer *metrics.Server

	// stopTimeout bounds the Stop() calls during shutdown
	stopTimeout time.Duration

	// mu protects adapters, metricsServer and served
	mu sync.RWMutex

	served bool
}

// New creates a new DittoServer sharing backends across all adapters.
//
// Returns a configured but not yet started DittoServer. Call AddAdapter() to
// register transports, then Serve() to start the server.
//
// Panics if backends.Registry is nil (indicates programmer error).
func New(backends adapter.Backends) *DittoServer {
	if backends.Registry == nil {
		panic("registry cannot be nil")
	}

	return &DittoServer{
		backends:    backends,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout changes how long shutdown waits on each adapter's Stop().
// Non-positive values restore the default.
func (s *DittoServer) SetStopTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	s.mu.Lock()
	s.stopTimeout = timeout
	s.mu.Unlock()
}

// SetMetricsServer registers the Prometheus endpoint to run for the
// lifetime of Serve. A nil server disables it.
func (s *DittoServer) SetMetricsServer(ms *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot set metrics server after Serve() has been called")
	}
	s.metricsServer = ms
}

// AddAdapter registers a new protocol adapter with the server.
//
// This method injects the shared backends into the adapter and adds it to the
// list of adapters that will be started when Serve() is called.
//
// Duplicate protocols or port conflicts are detected and return an error.
//
// Panics if:
//   - adapter is nil (programmer error)
//   - Serve() has already been called (server is running)
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter",
				port, existing.Protocol())
		}
	}

	a.SetBackends(s.backends)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Serve starts all registered adapters and blocks until the context is cancelled
// or an adapter fails.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails:
//   - All adapters receive Stop() calls in reverse registration order
//   - The metrics server is stopped last
//   - Serve() waits for all adapters to complete before returning
//
// Returns:
//   - context.Canceled (or the context's error) on shutdown by cancellation
//   - the adapter's error wrapped with its protocol if one failed
//   - ErrAlreadyServed on a second call
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
	metricsServer := s.metricsServer
	stopTimeout := s.stopTimeout
	s.mu.Unlock()

	logger.Info("Starting DittoServer with %d adapter(s)", len(adapters))

	// Adapters get their own context so a failing adapter can take the
	// others down without the caller cancelling
	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	// Buffered to prevent goroutine leaks if several adapters fail at once
	errChan := make(chan adapterError, len(adapters)+1)

	var wg sync.WaitGroup

	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(serveCtx); err != nil && serveCtx.Err() == nil {
				errChan <- adapterError{protocol: "metrics", err: err}
			}
		}()
	}

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(serveCtx)
			switch {
			case err != nil && !errors.Is(err, context.Canceled) && serveCtx.Err() == nil:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			case err != nil:
				logger.Debug("%s adapter stopped: %v", protocol, err)
			case serveCtx.Err() == nil:
				// Returning early without error still ends the server
				errChan <- adapterError{protocol: protocol, err: errors.New("adapter exited unexpectedly")}
			default:
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	cancelServe()
	stopAllAdapters(adapters, stopTimeout)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("DittoServer stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order, logging
// failures and moving on so one misbehaving adapter cannot block the rest.
func stopAllAdapters(adapters []adapter.Adapter, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
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

// Adapters returns a snapshot of currently registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
