// Package mx implements the DittoMX connection engine and its TCP adapter.
//
// A Connection runs the protocol over any byte stream: it reads framed
// requests, authenticates the client, dispatches Execute requests to the
// registry and relays registry notifications back to the client. MXAdapter
// accepts TCP clients and runs one Connection per socket.
package mx

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/metrics"
)

// MXAdapter implements the adapter.Adapter interface for DittoMX over TCP.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (every connection stops and closes its socket)
//  4. Wait for connection goroutines to exit (up to ShutdownTimeout)
//  5. Force-close any remaining sockets after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses sync.Once
// to ensure idempotent behavior even if Stop() is called multiple times.
type MXAdapter struct {
	config MXConfig

	// listener is closed during shutdown to stop accepting new connections
	listenerMu sync.Mutex
	listener   net.Listener

	// ready is closed once the listener is bound
	ready chan struct{}

	// port is the bound port, which differs from config.Port when it is 0
	port atomic.Int32

	backends adapter.Backends
	metrics  metrics.MXMetrics

	// activeConns tracks all connection goroutines for graceful shutdown
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount atomic.Int32

	// connSemaphore limits concurrent connections when MaxConnections > 0
	connSemaphore chan struct{}

	// shutdownCtx is the parent context of every connection; cancelling it
	// stops them all
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection id to net.Conn for forced closure
	activeConnections sync.Map
}

// MXConfig holds configuration parameters for the TCP adapter.
//
// Default values (applied by New if zero):
//   - Port: 7091
//   - MaxConnections: 0 (unlimited)
//   - IdleTimeout: 0 (connections stay open; clients usually idle while
//     waiting for notifications)
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
//   - MetricsLogInterval: 5m
type MXConfig struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on. 0 in a config file selects the
	// default; tests use ListenAddress ":0" for an ephemeral port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// ListenAddress overrides the ":<port>" listen address when set.
	ListenAddress string `mapstructure:"listen_address"`

	// MaxConnections limits concurrent client connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// IdleTimeout closes connections that send no request for this long.
	// 0 disables it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// WriteTimeout bounds each response or notification write.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum wait for connections during shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the interval at which the connection count is
	// logged. Negative disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval"`

	// MaxFrameSize rejects larger incoming frames. 0 means unlimited.
	MaxFrameSize uint32 `mapstructure:"max_frame_size"`

	// RateLimit throttles requests per connection.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-connection request throttling.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the number of requests served without waiting.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// DefaultPort is the TCP port used when none is configured.
const DefaultPort = 7091

// applyDefaults fills in zero values with sensible defaults.
func (c *MXConfig) applyDefaults() {
	// Enabled defaults are handled in pkg/config so that an explicit false
	// from a config file survives.
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
}

// validate checks the configuration.
func (c *MXConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid IdleTimeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid RequestsPerSecond %v: must be >= 0", c.RateLimit.RequestsPerSecond)
	}
	return nil
}

// ConnectionConfig returns the per-connection part of the configuration.
func (c MXConfig) ConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		IdleTimeout:       c.IdleTimeout,
		WriteTimeout:      c.WriteTimeout,
		MaxFrameSize:      c.MaxFrameSize,
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		Burst:             c.RateLimit.Burst,
	}
}

// New creates a new MXAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetBackends() and then
// Serve() to start accepting connections.
//
// Panics if config validation fails.
func New(config MXConfig, mxMetrics metrics.MXMetrics) *MXAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid MX config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("MX connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("MX connection limit: unlimited")
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	if mxMetrics == nil {
		mxMetrics = metrics.NewNoopMXMetrics()
	}

	return &MXAdapter{
		config:         config,
		ready:          make(chan struct{}),
		metrics:        mxMetrics,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// SetBackends injects the shared registry, authenticator and observer.
func (s *MXAdapter) SetBackends(backends adapter.Backends) {
	s.backends = backends
	logger.Debug("MX backends configured")
}

func (s *MXAdapter) listenAddress() string {
	if s.config.ListenAddress != "" {
		return s.config.ListenAddress
	}
	return fmt.Sprintf(":%d", s.config.Port)
}

// Serve starts the TCP server and blocks until the context is cancelled
// or an unrecoverable error occurs.
//
// Each accepted socket is served by its own Connection goroutine, whose
// context is shutdownCtx: cancelling it stops every connection, which
// cancels their subscriptions and closes their sockets.
func (s *MXAdapter) Serve(ctx context.Context) error {
	if s.backends.Registry == nil {
		return fmt.Errorf("MX adapter: no registry configured")
	}

	listener, err := net.Listen("tcp", s.listenAddress())
	if err != nil {
		return fmt.Errorf("failed to create MX listener on %s: %w", s.listenAddress(), err)
	}

	s.listenerMu.Lock()
	select {
	case <-s.shutdown:
		s.listenerMu.Unlock()
		_ = listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.listenerMu.Unlock()

	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(addr.Port))
	}
	close(s.ready)

	logger.Info("MX server listening on port %d", s.Port())
	logger.Debug("MX config: max_connections=%d idle_timeout=%v write_timeout=%v max_frame_size=%d",
		s.config.MaxConnections, s.config.IdleTimeout, s.config.WriteTimeout, s.config.MaxFrameSize)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("MX shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting MX connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		conn := NewConnection(tcpConn, tcpConn.RemoteAddr().String(), s.backends, s.config.ConnectionConfig(), s.metrics)
		s.activeConnections.Store(conn.ID(), tcpConn)

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Debug("MX connection %s accepted from %s (active: %d)",
			conn.ID(), tcpConn.RemoteAddr(), currentConns)

		go func(conn *Connection) {
			defer func() {
				s.activeConnections.Delete(conn.ID())

				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Debug("MX connection %s closed (active: %d)", conn.ID(), currentConns)
			}()

			conn.Serve(s.shutdownCtx)
		}(conn)
	}
}

// initiateShutdown closes the listener and stops every connection.
// Safe to call multiple times.
func (s *MXAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("MX shutdown initiated")

		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing MX listener: %v", err)
			}
		}
		s.listenerMu.Unlock()

		s.cancelRequests()
	})
}

// gracefulShutdown waits for connection goroutines to exit, force-closing
// the remaining sockets once ShutdownTimeout expires.
func (s *MXAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("MX graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("MX graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("MX shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("MX shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes the sockets of connections that did not
// exit in time, failing any I/O they are blocked in.
func (s *MXAdapter) forceCloseConnections() {
	logger.Info("Force-closing active MX connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		id := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", id, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for connections to exit or
// ctx to expire. A nil ctx waits up to ShutdownTimeout.
func (s *MXAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("MX shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs the connection count.
func (s *MXAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("MX metrics: active_connections=%d", s.connCount.Load())
		}
	}
}

// Ready is closed once the listener is bound and Port reports the real port.
func (s *MXAdapter) Ready() <-chan struct{} {
	return s.ready
}

// GetActiveConnections returns the current number of active connections.
func (s *MXAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound TCP port, or the configured port before Serve.
func (s *MXAdapter) Port() int {
	if p := s.port.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "MX".
func (s *MXAdapter) Protocol() string {
	return "MX"
}

var _ adapter.Adapter = (*MXAdapter)(nil)
