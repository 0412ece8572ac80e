// Package ws serves the DittoMX protocol over WebSocket.
//
// Every frame travels in binary WebSocket messages; the connection engine
// is the same one the TCP adapter runs. This lets browser-based consoles
// and clients behind HTTP proxies manage the server.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/internal/wsconn"
	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/adapter/mx"
	"github.com/marmos91/dittomx/pkg/metrics"
)

// WSConfig holds configuration parameters for the WebSocket adapter.
//
// Default values (applied by New if zero):
//   - Port: 7092
//   - Path: /mx
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
type WSConfig struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// ListenAddress overrides the ":<port>" listen address when set.
	ListenAddress string `mapstructure:"listen_address"`

	// Path is the HTTP path upgraded to WebSocket.
	Path string `mapstructure:"path"`

	// AllowedOrigins restricts the Origin header of upgrade requests.
	// Empty allows every origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// MaxConnections limits concurrent clients. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// IdleTimeout closes connections that send no request for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// WriteTimeout bounds each response or notification write.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum wait for connections during shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MaxFrameSize rejects larger incoming frames. 0 means unlimited.
	MaxFrameSize uint32 `mapstructure:"max_frame_size"`

	// RateLimit throttles requests per connection.
	RateLimit mx.RateLimitConfig `mapstructure:"rate_limit"`
}

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = 7092

func (c *WSConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Path == "" {
		c.Path = "/mx"
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *WSConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Path[0] != '/' {
		return fmt.Errorf("invalid path %q: must start with /", c.Path)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

func (c WSConfig) connectionConfig() mx.ConnectionConfig {
	return mx.ConnectionConfig{
		IdleTimeout:       c.IdleTimeout,
		WriteTimeout:      c.WriteTimeout,
		MaxFrameSize:      c.MaxFrameSize,
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		Burst:             c.RateLimit.Burst,
	}
}

// WSAdapter implements adapter.Adapter over WebSocket.
//
// Upgraded connections are hijacked from the HTTP server, so shutdown
// tracks them itself: it stops the HTTP server, cancels shutdownCtx
// (stopping every connection) and force-closes what is left after
// ShutdownTimeout.
type WSAdapter struct {
	config   WSConfig
	upgrader websocket.Upgrader

	serverMu sync.Mutex
	server   *http.Server

	ready chan struct{}
	port  atomic.Int32

	backends adapter.Backends
	metrics  metrics.MXMetrics

	// connSemaphore limits concurrent connections when MaxConnections > 0.
	// A slot is taken before the upgrade and held until the connection ends.
	connSemaphore chan struct{}

	// connMu orders activeConns.Add against the start of shutdown
	connMu            sync.Mutex
	activeConns       sync.WaitGroup
	connCount         atomic.Int32
	activeConnections sync.Map // connection id -> *wsconn.Stream

	shutdownOnce   sync.Once
	shutdown       chan struct{}
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// New creates a WebSocket adapter. Panics if config validation fails.
func New(config WSConfig, mxMetrics metrics.MXMetrics) *WSAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid WebSocket config: %v", err))
	}

	if mxMetrics == nil {
		mxMetrics = metrics.NewNoopMXMetrics()
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	a := &WSAdapter{
		config:         config,
		connSemaphore:  connSemaphore,
		ready:          make(chan struct{}),
		metrics:        mxMetrics,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
	a.upgrader = websocket.Upgrader{CheckOrigin: a.checkOrigin}
	return a
}

func (s *WSAdapter) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.config.AllowedOrigins, r.Header.Get("Origin"))
}

// SetBackends injects the shared registry, authenticator and observer.
func (s *WSAdapter) SetBackends(backends adapter.Backends) {
	s.backends = backends
}

// Routes returns the HTTP handler of the adapter.
func (s *WSAdapter) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get(s.config.Path, s.handleUpgrade)
	return r
}

func (s *WSAdapter) listenAddress() string {
	if s.config.ListenAddress != "" {
		return s.config.ListenAddress
	}
	return fmt.Sprintf(":%d", s.config.Port)
}

// Serve starts the HTTP server and blocks until ctx is cancelled or Stop
// is called.
func (s *WSAdapter) Serve(ctx context.Context) error {
	if s.backends.Registry == nil {
		return fmt.Errorf("WebSocket adapter: no registry configured")
	}

	listener, err := net.Listen("tcp", s.listenAddress())
	if err != nil {
		return fmt.Errorf("failed to create WebSocket listener on %s: %w", s.listenAddress(), err)
	}

	server := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serverMu.Lock()
	select {
	case <-s.shutdown:
		s.serverMu.Unlock()
		_ = listener.Close()
		return nil
	default:
	}
	s.server = server
	s.serverMu.Unlock()

	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(addr.Port))
	}
	close(s.ready)

	logger.Info("WebSocket server listening on port %d (path %s)", s.Port(), s.config.Path)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("WebSocket shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.initiateShutdown()
		return fmt.Errorf("WebSocket server: %w", err)
	}

	return s.gracefulShutdown()
}

func (s *WSAdapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.shutdown:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if !s.acquireSlot() {
		logger.Warn("WebSocket connection limit reached, rejecting %s", r.RemoteAddr)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.releaseSlot()
		logger.Debug("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	stream := wsconn.New(wsConn)
	if s.config.MaxFrameSize > 0 {
		// A message never needs to exceed one frame plus its length prefix
		stream.SetReadLimit(int64(s.config.MaxFrameSize) + 4)
	}

	conn := mx.NewConnection(stream, r.RemoteAddr, s.backends, s.config.connectionConfig(), s.metrics)

	s.connMu.Lock()
	select {
	case <-s.shutdown:
		s.connMu.Unlock()
		s.releaseSlot()
		_ = stream.Close()
		return
	default:
	}
	s.activeConns.Add(1)
	s.connMu.Unlock()

	current := s.connCount.Add(1)
	s.activeConnections.Store(conn.ID(), stream)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	logger.Debug("WebSocket connection %s accepted from %s (active: %d)", conn.ID(), r.RemoteAddr, current)

	go func() {
		defer func() {
			s.activeConnections.Delete(conn.ID())
			s.activeConns.Done()
			s.releaseSlot()
			current := s.connCount.Add(-1)
			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(current)
			logger.Debug("WebSocket connection %s closed (active: %d)", conn.ID(), current)
		}()

		conn.Serve(s.shutdownCtx)
	}()
}

// acquireSlot reserves a connection slot without blocking. It always
// succeeds when there is no limit.
func (s *WSAdapter) acquireSlot() bool {
	if s.connSemaphore == nil {
		return true
	}
	select {
	case s.connSemaphore <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *WSAdapter) releaseSlot() {
	if s.connSemaphore != nil {
		<-s.connSemaphore
	}
}

// initiateShutdown stops the HTTP server and every connection. Safe to
// call multiple times.
func (s *WSAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("WebSocket shutdown initiated")

		s.connMu.Lock()
		close(s.shutdown)
		s.connMu.Unlock()

		s.serverMu.Lock()
		if s.server != nil {
			if err := s.server.Close(); err != nil {
				logger.Debug("Error closing WebSocket server: %v", err)
			}
		}
		s.serverMu.Unlock()

		s.cancelRequests()
	})
}

func (s *WSAdapter) gracefulShutdown() error {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("WebSocket graceful shutdown complete")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("WebSocket shutdown timeout exceeded: %d connection(s) still active - forcing closure", remaining)
		s.forceCloseConnections()
		return fmt.Errorf("WebSocket shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *WSAdapter) forceCloseConnections() {
	s.activeConnections.Range(func(key, value any) bool {
		if err := value.(*wsconn.Stream).Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", key, err)
		} else {
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})
}

// Stop initiates shutdown and waits for connections to exit or ctx to
// expire.
func (s *WSAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once the listener is bound.
func (s *WSAdapter) Ready() <-chan struct{} {
	return s.ready
}

// GetActiveConnections returns the current number of connections.
func (s *WSAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound port, or the configured port before Serve.
func (s *WSAdapter) Port() int {
	if p := s.port.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Path returns the WebSocket endpoint path.
func (s *WSAdapter) Path() string {
	return s.config.Path
}

// Protocol returns "MX-WS".
func (s *WSAdapter) Protocol() string {
	return "MX-WS"
}

var _ adapter.Adapter = (*WSAdapter)(nil)
