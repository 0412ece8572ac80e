package mx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/internal/protocol/message"
	"github.com/marmos91/dittomx/internal/protocol/wire"
	"github.com/marmos91/dittomx/internal/ratelimiter"
	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/auth"
	"github.com/marmos91/dittomx/pkg/metrics"
	"github.com/marmos91/dittomx/pkg/registry"
)

// State is the lifecycle state of a Connection.
type State int32

const (
	// StateUnauthenticated: only Logon, Logoff and unknown requests are
	// served.
	StateUnauthenticated State = iota

	// StateAuthenticated: a Logon succeeded; every request is served.
	StateAuthenticated

	// StateStopped: terminal. Nothing is read or written any more.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ConnectionConfig holds the per-connection settings shared by every
// transport running the engine.
type ConnectionConfig struct {
	// IdleTimeout bounds the wait for the next request. 0 disables it.
	IdleTimeout time.Duration

	// WriteTimeout bounds each response or notification write. 0 disables it.
	WriteTimeout time.Duration

	// MaxFrameSize rejects larger incoming frames. 0 means unlimited.
	MaxFrameSize uint32

	// RequestsPerSecond throttles request processing. 0 disables throttling.
	RequestsPerSecond float64

	// Burst is the number of requests served without throttling.
	Burst int
}

// deadliner is implemented by streams supporting I/O deadlines (net.Conn,
// the WebSocket stream).
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// registration is one subscription made by the client.
type registration struct {
	target   registry.ObjectName
	listener *forwardingListener
}

// Connection runs the DittoMX protocol over one client stream.
//
// The Serve goroutine reads requests and answers each with exactly one
// response, in order. Notification callbacks run on registry goroutines and
// share the writer with Serve.
//
// Thread safety:
// mu guards stopped, registrations and writer. Registry and authenticator
// calls are never made while holding it.
type Connection struct {
	id         string
	remoteAddr string
	stream     io.ReadWriteCloser
	reader     *wire.Reader

	registry      registry.Registry
	authenticator auth.Authenticator
	observer      adapter.ConnectionObserver
	metrics       metrics.MXMetrics
	limiter       *ratelimiter.RateLimiter
	config        ConnectionConfig

	// identity is written by the Serve goroutine only
	identity atomic.Pointer[auth.Identity]

	mu            sync.Mutex
	stopped       bool
	writer        *wire.Writer
	registrations map[string]*registration
}

// NewConnection creates the engine for an accepted stream. The connection
// id is assigned here and is echoed as the Logon result.
//
// m may be nil (no metrics).
func NewConnection(stream io.ReadWriteCloser, remoteAddr string, backends adapter.Backends, config ConnectionConfig, m metrics.MXMetrics) *Connection {
	if m == nil {
		m = metrics.NewNoopMXMetrics()
	}

	return &Connection{
		id:            uuid.NewString(),
		remoteAddr:    remoteAddr,
		stream:        stream,
		reader:        wire.NewReader(stream, config.MaxFrameSize),
		registry:      backends.Registry,
		authenticator: backends.Authenticator,
		observer:      backends.Observer,
		metrics:       m,
		limiter:       ratelimiter.New(config.RequestsPerSecond, config.Burst),
		config:        config,
		writer:        wire.NewWriter(stream),
		registrations: make(map[string]*registration),
	}
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr returns the peer address given at creation.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Identity returns the identity established by the last successful Logon,
// or nil.
func (c *Connection) Identity() *auth.Identity {
	return c.identity.Load()
}

// Stopped reports whether the connection reached StateStopped.
func (c *Connection) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	if c.Stopped() {
		return StateStopped
	}
	if c.identity.Load() != nil {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// ListenerCount returns the number of live subscriptions.
func (c *Connection) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registrations)
}

// Serve handles requests until the client logs off, the stream fails or
// ctx is cancelled. The connection is always stopped when Serve returns.
//
// Panics are recovered so that a single misbehaving connection cannot
// crash the server.
func (c *Connection) Serve(ctx context.Context) {
	// Cancellation must unblock a pending read
	stopOnCancel := context.AfterFunc(ctx, c.Stop)

	if c.observer != nil {
		c.observer.ConnectionOpened(c.id, c.remoteAddr)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler %s from %s: %v", c.id, c.remoteAddr, r)
		}
		stopOnCancel()
		c.Stop()
		if c.observer != nil {
			c.observer.ConnectionClosed(c.id)
		}
	}()

	logger.Debug("Connection %s serving %s", c.id, c.remoteAddr)

	for {
		if c.Stopped() {
			return
		}

		c.setReadDeadline()
		msg, err := c.reader.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if err := c.limiter.Wait(ctx); err != nil {
			logger.Debug("Connection %s: %v", c.id, err)
			return
		}

		if !c.handleMessage(ctx, msg) {
			return
		}
	}
}

// Stop moves the connection to StateStopped: every subscription is
// cancelled and the stream is closed. Safe to call more than once and from
// any goroutine.
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	registrations := c.registrations
	c.registrations = make(map[string]*registration)
	c.mu.Unlock()

	ctx := context.Background()
	for listenerID, reg := range registrations {
		if err := c.registry.RemoveNotificationListener(ctx, reg.target, reg.listener); err != nil {
			logger.Debug("Connection %s: removing listener %s on %s: %v", c.id, listenerID, reg.target, err)
		}
	}

	if err := c.stream.Close(); err != nil {
		logger.Debug("Connection %s: close: %v", c.id, err)
	}
	logger.Debug("Connection %s stopped (%d listener(s) removed)", c.id, len(registrations))
}

// handleMessage serves one decoded message. It returns false when the
// loop must end.
func (c *Connection) handleMessage(ctx context.Context, msg message.Message) bool {
	req, ok := msg.(message.Request)
	if !ok {
		logger.Debug("Connection %s: ignoring %s: not a request", c.id, msg.Tag())
		return true
	}

	kind := requestKind(req)
	c.metrics.RecordRequestStart(kind)
	start := time.Now()

	resp := c.dispatch(ctx, req)

	errorKind := ""
	if resp.Err != nil {
		errorKind = string(resp.Err.Kind)
		logger.Debug("Connection %s: %s %s failed: %v", c.id, kind, req.RequestID(), resp.Err)
	}
	c.metrics.RecordRequest(kind, time.Since(start), errorKind)
	c.metrics.RecordRequestEnd(kind)

	if err := c.send(resp); err != nil {
		logger.Debug("Connection %s: write response: %v", c.id, err)
		c.Stop()
		return false
	}

	if _, logoff := req.(*message.Logoff); logoff {
		logger.Debug("Connection %s logged off", c.id)
		c.Stop()
		return false
	}
	return true
}

// dispatch produces the response to req.
func (c *Connection) dispatch(ctx context.Context, req message.Request) *message.Response {
	switch r := req.(type) {
	case *message.Logon:
		return c.handleLogon(ctx, r)

	case *message.Logoff:
		return message.NewResult(r.ID, message.Null())

	case *message.Execute:
		if err := c.requireLogon(); err != nil {
			return message.NewErrorResponse(r.ID, err)
		}
		return c.handleExecute(ctx, r)

	case *message.AddNotificationListener:
		if err := c.requireLogon(); err != nil {
			return message.NewErrorResponse(r.ID, err)
		}
		return c.handleAddListener(ctx, r)

	case *message.RemoveNotificationListener:
		if err := c.requireLogon(); err != nil {
			return message.NewErrorResponse(r.ID, err)
		}
		return c.handleRemoveListener(ctx, r)

	case *message.Unknown:
		return message.NewErrorResponse(r.ID,
			message.NewError(message.KindUnknownRequest, "unknown request (tag %d)", uint32(r.WireTag)))

	default:
		return message.NewErrorResponse(req.RequestID(),
			message.NewError(message.KindUnknownRequest, "unsupported request %T", req))
	}
}

func (c *Connection) requireLogon() *message.Error {
	if c.identity.Load() == nil {
		return message.NewError(message.KindNotLoggedOn, "logon required")
	}
	return nil
}

func (c *Connection) handleLogon(ctx context.Context, m *message.Logon) *message.Response {
	identity, err := c.authenticate(ctx, auth.Credentials{Username: m.Username, Secret: m.Credentials})
	if err != nil {
		logger.Info("Connection %s: logon rejected for %q from %s: %v", c.id, m.Username, c.remoteAddr, err)
		return message.NewErrorResponse(m.ID,
			message.NewError(message.KindInvalidCredentials, "invalid credentials for %q", m.Username))
	}

	c.identity.Store(identity)
	logger.Info("Connection %s: %s logged on from %s", c.id, identity.Principal, c.remoteAddr)
	return message.NewResult(m.ID, message.StringValue(c.id))
}

func (c *Connection) authenticate(ctx context.Context, creds auth.Credentials) (identity *auth.Identity, err error) {
	if c.authenticator == nil {
		return nil, errors.New("no authenticator configured")
	}

	defer func() {
		if r := recover(); r != nil {
			identity, err = nil, fmt.Errorf("authenticator panic: %v", r)
		}
	}()

	identity, err = c.authenticator.Authenticate(ctx, creds)
	if err == nil && identity == nil {
		err = auth.ErrAuthenticationFailed
	}
	return identity, err
}

func (c *Connection) handleAddListener(ctx context.Context, m *message.AddNotificationListener) *message.Response {
	target, err := registry.ParseObjectName(m.Target)
	if err != nil {
		return message.NewErrorResponse(m.ID, describeError(err))
	}

	if err := c.subscribe(ctx, m.ListenerID, target, m.Filter); err != nil {
		return message.NewErrorResponse(m.ID, describeError(err))
	}
	logger.Debug("Connection %s: listener %s subscribed to %s", c.id, m.ListenerID, target)
	return message.NewResult(m.ID, message.Null())
}

func (c *Connection) handleRemoveListener(ctx context.Context, m *message.RemoveNotificationListener) *message.Response {
	target, err := registry.ParseObjectName(m.Target)
	if err != nil {
		return message.NewErrorResponse(m.ID, describeError(err))
	}

	if err := c.unsubscribe(ctx, m.ListenerID, target); err != nil {
		return message.NewErrorResponse(m.ID, describeError(err))
	}
	logger.Debug("Connection %s: listener %s removed from %s", c.id, m.ListenerID, target)
	return message.NewResult(m.ID, message.Null())
}

// send writes msg unless the connection is stopped, in which case msg is
// dropped silently.
func (c *Connection) send(msg message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	return c.writeLocked(msg)
}

// writeLocked must be called with mu held.
func (c *Connection) writeLocked(msg message.Message) error {
	if c.config.WriteTimeout > 0 {
		if d, ok := c.stream.(deadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
		}
	}
	return c.writer.WriteMessage(msg)
}

func (c *Connection) setReadDeadline() {
	if c.config.IdleTimeout <= 0 {
		return
	}
	if d, ok := c.stream.(deadliner); ok {
		if err := d.SetReadDeadline(time.Now().Add(c.config.IdleTimeout)); err != nil {
			logger.Warn("Failed to set read deadline for %s: %v", c.remoteAddr, err)
		}
	}
}

func (c *Connection) logReadError(err error) {
	var netErr net.Error
	switch {
	case c.Stopped():
		logger.Debug("Connection %s: read ended after stop", c.id)
		return
	case errors.Is(err, io.EOF):
		logger.Debug("Connection %s closed by client %s", c.id, c.remoteAddr)
		c.metrics.RecordStreamError("eof")
	case errors.Is(err, io.ErrUnexpectedEOF):
		logger.Debug("Connection %s: client %s dropped mid-frame", c.id, c.remoteAddr)
		c.metrics.RecordStreamError("eof")
	case errors.Is(err, wire.ErrFrameTooLarge):
		logger.Warn("Connection %s from %s: %v", c.id, c.remoteAddr, err)
		c.metrics.RecordStreamError("too_large")
	case errors.Is(err, wire.ErrMalformed):
		logger.Warn("Connection %s from %s: %v", c.id, c.remoteAddr, err)
		c.metrics.RecordStreamError("malformed")
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Connection %s from %s timed out: %v", c.id, c.remoteAddr, err)
		c.metrics.RecordStreamError("timeout")
	default:
		logger.Debug("Connection %s from %s: read: %v", c.id, c.remoteAddr, err)
		c.metrics.RecordStreamError("io")
	}
}

// requestKind labels req for metrics and logs.
func requestKind(req message.Request) string {
	if e, ok := req.(*message.Execute); ok {
		if !knownMembers[e.Member] {
			return "EXECUTE:unknown"
		}
		return "EXECUTE:" + e.Member
	}
	return req.Tag().String()
}
