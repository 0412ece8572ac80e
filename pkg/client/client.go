// Package client implements a DittoMX protocol client.
//
// A Client multiplexes concurrent requests over one connection: responses
// are matched to requests by request id, and notifications are delivered
// on the channel returned by Notifications.
//
// Example usage:
//
//	c, err := client.Dial(ctx, "localhost:7091")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if _, err := c.Logon(ctx, "admin", []byte("secret")); err != nil {
//	    return err
//	}
//	uptime, err := c.GetAttribute(ctx, "dittomx:type=Runtime", "UptimeSeconds")
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/internal/protocol/message"
	"github.com/marmos91/dittomx/internal/protocol/wire"
	"github.com/marmos91/dittomx/internal/wsconn"
)

// ErrClosed is returned for requests on a closed connection.
var ErrClosed = errors.New("client connection closed")

// Options configures a Client.
type Options struct {
	// NotificationBuffer is the capacity of the notifications channel.
	// Notifications arriving while it is full are dropped. Default: 256.
	NotificationBuffer int

	// DialTimeout bounds Dial when ctx has no deadline. Default: 10s.
	DialTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.NotificationBuffer <= 0 {
		o.NotificationBuffer = 256
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
}

// Client is a connection to a DittoMX server. All methods are safe for
// concurrent use.
type Client struct {
	stream io.ReadWriteCloser
	reader *wire.Reader

	writeMu sync.Mutex
	writer  *wire.Writer

	mu      sync.Mutex
	pending map[string]chan *message.Response
	err     error

	notifications chan *message.Notification
	done          chan struct{}
	closeOnce     sync.Once
}

// Dial connects to a DittoMX server over TCP.
func Dial(ctx context.Context, address string, opts ...Options) (*Client, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	o.applyDefaults()

	dialer := net.Dialer{Timeout: o.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return New(conn, o), nil
}

// DialWebSocket connects to a DittoMX WebSocket endpoint such as
// ws://localhost:7092/mx.
func DialWebSocket(ctx context.Context, url string, opts ...Options) (*Client, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	o.applyDefaults()

	dialer := websocket.Dialer{HandshakeTimeout: o.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(wsconn.New(conn), o), nil
}

// New runs a client over an established stream.
func New(stream io.ReadWriteCloser, opts Options) *Client {
	opts.applyDefaults()

	c := &Client{
		stream:        stream,
		reader:        wire.NewReader(stream, 0),
		writer:        wire.NewWriter(stream),
		pending:       make(map[string]chan *message.Response),
		notifications: make(chan *message.Notification, opts.NotificationBuffer),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Notifications returns the channel notifications are delivered on. It is
// closed when the connection ends.
func (c *Client) Notifications() <-chan *message.Notification {
	return c.notifications
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection without logging off.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.stream.Close()
	})
	return err
}

func (c *Client) readLoop() {
	var loopErr error
	defer func() {
		c.mu.Lock()
		if loopErr == nil || wire.IsEndOfStream(loopErr) ||
			errors.Is(loopErr, net.ErrClosed) || errors.Is(loopErr, io.ErrClosedPipe) {
			loopErr = ErrClosed
		}
		c.err = loopErr
		c.pending = nil
		c.mu.Unlock()

		close(c.done)
		close(c.notifications)
		_ = c.Close()
	}()

	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			loopErr = err
			return
		}

		switch m := msg.(type) {
		case *message.Response:
			c.mu.Lock()
			ch, ok := c.pending[m.RequestID]
			delete(c.pending, m.RequestID)
			c.mu.Unlock()
			if !ok {
				logger.Debug("client: response for unknown request %s", m.RequestID)
				continue
			}
			ch <- m

		case *message.Notification:
			select {
			case c.notifications <- m:
			default:
				logger.Warn("client: notification buffer full, dropping %s", m)
			}

		default:
			logger.Debug("client: ignoring unexpected %s", msg.Tag())
		}
	}
}

// Do sends req and waits for its response. A response carrying an error is
// returned as that *message.Error.
func (c *Client) Do(ctx context.Context, req message.Request) (message.Value, error) {
	ch := make(chan *message.Response, 1)

	c.mu.Lock()
	if c.pending == nil {
		err := c.err
		c.mu.Unlock()
		return message.Value{}, err
	}
	c.pending[req.RequestID()] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.writer.WriteMessage(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.RequestID())
		return message.Value{}, fmt.Errorf("send %s: %w", req.Tag(), err)
	}

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return message.Value{}, resp.Err
		}
		return resp.Result, nil
	case <-c.done:
		// The response may have been delivered just before the loop ended
		select {
		case resp := <-ch:
			if resp.Err != nil {
				return message.Value{}, resp.Err
			}
			return resp.Result, nil
		default:
		}
		return message.Value{}, c.Err()
	case <-ctx.Done():
		c.forget(req.RequestID())
		return message.Value{}, ctx.Err()
	}
}

func (c *Client) forget(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		delete(c.pending, requestID)
	}
}

// Logon authenticates the connection and returns the connection id
// assigned by the server.
func (c *Client) Logon(ctx context.Context, username string, secret []byte) (string, error) {
	result, err := c.Do(ctx, message.NewLogon(username, secret))
	if err != nil {
		return "", err
	}
	return result.String, nil
}

// Logoff ends the session. The server closes the connection afterwards.
func (c *Client) Logoff(ctx context.Context) error {
	_, err := c.Do(ctx, message.NewLogoff())
	if err != nil {
		return err
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Execute invokes a registry member with plain Go parameters (see
// message.FromAny) and returns the plain result.
func (c *Client) Execute(ctx context.Context, member string, signature []string, params ...any) (any, error) {
	values := make([]message.Value, len(params))
	for i, p := range params {
		v, err := message.FromAny(p)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		values[i] = v
	}

	result, err := c.Do(ctx, message.NewExecute(member, signature, values))
	if err != nil {
		return nil, err
	}
	return result.Any(), nil
}

// GetAttribute reads an attribute of the named object.
func (c *Client) GetAttribute(ctx context.Context, name, attribute string) (any, error) {
	return c.Execute(ctx, "getAttribute",
		[]string{message.TypeObjectName, message.TypeString}, name, attribute)
}

// SetAttribute writes an attribute of the named object.
func (c *Client) SetAttribute(ctx context.Context, name, attribute string, value any) error {
	_, err := c.Execute(ctx, "setAttribute",
		[]string{message.TypeObjectName, message.TypeString, message.TypeAny}, name, attribute, value)
	return err
}

// Invoke calls an operation of the named object.
func (c *Client) Invoke(ctx context.Context, name, operation string, params ...any) (any, error) {
	if params == nil {
		params = []any{}
	}
	return c.Execute(ctx, "invoke",
		[]string{message.TypeObjectName, message.TypeString, message.TypeList}, name, operation, params)
}

// IsRegistered reports whether an object is registered under name.
func (c *Client) IsRegistered(ctx context.Context, name string) (bool, error) {
	result, err := c.Execute(ctx, "isRegistered", []string{message.TypeObjectName}, name)
	if err != nil {
		return false, err
	}
	registered, _ := result.(bool)
	return registered, nil
}

// QueryNames returns the registered names matching pattern.
func (c *Client) QueryNames(ctx context.Context, pattern string) ([]string, error) {
	result, err := c.Execute(ctx, "queryNames", []string{message.TypeObjectName}, pattern)
	if err != nil {
		return nil, err
	}
	return stringSlice(result), nil
}

// Describe returns the metadata of the named object as nested lists:
// [name, description, attributes, operations, notifications].
func (c *Client) Describe(ctx context.Context, name string) ([]any, error) {
	result, err := c.Execute(ctx, "describe", []string{message.TypeObjectName}, name)
	if err != nil {
		return nil, err
	}
	info, _ := result.([]any)
	return info, nil
}

// Domains returns the domains of registered objects.
func (c *Client) Domains(ctx context.Context) ([]string, error) {
	result, err := c.Execute(ctx, "getDomains", nil)
	if err != nil {
		return nil, err
	}
	return stringSlice(result), nil
}

// ObjectCount returns the number of registered objects.
func (c *Client) ObjectCount(ctx context.Context) (int64, error) {
	result, err := c.Execute(ctx, "getObjectCount", nil)
	if err != nil {
		return 0, err
	}
	count, _ := result.(int64)
	return count, nil
}

// AddNotificationListener subscribes listenerID to notifications of target.
// With typePrefixes, only notifications whose type starts with one of them
// are delivered.
func (c *Client) AddNotificationListener(ctx context.Context, listenerID, target string, typePrefixes ...string) error {
	_, err := c.Do(ctx, message.NewAddNotificationListener(listenerID, target, wire.EncodeFilter(typePrefixes...)))
	return err
}

// RemoveNotificationListener cancels a subscription.
func (c *Client) RemoveNotificationListener(ctx context.Context, listenerID, target string) error {
	_, err := c.Do(ctx, message.NewRemoveNotificationListener(listenerID, target))
	return err
}

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
