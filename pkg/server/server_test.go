package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/adapter/mx"
	"github.com/marmos91/dittomx/pkg/adapter/ws"
	"github.com/marmos91/dittomx/pkg/auth"
	"github.com/marmos91/dittomx/pkg/client"
	"github.com/marmos91/dittomx/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter serves until its context is cancelled, or fails right away
// when failWith is set.
type fakeAdapter struct {
	protocol string
	port     int
	failWith error

	backends adapter.Backends
	stopped  atomic.Int32
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.failWith != nil {
		return f.failWith
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAdapter) SetBackends(b adapter.Backends) { f.backends = b }

func (f *fakeAdapter) Stop(context.Context) error {
	f.stopped.Add(1)
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func testBackends() adapter.Backends {
	return adapter.Backends{
		Registry:      registry.NewMemoryRegistry(),
		Authenticator: auth.AllowAllAuthenticator{},
	}
}

func TestNew_RequiresRegistry(t *testing.T) {
	assert.Panics(t, func() { New(adapter.Backends{}) })
}

func TestAddAdapter(t *testing.T) {
	backends := testBackends()
	s := New(backends)

	a := &fakeAdapter{protocol: "A", port: 1}
	require.NoError(t, s.AddAdapter(a))
	assert.Equal(t, backends.Registry, a.backends.Registry)

	err := s.AddAdapter(&fakeAdapter{protocol: "A", port: 2})
	assert.ErrorContains(t, err, "already registered")

	err = s.AddAdapter(&fakeAdapter{protocol: "B", port: 1})
	assert.ErrorContains(t, err, "already in use")

	require.NoError(t, s.AddAdapter(&fakeAdapter{protocol: "B", port: 2}))
	assert.Len(t, s.Adapters(), 2)

	assert.Panics(t, func() { _ = s.AddAdapter(nil) })
}

func TestServe_NoAdapters(t *testing.T) {
	s := New(testBackends())
	assert.Error(t, s.Serve(context.Background()))
}

func TestServe_CancelStopsAdapters(t *testing.T) {
	s := New(testBackends())
	a := &fakeAdapter{protocol: "A", port: 1}
	b := &fakeAdapter{protocol: "B", port: 2}
	require.NoError(t, s.AddAdapter(a))
	require.NoError(t, s.AddAdapter(b))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	assert.Equal(t, int32(1), a.stopped.Load())
	assert.Equal(t, int32(1), b.stopped.Load())

	assert.ErrorIs(t, s.Serve(context.Background()), ErrAlreadyServed)
	assert.Panics(t, func() { _ = s.AddAdapter(&fakeAdapter{protocol: "C", port: 3}) })
}

func TestServe_AdapterFailureStopsOthers(t *testing.T) {
	s := New(testBackends())
	healthy := &fakeAdapter{protocol: "A", port: 1}
	broken := &fakeAdapter{protocol: "B", port: 2, failWith: errors.New("bind: address in use")}
	require.NoError(t, s.AddAdapter(healthy))
	require.NoError(t, s.AddAdapter(broken))

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "B adapter error")
		assert.Contains(t, err.Error(), "address in use")
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after adapter failure")
	}
	assert.Equal(t, int32(1), healthy.stopped.Load())
}

// TestServe_SharedRegistry runs both transports against one registry and
// checks that a change made over TCP is observed over WebSocket.
func TestServe_SharedRegistry(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	name := registry.MustParseObjectName("app:type=Properties,name=shared")
	obj, err := registry.NewPropertiesObject(name, []registry.PropertyDef{
		{Name: "Mode", Default: "normal", Writable: true},
	}, registry.NewMemoryAttributeStore())
	require.NoError(t, err)
	require.NoError(t, reg.Register(name, obj))

	s := New(adapter.Backends{Registry: reg, Authenticator: auth.AllowAllAuthenticator{}})
	s.SetStopTimeout(2 * time.Second)

	mxAdapter := mx.New(mx.MXConfig{ListenAddress: "127.0.0.1:0", MetricsLogInterval: -1, ShutdownTimeout: time.Second}, nil)
	wsAdapter := ws.New(ws.WSConfig{ListenAddress: "127.0.0.1:0", ShutdownTimeout: time.Second}, nil)
	require.NoError(t, s.AddAdapter(mxAdapter))
	require.NoError(t, s.AddAdapter(wsAdapter))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	for _, ready := range []<-chan struct{}{mxAdapter.Ready(), wsAdapter.Ready()} {
		select {
		case <-ready:
		case <-time.After(2 * time.Second):
			t.Fatal("adapter did not start listening")
		}
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()

	tcpClient, err := client.Dial(reqCtx, fmt.Sprintf("127.0.0.1:%d", mxAdapter.Port()))
	require.NoError(t, err)
	defer tcpClient.Close()
	_, err = tcpClient.Logon(reqCtx, "ops", nil)
	require.NoError(t, err)

	wsClient, err := client.DialWebSocket(reqCtx, fmt.Sprintf("ws://127.0.0.1:%d%s", wsAdapter.Port(), wsAdapter.Path()))
	require.NoError(t, err)
	defer wsClient.Close()
	_, err = wsClient.Logon(reqCtx, "ops", nil)
	require.NoError(t, err)

	require.NoError(t, wsClient.AddNotificationListener(reqCtx, "mode", name.String()))
	require.NoError(t, tcpClient.SetAttribute(reqCtx, name.String(), "Mode", "maintenance"))

	select {
	case n := <-wsClient.Notifications():
		assert.Equal(t, "mode", n.ListenerID)
		assert.Equal(t, registry.NotificationAttributeChange, n.Payload.Type)
	case <-reqCtx.Done():
		t.Fatal("notification not delivered over WebSocket")
	}

	mode, err := wsClient.GetAttribute(reqCtx, name.String(), "Mode")
	require.NoError(t, err)
	assert.Equal(t, "maintenance", mode)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	select {
	case <-tcpClient.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("TCP client not disconnected by shutdown")
	}
	select {
	case <-wsClient.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("WebSocket client not disconnected by shutdown")
	}
}
