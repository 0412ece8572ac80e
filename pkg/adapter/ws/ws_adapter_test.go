package ws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittomx/internal/protocol/message"
	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/auth"
	"github.com/marmos91/dittomx/pkg/client"
	"github.com/marmos91/dittomx/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var propsName = registry.MustParseObjectName("app:type=Properties,name=ws")

func newBackends(t *testing.T) adapter.Backends {
	t.Helper()

	reg := registry.NewMemoryRegistry()
	props, err := registry.NewPropertiesObject(propsName, []registry.PropertyDef{
		{Name: "Mode", Default: "auto", Writable: true},
	}, registry.NewMemoryAttributeStore())
	require.NoError(t, err)
	require.NoError(t, reg.Register(propsName, props))

	return adapter.Backends{
		Registry: reg,
		Authenticator: auth.AuthenticatorFunc(func(_ context.Context, creds auth.Credentials) (*auth.Identity, error) {
			if creds.Username == "ops" && string(creds.Secret) == "pw" {
				return &auth.Identity{Principal: "ops", AuthenticatedAt: time.Now()}, nil
			}
			return nil, auth.ErrAuthenticationFailed
		}),
	}
}

func startAdapter(t *testing.T, ctx context.Context, config WSConfig) (*WSAdapter, <-chan error) {
	t.Helper()

	config.ListenAddress = "127.0.0.1:0"
	a := New(config, nil)
	a.SetBackends(newBackends(t))

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- a.Serve(ctx)
	}()

	select {
	case <-a.Ready():
	case err := <-serverDone:
		t.Fatalf("adapter exited before listening: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("adapter did not start listening")
	}
	return a, serverDone
}

func wsURL(a *WSAdapter) string {
	return fmt.Sprintf("ws://127.0.0.1:%d%s", a.Port(), a.Path())
}

func TestWSConfig_Defaults(t *testing.T) {
	var config WSConfig
	config.applyDefaults()

	assert.Equal(t, DefaultPort, config.Port)
	assert.Equal(t, "/mx", config.Path)
	assert.Equal(t, 30*time.Second, config.WriteTimeout)
	require.NoError(t, config.validate())

	assert.Panics(t, func() { New(WSConfig{Path: "mx"}, nil) })
}

func TestWSAdapter_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, serverDone := startAdapter(t, ctx, WSConfig{ShutdownTimeout: time.Second})

	c, err := client.DialWebSocket(ctx, wsURL(a))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetAttribute(ctx, propsName.String(), "Mode")
	assert.ErrorIs(t, err, message.ErrNotLoggedOn)

	_, err = c.Logon(ctx, "ops", []byte("pw"))
	require.NoError(t, err)

	require.NoError(t, c.AddNotificationListener(ctx, "watch", propsName.String()))
	require.NoError(t, c.SetAttribute(ctx, propsName.String(), "Mode", "manual"))

	select {
	case n := <-c.Notifications():
		assert.Equal(t, "watch", n.ListenerID)
		assert.Equal(t, registry.NotificationAttributeChange, n.Payload.Type)
	case <-ctx.Done():
		t.Fatal("notification not delivered over WebSocket")
	}

	mode, err := c.GetAttribute(ctx, propsName.String(), "Mode")
	require.NoError(t, err)
	assert.Equal(t, "manual", mode)
	assert.Equal(t, int32(1), a.GetActiveConnections())

	require.NoError(t, c.Logoff(ctx))
	require.Eventually(t, func() bool { return a.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-serverDone)
}

func TestWSAdapter_Healthz(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := startAdapter(t, ctx, WSConfig{ShutdownTimeout: time.Second})

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", a.Port()))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestWSAdapter_ConnectionLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, _ := startAdapter(t, ctx, WSConfig{MaxConnections: 1, ShutdownTimeout: time.Second})

	first, err := client.DialWebSocket(ctx, wsURL(a))
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return a.GetActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = client.DialWebSocket(ctx, wsURL(a))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestWSAdapter_ConnectionSlots(t *testing.T) {
	a := New(WSConfig{MaxConnections: 2}, nil)

	assert.True(t, a.acquireSlot())
	assert.True(t, a.acquireSlot())
	assert.False(t, a.acquireSlot())

	a.releaseSlot()
	assert.True(t, a.acquireSlot())

	unlimited := New(WSConfig{}, nil)
	for range 10 {
		assert.True(t, unlimited.acquireSlot())
	}
}

func TestWSAdapter_ConcurrentDialsRespectLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const limit = 2
	a, _ := startAdapter(t, ctx, WSConfig{MaxConnections: limit, ShutdownTimeout: time.Second})

	var (
		mu      sync.Mutex
		clients []*client.Client
		wg      sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := client.DialWebSocket(ctx, wsURL(a))
			if err != nil {
				return
			}
			mu.Lock()
			clients = append(clients, c)
			mu.Unlock()
		}()
	}
	wg.Wait()
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	assert.LessOrEqual(t, len(clients), limit)
	assert.LessOrEqual(t, int(a.GetActiveConnections()), limit)
}

func TestWSAdapter_OriginCheck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, _ := startAdapter(t, ctx, WSConfig{AllowedOrigins: []string{"https://console.example"}, ShutdownTimeout: time.Second})

	// The default dialer sends no Origin header
	_, err := client.DialWebSocket(ctx, wsURL(a))
	require.Error(t, err)
	assert.Zero(t, a.GetActiveConnections())
}

func TestWSAdapter_ShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, serverDone := startAdapter(t, ctx, WSConfig{ShutdownTimeout: 2 * time.Second})

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()

	c, err := client.DialWebSocket(reqCtx, wsURL(a))
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Logon(reqCtx, "ops", []byte("pw"))
	require.NoError(t, err)

	require.NoError(t, a.Stop(reqCtx))

	select {
	case <-c.Done():
	case <-reqCtx.Done():
		t.Fatal("client not disconnected by shutdown")
	}
	assert.NoError(t, <-serverDone)
}
