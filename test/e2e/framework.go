package e2e

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/adapter/mx"
	"github.com/marmos91/dittomx/pkg/adapter/ws"
	"github.com/marmos91/dittomx/pkg/auth"
	"github.com/marmos91/dittomx/pkg/client"
	"github.com/marmos91/dittomx/pkg/config"
	"github.com/marmos91/dittomx/pkg/server"
	"golang.org/x/crypto/bcrypt"
)

const (
	testUser     = "admin"
	testPassword = "e2e-secret"
)

var (
	hashOnce     sync.Once
	passwordHash string
)

// testPasswordHash hashes testPassword once per test binary.
func testPasswordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword, bcrypt.MinCost)
		if err != nil {
			t.Fatalf("Failed to hash password: %v", err)
		}
		passwordHash = h
	})
	return passwordHash
}

// TestContext provides a complete testing environment with:
// - Running DittoMX server with both adapters
// - Registry built from configuration
// - Cleanup mechanisms
type TestContext struct {
	T        *testing.T
	Config   *TestConfig
	Server   *server.DittoServer
	Registry *config.RegistryResult
	MX       *mx.MXAdapter
	WS       *ws.WSAdapter

	dataDir string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	clients []*client.Client
}

// NewTestContext creates a new test environment and starts the server.
func NewTestContext(t *testing.T, cfg *TestConfig) *TestContext {
	t.Helper()

	dataDir, err := os.MkdirTemp("", "dittomx-e2e-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}

	tc := &TestContext{T: t, Config: cfg, dataDir: dataDir}
	tc.startServer()
	return tc
}

// startServer wires the server the way the start command does.
func (tc *TestContext) startServer() {
	tc.T.Helper()

	// These are functional tests, not debugging sessions
	logger.SetLevel("ERROR")

	cfg := tc.Config.ServerConfig(tc.dataDir, testPasswordHash(tc.T))
	if err := config.Validate(cfg); err != nil {
		tc.T.Fatalf("Invalid test configuration: %v", err)
	}

	tc.ctx, tc.cancel = context.WithCancel(context.Background())

	registryResult, err := config.InitializeRegistry(tc.ctx, cfg, "e2e")
	if err != nil {
		tc.T.Fatalf("Failed to initialize registry: %v", err)
	}
	tc.Registry = registryResult

	authenticator, err := config.CreateAuthenticator(&cfg.Auth)
	if err != nil {
		tc.T.Fatalf("Failed to create authenticator: %v", err)
	}

	tc.Server = server.New(adapter.Backends{
		Registry:      registryResult.Registry,
		Authenticator: authenticator,
		Observer:      registryResult.Server,
	})
	tc.Server.SetStopTimeout(cfg.Server.ShutdownTimeout)

	adapters, err := config.CreateAdapters(cfg, nil)
	if err != nil {
		tc.T.Fatalf("Failed to create adapters: %v", err)
	}
	for _, a := range adapters {
		if err := tc.Server.AddAdapter(a); err != nil {
			tc.T.Fatalf("Failed to add adapter: %v", err)
		}
		switch a := a.(type) {
		case *mx.MXAdapter:
			tc.MX = a
		case *ws.WSAdapter:
			tc.WS = a
		}
	}

	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		if err := tc.Server.Serve(tc.ctx); err != nil && err != context.Canceled {
			tc.T.Logf("Server error: %v", err)
		}
	}()

	tc.waitForServer()
}

func (tc *TestContext) waitForServer() {
	tc.T.Helper()

	for _, ready := range []<-chan struct{}{tc.MX.Ready(), tc.WS.Ready()} {
		select {
		case <-ready:
		case <-time.After(10 * time.Second):
			tc.T.Fatal("Timeout waiting for server to start")
		}
	}
}

// stopServer stops the server and closes the attribute store.
func (tc *TestContext) stopServer() {
	tc.cancel()

	done := make(chan struct{})
	go func() {
		tc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		tc.T.Logf("Server stop timeout")
	}

	if err := tc.Registry.Close(); err != nil {
		tc.T.Logf("Warning: failed to close attribute store: %v", err)
	}
}

// Restart stops the server and starts a fresh one on the same data
// directory. Open clients are disconnected.
func (tc *TestContext) Restart() {
	tc.T.Helper()
	tc.stopServer()
	tc.startServer()
}

// Connect dials the server over the configured transport without logging on.
func (tc *TestContext) Connect() *client.Client {
	tc.T.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		c   *client.Client
		err error
	)
	switch tc.Config.Transport {
	case TransportWebSocket:
		c, err = client.DialWebSocket(ctx, fmt.Sprintf("ws://127.0.0.1:%d%s", tc.WS.Port(), tc.WS.Path()))
	default:
		c, err = client.Dial(ctx, fmt.Sprintf("127.0.0.1:%d", tc.MX.Port()))
	}
	if err != nil {
		tc.T.Fatalf("Failed to connect over %s: %v", tc.Config.Transport, err)
	}

	tc.clients = append(tc.clients, c)
	return c
}

// LoggedOn connects and logs on with the test account.
func (tc *TestContext) LoggedOn() *client.Client {
	tc.T.Helper()

	c := tc.Connect()
	if _, err := c.Logon(tc.Context(), testUser, []byte(testPassword)); err != nil {
		tc.T.Fatalf("Logon failed: %v", err)
	}
	return c
}

// Context returns a request context bounded by the test.
func (tc *TestContext) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	tc.T.Cleanup(cancel)
	return ctx
}

// Cleanup closes clients, stops the server and removes the data directory.
func (tc *TestContext) Cleanup() {
	for _, c := range tc.clients {
		_ = c.Close()
	}
	tc.stopServer()

	if err := os.RemoveAll(tc.dataDir); err != nil {
		tc.T.Logf("Warning: failed to remove temp directory %s: %v", tc.dataDir, err)
	}
}
