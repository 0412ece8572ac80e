package e2e

import (
	"errors"
	"testing"

	"github.com/marmos91/dittomx/internal/protocol/message"
	"github.com/marmos91/dittomx/pkg/client"
	"github.com/marmos91/dittomx/pkg/registry"
)

// TestLogonRequired verifies that nothing but Logon is served before
// authentication and that a rejected Logon leaves the session usable.
func TestLogonRequired(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Connect()
		ctx := tc.Context()

		_, err := c.ObjectCount(ctx)
		if !errors.Is(err, message.ErrNotLoggedOn) {
			t.Fatalf("Expected NotLoggedOn before Logon, got %v", err)
		}

		if _, err := c.Logon(ctx, testUser, []byte("wrong")); !errors.Is(err, message.ErrInvalidCredentials) {
			t.Fatalf("Expected InvalidCredentials, got %v", err)
		}

		id, err := c.Logon(ctx, testUser, []byte(testPassword))
		if err != nil {
			t.Fatalf("Logon failed: %v", err)
		}
		if id == "" {
			t.Error("Expected a connection id from Logon")
		}

		count, err := c.ObjectCount(ctx)
		if err != nil {
			t.Fatalf("ObjectCount failed: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3 objects (runtime, server, app), got %d", count)
		}
	})
}

// TestLogoffClosesConnection verifies that Logoff ends the session.
func TestLogoffClosesConnection(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.LoggedOn()
		ctx := tc.Context()

		if err := c.Logoff(ctx); err != nil {
			t.Fatalf("Logoff failed: %v", err)
		}

		if _, err := c.ObjectCount(ctx); !errors.Is(err, client.ErrClosed) {
			t.Errorf("Expected ErrClosed after Logoff, got %v", err)
		}
	})
}

// TestConnectionTracking verifies that the server object counts clients
// from both transports.
func TestConnectionTracking(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		watcher := tc.LoggedOn()
		ctx := tc.Context()

		if err := watcher.AddNotificationListener(ctx, "conns", registry.ServerObjectName.String(), "connection."); err != nil {
			t.Fatalf("AddNotificationListener failed: %v", err)
		}

		other := tc.Connect()
		expectNotification(t, ctx, watcher, "conns", registry.NotificationConnectionOpened)

		active, err := watcher.GetAttribute(ctx, registry.ServerObjectName.String(), "ActiveConnections")
		if err != nil {
			t.Fatalf("GetAttribute failed: %v", err)
		}
		if active != int64(2) {
			t.Errorf("Expected 2 active connections, got %v", active)
		}

		if err := other.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		expectNotification(t, ctx, watcher, "conns", registry.NotificationConnectionClosed)
	})
}
