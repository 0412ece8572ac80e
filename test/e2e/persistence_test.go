package e2e

import "testing"

// TestPropertiesSurviveRestart verifies that written properties persist
// with the badger store and reset with the memory store.
func TestPropertiesSurviveRestart(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.LoggedOn()
		if err := c.SetAttribute(tc.Context(), appObject, "LogLevel", "debug"); err != nil {
			t.Fatalf("SetAttribute failed: %v", err)
		}

		tc.Restart()

		c = tc.LoggedOn()
		level, err := c.GetAttribute(tc.Context(), appObject, "LogLevel")
		if err != nil {
			t.Fatalf("GetAttribute after restart failed: %v", err)
		}

		expected := "info"
		if tc.Config.Store == StoreBadger {
			expected = "debug"
		}
		if level != expected {
			t.Errorf("Expected LogLevel %q after restart with %s store, got %v", expected, tc.Config.Store, level)
		}
	})
}
