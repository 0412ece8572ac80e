package e2e

import "testing"

// runOnAllConfigs runs a test function against every store and transport
func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	for _, config := range AllConfigs() {
		t.Run(config.String(), func(t *testing.T) {
			tc := NewTestContext(t, config)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}
