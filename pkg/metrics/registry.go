// Package metrics defines the observability interfaces of DittoMX and the
// process-wide Prometheus registry backing them.
//
// Metrics are optional: until InitRegistry is called, constructors in
// pkg/metrics/prometheus return no-op implementations, so a server without
// a metrics section in its configuration pays nothing for them.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	mxMetrics := prometheus.NewMXMetrics()
//
//	// Or use nil for no-op behavior
//	adapter := mx.New(config, nil) // No metrics
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read by every constructor
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// Call it before creating metrics instances. Subsequent calls are ignored.
// Go runtime and process collectors are registered alongside the DittoMX
// metrics.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called, indicating metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
