package config

import (
	"github.com/marmos91/dittomx/pkg/metrics"
	promMetrics "github.com/marmos91/dittomx/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// MXMetrics is the collector shared by the adapters (never nil, uses noop if disabled)
	MXMetrics metrics.MXMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates the Prometheus-backed collector
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns a no-op collector (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Server:    nil,
			MXMetrics: metrics.NewNoopMXMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:    server,
		MXMetrics: promMetrics.NewMXMetrics(),
	}
}
