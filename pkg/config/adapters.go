package config

import (
	"fmt"

	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/adapter/mx"
	"github.com/marmos91/dittomx/pkg/adapter/ws"
	"github.com/marmos91/dittomx/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Both adapters run the same connection engine and share one metrics
// collector.
//
// Parameters:
//   - cfg: The complete DittoMX configuration
//   - mxMetrics: Optional metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, mxMetrics metrics.MXMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.MX.Enabled {
		adapters = append(adapters, mx.New(cfg.Adapters.MX, mxMetrics))
	}

	if cfg.Adapters.WebSocket.Enabled {
		adapters = append(adapters, ws.New(cfg.Adapters.WebSocket, mxMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
