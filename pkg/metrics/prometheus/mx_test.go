package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marmos91/dittomx/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMXMetrics(t *testing.T) {
	metrics.InitRegistry()

	m, ok := NewMXMetrics().(*mxMetrics)
	require.True(t, ok, "expected prometheus implementation once the registry exists")

	m.RecordRequest("LOGON", 2*time.Millisecond, "")
	m.RecordRequest("EXECUTE:getAttribute", time.Millisecond, "TargetNotFound")
	m.RecordConnectionAccepted()
	m.SetActiveConnections(4)
	m.RecordNotificationSent()
	m.RecordNotificationDropped("stopped")
	m.RecordStreamError("malformed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("LOGON", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("EXECUTE:getAttribute", "error", "TargetNotFound")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.activeConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsDropped.WithLabelValues("stopped")))

	srv := httptest.NewServer(metrics.Routes(9090))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
