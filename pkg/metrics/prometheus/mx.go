// Package prometheus implements the metrics interfaces on top of the
// global Prometheus registry.
package prometheus

import (
	"time"

	"github.com/marmos91/dittomx/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// mxMetrics is the Prometheus implementation of metrics.MXMetrics.
type mxMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       *prometheus.GaugeVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	notificationsSent      prometheus.Counter
	notificationsDropped   *prometheus.CounterVec
	streamErrors           *prometheus.CounterVec
}

// NewMXMetrics creates a Prometheus-backed MXMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewMXMetrics() metrics.MXMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopMXMetrics()
	}

	reg := metrics.GetRegistry()

	return &mxMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittomx_requests_total",
				Help: "Total number of requests by kind, status and error kind",
			},
			[]string{"kind", "status", "error_kind"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittomx_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds",
				Buckets: []float64{
					0.1,  // 100µs
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"kind"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittomx_requests_in_flight",
				Help: "Current number of requests being processed",
			},
			[]string{"kind"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittomx_active_connections",
				Help: "Current number of active connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittomx_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittomx_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittomx_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
		notificationsSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittomx_notifications_sent_total",
				Help: "Total number of notifications written to clients",
			},
		),
		notificationsDropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittomx_notifications_dropped_total",
				Help: "Total number of notifications not delivered, by reason",
			},
			[]string{"reason"},
		),
		streamErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittomx_stream_errors_total",
				Help: "Total number of connections ended by a read failure, by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *mxMetrics) RecordRequest(kind string, duration time.Duration, errorKind string) {
	status := "success"
	if errorKind != "" {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(kind, status, errorKind).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *mxMetrics) RecordRequestStart(kind string) {
	m.requestsInFlight.WithLabelValues(kind).Inc()
}

func (m *mxMetrics) RecordRequestEnd(kind string) {
	m.requestsInFlight.WithLabelValues(kind).Dec()
}

func (m *mxMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *mxMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *mxMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *mxMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *mxMetrics) RecordNotificationSent() {
	m.notificationsSent.Inc()
}

func (m *mxMetrics) RecordNotificationDropped(reason string) {
	m.notificationsDropped.WithLabelValues(reason).Inc()
}

func (m *mxMetrics) RecordStreamError(reason string) {
	m.streamErrors.WithLabelValues(reason).Inc()
}
