package metrics

import "time"

// MXMetrics provides observability for DittoMX connections.
//
// Implementations collect metrics about requests, connection lifecycle,
// notification delivery and framing errors. This interface is optional -
// adapters fall back to a no-op implementation with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	adapter := mx.New(config, prometheus.NewMXMetrics())
//
//	// Without metrics (no-op)
//	adapter := mx.New(config, nil)
type MXMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - kind: Request kind (e.g., "LOGON", "EXECUTE:getAttribute")
	//   - duration: Time taken to produce the response
	//   - errorKind: Error kind of the response, "" on success
	RecordRequest(kind string, duration time.Duration, errorKind string)

	// RecordRequestStart increments the in-flight counter for kind.
	RecordRequestStart(kind string)

	// RecordRequestEnd decrements the in-flight counter for kind.
	RecordRequestEnd(kind string)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed because the
	// shutdown timeout expired.
	RecordConnectionForceClosed()

	// RecordNotificationSent counts a notification written to a client.
	RecordNotificationSent()

	// RecordNotificationDropped counts a notification that was not written.
	//
	// Parameters:
	//   - reason: "stopped", "unsubscribed", "encode" or "write"
	RecordNotificationDropped(reason string)

	// RecordStreamError counts connections ended by a read failure.
	//
	// Parameters:
	//   - reason: "eof", "malformed", "too_large", "timeout" or "io"
	RecordStreamError(reason string)
}

// NewNoopMXMetrics returns an MXMetrics that records nothing.
func NewNoopMXMetrics() MXMetrics {
	return noopMXMetrics{}
}

// noopMXMetrics is a no-op implementation of MXMetrics with zero overhead.
type noopMXMetrics struct{}

func (noopMXMetrics) RecordRequest(kind string, duration time.Duration, errorKind string) {}
func (noopMXMetrics) RecordRequestStart(kind string)                                      {}
func (noopMXMetrics) RecordRequestEnd(kind string)                                        {}
func (noopMXMetrics) SetActiveConnections(count int32)                                    {}
func (noopMXMetrics) RecordConnectionAccepted()                                           {}
func (noopMXMetrics) RecordConnectionClosed()                                             {}
func (noopMXMetrics) RecordConnectionForceClosed()                                        {}
func (noopMXMetrics) RecordNotificationSent()                                             {}
func (noopMXMetrics) RecordNotificationDropped(reason string)                             {}
func (noopMXMetrics) RecordStreamError(reason string)                                     {}
