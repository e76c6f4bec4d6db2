// Package metrics provides Prometheus metrics for the SaltyRTC relay
// server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "saltyrtc"
)

// Metrics contains all Prometheus metrics the relay server exposes.
type Metrics struct {
	// Path/connection metrics
	PathsActive         prometheus.Gauge
	ConnectionsActive   *prometheus.GaugeVec
	ConnectionsTotal    *prometheus.CounterVec
	ConnectionsDropped  *prometheus.CounterVec

	// Handshake metrics
	ClientHandshakes       *prometheus.CounterVec
	ClientHandshakeErrors  *prometheus.CounterVec
	ClientHandshakeLatency prometheus.Histogram

	// Relay metrics
	FramesRelayed   prometheus.Counter
	BytesRelayed    prometheus.Counter
	SendErrors      prometheus.Counter
	ResponderDrops  *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance, registered against the
// global Prometheus registry on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered against the global
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom
// registry, for tests that want an isolated registry per case.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PathsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paths_active",
			Help:      "Number of signaling paths (initiator permanent keys) currently served",
		}),
		ConnectionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently connected clients by role",
		}, []string{"role"}),
		ConnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total client connections accepted by role",
		}, []string{"role"}),
		ConnectionsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_dropped_total",
			Help:      "Total connections closed with a non-normal close code, by reason",
		}, []string{"reason"}),

		ClientHandshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_handshakes_total",
			Help:      "Total completed client<->server handshakes by role",
		}, []string{"role"}),
		ClientHandshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_handshake_errors_total",
			Help:      "Total client<->server handshake failures by reason",
		}, []string{"reason"}),
		ClientHandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "client_handshake_latency_seconds",
			Help:      "Histogram of client<->server handshake latency",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		FramesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Total peer-to-peer frames relayed verbatim",
		}),
		BytesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_relayed_total",
			Help:      "Total bytes relayed in peer-to-peer frames",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total send-error pushes emitted for undeliverable frames",
		}),
		ResponderDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responder_drops_total",
			Help:      "Total responders dropped by reason",
		}, []string{"reason"}),
	}
}

// RecordConnect records a newly accepted client connection for role
// ("initiator" or "responder").
func (m *Metrics) RecordConnect(role string) {
	m.ConnectionsActive.WithLabelValues(role).Inc()
	m.ConnectionsTotal.WithLabelValues(role).Inc()
}

// RecordDisconnect records a client connection ending.
func (m *Metrics) RecordDisconnect(role string) {
	m.ConnectionsActive.WithLabelValues(role).Dec()
}

// RecordDropped records a connection closed with a non-normal close code.
func (m *Metrics) RecordDropped(reason string) {
	m.ConnectionsDropped.WithLabelValues(reason).Inc()
}

// RecordHandshake records a completed client<->server handshake.
func (m *Metrics) RecordHandshake(role string, latencySeconds float64) {
	m.ClientHandshakes.WithLabelValues(role).Inc()
	m.ClientHandshakeLatency.Observe(latencySeconds)
}

// RecordHandshakeError records a failed client<->server handshake.
func (m *Metrics) RecordHandshakeError(reason string) {
	m.ClientHandshakeErrors.WithLabelValues(reason).Inc()
}

// RecordRelayedFrame records one peer-to-peer frame relayed verbatim.
func (m *Metrics) RecordRelayedFrame(bytes int) {
	m.FramesRelayed.Inc()
	m.BytesRelayed.Add(float64(bytes))
}

// RecordSendError records a send-error push to an undeliverable frame's sender.
func (m *Metrics) RecordSendError() {
	m.SendErrors.Inc()
}

// RecordResponderDrop records a responder being dropped, by reason
// ("dropped_by_initiator", "path_full", "disconnected").
func (m *Metrics) RecordResponderDrop(reason string) {
	m.ResponderDrops.WithLabelValues(reason).Inc()
}

// SetPathsActive sets the current number of served signaling paths.
func (m *Metrics) SetPathsActive(count int) {
	m.PathsActive.Set(float64(count))
}
