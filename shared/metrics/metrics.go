package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the realtime client.
type Metrics struct {
	// Connection metrics
	ConnectsTotal     prometheus.Counter
	ConnectFailures   prometheus.Counter
	ReconnectsTotal   prometheus.Counter
	ConnectionsActive prometheus.Gauge

	// Frame metrics
	FramesReceived *prometheus.CounterVec
	FramesSent     prometheus.Counter
	DecodeFailures prometheus.Counter
	SendsDropped   prometheus.Counter

	// API client metrics
	APIRequestsTotal *prometheus.CounterVec
	APIRequestErrors *prometheus.CounterVec

	// Notification metrics
	NotificationsTotal   *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
}

// New creates and registers all metrics against the given registerer.
func New(namespace, service string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "ws_connects_total",
				Help:      "Total number of websocket connections established",
			},
		),
		ConnectFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "ws_connect_failures_total",
				Help:      "Total number of failed websocket dial attempts",
			},
		),
		ReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "ws_reconnects_total",
				Help:      "Total number of reconnect attempts after abnormal closes",
			},
		),
		ConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "ws_connections_active",
				Help:      "Number of currently open websocket transports",
			},
		),
		FramesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "ws_frames_received_total",
				Help:      "Total number of inbound frames by type",
			},
			[]string{"type"},
		),
		FramesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "ws_frames_sent_total",
				Help:      "Total number of outbound frames",
			},
		),
		DecodeFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "ws_decode_failures_total",
				Help:      "Total number of inbound frames dropped because they failed to decode",
			},
		),
		SendsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "ws_sends_dropped_total",
				Help:      "Total number of sends refused because the transport was not open",
			},
		),
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "operation", "status"},
		),
		APIRequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "api_request_errors_total",
				Help:      "Total number of API request errors by type",
			},
			[]string{"operation", "error_type"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "notifications_total",
				Help:      "Total number of user-facing notifications by kind",
			},
			[]string{"kind"},
		),
		NotificationsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "notifications_dropped_total",
				Help:      "Total number of notifications dropped because the sink was full",
			},
		),
	}
}

// NewDefault registers against the default Prometheus registerer.
func NewDefault(namespace, service string) *Metrics {
	return New(namespace, service, prometheus.DefaultRegisterer)
}

// Nop returns metrics backed by a throwaway registry, for tests and callers
// that do not care about observability.
func Nop() *Metrics {
	return New("timebank", "test", prometheus.NewRegistry())
}
