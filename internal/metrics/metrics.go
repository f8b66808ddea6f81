// Package metrics wraps the Prometheus collectors the broker exposes on
// its ambient /metrics endpoint, following ws/internal/shared/monitoring
// and go-server/internal/metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector the broker updates.
type Registry struct {
	reg *prometheus.Registry

	ActiveConnections prometheus.Gauge
	ActiveChannels    prometheus.Gauge

	MessagesRouted  prometheus.Counter
	MessagesDropped *prometheus.CounterVec

	RequestsForwarded prometheus.Counter
	RequestsLocal     prometheus.Counter
	RequestsTimedOut  prometheus.Counter
	RequestsResolved  prometheus.Counter
	RequestsRejected  prometheus.Counter

	SlowConsumerDisconnects prometheus.Counter
	ProtocolErrors          prometheus.Counter

	RESTUpstreamLatency prometheus.Histogram
	RESTUpstreamErrors  *prometheus.CounterVec

	SniffHits prometheus.Counter
}

// NewRegistry constructs a private Prometheus registry and registers all
// collectors on it. A private registry (rather than the global default)
// keeps repeated construction in tests from panicking on double
// registration.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "broker_connections_active",
			Help: "Number of active WebSocket connections.",
		}),
		ActiveChannels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "broker_channels_active",
			Help: "Number of channels with at least one member.",
		}),
		MessagesRouted: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_messages_routed_total",
			Help: "Total envelopes successfully routed to at least one recipient.",
		}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_messages_dropped_total",
			Help: "Total envelopes dropped before routing, by reason.",
		}, []string{"reason"}),
		RequestsForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_requests_forwarded_total",
			Help: "Requests forwarded to executor members.",
		}),
		RequestsLocal: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_requests_local_total",
			Help: "Requests answered locally without forwarding.",
		}),
		RequestsTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_requests_timed_out_total",
			Help: "Pending requests rejected by timeout.",
		}),
		RequestsResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_requests_resolved_total",
			Help: "Pending requests resolved with a result.",
		}),
		RequestsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_requests_rejected_total",
			Help: "Pending requests rejected (non-timeout): disconnect, shutdown, cancellation.",
		}),
		SlowConsumerDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_slow_consumer_disconnects_total",
			Help: "Connections closed for exceeding the outbound queue bound.",
		}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_protocol_errors_total",
			Help: "Connections closed for oversized or malformed frames.",
		}),
		RESTUpstreamLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "broker_rest_upstream_latency_seconds",
			Help:    "Latency of outbound REST calls to the design-tool API.",
			Buckets: prometheus.DefBuckets,
		}),
		RESTUpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_rest_upstream_errors_total",
			Help: "Outbound REST calls that failed, by kind.",
		}, []string{"kind"}),
		SniffHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_sse_sniff_hits_total",
			Help: "Requests observed on the deprecated SSE migration endpoint.",
		}),
	}
}

// Handler exposes the registered collectors over HTTP.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
