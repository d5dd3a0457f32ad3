// Package metrics holds the Prometheus collectors of one partition node.
package metrics

import (
	"net/http"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "dhtrecords"

// Metrics is a registry plus the collectors registered on it.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
type Metrics struct {
	Registry *prometheus.Registry

	GRPCServer *grpcprometheus.ServerMetrics
	GRPCClient *grpcprometheus.ClientMetrics

	recordOps      *prometheus.CounterVec
	indexEdges     *prometheus.CounterVec
	oneSidedPairs  *prometheus.CounterVec
	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
}

// New creates collectors for partition and registers them on a fresh
// registry.
func New(partition string) *Metrics {
	labels := prometheus.Labels{"partition": partition}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		GRPCServer: grpcprometheus.NewServerMetrics(
			func(c *prometheus.CounterOpts) {
				c.Namespace = Namespace
				c.ConstLabels = labels
			},
		),
		GRPCClient: grpcprometheus.NewClientMetrics(
			func(c *prometheus.CounterOpts) {
				c.Namespace = Namespace
				c.ConstLabels = labels
			},
		),
		recordOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   "records",
			Name:        "operations_total",
			Help:        "Record store operations by entry type, operation and result code.",
			ConstLabels: labels,
		}, []string{"entry_type", "op", "result"}),
		indexEdges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   "indexes",
			Name:        "edges_total",
			Help:        "Index edges written by link type and change (added, removed).",
			ConstLabels: labels,
		}, []string{"link_type", "change"}),
		oneSidedPairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   "indexes",
			Name:        "one_sided_pairs_total",
			Help:        "Remote index pairs left with only the local edge written.",
			ConstLabels: labels,
		}, []string{"remote_partition"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   "rpc",
			Name:        "calls_total",
			Help:        "Cross-partition calls by target partition and outcome.",
			ConstLabels: labels,
		}, []string{"target", "outcome"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   Namespace,
			Subsystem:   "rpc",
			Name:        "call_duration_seconds",
			Help:        "Cross-partition call latency.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"target"}),
	}

	m.GRPCServer.EnableHandlingTimeHistogram(
		func(h *prometheus.HistogramOpts) {
			h.Namespace = Namespace
			h.ConstLabels = labels
		},
	)
	m.Registry.MustRegister(
		m.GRPCServer,
		m.GRPCClient,
		m.recordOps,
		m.indexEdges,
		m.oneSidedPairs,
		m.remoteCalls,
		m.remoteDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordOp counts one record operation. result is "ok" or an error code.
func (m *Metrics) RecordOp(entryType, op, result string) {
	if m == nil {
		return
	}
	m.recordOps.WithLabelValues(entryType, op, result).Inc()
}

// IndexEdges counts edges added and removed under linkType.
func (m *Metrics) IndexEdges(linkType string, added, removed int) {
	if m == nil {
		return
	}
	if added > 0 {
		m.indexEdges.WithLabelValues(linkType, "added").Add(float64(added))
	}
	if removed > 0 {
		m.indexEdges.WithLabelValues(linkType, "removed").Add(float64(removed))
	}
}

// OneSidedPair counts a remote pair whose reciprocal write failed.
func (m *Metrics) OneSidedPair(remote string) {
	if m == nil {
		return
	}
	m.oneSidedPairs.WithLabelValues(remote).Inc()
}

// RemoteCall counts one outbound call and observes its latency.
func (m *Metrics) RemoteCall(target, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(target, outcome).Inc()
	m.remoteDuration.WithLabelValues(target).Observe(seconds)
}
