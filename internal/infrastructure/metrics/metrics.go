// Package metrics exposes Prometheus instrumentation for the Raptor-X
// control plane.
//
// It owns a private registry so tests can create independent instances
// without collector name collisions. The registry is served over HTTP at
// GET /metrics via Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all control-plane collectors.
//
// Thread Safety: all methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	proxyCalls   *prometheus.CounterVec
	proxyLatency *prometheus.HistogramVec
	jobsTotal    *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a
// fresh registry, including the standard Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		proxyCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raptorx",
			Subsystem: "gateway",
			Name:      "proxy_calls_total",
			Help:      "Proxied SUT calls by operation and outcome.",
		}, []string{"op", "outcome"}),

		proxyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raptorx",
			Subsystem: "gateway",
			Name:      "proxy_call_seconds",
			Help:      "Latency of proxied SUT calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 90},
		}, []string{"op"}),

		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raptorx",
			Subsystem: "inference",
			Name:      "jobs_total",
			Help:      "Completed inference jobs by terminal status.",
		}, []string{"status"}),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raptorx",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Runs reaching a terminal status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.proxyCalls,
		m.proxyLatency,
		m.jobsTotal,
		m.runsTotal,
	)

	return m
}

// ObserveProxyCall records one proxied SUT call. It satisfies the
// gateway's Metrics interface.
func (m *Metrics) ObserveProxyCall(op string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.proxyCalls.WithLabelValues(op, outcome).Inc()
	m.proxyLatency.WithLabelValues(op).Observe(seconds)
}

// JobCompleted records one inference job reaching a terminal status.
func (m *Metrics) JobCompleted(status string) {
	m.jobsTotal.WithLabelValues(status).Inc()
}

// RunCompleted records one run reaching a terminal status.
func (m *Metrics) RunCompleted(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}

// RegisterQueueDepth registers a gauge backed by fn, typically wired to
// the inference queue's current depth.
func (m *Metrics) RegisterQueueDepth(fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "raptorx",
		Subsystem: "inference",
		Name:      "queue_depth",
		Help:      "Jobs currently waiting in the inference queue.",
	}, fn))
}

// RegisterDeviceCount registers a gauge backed by fn, typically wired to
// the device registry's record count.
func (m *Metrics) RegisterDeviceCount(fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "raptorx",
		Subsystem: "devices",
		Name:      "registered",
		Help:      "Devices currently in the registry.",
	}, fn))
}

// Handler returns the HTTP handler serving the registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
