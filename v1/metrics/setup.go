package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service registry, the /metrics server and every
// collector the service exports. It implements search.Observer and
// pool.Observer.
type Metrics struct {
	// Server exposes /metrics.
	Server *http.Server

	// Registry holds only this service's collectors.
	Registry *prometheus.Registry

	registerer prometheus.Registerer
	namespace  string

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	searchesTotal    *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	strategyTotal    *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec

	acquireTotal   *prometheus.CounterVec
	acquireWait    *prometheus.HistogramVec
	rotationsTotal *prometheus.CounterVec
	connections    *prometheus.GaugeVec
	draining       *prometheus.GaugeVec
	leaseExpiry    *prometheus.GaugeVec
}

var (
	latencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30}
	waitBuckets    = []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10, 30}
)

// NewMetrics builds an isolated registry whose collectors all carry a
// constant service label, registers the service collectors and prepares
// the HTTP server. The server is started by RegisterMetricsLifecycle.
func NewMetrics(cfg Config) *Metrics {
	if cfg.Address == "" {
		cfg.Address = DefaultMetricsAddress
	}

	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": cfg.ServiceName}, registry)

	m := &Metrics{
		Registry:   registry,
		registerer: wrapped,
		namespace:  cfg.Namespace,
	}

	ns := cfg.Namespace
	m.requestsTotal = createCounterVec(ns, "http_requests_total", "HTTP requests by route and status code.", []string{"route", "code"})
	m.requestDuration = createHistogramVec(ns, "http_request_duration_seconds", "HTTP request latency by route.", []string{"route"}, latencyBuckets)

	m.searchesTotal = createCounterVec(ns, "search_requests_total", "Searches by the strategy that answered and the outcome.", []string{"strategy", "outcome"})
	m.searchDuration = createHistogramVec(ns, "search_duration_seconds", "End-to-end search latency by answering strategy.", []string{"strategy"}, latencyBuckets)
	m.strategyTotal = createCounterVec(ns, "search_strategy_attempts_total", "Strategy attempts by result.", []string{"strategy", "result"})
	m.strategyDuration = createHistogramVec(ns, "search_strategy_duration_seconds", "Latency of one strategy attempt.", []string{"strategy"}, latencyBuckets)

	m.acquireTotal = createCounterVec(ns, "pool_acquire_total", "Connection acquires by result.", []string{"result"})
	m.acquireWait = createHistogramVec(ns, "pool_acquire_wait_seconds", "Time spent waiting for a connection.", []string{"result"}, waitBuckets)
	m.rotationsTotal = createCounterVec(ns, "pool_rotations_total", "Credential rotations by result.", []string{"result"})
	m.connections = createGaugeVec(ns, "pool_connections", "Connections of the active pool by state.", []string{"state"})
	m.draining = createGaugeVec(ns, "pool_draining_generations", "Retired pools still waiting for checked-out connections.", nil)
	m.leaseExpiry = createGaugeVec(ns, "pool_lease_expiry_timestamp_seconds", "Expiry of the active credential lease as a Unix timestamp.", nil)

	wrapped.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.searchesTotal,
		m.searchDuration,
		m.strategyTotal,
		m.strategyDuration,
		m.acquireTotal,
		m.acquireWait,
		m.rotationsTotal,
		m.connections,
		m.draining,
		m.leaseExpiry,
	)

	if cfg.EnableDefaultCollectors {
		wrapped.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	m.Server = &http.Server{
		Addr:    cfg.Address,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	return m
}

func createCounterVec(ns, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func createHistogramVec(ns, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

func createGaugeVec(ns, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}
