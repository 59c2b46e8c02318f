package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/search"
)

// RecordRequest counts one HTTP request and its latency. route is the
// chi route pattern, never the raw path.
func (m *Metrics) RecordRequest(route string, code int, start time.Time) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// ObserveStrategy implements search.Observer.
func (m *Metrics) ObserveStrategy(strategy search.Strategy, result string, d time.Duration) {
	m.strategyTotal.WithLabelValues(string(strategy), result).Inc()
	m.strategyDuration.WithLabelValues(string(strategy)).Observe(d.Seconds())
}

// ObserveSearch implements search.Observer. Failed searches that never
// reached a strategy are labelled "none".
func (m *Metrics) ObserveSearch(strategy search.Strategy, kind string, degraded bool, d time.Duration) {
	s := string(strategy)
	if s == "" {
		s = "none"
	}
	outcome := "ok"
	switch {
	case kind != "":
		outcome = kind
	case degraded:
		outcome = "degraded"
	}
	m.searchesTotal.WithLabelValues(s, outcome).Inc()
	m.searchDuration.WithLabelValues(s).Observe(d.Seconds())
}

// ObserveAcquire implements pool.Observer.
func (m *Metrics) ObserveAcquire(result string, wait time.Duration) {
	m.acquireTotal.WithLabelValues(result).Inc()
	m.acquireWait.WithLabelValues(result).Observe(wait.Seconds())
}

// ObserveRotation implements pool.Observer.
func (m *Metrics) ObserveRotation(result string) {
	m.rotationsTotal.WithLabelValues(result).Inc()
}

// ObservePoolStats implements pool.Observer.
func (m *Metrics) ObservePoolStats(s pool.ManagerStats) {
	m.connections.WithLabelValues("open").Set(float64(s.Open))
	m.connections.WithLabelValues("idle").Set(float64(s.Idle))
	m.connections.WithLabelValues("in_use").Set(float64(s.InUse))
	m.connections.WithLabelValues("max").Set(float64(s.Max))
	m.draining.WithLabelValues().Set(float64(s.Draining))
	if !s.LeaseExpiresAt.IsZero() {
		m.leaseExpiry.WithLabelValues().Set(float64(s.LeaseExpiresAt.Unix()))
	}
}

// RegisterCache exports hit, miss and size gauges for a named cache,
// read from stats at scrape time.
func (m *Metrics) RegisterCache(name string, stats func() cache.Stats) {
	labels := prometheus.Labels{"cache": name}
	gauge := func(metric, help string, read func(cache.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return read(stats()) })
	}

	m.registerer.MustRegister(
		gauge("cache_hits", "Cache hits since start.", func(s cache.Stats) float64 { return float64(s.Hits) }),
		gauge("cache_misses", "Cache misses since start.", func(s cache.Stats) float64 { return float64(s.Misses) }),
		gauge("cache_entries", "Entries currently cached.", func(s cache.Stats) float64 { return float64(s.Size) }),
	)
}

var (
	_ search.Observer = (*Metrics)(nil)
	_ pool.Observer   = (*Metrics)(nil)
)
