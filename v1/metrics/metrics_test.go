package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/search"
)

func newTestMetrics() *Metrics {
	return NewMetrics(Config{ServiceName: "receipt-lookup-test"})
}

func TestObserveSearch(t *testing.T) {
	m := newTestMetrics()

	m.ObserveSearch(search.StrategyFuzzy, "", false, 20*time.Millisecond)
	m.ObserveSearch(search.StrategySemantic, "", true, 30*time.Millisecond)
	m.ObserveSearch("", search.KindValidation, false, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchesTotal.WithLabelValues("fuzzy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchesTotal.WithLabelValues("semantic", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchesTotal.WithLabelValues("none", "validation")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.searchDuration))
}

func TestObserveStrategy(t *testing.T) {
	m := newTestMetrics()

	m.ObserveStrategy(search.StrategyFuzzy, "timeout", 5*time.Second)
	m.ObserveStrategy(search.StrategySemantic, "hit", 100*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.strategyTotal.WithLabelValues("fuzzy", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.strategyTotal.WithLabelValues("semantic", "hit")))
}

func TestPoolObserver(t *testing.T) {
	m := newTestMetrics()
	expires := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveAcquire("ok", time.Millisecond)
	m.ObserveAcquire("exhausted", 30*time.Second)
	m.ObserveRotation("ok")
	m.ObservePoolStats(pool.ManagerStats{
		Stats:          pool.Stats{Open: 4, Idle: 3, InUse: 1, Max: 10},
		Draining:       1,
		LeaseExpiresAt: expires,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.acquireTotal.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rotationsTotal.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.connections.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("in_use")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.connections.WithLabelValues("max")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.draining.WithLabelValues()))
	assert.Equal(t, float64(expires.Unix()), testutil.ToFloat64(m.leaseExpiry.WithLabelValues()))
}

func TestRegisterCacheReadsAtScrape(t *testing.T) {
	m := newTestMetrics()
	store := cache.NewMemoryStore(10, time.Minute)
	m.RegisterCache("receipts", store.Stats)

	_, _, _ = store.Get(t.Context(), "missing")

	expected := `
# HELP cache_misses Cache misses since start.
# TYPE cache_misses gauge
cache_misses{cache="receipts",service="receipt-lookup-test"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "cache_misses"))
}

func TestMetricsHandlerServesServiceLabel(t *testing.T) {
	m := newTestMetrics()
	m.RecordRequest("/v1/search", http.StatusOK, time.Now())

	rec := httptest.NewRecorder()
	m.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{code="200",route="/v1/search",service="receipt-lookup-test"} 1`)
}

func TestNamespacePrefix(t *testing.T) {
	m := NewMetrics(Config{Namespace: "cs", ServiceName: "x"})
	m.ObserveRotation("error")

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cs_pool_rotations_total")
}
