// Package metrics exports the service's Prometheus metrics.
//
// A single *Metrics owns an isolated registry and the /metrics server. It
// is handed to the pool manager and the search orchestrator as their
// Observer, so connection acquires, credential rotations, strategy attempts
// and whole searches are counted without those packages importing
// Prometheus. Cache statistics are read at scrape time.
//
// Exported families (before the optional namespace prefix):
//
//	http_requests_total{route,code}
//	http_request_duration_seconds{route}
//	search_requests_total{strategy,outcome}
//	search_duration_seconds{strategy}
//	search_strategy_attempts_total{strategy,result}
//	search_strategy_duration_seconds{strategy}
//	pool_acquire_total{result}
//	pool_acquire_wait_seconds{result}
//	pool_rotations_total{result}
//	pool_connections{state}
//	pool_draining_generations
//	pool_lease_expiry_timestamp_seconds
//	cache_hits{cache}, cache_misses{cache}, cache_entries{cache}
//
// Every series carries a constant service label.
//
// Configuration via environment:
//
//	METRICS_ADDRESS=:9090
//	METRICS_ENABLE_DEFAULT_COLLECTORS=true
//	METRICS_NAMESPACE=cs
//	METRICS_SERVICE_NAME=receipt-lookup
package metrics
