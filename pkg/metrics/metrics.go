// Package metrics exposes the Prometheus registry of the gateway.
// Collectors live in their own packages (cache, client, guard,
// invalidation) and register themselves through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all gateway collectors use.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - gateway_requests_total{method, outcome} (Counter): outcome is success, cached or a lower-case failure code
//   - gateway_request_duration_seconds{method} (Histogram): duration including retries
//   - gateway_errors_total{code} (Counter): failures by code
//
// Retry Metrics (pkg/client):
//   - gateway_retries_total (Counter): retries after 5xx
//   - gateway_retry_backoff_seconds (Histogram): backoff before each retry
//   - gateway_retry_exhausted_total (Counter): calls that spent the retry budget
//   - gateway_cache_fallbacks_total{result} (Counter): timeouts answered from cache (hit) or not (miss)
//
// Cache Metrics (pkg/cache):
//   - gateway_cache_hits_total (Counter)
//   - gateway_cache_misses_total (Counter)
//   - gateway_cache_evictions_total{reason} (Counter): reason is expired or capacity
//   - gateway_cache_entries (Gauge)
//
// Guard Metrics (pkg/guard):
//   - gateway_guard_decisions_total{check, result} (Counter): check is identity, role or ownership
//
// Invalidation Metrics (pkg/invalidation):
//   - gateway_invalidations_total{sink, result} (Counter)
//
// Example Prometheus Queries:
//
//   # Share of timeouts served stale
//   sum(rate(gateway_cache_fallbacks_total{result="hit"}[5m])) /
//   sum(rate(gateway_cache_fallbacks_total[5m]))
//
//   # Backend error rate by code
//   sum by (code) (rate(gateway_errors_total[5m]))
//
//   # P95 latency
//   histogram_quantile(0.95, rate(gateway_request_duration_seconds_bucket[5m]))
//
//   # Failing invalidation sinks
//   rate(gateway_invalidations_total{result="error"}[5m]) > 0
