// Package metrics documents the Prometheus metrics exported by the
// caching layer. All metrics are defined in their respective packages
// (cache, client, transport) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the caching layer.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - httpcache_requests_total{cache_status} (Counter): Requests by cache status (hit, miss, revalidated, stale)
//   - httpcache_request_duration_seconds{cache_status} (Histogram): Request duration by cache status
//   - httpcache_background_revalidations_total{result} (Counter): Background revalidations by result
//   - httpcache_stale_fallbacks_total (Counter): Stale entries served in place of transport failures
//   - httpcache_invalidations_total (Counter): Slots invalidated by unsafe methods or no-store responses
//
// Storage Metrics (pkg/cache):
//   - httpcache_manager_errors_total{operation} (Counter): Backend failures by operation (get, put, delete)
//   - httpcache_decode_failures_total (Counter): Stored entries that failed to decode
//   - httpcache_entries_stored_total (Counter): Entries written
//   - httpcache_entry_size_bytes (Histogram): Encoded entry sizes
//
// Transport Metrics (pkg/transport):
//   - httpcache_transport_retries_total{error_class} (Counter): Retry attempts by error class
//   - httpcache_transport_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(httpcache_requests_total{cache_status="hit"}[5m])) /
//   sum(rate(httpcache_requests_total[5m]))
//
//   # Revalidation Success Rate
//   rate(httpcache_background_revalidations_total{result="updated"}[5m])
//
//   # Backend Health
//   rate(httpcache_manager_errors_total[5m])
//
//   # P95 Latency by Cache Status
//   histogram_quantile(0.95, rate(httpcache_request_duration_seconds_bucket[5m]))
