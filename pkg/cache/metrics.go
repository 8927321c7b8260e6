package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ManagerErrors tracks storage backend failures by operation.
	ManagerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpcache_manager_errors_total",
			Help: "Total number of cache manager operation errors",
		},
		[]string{"operation"}, // "get", "put", "delete"
	)

	// DecodeFailures tracks stored entries that could not be decoded
	// (corrupt bytes or incompatible format version). Each one degrades
	// to a cache miss.
	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_decode_failures_total",
			Help: "Total number of stored entries that failed to decode",
		},
	)

	// EntriesStored tracks successful entry writes.
	EntriesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_entries_stored_total",
			Help: "Total number of cache entries written",
		},
	)

	// EntryBytes observes the encoded size of stored entries.
	EntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "httpcache_entry_size_bytes",
			Help:    "Encoded size of stored cache entries in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
	)
)
