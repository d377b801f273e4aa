package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VersionWrites counts committed version transitions by entity kind and change type.
	VersionWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrikator_version_writes_total",
			Help: "Total number of committed version transitions",
		},
		[]string{"entity", "change_type"},
	)

	// VersionConflicts counts version-number collisions, split by final outcome
	// (retried|exhausted).
	VersionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrikator_version_conflicts_total",
			Help: "Total number of version number conflicts observed by the retry loop",
		},
		[]string{"entity", "outcome"},
	)

	// SuggestionItems counts reconciled suggestion items by result (applied|failed).
	SuggestionItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrikator_suggestion_items_total",
			Help: "Total number of suggestion items reconciled into versions",
		},
		[]string{"context", "result"},
	)

	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrikator_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabrikator_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
