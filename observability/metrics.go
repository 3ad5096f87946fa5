package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GraphQLRequests counts calls to the broker's GraphQL endpoint.
	GraphQLRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqdeck_graphql_requests_total",
		Help: "Total GraphQL requests issued to the broker",
	}, []string{"operation"})

	// GraphQLErrors counts failed GraphQL calls by failure kind.
	GraphQLErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqdeck_graphql_errors_total",
		Help: "Failed GraphQL requests (transport, graphql, server)",
	}, []string{"kind"})

	// GraphQLLatency tracks broker round-trip latency.
	GraphQLLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mqdeck_graphql_roundtrip_seconds",
		Help:    "GraphQL request latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	// SessionStoreDegraded is 1 while the session store is serving from
	// its in-memory fallback instead of Redis.
	SessionStoreDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mqdeck_session_store_degraded",
		Help: "Session key-value store degraded to in-memory fallback (1 = degraded)",
	})

	// SessionStoreFallbackWrites counts individual writes that degraded to
	// the in-memory map while Redis stayed enabled.
	SessionStoreFallbackWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqdeck_session_store_fallback_writes_total",
		Help: "Writes served by the in-memory fallback due to a single backend failure",
	})

	// EditorSaves counts save attempts by outcome.
	EditorSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqdeck_editor_saves_total",
		Help: "Entity save attempts",
	}, []string{"kind", "outcome"}) // outcome: ok, validation, remote

	// EditorReloads counts full entity reloads after successful mutations.
	EditorReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqdeck_editor_reloads_total",
		Help: "Full entity reloads triggered by successful mutations",
	}, []string{"kind"})

	// ListRefreshes counts polling refreshes by collection and trigger.
	ListRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqdeck_list_refreshes_total",
		Help: "Collection refreshes (timer ticks and forced reloads)",
	}, []string{"collection", "trigger"}) // trigger: interval, forced

	// ListRefreshDuration tracks how long a collection refresh takes.
	ListRefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mqdeck_list_refresh_duration_seconds",
		Help:    "Duration of a collection refresh round trip",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})

	// ProbeResults counts connectivity probe outcomes.
	ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqdeck_probe_results_total",
		Help: "Connectivity probe outcomes",
	}, []string{"target", "outcome"}) // target: mqtt, postgres

	// ConnectedViewers tracks the number of live WebSocket viewers.
	ConnectedViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mqdeck_connected_viewers",
		Help: "Current number of connected WebSocket viewers",
	})
)
