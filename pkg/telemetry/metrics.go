package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide metrics exposed on /metrics. Registered on the default
// registry so promhttp.Handler() picks them up.
var (
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkchat_store_mutations_total",
		Help: "Store mutations applied, by operation.",
	}, []string{"op"})

	MutationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkchat_store_mutation_errors_total",
		Help: "Store mutations rejected, by operation.",
	}, []string{"op"})

	ResolveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forkchat_context_resolve_seconds",
		Help:    "Context resolution latency.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
	})

	ResolvedMessages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forkchat_context_resolved_messages",
		Help:    "Size of resolved contexts in messages.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	SnapshotSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forkchat_snapshot_saves_total",
		Help: "Snapshot writes that reached the store.",
	})

	SnapshotSaveErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forkchat_snapshot_save_errors_total",
		Help: "Snapshot writes that failed.",
	})

	ModelRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkchat_model_requests_total",
		Help: "Upstream model requests, by outcome.",
	}, []string{"outcome"})

	ModelStreamDeltasTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forkchat_model_stream_deltas_total",
		Help: "Streaming content deltas relayed to clients.",
	})
)
