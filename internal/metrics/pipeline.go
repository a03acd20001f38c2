package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KobjsProcessed counts KOs that finished (or aborted) the pipeline.
	KobjsProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "kobjs_processed_total",
			Help:      "Total knowledge objects that finished the pipeline",
		},
		[]string{"outcome"}, // admitted, dropped, aborted
	)

	// StageDuration tracks per-stage handler-chain latency.
	StageDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of a single pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"stage"},
	)

	// HandlerAborts counts STOP_CHAIN returns, by stage.
	HandlerAborts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "handler_aborts_total",
			Help:      "Total pipeline aborts triggered by a handler",
		},
		[]string{"stage"},
	)

	// CacheMutations counts cache writes/deletes applied by the pipeline.
	CacheMutations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cache_mutations_total",
			Help:      "Total cache writes and deletes applied from admitted events",
		},
		[]string{"op"}, // write, delete
	)

	// GraphRegenerations counts NetworkGraph rebuilds.
	GraphRegenerations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "graph_regenerations_total",
			Help:      "Total NetworkGraph rebuilds triggered by node/edge mutation",
		},
	)
)
