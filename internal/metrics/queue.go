package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KobjQueueDepth tracks the size of the pipeline's inbound FIFO.
	KobjQueueDepth = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "kobj_depth",
			Help:      "Current depth of the KO processing queue",
		},
	)

	// EventQueueDepth tracks per-peer webhook queue depth.
	EventQueueDepth = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "event_depth",
			Help:      "Current depth of a peer's webhook event queue",
		},
		[]string{"peer"},
	)

	// PollBufferDepth tracks per-peer poll-buffer depth.
	PollBufferDepth = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "poll_buffer_depth",
			Help:      "Current depth of a peer's poll event buffer",
		},
		[]string{"peer"},
	)

	// PeerFailures counts all webhook delivery failures by peer; it is
	// never reset on a successful delivery.
	PeerFailures = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "peer_delivery_failures_total",
			Help:      "Total webhook delivery failures, by peer",
		},
		[]string{"peer"},
	)

	// HandshakeRecoveries counts forced re-handshakes triggered by the
	// peer failure-count threshold.
	HandshakeRecoveries = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "handshake_recoveries_total",
			Help:      "Total handshake-recovery attempts triggered by repeated delivery failure",
		},
		[]string{"peer"},
	)
)
