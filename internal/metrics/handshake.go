package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HandshakesInitiated tracks handshakes started, by role.
	HandshakesInitiated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "initiated_total",
			Help:      "Total handshakes initiated",
		},
		[]string{"role"}, // initiator, responder
	)

	// HandshakesCompleted tracks handshake completion, by status.
	HandshakesCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "completed_total",
			Help:      "Total handshakes completed",
		},
		[]string{"status"}, // success, failure
	)

	// CatchUpManifests counts manifests fetched during sync catch-up.
	CatchUpManifests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "catchup_manifests_total",
			Help:      "Total manifests retrieved while catching up with a provider",
		},
		[]string{"provider"},
	)
)
