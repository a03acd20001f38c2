package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutboundRequests counts RequestHandler calls by endpoint and outcome.
	OutboundRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "outbound_requests_total",
			Help:      "Total outbound signed RPC calls",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok, transport_error, protocol_error
	)

	// InboundRequests counts ResponseHandler dispatches by endpoint and outcome.
	InboundRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "inbound_requests_total",
			Help:      "Total inbound signed RPC calls handled",
		},
		[]string{"endpoint", "outcome"},
	)

	// EnvelopeVerifications counts secure-envelope verification outcomes.
	EnvelopeVerifications = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "secure",
			Name:      "envelope_verifications_total",
			Help:      "Total secure envelope verification attempts",
		},
		[]string{"outcome"}, // ok, unknown_source, invalid_signature, invalid_target, invalid_public_key
	)

	// RequestDuration tracks outbound RPC latency.
	RequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Outbound RPC request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)
