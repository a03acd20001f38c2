// Package metrics exposes Prometheus instrumentation for the pipeline,
// the outbound/inbound RPC layers, the per-peer queues, and the
// handshake flow, using a dedicated promauto registry rather than the
// global default one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "koi_net"

// Registry is a dedicated registry (rather than the global default) so
// a process embedding multiple nodes can run independent metrics
// servers without collector name collisions.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
