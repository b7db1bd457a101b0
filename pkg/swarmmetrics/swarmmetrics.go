// Package swarmmetrics exposes Prometheus counters for the engine's
// submission, worker-reap, and IPC-drain paths.
package swarmmetrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every counter the engine increments during one
// submission. A nil *Registry is valid and every method becomes a no-op,
// so callers that don't care about metrics can skip wiring one up.
type Registry struct {
	InstructionsSubmitted prometheus.Counter
	WorkersReaped         *prometheus.CounterVec
	IPCRecordsDrained     prometheus.Counter
	TransportStatus       *prometheus.CounterVec
}

// NewRegistry constructs a Registry and registers its collectors with reg.
// Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose these alongside process metrics.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		InstructionsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmreq",
			Name:      "instructions_submitted_total",
			Help:      "Total number of request descriptors submitted to Execute.",
		}),
		WorkersReaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmreq",
			Name:      "workers_reaped_total",
			Help:      "Total number of worker processes reaped, by exit classification.",
		}, []string{"result"}),
		IPCRecordsDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmreq",
			Name:      "ipc_records_drained_total",
			Help:      "Total number of records drained from worker shared segments.",
		}),
		TransportStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmreq",
			Name:      "transport_status_total",
			Help:      "Total number of completed dispatches, by transport outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.InstructionsSubmitted, r.WorkersReaped, r.IPCRecordsDrained, r.TransportStatus)
	return r
}

// ObserveSubmission records n instructions having been submitted.
func (r *Registry) ObserveSubmission(n int) {
	if r == nil {
		return
	}
	r.InstructionsSubmitted.Add(float64(n))
}

// ObserveWorkerReaped records one worker reaped with the given
// classification ("normal", "timeout", or "signal").
func (r *Registry) ObserveWorkerReaped(result string) {
	if r == nil {
		return
	}
	r.WorkersReaped.WithLabelValues(result).Inc()
}

// ObserveRecordsDrained records n records drained from a worker's segment.
func (r *Registry) ObserveRecordsDrained(n int) {
	if r == nil {
		return
	}
	r.IPCRecordsDrained.Add(float64(n))
}

// ObserveTransportStatus records one dispatch's transport outcome ("ok" or
// "error").
func (r *Registry) ObserveTransportStatus(outcome string) {
	if r == nil {
		return
	}
	r.TransportStatus.WithLabelValues(outcome).Inc()
}
