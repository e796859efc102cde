// Package gwmetrics provides optional Prometheus instrumentation for
// the flush and dispatch hot paths. It is an enrichment borrowed from
// the rest of the example pack (linkerd-linkerd2's pervasive
// prometheus/client_golang usage) rather than from the teacher, which
// has no metrics package in its scoped slice.
package gwmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder observes gateway-core events. A nil *Recorder is valid and
// records nothing, so metrics remain fully optional.
type Recorder struct {
	flushesTotal    *prometheus.CounterVec
	flushBytes      *prometheus.CounterVec
	flushDuration   *prometheus.HistogramVec
	dispatchedTotal *prometheus.CounterVec
	usersActive     prometheus.Gauge
	usersPending    prometheus.Gauge
}

// NewRecorder creates a Recorder and registers its collectors with
// reg. Pass prometheus.NewRegistry() in tests to avoid colliding with
// the global default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		flushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskgate",
			Subsystem: "surface",
			Name:      "flushes_total",
			Help:      "Number of surface regions flushed, by encoding format.",
		}, []string{"format"}),
		flushBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskgate",
			Subsystem: "surface",
			Name:      "flush_bytes_total",
			Help:      "Bytes emitted by surface flushes, by encoding format.",
		}, []string{"format"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deskgate",
			Subsystem: "surface",
			Name:      "flush_duration_seconds",
			Help:      "Time spent encoding and emitting a flushed region.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		dispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskgate",
			Subsystem: "session",
			Name:      "instructions_dispatched_total",
			Help:      "Instructions dispatched, by opcode: inbound instructions handled by the session plus rect/copy/img emitted by surface flushes.",
		}, []string{"opcode"}),
		usersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskgate",
			Subsystem: "session",
			Name:      "users_active",
			Help:      "Current number of active (promoted) users.",
		}),
		usersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskgate",
			Subsystem: "session",
			Name:      "users_pending",
			Help:      "Current number of pending (not yet promoted) users.",
		}),
	}
	reg.MustRegister(r.flushesTotal, r.flushBytes, r.flushDuration,
		r.dispatchedTotal, r.usersActive, r.usersPending)
	return r
}

// ObserveFlush records one encoded-and-emitted region.
func (r *Recorder) ObserveFlush(format string, bytes int, d time.Duration) {
	if r == nil {
		return
	}
	r.flushesTotal.WithLabelValues(format).Inc()
	r.flushBytes.WithLabelValues(format).Add(float64(bytes))
	r.flushDuration.WithLabelValues(format).Observe(d.Seconds())
}

// ObserveDispatch records one dispatched instruction by opcode: the
// session calls it for each inbound instruction it handles, and
// surfaces call it for each rect, copy, and img they emit.
func (r *Recorder) ObserveDispatch(opcode string) {
	if r == nil {
		return
	}
	r.dispatchedTotal.WithLabelValues(opcode).Inc()
}

// SetUserCounts updates the active/pending gauges.
func (r *Recorder) SetUserCounts(active, pending int) {
	if r == nil {
		return
	}
	r.usersActive.Set(float64(active))
	r.usersPending.Set(float64(pending))
}
