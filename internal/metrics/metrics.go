package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes dispatch counters and latencies. It satisfies
// dispatch.Recorder.
type Recorder struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rejected   *prometheus.CounterVec
	dlq        prometheus.Counter
}

// New registers the dispatch metrics on reg. A nil registerer uses the
// default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_total",
				Help: "Completed dispatches by segment and outcome",
			},
			[]string{"segment", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_duration_seconds",
				Help:    "Duration of the outbound send call",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"segment"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_rejected_total",
				Help: "Dispatcher operations rejected before any network call",
			},
			[]string{"reason"},
		),
		dlq: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_dlq_total",
				Help: "Dispatch commands routed to the dead letter topic",
			},
		),
	}
}

func (r *Recorder) ObserveDispatch(segment, outcome string, elapsed time.Duration) {
	r.dispatches.WithLabelValues(segment, outcome).Inc()
	r.duration.WithLabelValues(segment).Observe(elapsed.Seconds())
}

func (r *Recorder) Rejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

// DeadLettered counts one command sent to the DLQ.
func (r *Recorder) DeadLettered() {
	r.dlq.Inc()
}
