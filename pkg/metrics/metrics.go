package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkListSize is the size of the most recently built work list,
	// by phase.
	WorkListSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oneloop_work_list_size",
			Help: "Size of the most recent work list, by phase",
		},
		[]string{"phase"},
	)

	// PhaseDuration is wall-clock time to drain a phase's work list.
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oneloop_phase_duration_seconds",
			Help:    "Wall-clock time to drain a phase's work list",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	// DispatchQueueDepth is the number of items still awaiting
	// dispatch within the current phase.
	DispatchQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oneloop_dispatch_queue_depth",
			Help: "Items awaiting dispatch, by phase",
		},
		[]string{"phase"},
	)

	// IntegrationAttemptsTotal counts cubature attempts by kernel
	// kind and outcome (converged, retried, exhausted).
	IntegrationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneloop_integration_attempts_total",
			Help: "Cubature integration attempts by kernel kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// IntegrationDuration is wall-clock time for one integration
	// call including all retries.
	IntegrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oneloop_integration_duration_seconds",
			Help:    "Wall-clock time for one integration call, all attempts included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ResultsCommittedTotal counts result rows committed to the
	// store, by table.
	ResultsCommittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneloop_results_committed_total",
			Help: "Result rows committed to the store, by table",
		},
		[]string{"table"},
	)

	// TokensAssignedTotal counts new tokens minted by Tokenize, by
	// entity kind.
	TokensAssignedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneloop_tokens_assigned_total",
			Help: "New tokens minted by Tokenize, by entity kind",
		},
		[]string{"kind"},
	)

	// WorkersReady is the number of workers currently signalling
	// READY_FOR_WORK.
	WorkersReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oneloop_workers_ready",
			Help: "Workers currently idle and ready for dispatch",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WorkListSize,
		PhaseDuration,
		DispatchQueueDepth,
		IntegrationAttemptsTotal,
		IntegrationDuration,
		ResultsCommittedTotal,
		TokensAssignedTotal,
		WorkersReady,
	)
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the wall-clock span from its creation to an
// ObserveDurationVec call, in seconds.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer at the current instant.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDurationVec records the elapsed seconds into the labelled
// child of histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
