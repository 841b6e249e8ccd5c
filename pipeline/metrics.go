package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "integrator"

// Metrics exports pipeline counters to prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	generated           prometheus.Counter
	processed           prometheus.Counter
	failures            prometheus.Counter
	violations          prometheus.Counter
	lockCancellations   *prometheus.CounterVec
	integrationDuration prometheus.Histogram
}

// NewMetrics creates the pipeline collectors and registers them in reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_generated_total",
			Help:      "Tasks published by the generator.",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Tasks completed by the integrator, failed ones included.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integration_failures_total",
			Help:      "Tasks whose integration returned an error.",
		}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Observed counter invariant violations.",
		}),
		lockCancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_cancellations_total",
			Help:      "Lock acquisitions abandoned because the run was cancelled.",
		}, []string{"worker"}),
		integrationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "integration_duration_seconds",
			Help:      "Time spent in a single integration call.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.generated, m.processed, m.failures, m.violations, m.lockCancellations, m.integrationDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) taskGenerated() {
	if m != nil {
		m.generated.Inc()
	}
}

func (m *Metrics) taskProcessed() {
	if m != nil {
		m.processed.Inc()
	}
}

func (m *Metrics) integrationFailed() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) invariantViolated() {
	if m != nil {
		m.violations.Inc()
	}
}

func (m *Metrics) lockCancelled(worker string) {
	if m != nil {
		m.lockCancellations.WithLabelValues(worker).Inc()
	}
}

func (m *Metrics) observeIntegration(d time.Duration) {
	if m != nil {
		m.integrationDuration.Observe(d.Seconds())
	}
}
