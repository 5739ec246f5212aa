package escalation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts sweep activity. All methods are nil-safe.
type Metrics struct {
	sweeps      prometheus.Counter
	sweepErrors prometheus.Counter
	raised      *prometheus.CounterVec
	resolved    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sweeps: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_escalation_sweeps_total",
			Help: "Completed escalation sweeps.",
		}),
		sweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_escalation_sweep_errors_total",
			Help: "Sweeps that finished with at least one error.",
		}),
		raised: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_escalations_raised_total",
			Help: "Escalations raised, by reason.",
		}, []string{"reason"}),
		resolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_escalations_resolved_total",
			Help: "Escalations resolved.",
		}),
	}
}

func (m *Metrics) ObserveSweep() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}

func (m *Metrics) ObserveSweepError() {
	if m == nil {
		return
	}
	m.sweepErrors.Inc()
}

func (m *Metrics) ObserveRaised(reason Reason) {
	if m == nil {
		return
	}
	m.raised.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) ObserveResolved() {
	if m == nil {
		return
	}
	m.resolved.Inc()
}
