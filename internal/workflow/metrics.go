package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts workflow activity. All methods are nil-safe so tests can run
// a Machine without a registry.
type Metrics struct {
	transitions         *prometheus.CounterVec
	rejectedTransitions prometheus.Counter
	aiVerdicts          *prometheus.CounterVec
	aiFailures          prometheus.Counter
	decisions           *prometheus.CounterVec
	notifyFailures      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_workflow_transitions_total",
			Help: "Completed stage transitions by edge.",
		}, []string{"from", "to"}),
		rejectedTransitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_workflow_transitions_rejected_total",
			Help: "Transition attempts rejected by the state machine.",
		}),
		aiVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_workflow_ai_verdicts_total",
			Help: "AI validation verdicts applied, by overall status.",
		}, []string{"status"}),
		aiFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_workflow_ai_failures_total",
			Help: "AI validation calls that failed open to human review.",
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_workflow_decisions_total",
			Help: "Human reviewer decisions recorded, by decision.",
		}, []string{"decision"}),
		notifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_workflow_notify_failures_total",
			Help: "Notifications that could not be published.",
		}),
	}
}

func (m *Metrics) ObserveTransition(from, to Stage) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) ObserveRejectedTransition() {
	if m == nil {
		return
	}
	m.rejectedTransitions.Inc()
}

func (m *Metrics) ObserveAIVerdict(status string) {
	if m == nil {
		return
	}
	m.aiVerdicts.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveAIFailure() {
	if m == nil {
		return
	}
	m.aiFailures.Inc()
}

func (m *Metrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
