// Package metrics exposes Prometheus counters for validations, transitions,
// decisions, and session transition latency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/humanloop/internal/model"
)

// Metrics holds every humanloop collector. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Validation outcomes by result and rule
	Validations *prometheus.CounterVec

	// Transition attempts by allowed flag and rule
	Transitions *prometheus.CounterVec

	// Final decisions by decision and rule
	Decisions *prometheus.CounterVec

	SessionsStarted prometheus.Counter

	// Full session transition latency (load, evaluate, persist, audit)
	SessionTransitionLatency prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers all collectors with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "humanloop_validations_total",
			Help: "Action validations by result and rule",
		}, []string{"result", "rule"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "humanloop_transitions_total",
			Help: "Workflow transition attempts by outcome and rule",
		}, []string{"allowed", "rule"}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "humanloop_decisions_total",
			Help: "Final decisions by decision and rule",
		}, []string{"decision", "rule"}),

		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "humanloop_sessions_started_total",
			Help: "Workflow sessions created",
		}),

		SessionTransitionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "humanloop_session_transition_duration_seconds",
			Help:    "Duration of a session transition including persistence and audit",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),

		gatherer: reg,
	}
}

// ObserveValidation records a validation outcome.
func (m *Metrics) ObserveValidation(v model.ValidationResponse) {
	if m != nil {
		m.Validations.WithLabelValues(v.Result.String(), v.RuleID).Inc()
	}
}

// ObserveTransition records a transition attempt.
func (m *Metrics) ObserveTransition(t model.TransitionResponse) {
	if m != nil {
		m.Transitions.WithLabelValues(strconv.FormatBool(t.Allowed), t.RuleID).Inc()
	}
}

// ObserveDecision records a final decision.
func (m *Metrics) ObserveDecision(d model.DecisionResult) {
	if m != nil {
		m.Decisions.WithLabelValues(d.Decision.String(), d.RuleID).Inc()
	}
}

// IncSessionsStarted counts a created session.
func (m *Metrics) IncSessionsStarted() {
	if m != nil {
		m.SessionsStarted.Inc()
	}
}

// ObserveSessionTransition records the latency of one session transition.
func (m *Metrics) ObserveSessionTransition(d time.Duration) {
	if m != nil {
		m.SessionTransitionLatency.Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
