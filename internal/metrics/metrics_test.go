package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/humanloop/internal/model"
)

func TestObserveCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveValidation(model.ValidationResponse{Result: model.Escalate, RuleID: "validate.system_write"})
	m.ObserveValidation(model.ValidationResponse{Result: model.Escalate, RuleID: "validate.system_write"})
	m.ObserveTransition(model.TransitionResponse{Allowed: false, RuleID: "workflow.human_only"})
	m.ObserveDecision(model.DecisionResult{Decision: model.Deny, RuleID: "decision.transition_denied"})
	m.IncSessionsStarted()

	if got := testutil.ToFloat64(m.Validations.WithLabelValues("ESCALATE", "validate.system_write")); got != 2 {
		t.Errorf("validations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("false", "workflow.human_only")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("DENY", "decision.transition_denied")); got != 1 {
		t.Errorf("decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsStarted); got != 1 {
		t.Errorf("sessions started = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveValidation(model.ValidationResponse{})
	m.ObserveTransition(model.TransitionResponse{})
	m.ObserveDecision(model.DecisionResult{})
	m.IncSessionsStarted()
	m.ObserveSessionTransition(time.Millisecond)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.ObserveDecision(model.DecisionResult{Decision: model.Allow, RuleID: "decision.allow"})
	m.ObserveSessionTransition(2 * time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`humanloop_decisions_total{decision="ALLOW",rule="decision.allow"} 1`,
		"humanloop_session_transition_duration_seconds_count 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
