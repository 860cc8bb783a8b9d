package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/humanloop/internal/alert"
	"github.com/ppiankov/humanloop/internal/audit"
	"github.com/ppiankov/humanloop/internal/metrics"
	"github.com/ppiankov/humanloop/internal/model"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	fail    bool
}

func (r *memRecorder) Record(e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("disk full")
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Kind
	}
	return out
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	var mu sync.Mutex
	n := 0
	clock := baseTime
	base := []Option{
		WithAudit(rec),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("s-%d", n)
		}),
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Millisecond)
			return clock
		}),
	}
	return NewManager(NewMemoryStore(), append(base, opts...)...), rec
}

func TestManagerFullLifecycle(t *testing.T) {
	ctx := context.Background()
	m, rec := newTestManager(t)

	s, v, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorSystem, ActionType: model.ActionWrite, TrustZone: model.ZoneSystem, Target: "db/users",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.ID != "s-1" || s.State != model.StateInit || s.Version != 0 {
		t.Fatalf("unexpected session %+v", s)
	}
	if v.Result != model.Escalate || v.RuleID != "validate.system_write" {
		t.Fatalf("unexpected validation %+v", v)
	}

	steps := []struct {
		transition model.StateTransition
		actor      model.ActorKind
		decision   model.Decision
		rule       string
		state      model.WorkflowState
		advanced   bool
	}{
		{model.TransitionValidate, model.ActorSystem, model.Escalate, "decision.validation_escalate", model.StateValidated, true},
		{model.TransitionEscalate, model.ActorSystem, model.Escalate, "decision.validation_escalate", model.StateEscalated, true},
		{model.TransitionApprove, model.ActorSystem, model.Deny, "decision.transition_denied", model.StateEscalated, false},
		{model.TransitionApprove, model.ActorHuman, model.Allow, "decision.human_override", model.StateApproved, true},
		{model.TransitionComplete, model.ActorSystem, model.Escalate, "decision.validation_escalate", model.StateCompleted, true},
	}
	for i, st := range steps {
		out, err := m.Transition(ctx, s.ID, st.transition, st.actor)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if out.Decision.Decision != st.decision || out.Decision.RuleID != st.rule {
			t.Errorf("step %d: decision %s/%s, want %s/%s", i, out.Decision.Decision, out.Decision.RuleID, st.decision, st.rule)
		}
		if out.Session.State != st.state || out.Advanced != st.advanced {
			t.Errorf("step %d: state %s advanced=%v, want %s advanced=%v", i, out.Session.State, out.Advanced, st.state, st.advanced)
		}
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.StateCompleted || got.Version != 5 || len(got.Trail) != 5 {
		t.Fatalf("unexpected final session: state=%s version=%d trail=%d", got.State, got.Version, len(got.Trail))
	}
	if got.Trail[2].Advanced() || got.Trail[2].TransitionRule != "workflow.human_only" {
		t.Errorf("expected rejected SYSTEM approval in trail, got %+v", got.Trail[2])
	}

	_, err = m.Transition(ctx, s.ID, model.TransitionAbort, model.ActorHuman)
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}

	// 1 validation at start + 3 entries per attempt, the refused one included.
	if n := len(rec.kinds()); n != 1+3*6 {
		t.Fatalf("expected 19 audit entries, got %d", n)
	}
	last := rec.entries[len(rec.entries)-1]
	if last.Kind != audit.KindDecision || last.RuleID != "decision.terminal_lock" || last.Outcome != "DENY" || last.StateTo != "" {
		t.Fatalf("expected terminal lock decision entry, got %+v", last)
	}
}

func TestManagerDenyDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	s, v, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorSystem, ActionType: model.ActionWrite, TrustZone: model.ZoneExternal,
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.Result != model.Deny {
		t.Fatalf("expected external write to be denied, got %s", v.Result)
	}

	out, err := m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorSystem)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Transition.Allowed {
		t.Fatal("expected the workflow move itself to be allowed")
	}
	if out.Decision.Decision != model.Deny || out.Advanced || out.Session.State != model.StateInit {
		t.Fatalf("expected DENY without advancing, got %s advanced=%v state=%s", out.Decision.Decision, out.Advanced, out.Session.State)
	}
	if !strings.Contains(out.Decision.Reason, "Validation denied") {
		t.Errorf("unexpected reason %q", out.Decision.Reason)
	}

	out, err = m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorHuman)
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision.Decision != model.Allow || out.Session.State != model.StateValidated {
		t.Fatalf("expected HUMAN to advance, got %s state=%s", out.Decision.Decision, out.Session.State)
	}
}

func TestManagerDeniedDecisionAuditKeepsState(t *testing.T) {
	ctx := context.Background()
	m, rec := newTestManager(t)

	s, _, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorSystem, ActionType: model.ActionWrite, TrustZone: model.ZoneExternal,
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorSystem)
	if err != nil {
		t.Fatal(err)
	}
	if out.Advanced || out.Session.State != model.StateInit {
		t.Fatalf("expected session to stay in INIT, got %s", out.Session.State)
	}

	var decided, moved *audit.Entry
	for i := range rec.entries {
		switch rec.entries[i].Kind {
		case audit.KindDecision:
			decided = &rec.entries[i]
		case audit.KindTransition:
			moved = &rec.entries[i]
		}
	}
	if decided == nil || decided.Outcome != "DENY" || decided.StateFrom != "INIT" || decided.StateTo != "" {
		t.Fatalf("decision entry must not claim a state change, got %+v", decided)
	}
	if moved == nil || moved.Outcome != "ALLOWED" || moved.StateTo != "VALIDATED" {
		t.Fatalf("transition entry records the workflow verdict, got %+v", moved)
	}
}

func TestManagerTerminalAttemptIsRecorded(t *testing.T) {
	ctx := context.Background()
	mt := metrics.New(prometheus.NewRegistry())
	m, rec := newTestManager(t, WithMetrics(mt))

	s, _, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorHuman, ActionType: model.ActionRead, TrustZone: model.ZoneSystem,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Transition(ctx, s.ID, model.TransitionAbort, model.ActorHuman); err != nil {
		t.Fatal(err)
	}
	before, _ := m.Get(ctx, s.ID)

	_, err = m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorHuman)
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}

	after, _ := m.Get(ctx, s.ID)
	if after.Version != before.Version || len(after.Trail) != len(before.Trail) || after.State != model.StateAborted {
		t.Fatalf("terminal session must not change: before v%d, after v%d state=%s", before.Version, after.Version, after.State)
	}
	last := rec.entries[len(rec.entries)-1]
	if last.RuleID != "decision.terminal_lock" || last.Outcome != "DENY" {
		t.Fatalf("expected terminal lock in audit, got %+v", last)
	}
	if got := testutil.ToFloat64(mt.Decisions.WithLabelValues("DENY", "decision.terminal_lock")); got != 1 {
		t.Errorf("terminal lock decisions = %v", got)
	}
}

func TestManagerStartRejectsInvalidRequest(t *testing.T) {
	m, rec := newTestManager(t)

	_, v, err := m.Start(context.Background(), model.ActionRequest{
		ActorKind: "ROBOT", ActionType: model.ActionRead, TrustZone: model.ZoneSystem,
	})
	var ir *InvalidRequestError
	if !errors.As(err, &ir) {
		t.Fatalf("expected InvalidRequestError, got %v", err)
	}
	if v.Result != model.Deny {
		t.Errorf("expected DENY verdict, got %s", v.Result)
	}
	list, _ := m.List(context.Background())
	if len(list) != 0 || len(rec.kinds()) != 0 {
		t.Fatalf("invalid request must not create a session or audit entry")
	}
}

func TestManagerTransitionUnknownSession(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Transition(context.Background(), "missing", model.TransitionValidate, model.ActorHuman)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerSerializesPerSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	s, _, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorSystem, ActionType: model.ActionRead, TrustZone: model.ZoneSystem,
	})
	if err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	advanced := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorSystem)
			if err != nil {
				t.Errorf("transition: %v", err)
				return
			}
			if out.Advanced {
				mu.Lock()
				advanced++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if advanced != 1 {
		t.Fatalf("expected exactly one advancing transition, got %d", advanced)
	}
	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.StateValidated || got.Version != workers || len(got.Trail) != workers {
		t.Fatalf("unexpected session: state=%s version=%d trail=%d", got.State, got.Version, len(got.Trail))
	}
	if n := m.locks.size(); n != 0 {
		t.Fatalf("expected lock table to drain, %d entries left", n)
	}
}

func TestManagerRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	mt := metrics.New(prometheus.NewRegistry())
	m, _ := newTestManager(t, WithMetrics(mt))

	s, _, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorHuman, ActionType: model.ActionDelete, TrustZone: model.ZoneSystem,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorHuman); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(mt.SessionsStarted); got != 1 {
		t.Errorf("sessions started = %v", got)
	}
	if got := testutil.ToFloat64(mt.Decisions.WithLabelValues("ALLOW", "decision.human_override")); got != 1 {
		t.Errorf("human override decisions = %v", got)
	}
	if got := testutil.ToFloat64(mt.Validations.WithLabelValues("ALLOW", "validate.human_actor")); got != 2 {
		t.Errorf("human validations = %v", got)
	}
}

func TestManagerAuditFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	m, rec := newTestManager(t)
	rec.fail = true

	s, _, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorHuman, ActionType: model.ActionRead, TrustZone: model.ZoneHuman,
	})
	if err != nil {
		t.Fatalf("audit failure must not fail Start: %v", err)
	}
	if _, err := m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorHuman); err != nil {
		t.Fatalf("audit failure must not fail Transition: %v", err)
	}
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	s, _, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorHuman, ActionType: model.ActionRead, TrustZone: model.ZoneHuman,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditEntriesCarrySessionID(t *testing.T) {
	ctx := context.Background()
	m, rec := newTestManager(t)
	s, _, _ := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorSystem, ActionType: model.ActionRead, TrustZone: model.ZoneGovernance,
	})
	m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorSystem)

	want := []string{audit.KindValidation, audit.KindValidation, audit.KindTransition, audit.KindDecision}
	got := rec.kinds()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for _, e := range rec.entries {
		if e.SessionID != s.ID {
			t.Fatalf("entry without session id: %+v", e)
		}
	}
}

type memNotifier struct {
	events []alert.Event
}

func (n *memNotifier) Dispatch(e alert.Event) { n.events = append(n.events, e) }

func TestManagerNotifiesDecisions(t *testing.T) {
	ctx := context.Background()
	n := &memNotifier{}
	m, _ := newTestManager(t, WithNotifier(n))

	s, _, err := m.Start(ctx, model.ActionRequest{
		ActorKind: model.ActorSystem, ActionType: model.ActionExecute, TrustZone: model.ZoneSystem, Target: "deploy.sh",
	})
	if err != nil {
		t.Fatal(err)
	}
	m.Transition(ctx, s.ID, model.TransitionValidate, model.ActorSystem)
	m.Transition(ctx, s.ID, model.TransitionApprove, model.ActorSystem)

	if len(n.events) != 2 {
		t.Fatalf("expected one event per transition, got %d", len(n.events))
	}
	first, second := n.events[0], n.events[1]
	if first.Decision != "ESCALATE" || first.StateTo != "VALIDATED" || first.Target != "deploy.sh" {
		t.Errorf("unexpected first event %+v", first)
	}
	if second.Decision != "DENY" || second.StateTo != "" || second.SessionID != s.ID {
		t.Errorf("unexpected second event %+v", second)
	}
}
