package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/humanloop/internal/alert"
	"github.com/ppiankov/humanloop/internal/audit"
	"github.com/ppiankov/humanloop/internal/decision"
	"github.com/ppiankov/humanloop/internal/logging"
	"github.com/ppiankov/humanloop/internal/metrics"
	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/policy"
	"github.com/ppiankov/humanloop/internal/workflow"
)

// Recorder receives audit entries. *audit.Log satisfies it.
type Recorder interface {
	Record(audit.Entry) error
}

// Notifier is told about every session decision and decides which ones a
// human should see. *alert.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(alert.Event)
}

// InvalidRequestError is returned by Start when the request carries an
// unknown actor, action, or zone.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "session: invalid request: " + e.Reason
}

// Outcome is the full result of one session transition.
type Outcome struct {
	Session    *Session                 `json:"session"`
	Validation model.ValidationResponse `json:"validation"`
	Transition model.TransitionResponse `json:"transition"`
	Decision   model.DecisionResult     `json:"decision"`
	Advanced   bool                     `json:"advanced"`
}

// Manager runs transitions against stored sessions. Transitions on the same
// session are serialized; different sessions proceed in parallel.
type Manager struct {
	store   Store
	audit   Recorder
	notify  Notifier
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
	locks   *keyedMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithAudit records every validation, transition, and decision to r.
func WithAudit(r Recorder) Option {
	return func(m *Manager) { m.audit = r }
}

// WithNotifier sends each transition decision to n.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notify = n }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager builds a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logging.Discard(),
		tracer: otel.Tracer("github.com/ppiankov/humanloop/internal/session"),
		now:    time.Now,
		newID:  uuid.NewString,
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start validates req and creates a session in INIT. The validation verdict
// is returned alongside; a DENY or ESCALATE does not prevent creation, the
// workflow decides what happens next. Requests with unknown enum values are
// refused with *InvalidRequestError.
func (m *Manager) Start(ctx context.Context, req model.ActionRequest) (*Session, model.ValidationResponse, error) {
	ctx, span := m.tracer.Start(ctx, "session.Start")
	defer span.End()

	v := policy.ValidateAction(req)
	m.metrics.ObserveValidation(v)
	if v.RuleID == policy.RuleInvalidInput {
		span.SetStatus(codes.Error, v.Reason)
		return nil, v, &InvalidRequestError{Reason: v.Reason}
	}

	now := m.now().UTC()
	s := &Session{
		ID:        m.newID(),
		Request:   req,
		State:     model.StateInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, v, fmt.Errorf("session: create: %w", err)
	}
	m.metrics.IncSessionsStarted()

	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("validation.result", v.Result.String()),
		attribute.String("validation.rule", v.RuleID),
	)
	m.record(audit.FromValidation(s.ID, v))
	m.logger.Info("session started",
		"session_id", s.ID,
		"actor", req.ActorKind,
		"action", req.ActionType,
		"zone", req.TrustZone,
		"validation", v.Result,
		"rule", v.RuleID,
	)
	return s, v, nil
}

// Transition attempts to move session id via transition on behalf of actor.
// The action is re-validated with actor as the acting party; the session's
// action type, trust zone, and target are unchanged. The state advances iff
// the transition is allowed and the decision is not DENY. Every attempt,
// advancing or not, is appended to the trail.
func (m *Manager) Transition(ctx context.Context, id string, transition model.StateTransition, actor model.ActorKind) (*Outcome, error) {
	start := m.now()
	ctx, span := m.tracer.Start(ctx, "session.Transition", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("transition", transition.String()),
		attribute.String("actor", actor.String()),
	))
	defer span.End()

	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	req := s.Request
	req.ActorKind = actor
	v := policy.ValidateAction(req)
	t := workflow.AttemptTransition(s.State, transition, actor)
	d := decision.ResolveDecision(decision.NewContext(v, t, actor, s.Request.TrustZone))

	// Terminal sessions are frozen: the refused attempt is audited but the
	// stored session is left untouched.
	if workflow.IsTerminal(s.State) {
		m.observe(id, s.Request, v, t, d, "")
		m.logger.Warn("transition on terminal session",
			"session_id", id,
			"state", s.State,
			"transition", transition,
			"rule", d.RuleID,
		)
		span.SetAttributes(attribute.String("decision.rule", d.RuleID))
		span.SetStatus(codes.Error, ErrTerminal.Error())
		return nil, fmt.Errorf("session %s is %s: %w", id, s.State, ErrTerminal)
	}
	advanced := t.Allowed && d.Decision != model.Deny

	now := m.now().UTC()
	entry := TrailEntry{
		At:                now,
		Transition:        transition,
		Actor:             actor,
		From:              s.State,
		Validation:        v.Result,
		ValidationRule:    v.RuleID,
		TransitionAllowed: t.Allowed,
		TransitionRule:    t.RuleID,
		Decision:          d.Decision,
		DecisionRule:      d.RuleID,
		Reason:            d.Reason,
	}
	if advanced {
		entry.To = t.NewState
		s.State = t.NewState
	}
	s.Trail = append(s.Trail, entry)
	s.UpdatedAt = now

	if err := m.store.Update(ctx, s, s.Version); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("session %s: persist: %w", id, err)
	}

	m.observe(id, s.Request, v, t, d, entry.To)

	span.SetAttributes(
		attribute.String("decision", d.Decision.String()),
		attribute.String("decision.rule", d.RuleID),
		attribute.Bool("advanced", advanced),
		attribute.String("state", s.State.String()),
	)
	m.logger.Info("session transition",
		"session_id", id,
		"transition", transition,
		"actor", actor,
		"from", entry.From,
		"state", s.State,
		"decision", d.Decision,
		"rule", d.RuleID,
		"advanced", advanced,
	)
	m.metrics.ObserveSessionTransition(m.now().Sub(start))

	return &Outcome{Session: s, Validation: v, Transition: t, Decision: d, Advanced: advanced}, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return s, nil
}

// List returns every session, oldest first.
func (m *Manager) List(ctx context.Context) ([]*Session, error) {
	return m.store.List(ctx)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}

// observe feeds one evaluated attempt to metrics, the audit log, and the
// notifier. stateTo is the state the session actually reached, empty if it
// did not move.
func (m *Manager) observe(id string, req model.ActionRequest, v model.ValidationResponse, t model.TransitionResponse, d model.DecisionResult, stateTo model.WorkflowState) {
	m.metrics.ObserveValidation(v)
	m.metrics.ObserveTransition(t)
	m.metrics.ObserveDecision(d)
	m.record(audit.FromValidation(id, v))
	m.record(audit.FromTransition(id, t))
	m.record(audit.FromDecision(id, d))
	if m.notify != nil {
		m.notify.Dispatch(alert.FromDecision(id, req, d, stateTo))
	}
}

// record writes an audit entry. Audit failures are logged, never fatal to
// the decision already made.
func (m *Manager) record(e audit.Entry) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(e); err != nil {
		m.logger.Error("audit write failed", "session_id", e.SessionID, "kind", e.Kind, "error", err)
	}
}
