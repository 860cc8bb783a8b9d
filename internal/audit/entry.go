package audit

import "github.com/ppiankov/humanloop/internal/model"

// Entry kinds.
const (
	KindValidation = "validation"
	KindTransition = "transition"
	KindDecision   = "decision"
)

// Entry is one line in the hash-chained JSONL audit log.
// All fields are flat strings so json.Marshal field order is fixed and the
// line hash is reproducible.
type Entry struct {
	Timestamp  string `json:"ts"`
	SessionID  string `json:"session_id,omitempty"`
	Kind       string `json:"kind"`
	Actor      string `json:"actor"`
	Zone       string `json:"zone,omitempty"`
	Action     string `json:"action,omitempty"`
	Target     string `json:"target,omitempty"`
	StateFrom  string `json:"state_from,omitempty"`
	StateTo    string `json:"state_to,omitempty"`
	Transition string `json:"transition,omitempty"`
	Outcome    string `json:"outcome"`
	RuleID     string `json:"rule_id"`
	Reason     string `json:"reason"`
	ConfigHash string `json:"config_hash,omitempty"`
	PrevHash   string `json:"prev_hash"`
}

// FromValidation builds a validation entry.
func FromValidation(sessionID string, v model.ValidationResponse) Entry {
	return Entry{
		SessionID: sessionID,
		Kind:      KindValidation,
		Actor:     v.Request.ActorKind.String(),
		Zone:      v.Request.TrustZone.String(),
		Action:    v.Request.ActionType.String(),
		Target:    v.Request.Target,
		Outcome:   v.Result.String(),
		RuleID:    v.RuleID,
		Reason:    v.Reason,
	}
}

// FromTransition builds a transition entry. Outcome is "ALLOWED" or
// "REJECTED"; StateTo is set only when the transition was allowed.
func FromTransition(sessionID string, t model.TransitionResponse) Entry {
	e := Entry{
		SessionID:  sessionID,
		Kind:       KindTransition,
		Actor:      t.Request.ActorKind.String(),
		StateFrom:  t.Request.CurrentState.String(),
		Transition: t.Request.Transition.String(),
		Outcome:    "REJECTED",
		RuleID:     t.RuleID,
		Reason:     t.Reason,
	}
	if t.Allowed {
		e.Outcome = "ALLOWED"
		e.StateTo = t.NewState.String()
	}
	return e
}

// FromDecision builds a decision entry. StateTo is set only when the
// decision lets the allowed transition take effect; a DENY never moves state.
func FromDecision(sessionID string, d model.DecisionResult) Entry {
	req := d.Context.Validation.Request
	tr := d.Context.Transition
	e := Entry{
		SessionID:  sessionID,
		Kind:       KindDecision,
		Actor:      d.Context.ActorKind.String(),
		Zone:       d.Context.TrustZone.String(),
		Action:     req.ActionType.String(),
		Target:     req.Target,
		StateFrom:  tr.Request.CurrentState.String(),
		Transition: tr.Request.Transition.String(),
		Outcome:    d.Decision.String(),
		RuleID:     d.RuleID,
		Reason:     d.Reason,
	}
	if tr.Allowed && d.Decision != model.Deny {
		e.StateTo = tr.NewState.String()
	}
	return e
}
