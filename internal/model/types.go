package model

import (
	"fmt"
	"strings"
)

// ActorKind identifies who issues a request.
type ActorKind string

const (
	ActorHuman  ActorKind = "HUMAN"
	ActorSystem ActorKind = "SYSTEM"
)

// AllActorKinds returns the closed set of actor kinds.
func AllActorKinds() []ActorKind {
	return []ActorKind{ActorHuman, ActorSystem}
}

// Valid reports whether k is a member of the closed set.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorHuman, ActorSystem:
		return true
	default:
		return false
	}
}

func (k ActorKind) String() string { return string(k) }

// TrustZone is the provenance of a request.
type TrustZone string

const (
	ZoneHuman      TrustZone = "HUMAN"
	ZoneGovernance TrustZone = "GOVERNANCE"
	ZoneSystem     TrustZone = "SYSTEM"
	ZoneExternal   TrustZone = "EXTERNAL"
)

// AllTrustZones returns the closed set of zones, highest trust first.
func AllTrustZones() []TrustZone {
	return []TrustZone{ZoneHuman, ZoneGovernance, ZoneSystem, ZoneExternal}
}

// Valid reports whether z is a member of the closed set.
func (z TrustZone) Valid() bool {
	switch z {
	case ZoneHuman, ZoneGovernance, ZoneSystem, ZoneExternal:
		return true
	default:
		return false
	}
}

func (z TrustZone) String() string { return string(z) }

// ActionType is the kind of operation being authorized.
type ActionType string

const (
	ActionRead      ActionType = "READ"
	ActionWrite     ActionType = "WRITE"
	ActionDelete    ActionType = "DELETE"
	ActionExecute   ActionType = "EXECUTE"
	ActionConfigure ActionType = "CONFIGURE"
)

// AllActionTypes returns the closed set of action types.
func AllActionTypes() []ActionType {
	return []ActionType{ActionRead, ActionWrite, ActionDelete, ActionExecute, ActionConfigure}
}

// Valid reports whether a is a member of the closed set.
func (a ActionType) Valid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete, ActionExecute, ActionConfigure:
		return true
	default:
		return false
	}
}

func (a ActionType) String() string { return string(a) }

// Criticality is the fixed risk class of an action type.
type Criticality int

const (
	CriticalityLow Criticality = iota
	CriticalityHigh
	CriticalityCritical
)

func (c Criticality) String() string {
	switch c {
	case CriticalityLow:
		return "LOW"
	case CriticalityHigh:
		return "HIGH"
	case CriticalityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Criticality returns the fixed criticality of the action type.
// Unknown types are treated as CRITICAL.
func (a ActionType) Criticality() Criticality {
	switch a {
	case ActionRead:
		return CriticalityLow
	case ActionWrite, ActionConfigure:
		return CriticalityHigh
	default:
		return CriticalityCritical
	}
}

// Decision is the outcome shared by validation and the final decision.
type Decision string

const (
	Allow    Decision = "ALLOW"
	Deny     Decision = "DENY"
	Escalate Decision = "ESCALATE"
)

// AllDecisions returns the closed set of outcomes.
func AllDecisions() []Decision {
	return []Decision{Allow, Deny, Escalate}
}

// Valid reports whether d is a member of the closed set.
func (d Decision) Valid() bool {
	switch d {
	case Allow, Deny, Escalate:
		return true
	default:
		return false
	}
}

func (d Decision) String() string { return string(d) }

// WorkflowState is a lifecycle stage of one action's journey.
type WorkflowState string

const (
	StateInit      WorkflowState = "INIT"
	StateValidated WorkflowState = "VALIDATED"
	StateEscalated WorkflowState = "ESCALATED"
	StateApproved  WorkflowState = "APPROVED"
	StateRejected  WorkflowState = "REJECTED"
	StateCompleted WorkflowState = "COMPLETED"
	StateAborted   WorkflowState = "ABORTED"
)

// AllWorkflowStates returns the closed set of workflow states.
func AllWorkflowStates() []WorkflowState {
	return []WorkflowState{
		StateInit, StateValidated, StateEscalated, StateApproved,
		StateRejected, StateCompleted, StateAborted,
	}
}

// Valid reports whether s is a member of the closed set.
func (s WorkflowState) Valid() bool {
	switch s {
	case StateInit, StateValidated, StateEscalated, StateApproved,
		StateRejected, StateCompleted, StateAborted:
		return true
	default:
		return false
	}
}

func (s WorkflowState) String() string { return string(s) }

// StateTransition is one lifecycle move.
type StateTransition string

const (
	TransitionValidate StateTransition = "VALIDATE"
	TransitionEscalate StateTransition = "ESCALATE"
	TransitionApprove  StateTransition = "APPROVE"
	TransitionReject   StateTransition = "REJECT"
	TransitionComplete StateTransition = "COMPLETE"
	TransitionAbort    StateTransition = "ABORT"
)

// AllTransitions returns the closed set of transitions.
func AllTransitions() []StateTransition {
	return []StateTransition{
		TransitionValidate, TransitionEscalate, TransitionApprove,
		TransitionReject, TransitionComplete, TransitionAbort,
	}
}

// Valid reports whether t is a member of the closed set.
func (t StateTransition) Valid() bool {
	switch t {
	case TransitionValidate, TransitionEscalate, TransitionApprove,
		TransitionReject, TransitionComplete, TransitionAbort:
		return true
	default:
		return false
	}
}

func (t StateTransition) String() string { return string(t) }

// ParseActorKind parses an actor kind case-insensitively.
func ParseActorKind(s string) (ActorKind, error) {
	k := ActorKind(normalize(s))
	if !k.Valid() {
		return "", fmt.Errorf("unknown actor kind %q", s)
	}
	return k, nil
}

// ParseTrustZone parses a trust zone case-insensitively.
func ParseTrustZone(s string) (TrustZone, error) {
	z := TrustZone(normalize(s))
	if !z.Valid() {
		return "", fmt.Errorf("unknown trust zone %q", s)
	}
	return z, nil
}

// ParseActionType parses an action type case-insensitively.
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(normalize(s))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return a, nil
}

// ParseDecision parses a decision case-insensitively.
func ParseDecision(s string) (Decision, error) {
	d := Decision(normalize(s))
	if !d.Valid() {
		return "", fmt.Errorf("unknown decision %q", s)
	}
	return d, nil
}

// ParseWorkflowState parses a workflow state case-insensitively.
func ParseWorkflowState(s string) (WorkflowState, error) {
	st := WorkflowState(normalize(s))
	if !st.Valid() {
		return "", fmt.Errorf("unknown workflow state %q", s)
	}
	return st, nil
}

// ParseTransition parses a transition case-insensitively.
func ParseTransition(s string) (StateTransition, error) {
	t := StateTransition(normalize(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown transition %q", s)
	}
	return t, nil
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
