package model

// ActionRequest is an action to be authorized.
// All request and result types are comparable value types; a copy is never
// able to alias the caller's state.
type ActionRequest struct {
	ActorKind  ActorKind  `json:"actor_kind" yaml:"actor_kind"`
	ActionType ActionType `json:"action_type" yaml:"action_type"`
	TrustZone  TrustZone  `json:"trust_zone" yaml:"trust_zone"`
	Target     string     `json:"target" yaml:"target"`
}

// ValidationResponse is the outcome of validating an ActionRequest.
type ValidationResponse struct {
	Request       ActionRequest `json:"request"`
	Result        Decision      `json:"result"`
	Reason        string        `json:"reason"`
	RequiresHuman bool          `json:"requires_human"`
	RuleID        string        `json:"rule_id"`
}

// TransitionRequest is one attempted lifecycle move.
type TransitionRequest struct {
	CurrentState WorkflowState   `json:"current_state" yaml:"current_state"`
	Transition   StateTransition `json:"transition" yaml:"transition"`
	ActorKind    ActorKind       `json:"actor_kind" yaml:"actor_kind"`
}

// TransitionResponse is the outcome of a TransitionRequest.
// NewState is empty when the move is not allowed.
type TransitionResponse struct {
	Request  TransitionRequest `json:"request"`
	Allowed  bool              `json:"allowed"`
	NewState WorkflowState     `json:"new_state,omitempty"`
	Reason   string            `json:"reason"`
	RuleID   string            `json:"rule_id"`
}

// DecisionContext aggregates every input the decision engine reasons about.
type DecisionContext struct {
	Validation ValidationResponse `json:"validation"`
	Transition TransitionResponse `json:"transition"`
	ActorKind  ActorKind          `json:"actor_kind"`
	TrustZone  TrustZone          `json:"trust_zone"`
}

// DecisionResult is the final authorization outcome.
type DecisionResult struct {
	Context  DecisionContext `json:"context"`
	Decision Decision        `json:"decision"`
	Reason   string          `json:"reason"`
	RuleID   string          `json:"rule_id"`
}
