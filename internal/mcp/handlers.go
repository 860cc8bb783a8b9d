package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/humanloop/internal/audit"
	"github.com/ppiankov/humanloop/internal/decision"
	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/policy"
	"github.com/ppiankov/humanloop/internal/session"
	"github.com/ppiankov/humanloop/internal/workflow"
)

// --- Input/Output types ---

// ActionInput describes an action request.
type ActionInput struct {
	ActorKind  string `json:"actor_kind" jsonschema:"HUMAN or SYSTEM"`
	ActionType string `json:"action_type" jsonschema:"READ, WRITE, DELETE, EXECUTE, or CONFIGURE"`
	TrustZone  string `json:"trust_zone" jsonschema:"HUMAN, SYSTEM, GOVERNANCE, or EXTERNAL"`
	Target     string `json:"target,omitempty" jsonschema:"opaque target identifier"`
}

// TransitionInput describes a transition attempt.
type TransitionInput struct {
	CurrentState string `json:"current_state" jsonschema:"INIT, VALIDATED, ESCALATED, APPROVED, REJECTED, COMPLETED, or ABORTED"`
	Transition   string `json:"transition" jsonschema:"VALIDATE, ESCALATE, APPROVE, REJECT, COMPLETE, or ABORT"`
	ActorKind    string `json:"actor_kind" jsonschema:"HUMAN or SYSTEM"`
}

// DecideInput pairs an action with a transition attempt.
type DecideInput struct {
	Action     ActionInput     `json:"action" jsonschema:"action to authorize"`
	Transition TransitionInput `json:"transition" jsonschema:"transition being attempted"`
}

// SessionTransitionInput moves a stored session.
type SessionTransitionInput struct {
	SessionID  string `json:"session_id" jsonschema:"id returned by gate_session_start"`
	Transition string `json:"transition" jsonschema:"VALIDATE, ESCALATE, APPROVE, REJECT, COMPLETE, or ABORT"`
	ActorKind  string `json:"actor_kind" jsonschema:"HUMAN or SYSTEM"`
}

// SessionGetInput identifies a stored session.
type SessionGetInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
}

// VerdictOutput is the flat result of every tool.
type VerdictOutput struct {
	Decision      string `json:"decision,omitempty"`
	Allowed       *bool  `json:"allowed,omitempty"`
	NewState      string `json:"new_state,omitempty"`
	RequiresHuman bool   `json:"requires_human,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RuleID        string `json:"rule_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	State         string `json:"state,omitempty"`
	Advanced      *bool  `json:"advanced,omitempty"`
	TrailLength   int    `json:"trail_length,omitempty"`
	Error         string `json:"error,omitempty"`
}

// --- Handlers ---

func (s *Server) handleValidate(ctx context.Context, req *mcpsdk.CallToolRequest, input ActionInput) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	action, err := input.toModel()
	if err != nil {
		return errorResult(err)
	}
	v := policy.ValidateAction(action)
	s.metrics.ObserveValidation(v)
	s.record(audit.FromValidation("", v))
	return nil, validationOutput(v), nil
}

func (s *Server) handleTransition(ctx context.Context, req *mcpsdk.CallToolRequest, input TransitionInput) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	tr, err := input.toModel()
	if err != nil {
		return errorResult(err)
	}
	t := workflow.AttemptTransition(tr.CurrentState, tr.Transition, tr.ActorKind)
	s.metrics.ObserveTransition(t)
	s.record(audit.FromTransition("", t))
	return nil, transitionOutput(t), nil
}

func (s *Server) handleDecide(ctx context.Context, req *mcpsdk.CallToolRequest, input DecideInput) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	action, err := input.Action.toModel()
	if err != nil {
		return errorResult(err)
	}
	tr, err := input.Transition.toModel()
	if err != nil {
		return errorResult(err)
	}
	d := decision.Evaluate(action, tr)
	s.metrics.ObserveDecision(d)
	s.record(audit.FromDecision("", d))

	out := VerdictOutput{
		Decision: d.Decision.String(),
		Reason:   d.Reason,
		RuleID:   d.RuleID,
		NewState: d.Context.Transition.NewState.String(),
	}
	if d.Decision == model.Deny {
		out.NewState = ""
	}
	return nil, out, nil
}

func (s *Server) handleSessionStart(ctx context.Context, req *mcpsdk.CallToolRequest, input ActionInput) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	action, err := input.toModel()
	if err != nil {
		return errorResult(err)
	}
	sess, v, err := s.sessions.Start(ctx, action)
	if err != nil {
		return sessionError(err)
	}
	out := validationOutput(v)
	out.SessionID = sess.ID
	out.State = sess.State.String()
	return nil, out, nil
}

func (s *Server) handleSessionTransition(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionTransitionInput) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	if input.SessionID == "" {
		return errorResult(fmt.Errorf("session_id is required"))
	}
	tr, err := model.ParseTransition(input.Transition)
	if err != nil {
		return errorResult(err)
	}
	actor, err := model.ParseActorKind(input.ActorKind)
	if err != nil {
		return errorResult(err)
	}

	outcome, err := s.sessions.Transition(ctx, input.SessionID, tr, actor)
	if err != nil {
		return sessionError(err)
	}
	allowed := outcome.Transition.Allowed
	advanced := outcome.Advanced
	return nil, VerdictOutput{
		Decision:    outcome.Decision.Decision.String(),
		Allowed:     &allowed,
		Reason:      outcome.Decision.Reason,
		RuleID:      outcome.Decision.RuleID,
		SessionID:   outcome.Session.ID,
		State:       outcome.Session.State.String(),
		Advanced:    &advanced,
		TrailLength: len(outcome.Session.Trail),
	}, nil
}

func (s *Server) handleSessionGet(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionGetInput) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	sess, err := s.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return sessionError(err)
	}
	return nil, VerdictOutput{
		SessionID:   sess.ID,
		State:       sess.State.String(),
		TrailLength: len(sess.Trail),
	}, nil
}

// --- Helpers ---

func (in ActionInput) toModel() (model.ActionRequest, error) {
	actor, err := model.ParseActorKind(in.ActorKind)
	if err != nil {
		return model.ActionRequest{}, err
	}
	action, err := model.ParseActionType(in.ActionType)
	if err != nil {
		return model.ActionRequest{}, err
	}
	zone, err := model.ParseTrustZone(in.TrustZone)
	if err != nil {
		return model.ActionRequest{}, err
	}
	return model.ActionRequest{ActorKind: actor, ActionType: action, TrustZone: zone, Target: in.Target}, nil
}

func (in TransitionInput) toModel() (model.TransitionRequest, error) {
	state, err := model.ParseWorkflowState(in.CurrentState)
	if err != nil {
		return model.TransitionRequest{}, err
	}
	tr, err := model.ParseTransition(in.Transition)
	if err != nil {
		return model.TransitionRequest{}, err
	}
	actor, err := model.ParseActorKind(in.ActorKind)
	if err != nil {
		return model.TransitionRequest{}, err
	}
	return model.TransitionRequest{CurrentState: state, Transition: tr, ActorKind: actor}, nil
}

func validationOutput(v model.ValidationResponse) VerdictOutput {
	return VerdictOutput{
		Decision:      v.Result.String(),
		RequiresHuman: v.RequiresHuman,
		Reason:        v.Reason,
		RuleID:        v.RuleID,
	}
}

func transitionOutput(t model.TransitionResponse) VerdictOutput {
	allowed := t.Allowed
	return VerdictOutput{
		Allowed:  &allowed,
		NewState: t.NewState.String(),
		Reason:   t.Reason,
		RuleID:   t.RuleID,
	}
}

// errorResult reports bad tool input as a tool error, not a protocol error.
func errorResult(err error) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	return &mcpsdk.CallToolResult{IsError: true}, VerdictOutput{Error: err.Error()}, nil
}

func sessionError(err error) (*mcpsdk.CallToolResult, VerdictOutput, error) {
	var invalid *session.InvalidRequestError
	switch {
	case errors.As(err, &invalid),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrTerminal),
		errors.Is(err, session.ErrConflict):
		return errorResult(err)
	default:
		return nil, VerdictOutput{}, err
	}
}
