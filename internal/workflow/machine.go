// Package workflow is the lifecycle state machine for a single action.
// It is a pure function over explicit state: callers supply the current
// state on every call and own persistence of the state it returns.
package workflow

import (
	"fmt"

	"github.com/ppiankov/humanloop/internal/model"
)

type edge struct {
	from model.WorkflowState
	via  model.StateTransition
}

// table is the complete set of legal moves. Any pair absent here is invalid.
// No terminal state appears as a source.
var table = map[edge]model.WorkflowState{
	{model.StateInit, model.TransitionValidate}: model.StateValidated,
	{model.StateInit, model.TransitionAbort}:    model.StateAborted,

	{model.StateValidated, model.TransitionEscalate}: model.StateEscalated,
	{model.StateValidated, model.TransitionComplete}: model.StateCompleted,
	{model.StateValidated, model.TransitionAbort}:    model.StateAborted,

	{model.StateEscalated, model.TransitionApprove}: model.StateApproved,
	{model.StateEscalated, model.TransitionReject}:  model.StateRejected,
	{model.StateEscalated, model.TransitionAbort}:   model.StateAborted,

	{model.StateApproved, model.TransitionComplete}: model.StateCompleted,
	{model.StateApproved, model.TransitionAbort}:    model.StateAborted,
}

// IsTerminal reports whether no transition may leave s.
func IsTerminal(s model.WorkflowState) bool {
	switch s {
	case model.StateRejected, model.StateCompleted, model.StateAborted:
		return true
	default:
		return false
	}
}

// TerminalStates returns the terminal states.
func TerminalStates() []model.WorkflowState {
	return []model.WorkflowState{model.StateRejected, model.StateCompleted, model.StateAborted}
}

// Next looks up the table without any actor checks.
func Next(from model.WorkflowState, via model.StateTransition) (model.WorkflowState, bool) {
	to, ok := table[edge{from, via}]
	return to, ok
}

// ValidTransitions returns the transitions present in the table for s,
// in catalogue order. Terminal states return nil.
func ValidTransitions(s model.WorkflowState) []model.StateTransition {
	var out []model.StateTransition
	for _, t := range model.AllTransitions() {
		if _, ok := table[edge{s, t}]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Edges returns the number of legal moves in the table.
func Edges() int {
	return len(table)
}

// RequiresHuman reports whether moving from s via t needs a HUMAN actor.
func RequiresHuman(s model.WorkflowState, t model.StateTransition) bool {
	switch t {
	case model.TransitionApprove, model.TransitionReject, model.TransitionAbort:
		return true
	case model.TransitionComplete:
		return s == model.StateValidated
	default:
		return false
	}
}

// AttemptTransition decides whether actor may move the workflow from
// current via transition.
//
// Check order (must not be changed):
//  1. terminal lock
//  2. table membership
//  3. SYSTEM on APPROVE / REJECT / ABORT
//  4. SYSTEM on COMPLETE from VALIDATED
func AttemptTransition(current model.WorkflowState, transition model.StateTransition, actorKind model.ActorKind) model.TransitionResponse {
	req := model.TransitionRequest{CurrentState: current, Transition: transition, ActorKind: actorKind}

	if IsTerminal(current) {
		return denied(req, "workflow.terminal_lock",
			fmt.Sprintf("state %s is terminal: no further transitions permitted", current))
	}

	next, ok := Next(current, transition)
	if !ok {
		return denied(req, "workflow.invalid_transition",
			fmt.Sprintf("transition %s is not valid from this state (%s)", transition, current))
	}

	if !actorKind.Valid() {
		return denied(req, "workflow.invalid_actor",
			fmt.Sprintf("transition %s denied: unknown actor kind %q", transition, actorKind))
	}

	if actorKind != model.ActorHuman && RequiresHuman(current, transition) {
		if transition == model.TransitionComplete {
			return denied(req, "workflow.human_completion",
				fmt.Sprintf("%s from %s requires HUMAN confirmation", transition, current))
		}
		return denied(req, "workflow.human_only",
			fmt.Sprintf("%s requires HUMAN actor", transition))
	}

	return model.TransitionResponse{
		Request:  req,
		Allowed:  true,
		NewState: next,
		Reason:   fmt.Sprintf("%s: %s -> %s by %s", transition, current, next, actorKind),
		RuleID:   "workflow.transition",
	}
}

func denied(req model.TransitionRequest, ruleID, reason string) model.TransitionResponse {
	return model.TransitionResponse{
		Request: req,
		Allowed: false,
		Reason:  reason,
		RuleID:  ruleID,
	}
}
