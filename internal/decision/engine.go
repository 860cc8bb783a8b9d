// Package decision aggregates a validation result, a workflow transition
// result, the actor, and the trust zone into one final, explained decision.
package decision

import (
	"fmt"

	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/policy"
	"github.com/ppiankov/humanloop/internal/workflow"
)

// Rule IDs, in priority order.
const (
	RuleTerminalLock     = "decision.terminal_lock"
	RuleTransitionDenied = "decision.transition_denied"
	RuleHumanOverride    = "decision.human_override"
	RuleEscalate         = "decision.validation_escalate"
	RuleValidationDenied = "decision.validation_denied"
	RuleExternalReview   = "decision.external_review"
	RuleAllow            = "decision.allow"
)

// RuleIDs returns the decision rules in evaluation order.
func RuleIDs() []string {
	return []string{
		RuleTerminalLock, RuleTransitionDenied, RuleHumanOverride,
		RuleEscalate, RuleValidationDenied, RuleExternalReview, RuleAllow,
	}
}

// NewContext builds a fresh DecisionContext.
func NewContext(v model.ValidationResponse, t model.TransitionResponse, a model.ActorKind, z model.TrustZone) model.DecisionContext {
	return model.DecisionContext{Validation: v, Transition: t, ActorKind: a, TrustZone: z}
}

// ResolveDecision produces the final decision for ctx.
//
// Priority order (first match wins, must not be changed):
//  1. terminal workflow state      → deny (beats human override)
//  2. transition not allowed       → deny
//  3. HUMAN actor + validation ALLOW → allow
//  4. validation ESCALATE          → escalate
//  5. validation DENY              → deny
//  6. EXTERNAL trust zone          → escalate
//  7. otherwise                    → allow
//
// Anything the rules above do not recognise (an invalid validation result)
// resolves to DENY.
func ResolveDecision(ctx model.DecisionContext) model.DecisionResult {
	v := ctx.Validation
	t := ctx.Transition

	if workflow.IsTerminal(t.Request.CurrentState) {
		return result(ctx, model.Deny, RuleTerminalLock,
			fmt.Sprintf("terminal state: no further decisions allowed (workflow is %s)", t.Request.CurrentState))
	}

	if !t.Allowed {
		return result(ctx, model.Deny, RuleTransitionDenied,
			fmt.Sprintf("workflow transition denied: %s", t.Reason))
	}

	if ctx.ActorKind == model.ActorHuman && v.Result == model.Allow {
		return result(ctx, model.Allow, RuleHumanOverride,
			fmt.Sprintf("HUMAN authority override: %s", v.Reason))
	}

	switch v.Result {
	case model.Escalate:
		return result(ctx, model.Escalate, RuleEscalate,
			fmt.Sprintf("Validation requires escalation: %s", v.Reason))
	case model.Deny:
		return result(ctx, model.Deny, RuleValidationDenied,
			fmt.Sprintf("Validation denied: %s", v.Reason))
	case model.Allow:
	default:
		return result(ctx, model.Deny, RuleValidationDenied,
			fmt.Sprintf("Validation denied: unrecognised validation result %q", v.Result))
	}

	if ctx.TrustZone == model.ZoneExternal {
		return result(ctx, model.Escalate, RuleExternalReview,
			"external source requires human review")
	}

	return result(ctx, model.Allow, RuleAllow, "all validation and workflow checks passed")
}

// Evaluate runs the full pipeline: validation, transition, and decision.
// The decision uses the action request's actor and trust zone.
func Evaluate(action model.ActionRequest, transition model.TransitionRequest) model.DecisionResult {
	v := policy.ValidateAction(action)
	t := workflow.AttemptTransition(transition.CurrentState, transition.Transition, transition.ActorKind)
	return ResolveDecision(NewContext(v, t, action.ActorKind, action.TrustZone))
}

func result(ctx model.DecisionContext, d model.Decision, ruleID, reason string) model.DecisionResult {
	return model.DecisionResult{
		Context:  ctx,
		Decision: d,
		Reason:   fmt.Sprintf("[%s] %s", ruleID, reason),
		RuleID:   ruleID,
	}
}
