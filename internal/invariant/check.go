// Package invariant guards the foundational catalogues at startup.
// The actor, zone, action, and workflow tables are compiled-in constants;
// Verify re-derives their properties and, when a build-time fingerprint is
// embedded, refuses to run a binary whose catalogues differ from it.
package invariant

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/humanloop/internal/actor"
	"github.com/ppiankov/humanloop/internal/decision"
	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/policy"
	"github.com/ppiankov/humanloop/internal/workflow"
	"github.com/ppiankov/humanloop/internal/zone"
)

// ExpectedFingerprint is set at build time via:
//
//	-ldflags "-X github.com/ppiankov/humanloop/internal/invariant.ExpectedFingerprint=sha256:<hex>"
//
// When empty (dev builds), the fingerprint comparison is skipped.
var ExpectedFingerprint string

// ErrInvariant matches every error this package returns via errors.Is.
var ErrInvariant = errors.New("invariant violation")

// InvariantViolationError reports a catalogue property that does not hold.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

func (e *InvariantViolationError) Is(target error) bool { return target == ErrInvariant }

// ConstantMutationError reports catalogues that differ from the fingerprint
// embedded at build time.
type ConstantMutationError struct {
	Expected string
	Actual   string
}

func (e *ConstantMutationError) Error() string {
	return fmt.Sprintf("catalogue fingerprint mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *ConstantMutationError) Is(target error) bool { return target == ErrInvariant }

type check struct {
	name string
	fn   func() error
}

var checks = []check{
	{"actor.cardinality", checkActors},
	{"zone.ordering", checkZones},
	{"enum.cardinality", checkEnums},
	{"workflow.terminal", checkTerminal},
	{"workflow.human_only", checkHumanOnly},
	{"workflow.confirm_permission", checkConfirmPermission},
	{"policy.human_authority", checkHumanAuthority},
}

// Verify runs every catalogue check and the fingerprint comparison.
// It returns the first violation found.
func Verify() error {
	for _, c := range checks {
		if err := c.fn(); err != nil {
			return err
		}
	}
	if ExpectedFingerprint == "" {
		return nil
	}
	if actual := Fingerprint(); actual != ExpectedFingerprint {
		return &ConstantMutationError{Expected: ExpectedFingerprint, Actual: actual}
	}
	return nil
}

func violated(name, format string, args ...any) error {
	return &InvariantViolationError{Invariant: name, Detail: fmt.Sprintf(format, args...)}
}

func checkActors() error {
	kinds := model.AllActorKinds()
	if len(kinds) != 2 {
		return violated("actor.cardinality", "expected 2 actor kinds, got %d", len(kinds))
	}
	h, ok := actor.Lookup(model.ActorHuman)
	if !ok {
		return violated("actor.cardinality", "HUMAN profile missing")
	}
	s, ok := actor.Lookup(model.ActorSystem)
	if !ok {
		return violated("actor.cardinality", "SYSTEM profile missing")
	}
	if h.TrustLevel != 100 || s.TrustLevel != 0 || h.TrustLevel <= s.TrustLevel {
		return violated("actor.trust", "expected HUMAN=100 > SYSTEM=0, got %d/%d", h.TrustLevel, s.TrustLevel)
	}
	if !h.IsAuthoritative || s.IsAuthoritative {
		return violated("actor.authority", "HUMAN must be authoritative and SYSTEM must not")
	}
	if actor.RoleOf(model.ActorHuman) == actor.RoleOf(model.ActorSystem) {
		return violated("actor.roles", "actor kinds must map 1:1 to roles")
	}
	return nil
}

func checkZones() error {
	zones := model.AllTrustZones()
	if len(zones) != 4 {
		return violated("zone.cardinality", "expected 4 zones, got %d", len(zones))
	}
	for i := 1; i < len(zones); i++ {
		if zone.Level(zones[i-1]) <= zone.Level(zones[i]) {
			return violated("zone.ordering", "%s must outrank %s", zones[i-1], zones[i])
		}
	}
	if zone.Level(model.ZoneExternal) != 0 {
		return violated("zone.ordering", "EXTERNAL level must be 0")
	}
	for _, src := range zones {
		if src == model.ZoneHuman {
			continue
		}
		for _, dst := range zones {
			if zone.Level(dst) > zone.Level(src) && zone.CheckTrustCrossing(src, dst).Allowed {
				return violated("zone.self_escalation", "%s may escalate to %s", src, dst)
			}
		}
	}
	return nil
}

func checkEnums() error {
	counts := map[string][2]int{
		"action types": {len(model.AllActionTypes()), 5},
		"decisions":    {len(model.AllDecisions()), 3},
		"states":       {len(model.AllWorkflowStates()), 7},
		"transitions":  {len(model.AllTransitions()), 6},
		"terminal":     {len(workflow.TerminalStates()), 3},
	}
	for name, c := range counts {
		if c[0] != c[1] {
			return violated("enum.cardinality", "expected %d %s, got %d", c[1], name, c[0])
		}
	}
	return nil
}

func checkTerminal() error {
	for _, s := range workflow.TerminalStates() {
		if ts := workflow.ValidTransitions(s); len(ts) > 0 {
			return violated("workflow.terminal", "terminal state %s has outgoing transitions %v", s, ts)
		}
	}
	return nil
}

func checkHumanOnly() error {
	for _, s := range model.AllWorkflowStates() {
		for _, t := range []model.StateTransition{model.TransitionApprove, model.TransitionReject, model.TransitionAbort} {
			if workflow.AttemptTransition(s, t, model.ActorSystem).Allowed {
				return violated("workflow.human_only", "SYSTEM may %s from %s", t, s)
			}
		}
	}
	if workflow.AttemptTransition(model.StateValidated, model.TransitionComplete, model.ActorSystem).Allowed {
		return violated("workflow.human_only", "SYSTEM may COMPLETE from VALIDATED")
	}
	return nil
}

// checkConfirmPermission keeps the role table in step with the transition
// table: exactly the actors allowed on human-only moves hold CONFIRM.
func checkConfirmPermission() error {
	for _, k := range model.AllActorKinds() {
		for _, s := range model.AllWorkflowStates() {
			for _, t := range model.AllTransitions() {
				if !workflow.RequiresHuman(s, t) {
					continue
				}
				allowed := workflow.AttemptTransition(s, t, k).Allowed
				if allowed && !actor.CheckPermission(k, actor.PermConfirm) {
					return violated("workflow.confirm_permission", "%s may %s from %s without %s", k, t, s, actor.PermConfirm)
				}
			}
		}
	}
	if !actor.CheckPermission(model.ActorHuman, actor.PermConfirm) || actor.CheckPermission(model.ActorSystem, actor.PermConfirm) {
		return violated("workflow.confirm_permission", "%s must be held by HUMAN only", actor.PermConfirm)
	}
	return nil
}

func checkHumanAuthority() error {
	for _, a := range model.AllActionTypes() {
		for _, z := range model.AllTrustZones() {
			r := policy.ValidateAction(model.ActionRequest{ActorKind: model.ActorHuman, ActionType: a, TrustZone: z})
			if r.Result != model.Allow {
				return violated("policy.human_authority", "HUMAN %s from %s resolved to %s", a, z, r.Result)
			}
		}
	}
	return nil
}

// Fingerprint returns "sha256:<hex>" over a canonical rendering of every
// catalogue: actor profiles, role permissions, zone levels, the transition
// table, and both rule lists.
func Fingerprint() string {
	var lines []string

	for _, k := range model.AllActorKinds() {
		a, _ := actor.Lookup(k)
		lines = append(lines, fmt.Sprintf("actor %s role=%s trust=%d auth=%t init=%t confirm=%t overridable=%t perms=%v",
			a.Kind, a.Role, a.TrustLevel, a.IsAuthoritative, a.CanInitiate, a.CanConfirm, a.CanBeOverridden,
			actor.Permissions(a.Role)))
	}
	for _, z := range model.AllTrustZones() {
		lines = append(lines, fmt.Sprintf("zone %s level=%d", z, zone.Level(z)))
	}
	for _, a := range model.AllActionTypes() {
		lines = append(lines, fmt.Sprintf("action %s criticality=%s", a, a.Criticality()))
	}
	for _, s := range model.AllWorkflowStates() {
		for _, t := range workflow.ValidTransitions(s) {
			to, _ := workflow.Next(s, t)
			lines = append(lines, fmt.Sprintf("edge %s %s %s human=%t", s, t, to, workflow.RequiresHuman(s, t)))
		}
	}
	var ruleLines []string
	for _, r := range policy.Rules() {
		ruleLines = append(ruleLines, fmt.Sprintf("validate %d %s %s", r.Position, r.ID, r.Result))
	}
	for i, id := range decision.RuleIDs() {
		ruleLines = append(ruleLines, fmt.Sprintf("decide %d %s", i+1, id))
	}
	sort.Strings(lines)
	lines = append(lines, ruleLines...)

	h := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return "sha256:" + hex.EncodeToString(h[:])
}
