package policy

import (
	"fmt"

	"github.com/ppiankov/humanloop/internal/model"
)

// rule is one entry of the ordered validation rule list.
type rule struct {
	ID     string
	Match  func(model.ActionRequest) bool
	Result model.Decision
	Reason func(model.ActionRequest) string
}

// rules is evaluated top to bottom; the first match wins.
//
// Evaluation order (must not be changed):
//  1. HUMAN actor             → allow
//  2. HUMAN trust zone        → allow
//  3. READ from SYSTEM/GOV    → allow
//  4. EXTERNAL trust zone     → deny
//  5. DELETE / EXECUTE        → escalate
//  6. WRITE from SYSTEM       → escalate
//  7. CONFIGURE               → escalate
//  8. anything else           → deny (fail closed)
var rules = []rule{
	{
		ID:     "validate.human_actor",
		Match:  func(r model.ActionRequest) bool { return r.ActorKind == model.ActorHuman },
		Result: model.Allow,
		Reason: static("human actor has absolute authority"),
	},
	{
		ID:     "validate.human_zone",
		Match:  func(r model.ActionRequest) bool { return r.TrustZone == model.ZoneHuman },
		Result: model.Allow,
		Reason: static("request from human trust zone"),
	},
	{
		ID: "validate.internal_read",
		Match: func(r model.ActionRequest) bool {
			return r.ActionType == model.ActionRead &&
				(r.TrustZone == model.ZoneSystem || r.TrustZone == model.ZoneGovernance)
		},
		Result: model.Allow,
		Reason: func(r model.ActionRequest) string {
			return fmt.Sprintf("read access permitted from %s trust zone", r.TrustZone)
		},
	},
	{
		ID:     "validate.external_zone",
		Match:  func(r model.ActionRequest) bool { return r.TrustZone == model.ZoneExternal },
		Result: model.Deny,
		Reason: func(r model.ActionRequest) string {
			return fmt.Sprintf("%s from external trust zone is not permitted", r.ActionType)
		},
	},
	{
		ID: "validate.critical_action",
		Match: func(r model.ActionRequest) bool {
			return r.ActionType == model.ActionDelete || r.ActionType == model.ActionExecute
		},
		Result: model.Escalate,
		Reason: func(r model.ActionRequest) string {
			return fmt.Sprintf("%s is a critical action and requires human approval", r.ActionType)
		},
	},
	{
		ID: "validate.system_write",
		Match: func(r model.ActionRequest) bool {
			return r.ActionType == model.ActionWrite && r.TrustZone == model.ZoneSystem
		},
		Result: model.Escalate,
		Reason: static("write from system trust zone requires human approval"),
	},
	{
		ID:     "validate.configure",
		Match:  func(r model.ActionRequest) bool { return r.ActionType == model.ActionConfigure },
		Result: model.Escalate,
		Reason: static("configuration change requires human approval"),
	},
}

const defaultRuleID = "validate.default_deny"

// RuleInvalidInput is reported for requests with an unknown actor, action,
// or zone.
const RuleInvalidInput = "validate.invalid_input"

// ValidateAction maps a request to ALLOW, DENY, or ESCALATE.
// It never returns an error: denial is an ordinary result. A request carrying
// a value outside any closed set is denied before the rule list runs.
func ValidateAction(req model.ActionRequest) model.ValidationResponse {
	if field, ok := invalidField(req); ok {
		return model.ValidationResponse{
			Request: req,
			Result:  model.Deny,
			Reason:  fmt.Sprintf("denied: invalid %s", field),
			RuleID:  RuleInvalidInput,
		}
	}

	for _, r := range rules {
		if r.Match(req) {
			return model.ValidationResponse{
				Request:       req,
				Result:        r.Result,
				Reason:        r.Reason(req),
				RequiresHuman: r.Result == model.Escalate,
				RuleID:        r.ID,
			}
		}
	}

	return model.ValidationResponse{
		Request: req,
		Result:  model.Deny,
		Reason:  "denied by default policy",
		RuleID:  defaultRuleID,
	}
}

// RuleInfo describes one validation rule for introspection.
type RuleInfo struct {
	Position int            `json:"position"`
	ID       string         `json:"id"`
	Result   model.Decision `json:"result"`
}

// Rules returns the validation rules in evaluation order, including the
// terminal default rule.
func Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(rules)+1)
	for i, r := range rules {
		out = append(out, RuleInfo{Position: i + 1, ID: r.ID, Result: r.Result})
	}
	out = append(out, RuleInfo{Position: len(rules) + 1, ID: defaultRuleID, Result: model.Deny})
	return out
}

func invalidField(req model.ActionRequest) (string, bool) {
	switch {
	case !req.ActorKind.Valid():
		return fmt.Sprintf("actor kind %q", req.ActorKind), true
	case !req.ActionType.Valid():
		return fmt.Sprintf("action type %q", req.ActionType), true
	case !req.TrustZone.Valid():
		return fmt.Sprintf("trust zone %q", req.TrustZone), true
	}
	return "", false
}

func static(s string) func(model.ActionRequest) string {
	return func(model.ActionRequest) string { return s }
}
