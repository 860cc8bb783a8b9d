package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/humanloop/internal/decision"
	"github.com/ppiankov/humanloop/internal/invariant"
	"github.com/ppiankov/humanloop/internal/policy"
	"github.com/ppiankov/humanloop/internal/workflow"
)

// Run evaluates every case in s. Cases are independent: nothing carries
// over from one case to the next.
func Run(s *Scenario) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := runCase(c)
		cr.Index = i + 1
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

func runCase(c Case) CaseResult {
	cr := CaseResult{
		Name:     c.Name,
		Kind:     kindOf(c),
		Expected: strings.ToUpper(strings.TrimSpace(c.Expect)),
	}

	switch cr.Kind {
	case KindValidate:
		if c.Request == nil {
			return cr.fail("validate case needs a request")
		}
		v := policy.ValidateAction(*c.Request)
		cr.Actual, cr.RuleID, cr.Reason = v.Result.String(), v.RuleID, v.Reason

	case KindTransition:
		if c.Transition == nil {
			return cr.fail("transition case needs a transition")
		}
		t := workflow.AttemptTransition(c.Transition.CurrentState, c.Transition.Transition, c.Transition.ActorKind)
		cr.Actual, cr.RuleID, cr.Reason = OutcomeRejected, t.RuleID, t.Reason
		if t.Allowed {
			cr.Actual = OutcomeAllowed
			cr.NewState = t.NewState.String()
		}

	case KindDecide:
		if c.Request == nil || c.Transition == nil {
			return cr.fail("decide case needs both a request and a transition")
		}
		d := decision.Evaluate(*c.Request, *c.Transition)
		cr.Actual, cr.RuleID, cr.Reason = d.Decision.String(), d.RuleID, d.Reason
		if d.Context.Transition.Allowed {
			cr.NewState = d.Context.Transition.NewState.String()
		}

	default:
		return cr.fail(fmt.Sprintf("unknown case kind %q", c.Kind))
	}

	switch {
	case cr.Actual != cr.Expected:
		return cr.fail(fmt.Sprintf("expected %s, got %s", cr.Expected, cr.Actual))
	case c.NewState != "" && cr.NewState != c.NewState.String():
		return cr.fail(fmt.Sprintf("expected new state %s, got %q", c.NewState, cr.NewState))
	case c.Rule != "" && cr.RuleID != c.Rule:
		return cr.fail(fmt.Sprintf("expected rule %s, got %s", c.Rule, cr.RuleID))
	case c.ReasonContains != "" && !strings.Contains(cr.Reason, c.ReasonContains):
		return cr.fail(fmt.Sprintf("reason %q does not contain %q", cr.Reason, c.ReasonContains))
	}
	cr.Passed = true
	return cr
}

func (cr CaseResult) fail(msg string) CaseResult {
	cr.Passed = false
	cr.Failure = msg
	return cr
}

func kindOf(c Case) string {
	if c.Kind != "" {
		return strings.ToLower(strings.TrimSpace(c.Kind))
	}
	switch {
	case c.Request != nil && c.Transition != nil:
		return KindDecide
	case c.Transition != nil:
		return KindTransition
	default:
		return KindValidate
	}
}

// Load reads and parses a scenario file. Files containing override
// directives are refused before parsing.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	if err := invariant.ScanForbidden(path, data); err != nil {
		return nil, fmt.Errorf("refusing scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return &s, nil
}

// LoadAndRun loads a scenario YAML file and runs it.
func LoadAndRun(path string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result := Run(s)
	result.File = path
	return result, nil
}

// RunFiles runs each file in order and stops at the first load error.
func RunFiles(paths []string) ([]*RunResult, error) {
	results := make([]*RunResult, 0, len(paths))
	for _, p := range paths {
		r, err := LoadAndRun(p)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Failed reports whether any case in results failed.
func Failed(results []*RunResult) bool {
	for _, r := range results {
		if r.Failed > 0 {
			return true
		}
	}
	return false
}
