package scenario

import "github.com/ppiankov/humanloop/internal/model"

// Case kinds.
const (
	KindValidate   = "validate"
	KindTransition = "transition"
	KindDecide     = "decide"
)

// Transition outcomes as written in scenario files.
const (
	OutcomeAllowed  = "ALLOWED"
	OutcomeRejected = "REJECTED"
)

// Case is one check within a scenario. Kind may be omitted: a case with
// both a request and a transition is a decide case, otherwise the kind
// follows whichever one is present.
type Case struct {
	Name           string                   `yaml:"name,omitempty"`
	Kind           string                   `yaml:"kind,omitempty"`
	Request        *model.ActionRequest     `yaml:"request,omitempty"`
	Transition     *model.TransitionRequest `yaml:"transition,omitempty"`
	Expect         string                   `yaml:"expect"`
	NewState       model.WorkflowState      `yaml:"new_state,omitempty"`
	Rule           string                   `yaml:"rule,omitempty"`
	ReasonContains string                   `yaml:"reason_contains,omitempty"`
}

// Scenario is a named collection of cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one case.
type CaseResult struct {
	Index    int    `json:"index"`
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	NewState string `json:"new_state,omitempty"`
	RuleID   string `json:"rule_id"`
	Reason   string `json:"reason"`
	Failure  string `json:"failure,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
