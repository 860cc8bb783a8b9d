package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ppiankov/humanloop/internal/model"
)

// Exit codes for verdicts. 1 is left to command errors.
const (
	exitEscalate = 2
	exitDeny     = 3
)

func verdictExit(d model.Decision) error {
	switch d {
	case model.Allow:
		return nil
	case model.Escalate:
		return &exitError{code: exitEscalate}
	default:
		return &exitError{code: exitDeny}
	}
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func printValidation(w io.Writer, v model.ValidationResponse) {
	fmt.Fprintf(w, "%-9s %s\n", v.Result, v.Reason)
	fmt.Fprintf(w, "  rule: %s\n", v.RuleID)
	if v.RequiresHuman {
		fmt.Fprintln(w, "  requires human: yes")
	}
}

func printTransition(w io.Writer, t model.TransitionResponse) {
	if t.Allowed {
		fmt.Fprintf(w, "ALLOWED   %s -> %s\n", t.Request.CurrentState, t.NewState)
	} else {
		fmt.Fprintf(w, "REJECTED  %s\n", t.Reason)
	}
	fmt.Fprintf(w, "  rule: %s\n", t.RuleID)
}

func printDecision(w io.Writer, d model.DecisionResult) {
	fmt.Fprintf(w, "%-9s %s\n", d.Decision, d.Reason)
	fmt.Fprintf(w, "  rule: %s\n", d.RuleID)
	fmt.Fprintf(w, "  validation: %s (%s)\n", d.Context.Validation.Result, d.Context.Validation.RuleID)
	if d.Context.Transition.Allowed {
		fmt.Fprintf(w, "  transition: %s -> %s\n", d.Context.Transition.Request.CurrentState, d.Context.Transition.NewState)
	} else {
		fmt.Fprintf(w, "  transition: rejected (%s)\n", d.Context.Transition.RuleID)
	}
}
