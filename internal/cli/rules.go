package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/decision"
	"github.com/ppiankov/humanloop/internal/invariant"
	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/policy"
	"github.com/ppiankov/humanloop/internal/workflow"
)

func init() {
	rootCmd.AddCommand(rulesCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the compiled-in rules",
	Long:  "Prints the validation rules, the workflow table, and the decision priority order,\nwith the catalogue fingerprint checked at startup.",
	RunE:  runRules,
}

type edgeInfo struct {
	From          model.WorkflowState   `json:"from"`
	Transition    model.StateTransition `json:"transition"`
	To            model.WorkflowState   `json:"to"`
	RequiresHuman bool                  `json:"requires_human"`
}

type rulesInfo struct {
	Validation  []policy.RuleInfo     `json:"validation"`
	Workflow    []edgeInfo            `json:"workflow"`
	Terminal    []model.WorkflowState `json:"terminal"`
	Decision    []string              `json:"decision"`
	Fingerprint string                `json:"fingerprint"`
}

func collectRules() rulesInfo {
	info := rulesInfo{
		Validation:  policy.Rules(),
		Terminal:    workflow.TerminalStates(),
		Decision:    decision.RuleIDs(),
		Fingerprint: invariant.Fingerprint(),
	}
	for _, s := range model.AllWorkflowStates() {
		for _, t := range workflow.ValidTransitions(s) {
			to, _ := workflow.Next(s, t)
			info.Workflow = append(info.Workflow, edgeInfo{
				From: s, Transition: t, To: to, RequiresHuman: workflow.RequiresHuman(s, t),
			})
		}
	}
	return info
}

func runRules(cmd *cobra.Command, args []string) error {
	info := collectRules()
	w := cmd.OutOrStdout()
	if outFormat == "json" {
		return writeJSON(w, info)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Validation (first match wins):")
	for _, r := range info.Validation {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", r.Position, r.ID, r.Result)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Workflow:")
	for _, e := range info.Workflow {
		human := ""
		if e.RequiresHuman {
			human = "HUMAN only"
		}
		fmt.Fprintf(tw, "  %s\t%s\t-> %s\t%s\n", e.From, e.Transition, e.To, human)
	}
	fmt.Fprintf(tw, "  terminal: %v\n", info.Terminal)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Decision (priority order):")
	for i, id := range info.Decision {
		fmt.Fprintf(tw, "  %d\t%s\n", i+1, id)
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Fingerprint: %s\n", info.Fingerprint)
	return tw.Flush()
}
