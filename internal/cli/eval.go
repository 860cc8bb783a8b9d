package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/decision"
	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/policy"
	"github.com/ppiankov/humanloop/internal/workflow"
)

var (
	evalActor      string
	evalAction     string
	evalZone       string
	evalTarget     string
	evalState      string
	evalTransition string
)

func init() {
	rootCmd.AddCommand(validateCmd, transitionCmd, decideCmd)

	for _, c := range []*cobra.Command{validateCmd, decideCmd} {
		c.Flags().StringVar(&evalActor, "actor", "", "Actor kind (HUMAN|SYSTEM)")
		c.Flags().StringVar(&evalAction, "action", "", "Action type (READ|WRITE|DELETE|EXECUTE|CONFIGURE)")
		c.Flags().StringVar(&evalZone, "zone", "", "Trust zone (HUMAN|GOVERNANCE|SYSTEM|EXTERNAL)")
		c.Flags().StringVar(&evalTarget, "target", "", "Opaque target identifier")
		c.MarkFlagRequired("actor")
		c.MarkFlagRequired("action")
		c.MarkFlagRequired("zone")
	}
	for _, c := range []*cobra.Command{transitionCmd, decideCmd} {
		c.Flags().StringVar(&evalState, "state", "", "Current workflow state")
		c.Flags().StringVar(&evalTransition, "transition", "", "Transition to attempt")
		c.MarkFlagRequired("state")
		c.MarkFlagRequired("transition")
	}
	transitionCmd.Flags().StringVar(&evalActor, "actor", "", "Actor kind (HUMAN|SYSTEM)")
	transitionCmd.MarkFlagRequired("actor")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an action request",
	Long: "Runs the ordered validation rules against (actor, action, zone) and prints\n" +
		"ALLOW, ESCALATE, or DENY with the rule that fired.\n\n" +
		"Exit code 0 on ALLOW, 2 on ESCALATE, 3 on DENY.",
	RunE: runValidate,
}

var transitionCmd = &cobra.Command{
	Use:   "transition",
	Short: "Check a workflow transition",
	Long:  "Checks whether an actor may move a workflow from --state via --transition.\nExit code 0 if allowed, 3 if rejected.",
	RunE:  runTransition,
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run the full decision pipeline",
	Long: "Validates the action, checks the transition, and resolves the final decision.\n" +
		"The actor attempts the transition and its kind drives the decision.\n\n" +
		"Exit code 0 on ALLOW, 2 on ESCALATE, 3 on DENY.",
	RunE: runDecide,
}

func runValidate(cmd *cobra.Command, args []string) error {
	req, err := actionFromFlags()
	if err != nil {
		return err
	}
	v := policy.ValidateAction(req)
	if outFormat == "json" {
		if err := writeJSON(cmd.OutOrStdout(), v); err != nil {
			return err
		}
	} else {
		printValidation(cmd.OutOrStdout(), v)
	}
	return verdictExit(v.Result)
}

func runTransition(cmd *cobra.Command, args []string) error {
	req, err := transitionFromFlags()
	if err != nil {
		return err
	}
	t := workflow.AttemptTransition(req.CurrentState, req.Transition, req.ActorKind)
	if outFormat == "json" {
		if err := writeJSON(cmd.OutOrStdout(), t); err != nil {
			return err
		}
	} else {
		printTransition(cmd.OutOrStdout(), t)
	}
	if !t.Allowed {
		return &exitError{code: exitDeny}
	}
	return nil
}

func runDecide(cmd *cobra.Command, args []string) error {
	action, err := actionFromFlags()
	if err != nil {
		return err
	}
	tr, err := transitionFromFlags()
	if err != nil {
		return err
	}
	d := decision.Evaluate(action, tr)
	if outFormat == "json" {
		if err := writeJSON(cmd.OutOrStdout(), d); err != nil {
			return err
		}
	} else {
		printDecision(cmd.OutOrStdout(), d)
	}
	return verdictExit(d.Decision)
}

func actionFromFlags() (model.ActionRequest, error) {
	actor, err := model.ParseActorKind(evalActor)
	if err != nil {
		return model.ActionRequest{}, fmt.Errorf("--actor: %w", err)
	}
	action, err := model.ParseActionType(evalAction)
	if err != nil {
		return model.ActionRequest{}, fmt.Errorf("--action: %w", err)
	}
	zone, err := model.ParseTrustZone(evalZone)
	if err != nil {
		return model.ActionRequest{}, fmt.Errorf("--zone: %w", err)
	}
	return model.ActionRequest{ActorKind: actor, ActionType: action, TrustZone: zone, Target: evalTarget}, nil
}

func transitionFromFlags() (model.TransitionRequest, error) {
	actor, err := model.ParseActorKind(evalActor)
	if err != nil {
		return model.TransitionRequest{}, fmt.Errorf("--actor: %w", err)
	}
	state, err := model.ParseWorkflowState(evalState)
	if err != nil {
		return model.TransitionRequest{}, fmt.Errorf("--state: %w", err)
	}
	tr, err := model.ParseTransition(evalTransition)
	if err != nil {
		return model.TransitionRequest{}, fmt.Errorf("--transition: %w", err)
	}
	return model.TransitionRequest{CurrentState: state, Transition: tr, ActorKind: actor}, nil
}
