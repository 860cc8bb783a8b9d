package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/session"
)

var (
	sessActor      string
	sessAction     string
	sessZone       string
	sessTarget     string
	sessTransition string
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionTransitionCmd, sessionShowCmd, sessionListCmd, sessionDeleteCmd)

	sessionStartCmd.Flags().StringVar(&sessActor, "actor", "", "Actor kind (HUMAN|SYSTEM)")
	sessionStartCmd.Flags().StringVar(&sessAction, "action", "", "Action type")
	sessionStartCmd.Flags().StringVar(&sessZone, "zone", "", "Trust zone")
	sessionStartCmd.Flags().StringVar(&sessTarget, "target", "", "Opaque target identifier")
	sessionStartCmd.MarkFlagRequired("actor")
	sessionStartCmd.MarkFlagRequired("action")
	sessionStartCmd.MarkFlagRequired("zone")

	sessionTransitionCmd.Flags().StringVar(&sessTransition, "transition", "", "Transition to attempt")
	sessionTransitionCmd.Flags().StringVar(&sessActor, "actor", "", "Actor attempting the transition")
	sessionTransitionCmd.MarkFlagRequired("transition")
	sessionTransitionCmd.MarkFlagRequired("actor")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Stored workflow sessions",
	Long:  "Start, advance, and inspect workflow sessions persisted in the configured store.",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session in INIT for an action request",
	RunE:  runSessionStart,
}

var sessionTransitionCmd = &cobra.Command{
	Use:   "transition <id>",
	Short: "Attempt a transition on a session",
	Long: "Runs validation, the transition check, and the decision for the session's action.\n" +
		"The session advances only when the transition is allowed and the decision is not DENY.\n\n" +
		"Exit code 0 on ALLOW, 2 on ESCALATE, 3 on DENY.",
	Args: cobra.ExactArgs(1),
	RunE: runSessionTransition,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session and its trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, oldest first",
	RunE:  runSessionList,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	actor, err := model.ParseActorKind(sessActor)
	if err != nil {
		return fmt.Errorf("--actor: %w", err)
	}
	action, err := model.ParseActionType(sessAction)
	if err != nil {
		return fmt.Errorf("--action: %w", err)
	}
	zone, err := model.ParseTrustZone(sessZone)
	if err != nil {
		return fmt.Errorf("--zone: %w", err)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	mgr, _, closeFn, err := e.openManager(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer closeFn()

	s, v, err := mgr.Start(cmd.Context(), model.ActionRequest{
		ActorKind: actor, ActionType: action, TrustZone: zone, Target: sessTarget,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outFormat == "json" {
		return writeJSON(w, map[string]any{"session": s, "validation": v})
	}
	fmt.Fprintf(w, "Session %s started in %s\n", s.ID, s.State)
	printValidation(w, v)
	return nil
}

func runSessionTransition(cmd *cobra.Command, args []string) error {
	tr, err := model.ParseTransition(sessTransition)
	if err != nil {
		return fmt.Errorf("--transition: %w", err)
	}
	actor, err := model.ParseActorKind(sessActor)
	if err != nil {
		return fmt.Errorf("--actor: %w", err)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	mgr, _, closeFn, err := e.openManager(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := mgr.Transition(cmd.Context(), args[0], tr, actor)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outFormat == "json" {
		if err := writeJSON(w, out); err != nil {
			return err
		}
	} else {
		printDecision(w, out.Decision)
		if out.Advanced {
			fmt.Fprintf(w, "Session %s now %s\n", out.Session.ID, out.Session.State)
		} else {
			fmt.Fprintf(w, "Session %s stays %s\n", out.Session.ID, out.Session.State)
		}
	}
	return verdictExit(out.Decision.Decision)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	mgr, _, closeFn, err := e.openManager(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer closeFn()

	s, err := mgr.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), s)
	}
	printSession(cmd.OutOrStdout(), s)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	mgr, _, closeFn, err := e.openManager(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer closeFn()

	sessions, err := mgr.List(cmd.Context())
	if err != nil {
		return err
	}
	if outFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), sessions)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tACTOR\tACTION\tZONE\tSTEPS\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.State, s.Request.ActorKind, s.Request.ActionType, s.Request.TrustZone,
			len(s.Trail), s.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	mgr, _, closeFn, err := e.openManager(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := mgr.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func printSession(w io.Writer, s *session.Session) {
	fmt.Fprintf(w, "Session: %s\n", s.ID)
	fmt.Fprintf(w, "State:   %s (version %d)\n", s.State, s.Version)
	fmt.Fprintf(w, "Request: %s %s from %s", s.Request.ActorKind, s.Request.ActionType, s.Request.TrustZone)
	if s.Request.Target != "" {
		fmt.Fprintf(w, " on %s", s.Request.Target)
	}
	fmt.Fprintln(w)
	if len(s.Trail) == 0 {
		fmt.Fprintln(w, "Trail:   (empty)")
		return
	}
	fmt.Fprintln(w, "Trail:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, t := range s.Trail {
		move := string(t.From)
		if t.Advanced() {
			move += " -> " + string(t.To)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, t.At.UTC().Format(time.RFC3339), t.Actor, t.Transition, t.Decision, move)
	}
	tw.Flush()
}
