package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/audit"
)

var (
	replayLog  string
	replayFrom string
	replayTo   string
	replayKind string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayLog, "log", "l", "", "Path to audit log (default: configured audit_log)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	replayCmd.Flags().StringVar(&replayKind, "kind", "", "Entry kind filter (validation|transition|decision)")
}

var replayCmd = &cobra.Command{
	Use:   "replay [session-id]",
	Short: "Replay a session from the audit log",
	Long:  "Reads the audit log, filters by session id, kind, and optional time range,\nand renders a human-readable decision timeline with summary.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	filter := audit.ReplayFilter{Kind: replayKind}
	if len(args) == 1 {
		filter.SessionID = args[0]
	}

	switch replayKind {
	case "", audit.KindValidation, audit.KindTransition, audit.KindDecision:
	default:
		return fmt.Errorf("invalid --kind %q", replayKind)
	}

	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}

	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	path := replayLog
	if path == "" {
		p, err := auditPath(nil)
		if err != nil {
			return err
		}
		path = p
	}

	result, err := audit.Replay(path, filter)
	if err != nil {
		return err
	}

	switch outFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(result))
	}

	return nil
}
