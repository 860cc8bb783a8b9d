package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/scenario"
)

var (
	checkScenario string
	checkWatch    bool
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files (required)")
	checkCmd.Flags().BoolVarP(&checkWatch, "watch", "w", false, "Re-run whenever a scenario file changes")
	checkCmd.MarkFlagRequired("scenario")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run decision assertions from scenario files",
	Long: "Loads scenario YAML files matching a glob pattern, evaluates each\n" +
		"case through the validator, the workflow, or the full pipeline, and reports pass/fail.\n\n" +
		"Exit code 0 if all cases pass, 1 if any fail.\n" +
		"Use in CI to gate deployments on rule correctness.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}

	if checkWatch {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return watchScenarios(ctx, cmd, matches)
	}

	results, err := scenario.RunFiles(matches)
	if err != nil {
		return err
	}
	if err := printResults(cmd, results); err != nil {
		return err
	}
	if scenario.Failed(results) {
		return &exitError{code: 1}
	}
	return nil
}

func watchScenarios(ctx context.Context, cmd *cobra.Command, paths []string) error {
	fmt.Fprintf(os.Stderr, "watching %d scenario file(s), Ctrl-C to stop\n", len(paths))
	return scenario.Watch(ctx, paths, scenario.DefaultDebounce, func(results []*scenario.RunResult, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		if err := printResults(cmd, results); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	})
}

func printResults(cmd *cobra.Command, results []*scenario.RunResult) error {
	switch outFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), scenario.FormatText(results))
	}
	return nil
}
