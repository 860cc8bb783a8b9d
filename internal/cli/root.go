package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/invariant"
)

var (
	cfgFile   string
	outFormat string
)

var rootCmd = &cobra.Command{
	Use:   "humanloop",
	Short: "Deterministic human-in-the-loop authorization gate",
	Long: "Decides whether a proposed action may proceed, must be escalated to a human, or is denied.\n" +
		"Every outcome is explained by the rule that fired. Humans hold final authority; the system never approves itself.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := invariant.Verify(); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config YAML (default ~/.humanloop/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outFormat, "format", "f", "text", "Output format (text|json)")
}

// exitError carries a non-zero exit code that is not a failure of the
// command itself (a DENY verdict, a failed scenario).
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the root command.
func Execute() {
	err := execute(os.Args[1:], os.Stdout)
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func execute(args []string, out io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	return rootCmd.Execute()
}
