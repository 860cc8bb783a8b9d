package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/invariant"
)

const version = "0.1.0"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{
			"version":     version,
			"name":        "humanloop",
			"fingerprint": invariant.Fingerprint(),
		}
		return writeJSON(cmd.OutOrStdout(), info)
	},
}
