package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default humanloop configuration",
	Long: `Writes a commented config.yaml to the --config path (default ~/.humanloop/config.yaml).

The decision rules are compiled in; the config only selects the session
store, audit log location, server ports, and logging.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}

	wrote, err := writeIfMissing(path, config.DefaultConfigYAML())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "humanloop init complete.")
	fmt.Fprintln(w)
	if wrote {
		fmt.Fprintf(w, "Created:\n  %s\n", path)
	} else {
		fmt.Fprintf(w, "%s already exists (use --force to overwrite).\n", path)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Try:")
	fmt.Fprintln(w, "  humanloop rules")
	fmt.Fprintln(w, "  humanloop decide --actor SYSTEM --action DELETE --zone SYSTEM --state INIT --transition VALIDATE")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
