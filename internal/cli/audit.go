package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/humanloop/internal/audit"
)

var tailLines int

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.\nWithout a path argument the configured audit_log is used.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit log entries",
	Long:  "Reads the last N entries from the JSONL audit log and prints them as a timeline.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	e, err := loadEnv()
	if err != nil {
		return "", err
	}
	if e.cfg.AuditLog == "" {
		return "", fmt.Errorf("no audit log path given and audit_log is not configured")
	}
	return e.cfg.AuditLog, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if outFormat == "json" {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
	}
	if result.Valid {
		return nil
	}
	if outFormat != "json" {
		fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	}
	return &exitError{code: 1}
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	entries, err := audit.Tail(path, tailLines)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outFormat == "json" {
		return writeJSON(w, entries)
	}
	for _, e := range entries {
		label := e.SessionID
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s  %s\n", audit.FormatEntry(e), label)
	}
	return nil
}
