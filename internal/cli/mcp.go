package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	loopmcp "github.com/ppiankov/humanloop/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs humanloop as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes gate tools: validate, transition, decide, session_start, session_transition, session_get.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	mgr, auditLog, closeFn, err := e.openManager(ctx, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	opts := []loopmcp.Option{loopmcp.WithLogger(e.logger)}
	if auditLog != nil {
		opts = append(opts, loopmcp.WithAudit(auditLog))
	}
	srv := loopmcp.New(loopmcp.Config{Name: "humanloop", Version: version}, mgr, opts...)

	fmt.Fprintf(os.Stderr, "humanloop MCP server running on stdio (store: %s)\n", e.cfg.Store.Backend)
	return srv.Run(ctx)
}
