package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/humanloop/internal/metrics"
	"github.com/ppiankov/humanloop/internal/server"
)

var (
	servePort    int
	serveMetrics string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "gRPC listen port (default: server.port from config)")
	serveCmd.Flags().StringVar(&serveMetrics, "metrics-addr", "", "Prometheus listen address, \"off\" to disable (default: server.metrics_addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC gate server",
	Long: "Runs humanloop as a central gate over gRPC (service humanloop.v1.Gate).\n" +
		"Sessions are persisted in the configured store and every call is written to the audit log.\n" +
		"Prometheus metrics are served at /metrics on the metrics address.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	port := e.cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	metricsAddr := e.cfg.Server.MetricsAddr
	if serveMetrics != "" {
		metricsAddr = serveMetrics
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mgr, auditLog, closeFn, err := e.openManager(ctx, m)
	if err != nil {
		return err
	}
	defer closeFn()

	opts := []server.Option{server.WithMetrics(m), server.WithLogger(e.logger)}
	if auditLog != nil {
		opts = append(opts, server.WithAudit(auditLog))
	}
	srv := server.New(server.Config{Port: port}, mgr, opts...)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	fmt.Fprintf(os.Stderr, "humanloop gate listening on :%d (store: %s)\n", port, e.cfg.Store.Backend)
	if auditLog != nil {
		fmt.Fprintf(os.Stderr, "Audit log: %s\n", auditLog.Path())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ServeOn(lis)
	})

	var metricsSrv *http.Server
	if metricsAddr != "" && metricsAddr != "off" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		fmt.Fprintf(os.Stderr, "Metrics: http://%s/metrics\n", metricsAddr)
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "\nShutting down gate server...")
		srv.GracefulStop()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
