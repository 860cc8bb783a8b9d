package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ppiankov/humanloop/internal/alert"
	"github.com/ppiankov/humanloop/internal/audit"
	"github.com/ppiankov/humanloop/internal/config"
	"github.com/ppiankov/humanloop/internal/logging"
	"github.com/ppiankov/humanloop/internal/metrics"
	"github.com/ppiankov/humanloop/internal/session"
)

// env is the loaded configuration shared by commands that touch storage.
type env struct {
	cfg    *config.Config
	hash   string
	logger *slog.Logger
}

func loadEnv() (*env, error) {
	cfg, hash, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &env{cfg: cfg, hash: hash, logger: logger}, nil
}

func (e *env) openAudit() (*audit.Log, error) {
	if e.cfg.AuditLog == "" {
		return nil, nil
	}
	return audit.Open(e.cfg.AuditLog, e.hash)
}

// openManager wires the configured store, audit log, and alert webhooks into
// a session manager. The returned func waits for pending alerts and
// releases the store and log.
func (e *env) openManager(ctx context.Context, m *metrics.Metrics) (*session.Manager, *audit.Log, func(), error) {
	store, err := session.OpenStore(ctx, e.cfg.Store)
	if err != nil {
		return nil, nil, nil, err
	}
	auditLog, err := e.openAudit()
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	opts := []session.Option{session.WithLogger(e.logger), session.WithMetrics(m)}
	if auditLog != nil {
		opts = append(opts, session.WithAudit(auditLog))
	}
	dispatcher := alert.NewDispatcher(e.cfg.Alerts, e.logger)
	if dispatcher != nil {
		opts = append(opts, session.WithNotifier(dispatcher))
	}
	mgr := session.NewManager(store, opts...)

	closeFn := func() {
		dispatcher.Wait()
		if auditLog != nil {
			auditLog.Close()
		}
		store.Close()
	}
	return mgr, auditLog, closeFn, nil
}
