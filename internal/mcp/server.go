package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/humanloop/internal/audit"
	"github.com/ppiankov/humanloop/internal/logging"
	"github.com/ppiankov/humanloop/internal/metrics"
	"github.com/ppiankov/humanloop/internal/session"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Server wraps the MCP SDK server around the humanloop decision pipeline.
type Server struct {
	mcpServer *mcpsdk.Server
	sessions  *session.Manager
	audit     session.Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAudit records stateless tool calls. Session tools are audited by the
// session manager.
func WithAudit(r session.Recorder) Option {
	return func(s *Server) { s.audit = r }
}

// WithMetrics counts stateless tool calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates an MCP server exposing the gate tools.
func New(cfg Config, mgr *session.Manager, opts ...Option) *Server {
	if cfg.Name == "" {
		cfg.Name = "humanloop"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		sessions: mgr,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) record(e audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(e); err != nil {
		s.logger.Error("audit write failed", "kind", e.Kind, "error", err)
	}
}

// registerTools adds all gate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_validate",
		Description: "Validate an action request (actor, action type, trust zone) without touching any workflow. Returns ALLOW, ESCALATE, or DENY with the matching rule.",
	}, s.handleValidate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_transition",
		Description: "Check whether an actor may move a workflow from one state to another. Does not persist anything.",
	}, s.handleTransition)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_decide",
		Description: "Run the full pipeline (validation, transition, decision) for an action and a transition attempt.",
	}, s.handleDecide)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_session_start",
		Description: "Start a workflow session in INIT for an action request. Returns the session id.",
	}, s.handleSessionStart)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_session_transition",
		Description: "Attempt a transition on a stored session. The session only advances when the transition is allowed and the decision is not DENY.",
	}, s.handleSessionTransition)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_session_get",
		Description: "Fetch a session with its state and full transition trail.",
	}, s.handleSessionGet)
}
