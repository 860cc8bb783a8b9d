// Package server exposes the decision pipeline and the session manager over
// gRPC as the humanloop.v1.Gate service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	gatev1 "github.com/ppiankov/humanloop/api/gate/v1"
	"github.com/ppiankov/humanloop/internal/audit"
	"github.com/ppiankov/humanloop/internal/decision"
	"github.com/ppiankov/humanloop/internal/logging"
	"github.com/ppiankov/humanloop/internal/metrics"
	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/policy"
	"github.com/ppiankov/humanloop/internal/session"
	"github.com/ppiankov/humanloop/internal/workflow"
)

// Config holds gRPC server configuration.
type Config struct {
	Port int
}

// Server implements gatev1.GateServer.
type Server struct {
	cfg      Config
	sessions *session.Manager
	audit    session.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger

	grpcServer *grpc.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAudit records stateless Validate, Transition, and Decide calls.
// Session calls are audited by the session manager.
func WithAudit(r session.Recorder) Option {
	return func(s *Server) { s.audit = r }
}

// WithMetrics counts stateless calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a gRPC server backed by mgr.
func New(cfg Config, mgr *session.Manager, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: mgr,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	gatev1.RegisterGateServer(s.grpcServer, s)
	return s
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("gate listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Validate implements the Validate RPC.
func (s *Server) Validate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req model.ActionRequest
	if err := gatev1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	v := policy.ValidateAction(req)
	s.metrics.ObserveValidation(v)
	s.record(audit.FromValidation("", v))
	return encode(v)
}

// Transition implements the Transition RPC.
func (s *Server) Transition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req model.TransitionRequest
	if err := gatev1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	t := workflow.AttemptTransition(req.CurrentState, req.Transition, req.ActorKind)
	s.metrics.ObserveTransition(t)
	s.record(audit.FromTransition("", t))
	return encode(t)
}

// Decide implements the Decide RPC.
func (s *Server) Decide(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gatev1.DecideRequest
	if err := gatev1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	d := decision.Evaluate(req.Action, req.Transition)
	s.metrics.ObserveDecision(d)
	s.record(audit.FromDecision("", d))
	return encode(d)
}

// StartSession implements the StartSession RPC.
func (s *Server) StartSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req model.ActionRequest
	if err := gatev1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, v, err := s.sessions.Start(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(gatev1.StartSessionResponse{Session: sess, Validation: v})
}

// SessionTransition implements the SessionTransition RPC.
func (s *Server) SessionTransition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gatev1.SessionTransitionRequest
	if err := gatev1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	out, err := s.sessions.Transition(ctx, req.SessionID, req.Transition, req.ActorKind)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(out)
}

// GetSession implements the GetSession RPC.
func (s *Server) GetSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gatev1.GetSessionRequest
	if err := gatev1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(sess)
}

func (s *Server) record(e audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(e); err != nil {
		s.logger.Error("audit write failed", "kind", e.Kind, "error", err)
	}
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	s.logger.Debug("rpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

func encode(v any) (*structpb.Struct, error) {
	out, err := gatev1.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus maps session errors onto gRPC codes.
func toStatus(err error) error {
	var invalid *session.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, session.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, session.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
