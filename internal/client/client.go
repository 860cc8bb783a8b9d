// Package client is a Go client for a remote humanloop gate.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	gatev1 "github.com/ppiankov/humanloop/api/gate/v1"
	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/session"
)

// RuleUnreachable is reported when a gate call fails.
const RuleUnreachable = "failclosed.unreachable"

// DefaultTimeout bounds each call when ctx carries no deadline.
const DefaultTimeout = 5 * time.Second

// Client connects to a humanloop gRPC gate.
type Client struct {
	conn *grpc.ClientConn
	gate *gatev1.GateClient
}

// New creates a gRPC client for the gate at addr.
// Fail-closed: when the gate is unreachable Validate and Decide return DENY
// and Transition returns a rejected move.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gate: %w", err)
	}
	return &Client{conn: conn, gate: gatev1.NewGateClient(conn)}, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

// Validate asks the gate to validate req.
func (c *Client) Validate(ctx context.Context, req model.ActionRequest) model.ValidationResponse {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp model.ValidationResponse
	if err := c.gate.Call(ctx, gatev1.MethodValidate, req, &resp); err != nil {
		return model.ValidationResponse{
			Request: req,
			Result:  model.Deny,
			Reason:  fmt.Sprintf("gate call failed: %v", err),
			RuleID:  RuleUnreachable,
		}
	}
	return resp
}

// Transition asks the gate whether the move in req is allowed.
func (c *Client) Transition(ctx context.Context, req model.TransitionRequest) model.TransitionResponse {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp model.TransitionResponse
	if err := c.gate.Call(ctx, gatev1.MethodTransition, req, &resp); err != nil {
		return model.TransitionResponse{
			Request: req,
			Reason:  fmt.Sprintf("gate call failed: %v", err),
			RuleID:  RuleUnreachable,
		}
	}
	return resp
}

// Decide runs the full pipeline on the gate.
func (c *Client) Decide(ctx context.Context, action model.ActionRequest, transition model.TransitionRequest) model.DecisionResult {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp model.DecisionResult
	err := c.gate.Call(ctx, gatev1.MethodDecide, gatev1.DecideRequest{Action: action, Transition: transition}, &resp)
	if err != nil {
		return model.DecisionResult{
			Context:  model.DecisionContext{ActorKind: action.ActorKind, TrustZone: action.TrustZone},
			Decision: model.Deny,
			Reason:   fmt.Sprintf("[%s] gate call failed: %v", RuleUnreachable, err),
			RuleID:   RuleUnreachable,
		}
	}
	return resp
}

// StartSession creates a session on the gate.
func (c *Client) StartSession(ctx context.Context, req model.ActionRequest) (*gatev1.StartSessionResponse, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var resp gatev1.StartSessionResponse
	if err := c.gate.Call(ctx, gatev1.MethodStartSession, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionTransition moves a session on the gate.
func (c *Client) SessionTransition(ctx context.Context, id string, transition model.StateTransition, actor model.ActorKind) (*session.Outcome, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out session.Outcome
	req := gatev1.SessionTransitionRequest{SessionID: id, Transition: transition, ActorKind: actor}
	if err := c.gate.Call(ctx, gatev1.MethodSessionTransition, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches a session from the gate.
func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var s session.Session
	if err := c.gate.Call(ctx, gatev1.MethodGetSession, gatev1.GetSessionRequest{SessionID: id}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
