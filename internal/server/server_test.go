package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	gatev1 "github.com/ppiankov/humanloop/api/gate/v1"
	"github.com/ppiankov/humanloop/internal/audit"
	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/session"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *memRecorder) Record(e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

// testServer spins up an in-process gRPC server on a random port and returns a client.
func testServer(t *testing.T, opts ...Option) (*gatev1.GateClient, func()) {
	t.Helper()

	srv := New(Config{}, session.NewManager(session.NewMemoryStore()), opts...)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeOn(lis)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		srv.GracefulStop()
		t.Fatalf("dial: %v", err)
	}

	cleanup := func() {
		conn.Close()
		srv.GracefulStop()
	}
	return gatev1.NewGateClient(conn), cleanup
}

func TestValidateRPC(t *testing.T) {
	rec := &memRecorder{}
	client, cleanup := testServer(t, WithAudit(rec))
	defer cleanup()

	var resp model.ValidationResponse
	err := client.Call(context.Background(), gatev1.MethodValidate, model.ActionRequest{
		ActorKind: model.ActorSystem, ActionType: model.ActionDelete, TrustZone: model.ZoneSystem, Target: "vol-1",
	}, &resp)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if resp.Result != model.Escalate || !resp.RequiresHuman || resp.RuleID != "validate.critical_action" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Request.Target != "vol-1" {
		t.Errorf("request not echoed: %+v", resp.Request)
	}
	if len(rec.entries) != 1 || rec.entries[0].Kind != audit.KindValidation {
		t.Errorf("expected one validation audit entry, got %+v", rec.entries)
	}
}

func TestValidateRejectsUnknownEnum(t *testing.T) {
	client, cleanup := testServer(t)
	defer cleanup()

	var resp model.ValidationResponse
	err := client.Call(context.Background(), gatev1.MethodValidate,
		map[string]string{"actor_kind": "ROBOT", "action_type": "READ", "trust_zone": "SYSTEM"}, &resp)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestTransitionRPC(t *testing.T) {
	client, cleanup := testServer(t)
	defer cleanup()

	var resp model.TransitionResponse
	err := client.Call(context.Background(), gatev1.MethodTransition, model.TransitionRequest{
		CurrentState: model.StateEscalated, Transition: model.TransitionApprove, ActorKind: model.ActorSystem,
	}, &resp)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Allowed || resp.NewState != "" || !strings.Contains(resp.Reason, "requires HUMAN") {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestDecideRPC(t *testing.T) {
	client, cleanup := testServer(t)
	defer cleanup()

	var resp model.DecisionResult
	err := client.Call(context.Background(), gatev1.MethodDecide, gatev1.DecideRequest{
		Action:     model.ActionRequest{ActorKind: model.ActorHuman, ActionType: model.ActionRead, TrustZone: model.ZoneHuman},
		Transition: model.TransitionRequest{CurrentState: model.StateCompleted, Transition: model.TransitionValidate, ActorKind: model.ActorHuman},
	}, &resp)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Decision != model.Deny || !strings.Contains(resp.Reason, "terminal") {
		t.Fatalf("terminal state must beat human override, got %+v", resp)
	}
}

func TestSessionRPCs(t *testing.T) {
	client, cleanup := testServer(t)
	defer cleanup()
	ctx := context.Background()

	var started gatev1.StartSessionResponse
	err := client.Call(ctx, gatev1.MethodStartSession, model.ActionRequest{
		ActorKind: model.ActorSystem, ActionType: model.ActionWrite, TrustZone: model.ZoneSystem,
	}, &started)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if started.Session == nil || started.Session.ID == "" || started.Session.State != model.StateInit {
		t.Fatalf("unexpected session %+v", started.Session)
	}
	if started.Validation.Result != model.Escalate {
		t.Errorf("unexpected validation %+v", started.Validation)
	}

	var out session.Outcome
	err = client.Call(ctx, gatev1.MethodSessionTransition, gatev1.SessionTransitionRequest{
		SessionID: started.Session.ID, Transition: model.TransitionValidate, ActorKind: model.ActorSystem,
	}, &out)
	if err != nil {
		t.Fatalf("SessionTransition: %v", err)
	}
	if !out.Advanced || out.Session.State != model.StateValidated || out.Decision.Decision != model.Escalate {
		t.Fatalf("unexpected outcome advanced=%v state=%s decision=%s", out.Advanced, out.Session.State, out.Decision.Decision)
	}

	var got session.Session
	if err := client.Call(ctx, gatev1.MethodGetSession, gatev1.GetSessionRequest{SessionID: started.Session.ID}, &got); err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Version != 1 || len(got.Trail) != 1 {
		t.Fatalf("unexpected session version=%d trail=%d", got.Version, len(got.Trail))
	}
}

func TestSessionErrorsMapToCodes(t *testing.T) {
	client, cleanup := testServer(t)
	defer cleanup()
	ctx := context.Background()

	var got session.Session
	err := client.Call(ctx, gatev1.MethodGetSession, gatev1.GetSessionRequest{SessionID: "missing"}, &got)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	var out session.Outcome
	err = client.Call(ctx, gatev1.MethodSessionTransition, gatev1.SessionTransitionRequest{Transition: model.TransitionAbort, ActorKind: model.ActorHuman}, &out)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for empty session id, got %v", err)
	}

	var started gatev1.StartSessionResponse
	if err := client.Call(ctx, gatev1.MethodStartSession, model.ActionRequest{
		ActorKind: model.ActorHuman, ActionType: model.ActionRead, TrustZone: model.ZoneHuman,
	}, &started); err != nil {
		t.Fatal(err)
	}
	if err := client.Call(ctx, gatev1.MethodSessionTransition, gatev1.SessionTransitionRequest{
		SessionID: started.Session.ID, Transition: model.TransitionAbort, ActorKind: model.ActorHuman,
	}, &out); err != nil {
		t.Fatal(err)
	}
	err = client.Call(ctx, gatev1.MethodSessionTransition, gatev1.SessionTransitionRequest{
		SessionID: started.Session.ID, Transition: model.TransitionValidate, ActorKind: model.ActorHuman,
	}, &out)
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition for terminal session, got %v", err)
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{&session.InvalidRequestError{Reason: "x"}, codes.InvalidArgument},
		{session.ErrNotFound, codes.NotFound},
		{session.ErrTerminal, codes.FailedPrecondition},
		{session.ErrConflict, codes.Aborted},
		{context.DeadlineExceeded, codes.Internal},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.code {
			t.Errorf("toStatus(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}
}
