package client

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/server"
	"github.com/ppiankov/humanloop/internal/session"
)

// startTestServer creates a server and returns its address.
func startTestServer(t *testing.T) (string, func()) {
	t.Helper()

	srv := server.New(server.Config{}, session.NewManager(session.NewMemoryStore()))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeOn(lis)

	return lis.Addr().String(), srv.GracefulStop
}

func TestClientPipeline(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := New(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	v := c.Validate(ctx, model.ActionRequest{ActorKind: model.ActorSystem, ActionType: model.ActionWrite, TrustZone: model.ZoneExternal})
	if v.Result != model.Deny || v.RuleID != "validate.external_zone" {
		t.Errorf("unexpected validation %+v", v)
	}

	tr := c.Transition(ctx, model.TransitionRequest{CurrentState: model.StateInit, Transition: model.TransitionValidate, ActorKind: model.ActorSystem})
	if !tr.Allowed || tr.NewState != model.StateValidated {
		t.Errorf("unexpected transition %+v", tr)
	}

	d := c.Decide(ctx,
		model.ActionRequest{ActorKind: model.ActorSystem, ActionType: model.ActionRead, TrustZone: model.ZoneExternal},
		model.TransitionRequest{CurrentState: model.StateInit, Transition: model.TransitionValidate, ActorKind: model.ActorSystem},
	)
	if d.Decision != model.Deny || d.RuleID != "decision.validation_denied" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestClientSessions(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := New(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	started, err := c.StartSession(ctx, model.ActionRequest{ActorKind: model.ActorSystem, ActionType: model.ActionDelete, TrustZone: model.ZoneSystem})
	if err != nil {
		t.Fatal(err)
	}
	id := started.Session.ID

	steps := []struct {
		tr    model.StateTransition
		actor model.ActorKind
		state model.WorkflowState
	}{
		{model.TransitionValidate, model.ActorSystem, model.StateValidated},
		{model.TransitionEscalate, model.ActorSystem, model.StateEscalated},
		{model.TransitionReject, model.ActorSystem, model.StateEscalated},
		{model.TransitionReject, model.ActorHuman, model.StateRejected},
	}
	for i, st := range steps {
		out, err := c.SessionTransition(ctx, id, st.tr, st.actor)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if out.Session.State != st.state {
			t.Fatalf("step %d: state %s, want %s", i, out.Session.State, st.state)
		}
	}

	s, err := c.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Trail) != 4 || s.State != model.StateRejected {
		t.Fatalf("unexpected session state=%s trail=%d", s.State, len(s.Trail))
	}

	_, err = c.SessionTransition(ctx, id, model.TransitionAbort, model.ActorHuman)
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestClientFailClosed(t *testing.T) {
	// Reserve a port, then close it so nothing is listening.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()

	c, err := New(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v := c.Validate(ctx, model.ActionRequest{ActorKind: model.ActorHuman, ActionType: model.ActionRead, TrustZone: model.ZoneHuman})
	if v.Result != model.Deny || v.RuleID != RuleUnreachable {
		t.Errorf("expected fail-closed DENY, got %+v", v)
	}
	tr := c.Transition(ctx, model.TransitionRequest{CurrentState: model.StateInit, Transition: model.TransitionValidate, ActorKind: model.ActorHuman})
	if tr.Allowed {
		t.Error("expected fail-closed rejected transition")
	}
	d := c.Decide(ctx, model.ActionRequest{ActorKind: model.ActorHuman}, model.TransitionRequest{})
	if d.Decision != model.Deny || d.RuleID != RuleUnreachable {
		t.Errorf("expected fail-closed DENY decision, got %+v", d)
	}
}
