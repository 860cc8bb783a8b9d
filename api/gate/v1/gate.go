// Package gatev1 is the wire contract of the humanloop.v1.Gate gRPC service.
//
// Requests and responses travel as google.protobuf.Struct values carrying
// the JSON form of the humanloop model types, so the service needs no
// generated code. The ServiceDesc below is what protoc-gen-go-grpc would
// emit for:
//
//	service Gate {
//	  rpc Validate(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Transition(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Decide(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc StartSession(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc SessionTransition(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc GetSession(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
package gatev1

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/humanloop/internal/model"
	"github.com/ppiankov/humanloop/internal/session"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "humanloop.v1.Gate"

// Method names.
const (
	MethodValidate          = "Validate"
	MethodTransition        = "Transition"
	MethodDecide            = "Decide"
	MethodStartSession      = "StartSession"
	MethodSessionTransition = "SessionTransition"
	MethodGetSession        = "GetSession"
)

// FullMethod returns "/humanloop.v1.Gate/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// DecideRequest is the payload of Decide.
type DecideRequest struct {
	Action     model.ActionRequest     `json:"action"`
	Transition model.TransitionRequest `json:"transition"`
}

// StartSessionResponse is the payload returned by StartSession.
type StartSessionResponse struct {
	Session    *session.Session         `json:"session"`
	Validation model.ValidationResponse `json:"validation"`
}

// SessionTransitionRequest is the payload of SessionTransition.
type SessionTransitionRequest struct {
	SessionID  string                `json:"session_id"`
	Transition model.StateTransition `json:"transition"`
	ActorKind  model.ActorKind       `json:"actor_kind"`
}

// GetSessionRequest is the payload of GetSession.
type GetSessionRequest struct {
	SessionID string `json:"session_id"`
}

// GateServer is the server API for the Gate service.
type GateServer interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Decide(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SessionTransition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(GateServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GateServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(GateServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes the Gate service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodValidate, Handler: handler(MethodValidate, GateServer.Validate)},
		{MethodName: MethodTransition, Handler: handler(MethodTransition, GateServer.Transition)},
		{MethodName: MethodDecide, Handler: handler(MethodDecide, GateServer.Decide)},
		{MethodName: MethodStartSession, Handler: handler(MethodStartSession, GateServer.StartSession)},
		{MethodName: MethodSessionTransition, Handler: handler(MethodSessionTransition, GateServer.SessionTransition)},
		{MethodName: MethodGetSession, Handler: handler(MethodGetSession, GateServer.GetSession)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "humanloop/v1/gate.proto",
}

// RegisterGateServer registers srv on s.
func RegisterGateServer(s grpc.ServiceRegistrar, srv GateServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GateClient is the client API for the Gate service.
type GateClient struct {
	cc grpc.ClientConnInterface
}

// NewGateClient wraps a connection.
func NewGateClient(cc grpc.ClientConnInterface) *GateClient {
	return &GateClient{cc: cc}
}

// Call invokes method with in and decodes the response into out.
func (c *GateClient) Call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := Encode(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, resp, opts...); err != nil {
		return err
	}
	return Decode(resp, out)
}

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gatev1: encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("gatev1: encode: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("gatev1: encode: %w", err)
	}
	return s, nil
}

// Decode fills out from s. Unknown enum values are rejected.
func Decode(s *structpb.Struct, out any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("gatev1: decode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gatev1: decode: %w", err)
	}
	return nil
}
