package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// EvalServer is the native gRPC view of the eval service.
type EvalServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Compile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Disassemble(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// grpcEval adapts EvalService errors to gRPC status errors. Connect codes
// share their numeric values with gRPC codes.
type grpcEval struct {
	svc *EvalService
}

func (g grpcEval) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return grpcResult(g.svc.Evaluate(ctx, req))
}

func (g grpcEval) Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return grpcResult(g.svc.Compile(ctx, req))
}

func (g grpcEval) Disassemble(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return grpcResult(g.svc.Disassemble(ctx, req))
}

func (g grpcEval) CloseSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return grpcResult(g.svc.CloseSession(ctx, req))
}

func grpcResult(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err == nil {
		return out, nil
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return nil, status.Error(codes.Code(cerr.Code()), cerr.Message())
	}
	return nil, status.Error(codes.Internal, err.Error())
}

type evalMethod func(EvalServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(fullMethod string, call evalMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EvalServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EvalServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// EvalServiceDesc describes the eval service for grpc.Server.RegisterService.
var EvalServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodEvaluate, Handler: methodHandler(EvaluateProcedure, EvalServer.Evaluate)},
		{MethodName: MethodCompile, Handler: methodHandler(CompileProcedure, EvalServer.Compile)},
		{MethodName: MethodDisassemble, Handler: methodHandler(DisassembleProcedure, EvalServer.Disassemble)},
		{MethodName: MethodCloseSession, Handler: methodHandler(CloseSessionProcedure, EvalServer.CloseSession)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: protoFile,
}

// NewGRPCServer returns a gRPC server exposing svc with server reflection
// enabled.
func NewGRPCServer(svc *EvalService, opts ...grpc.ServerOption) (*grpc.Server, error) {
	if _, err := FileDescriptor(); err != nil {
		return nil, err
	}
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&EvalServiceDesc, grpcEval{svc: svc})
	reflection.Register(gs)
	return gs, nil
}
