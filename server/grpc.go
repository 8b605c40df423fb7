package server

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ToolchainServer is the gRPC service interface.
type ToolchainServer interface {
	Compile(context.Context, *CompileRequest) (*CompileResponse, error)
	Run(context.Context, *RunRequest) (*RunResponse, error)
}

// grpcToolchain adapts a Toolchain to gRPC status codes.
type grpcToolchain struct {
	tc *Toolchain
}

func (g grpcToolchain) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	resp, err := g.tc.Compile(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return resp, nil
}

func (g grpcToolchain) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	resp, err := g.tc.Run(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	if cancelled(resp) {
		return nil, status.Error(codes.Aborted, resp.Error.Message)
	}
	return resp, nil
}

// grpcError maps toolchain errors to gRPC status codes.
func grpcError(err error) error {
	var srcErr *SourceError
	switch {
	case errors.As(err, &srcErr), errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrRunnerStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func compileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CompileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ToolchainServer).Compile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CompileProcedure}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ToolchainServer).Compile(ctx, req.(*CompileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RunRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ToolchainServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunProcedure}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ToolchainServer).Run(ctx, req.(*RunRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ToolchainServiceDesc describes the service without generated code.
var ToolchainServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ToolchainServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: compileHandler},
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sahl/v1/toolchain",
}

// NewGRPCServer creates a gRPC server exposing tc.
func NewGRPCServer(tc *Toolchain, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	s.RegisterService(&ToolchainServiceDesc, grpcToolchain{tc: tc})
	return s
}

// ServeGRPC serves s on lis until it stops.
func ServeGRPC(s *grpc.Server, lis net.Listener) error {
	log.Notice("gRPC listening", "addr", lis.Addr().String())
	return s.Serve(lis)
}

// GRPCClient calls the toolchain service over gRPC with JSON messages.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

// NewGRPCClient wraps an established connection.
func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Compile calls ToolchainService.Compile.
func (c *GRPCClient) Compile(ctx context.Context, req *CompileRequest, opts ...grpc.CallOption) (*CompileResponse, error) {
	out := new(CompileResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodec{}.Name())}, opts...)
	if err := c.conn.Invoke(ctx, CompileProcedure, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Run calls ToolchainService.Run.
func (c *GRPCClient) Run(ctx context.Context, req *RunRequest, opts ...grpc.CallOption) (*RunResponse, error) {
	out := new(RunResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodec{}.Name())}, opts...)
	if err := c.conn.Invoke(ctx, RunProcedure, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
