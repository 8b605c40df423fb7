package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// NewConnectHandler returns the path prefix and handler serving the
// toolchain over the Connect protocol with JSON messages.
func NewConnectHandler(tc *Toolchain, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CompileProcedure, connect.NewUnaryHandler(
		CompileProcedure,
		func(ctx context.Context, req *connect.Request[CompileRequest]) (*connect.Response[CompileResponse], error) {
			resp, err := tc.Compile(ctx, req.Msg)
			if err != nil {
				return nil, connectError(err)
			}
			return connect.NewResponse(resp), nil
		},
		opts...,
	))
	mux.Handle(RunProcedure, connect.NewUnaryHandler(
		RunProcedure,
		func(ctx context.Context, req *connect.Request[RunRequest]) (*connect.Response[RunResponse], error) {
			resp, err := tc.Run(ctx, req.Msg)
			if err != nil {
				return nil, connectError(err)
			}
			if cancelled(resp) {
				return nil, connect.NewError(connect.CodeAborted, errors.New(resp.Error.Message))
			}
			return connect.NewResponse(resp), nil
		},
		opts...,
	))
	return "/" + ServiceName + "/", mux
}

// connectError maps toolchain errors to Connect codes.
func connectError(err error) error {
	var srcErr *SourceError
	switch {
	case errors.As(err, &srcErr), errors.Is(err, ErrInvalidRequest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrRunnerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// ConnectClient calls the toolchain service over Connect.
type ConnectClient struct {
	compile *connect.Client[CompileRequest, CompileResponse]
	run     *connect.Client[RunRequest, RunResponse]
}

// NewConnectClient creates a client for the service at baseURL
// (e.g. "http://127.0.0.1:7070").
func NewConnectClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ConnectClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &ConnectClient{
		compile: connect.NewClient[CompileRequest, CompileResponse](httpClient, baseURL+CompileProcedure, opts...),
		run:     connect.NewClient[RunRequest, RunResponse](httpClient, baseURL+RunProcedure, opts...),
	}
}

// Compile calls ToolchainService.Compile.
func (c *ConnectClient) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	resp, err := c.compile.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Run calls ToolchainService.Run.
func (c *ConnectClient) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	resp, err := c.run.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
