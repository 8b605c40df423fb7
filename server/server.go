package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/abooishaaq/sahl/store"
)

// Config configures a Server.
type Config struct {
	// Store caches compiled programs and records runs. Optional.
	Store *store.Store
	// RunnerOptions configure the shared runner.
	RunnerOptions []RunnerOption
	// Trace logs every executed instruction.
	Trace bool
}

// Server serves the toolchain over Connect (HTTP/JSON) and gRPC. Both
// transports share one Runner.
type Server struct {
	runner    *Runner
	toolchain *Toolchain
	mux       *http.ServeMux
	grpc      *grpc.Server
}

// New creates a Server.
func New(cfg Config) *Server {
	runner := NewRunner(cfg.RunnerOptions...)
	tc := NewToolchain(runner, cfg.Store)
	tc.SetTrace(cfg.Trace)

	s := &Server{
		runner:    runner,
		toolchain: tc,
		mux:       http.NewServeMux(),
		grpc:      NewGRPCServer(tc),
	}

	path, handler := NewConnectHandler(tc)
	s.mux.Handle(path, handler)
	return s
}

// Handler returns the Connect HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// GRPC returns the gRPC server.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Toolchain returns the shared toolchain.
func (s *Server) Toolchain() *Toolchain { return s.toolchain }

// ListenAndServe serves Connect on httpAddr and gRPC on grpcAddr until ctx
// is cancelled or either listener fails. An empty address disables that
// transport.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, grpcAddr string) error {
	g, ctx := errgroup.WithContext(ctx)

	if httpAddr != "" {
		srv := &http.Server{Addr: httpAddr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Notice("Connect listening", "addr", httpAddr, "compile", "http://"+httpAddr+CompileProcedure)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return ServeGRPC(s.grpc, lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			s.grpc.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// Stop shuts down the gRPC server and the runner.
func (s *Server) Stop() {
	s.grpc.Stop()
	s.runner.Stop()
}
