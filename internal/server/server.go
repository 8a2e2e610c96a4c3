// Package server exposes the flow validator service over gRPC.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"flow-validator/internal/model"
	"flow-validator/internal/service"
)

const (
	serviceName            = "flowvalidator.FlowValidator"
	initializeMethod       = "/" + serviceName + "/Initialize"
	validatePolicyMethod   = "/" + serviceName + "/ValidatePolicy"
	timeToDisconnectMethod = "/" + serviceName + "/GetTimeToDisconnect"
)

// FlowValidatorServer is the RPC surface. Operation failures are reported in
// the returned info; an error means the request itself could not be served.
type FlowValidatorServer interface {
	Initialize(context.Context, *model.NetworkGraph) (*model.InitializeInfo, error)
	ValidatePolicy(context.Context, *model.Policy) (*model.ValidatePolicyInfo, error)
	GetTimeToDisconnect(context.Context, *model.TimeToDisconnectRequest) (*model.TimeToDisconnectInfo, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FlowValidatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Initialize", Handler: initializeHandler},
		{MethodName: "ValidatePolicy", Handler: validatePolicyHandler},
		{MethodName: "GetTimeToDisconnect", Handler: timeToDisconnectHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func Register(s grpc.ServiceRegistrar, srv FlowValidatorServer) {
	s.RegisterService(&serviceDesc, srv)
}

func initializeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.NetworkGraph)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FlowValidatorServer).Initialize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: initializeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FlowValidatorServer).Initialize(ctx, req.(*model.NetworkGraph))
	})
}

func validatePolicyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.Policy)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FlowValidatorServer).ValidatePolicy(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: validatePolicyMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FlowValidatorServer).ValidatePolicy(ctx, req.(*model.Policy))
	})
}

func timeToDisconnectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.TimeToDisconnectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FlowValidatorServer).GetTimeToDisconnect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: timeToDisconnectMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FlowValidatorServer).GetTimeToDisconnect(ctx, req.(*model.TimeToDisconnectRequest))
	})
}

// Server adapts a service.Service to FlowValidatorServer.
type Server struct {
	svc       *service.Service
	logger    *slog.Logger
	opCounter atomic.Uint64
}

func New(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger.With("component", "server")}
}

func (s *Server) Initialize(ctx context.Context, ng *model.NetworkGraph) (*model.InitializeInfo, error) {
	info, _ := s.svc.Initialize(ctx, *ng)
	return info, nil
}

func (s *Server) ValidatePolicy(ctx context.Context, p *model.Policy) (*model.ValidatePolicyInfo, error) {
	info, _ := s.svc.ValidatePolicy(ctx, *p)
	return info, nil
}

func (s *Server) GetTimeToDisconnect(ctx context.Context, req *model.TimeToDisconnectRequest) (*model.TimeToDisconnectInfo, error) {
	info, _ := s.svc.GetTimeToDisconnect(ctx, *req)
	return info, nil
}

// NewGRPCServer returns a gRPC server with the flow validator registered.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.UnaryInterceptor(s.loggingInterceptor())}, opts...)
	gs := grpc.NewServer(opts...)
	Register(gs, s)
	return gs
}

// loggingInterceptor numbers each request and logs its outcome.
func (s *Server) loggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		opID := s.opCounter.Add(1)
		start := time.Now()
		s.logger.DebugContext(ctx, "grpc request", "op_id", opID, "method", info.FullMethod)
		resp, err := handler(ctx, req)
		if err != nil {
			s.logger.ErrorContext(ctx, "grpc error", "op_id", opID, "method", info.FullMethod, "error", err)
			return resp, err
		}
		s.logger.InfoContext(ctx, "grpc response", "op_id", opID, "method", info.FullMethod, "duration", time.Since(start))
		return resp, err
	}
}

// RunConfig configures the serve command.
type RunConfig struct {
	// Listen is a TCP host:port, or a unix socket as unix:///path or /path.
	Listen  string
	Service *service.Service
	Logger  *slog.Logger
}

// Run listens on cfg.Listen and serves until ctx is cancelled.
func Run(ctx context.Context, cfg RunConfig) error {
	network, address := listenAddress(cfg.Listen)
	if network == "unix" {
		if err := os.RemoveAll(address); err != nil {
			return fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}
	lis, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	return Serve(ctx, lis, cfg)
}

// Serve serves on an existing listener until ctx is cancelled.
func Serve(ctx context.Context, lis net.Listener, cfg RunConfig) error {
	srv := New(cfg.Service, cfg.Logger)
	gs := srv.NewGRPCServer()

	errChan := make(chan error, 1)
	go func() {
		srv.logger.InfoContext(ctx, "flow validator gRPC server listening", "address", lis.Addr().String())
		if err := gs.Serve(lis); err != nil {
			errChan <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		srv.logger.Info("shutting down gRPC server")
		gs.GracefulStop()
		return nil
	case err := <-errChan:
		return err
	}
}

func listenAddress(addr string) (network, address string) {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "/"):
		return "unix", addr
	}
	return "tcp", addr
}
