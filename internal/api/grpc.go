package api

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"optlab/internal/domain"
	"optlab/internal/store"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "optlab.v1.Backtest"

// FullMethod returns the gRPC path of a Backtest method, e.g. "Run".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// BacktestServer is the gRPC surface. Requests and responses are JSON-shaped
// Structs matching the HTTP API bodies.
type BacktestServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Payoff(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Greeks(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// GRPCService adapts a Service to BacktestServer.
type GRPCService struct {
	svc *Service
}

// NewGRPCService wraps svc for gRPC.
func NewGRPCService(svc *Service) *GRPCService {
	return &GRPCService{svc: svc}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (g *GRPCService) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&backtestServiceDesc, g)
}

// Run backtests a config or preset.
func (g *GRPCService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req BacktestRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	run, err := g.svc.Backtest(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return reply(run)
}

// Payoff computes a payoff diagram.
func (g *GRPCService) Payoff(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req PayoffRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := g.svc.Payoff(req)
	if err != nil {
		return nil, grpcError(err)
	}
	return reply(resp)
}

// Greeks values a leg set.
func (g *GRPCService) Greeks(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GreeksRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := g.svc.Greeks(req)
	if err != nil {
		return nil, grpcError(err)
	}
	return reply(resp)
}

func reply(v any) (*structpb.Struct, error) {
	s, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// grpcError maps service errors to gRPC status codes.
func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidConfig), errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrNoResultStore):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func unaryHandler(method string, call func(BacktestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BacktestServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BacktestServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: unaryHandler("Run", BacktestServer.Run)},
		{MethodName: "Payoff", Handler: unaryHandler("Payoff", BacktestServer.Payoff)},
		{MethodName: "Greeks", Handler: unaryHandler("Greeks", BacktestServer.Greeks)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "optlab/v1/backtest.proto",
}
