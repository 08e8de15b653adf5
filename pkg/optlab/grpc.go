package optlab

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"optlab/internal/api"
	"optlab/internal/domain"
	"optlab/internal/strategy"
)

// GRPCClient talks to the optlab.v1.Backtest gRPC service.
type GRPCClient struct {
	conn *grpc.ClientConn
	own  bool
}

// DialGRPC connects to the gRPC server at addr without transport security.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, own: true}, nil
}

// NewGRPCClient wraps an existing connection. Close leaves it open.
func NewGRPCClient(conn *grpc.ClientConn) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Close closes the connection if DialGRPC opened it.
func (c *GRPCClient) Close() error {
	if c.own {
		return c.conn.Close()
	}
	return nil
}

// Healthy reports whether the server reports the Backtest service as serving.
func (c *GRPCClient) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// RunBacktest backtests a full strategy config.
func (c *GRPCClient) RunBacktest(ctx context.Context, cfg domain.StrategyConfig) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	if err := c.invoke(ctx, "Run", BacktestRequest{StrategyConfig: cfg}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunPreset backtests a named preset.
func (c *GRPCClient) RunPreset(ctx context.Context, preset string, p strategy.Params) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	if err := c.invoke(ctx, "Run", BacktestRequest{Preset: preset, Params: &p}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Payoff computes a payoff diagram.
func (c *GRPCClient) Payoff(ctx context.Context, req PayoffRequest) (*PayoffResponse, error) {
	var resp PayoffResponse
	if err := c.invoke(ctx, "Payoff", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Greeks values a leg set.
func (c *GRPCClient) Greeks(ctx context.Context, req GreeksRequest) (*GreeksResponse, error) {
	var resp GreeksResponse
	if err := c.invoke(ctx, "Greeks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, out any) error {
	in, err := api.ToStruct(req)
	if err != nil {
		return err
	}
	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, reply); err != nil {
		return err
	}
	return api.FromStruct(reply, out)
}
