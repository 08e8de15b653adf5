package optlab

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"optlab/internal/api"
	"optlab/internal/config"
	"optlab/internal/domain"
	"optlab/internal/engine"
	"optlab/internal/httpapi"
	"optlab/internal/marketdata"
	"optlab/internal/store"
	"optlab/internal/strategy"
	"optlab/internal/strategy/builtins"
	"optlab/internal/util"
)

func newService(t *testing.T) *api.Service {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	factory := func() (marketdata.SpotProvider, error) {
		return marketdata.NewRandomWalk(21500, 0.01, 11), nil
	}
	bt := strategy.NewBacktester(factory, builtins.NewRegistry(), strategy.BacktesterConfig{
		Engine:  engine.Options{Logger: util.Discard()},
		Results: db,
	})
	return api.NewService(bt, db, 0.06, 0.20, util.Discard())
}

func params() strategy.Params {
	return strategy.Params{
		InitialCapital: 100000,
		StartDate:      domain.MustDate("2024-01-01"),
		EndDate:        domain.MustDate("2024-02-29"),
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestClientHTTP(t *testing.T) {
	ts := httptest.NewServer(httpapi.NewServer(newService(t), "test", util.Discard()).Handler())
	defer ts.Close()

	ctx := context.Background()
	c := NewClient(ts.URL).WithHTTPClient(ts.Client())

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}

	strategies, err := c.Strategies(ctx)
	if err != nil {
		t.Fatalf("Strategies: %v", err)
	}
	if len(strategies) != 8 {
		t.Errorf("got %d strategies, want 8", len(strategies))
	}

	run, err := c.RunPreset(ctx, "long_put", params())
	if err != nil {
		t.Fatalf("RunPreset: %v", err)
	}
	got, err := c.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.StrategyName != "long_put" {
		t.Errorf("StrategyName = %q, want long_put", got.StrategyName)
	}

	runs, err := c.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("ListRuns returned %d runs, want 1", len(runs))
	}

	if err := c.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	_, err = c.GetRun(ctx, run.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("GetRun after delete error = %v, want a 404 APIError", err)
	}

	leg := domain.Leg{InstrumentType: domain.InstrumentCall, Action: domain.ActionSell, Quantity: 1, StrikePrice: 100, EntryPrice: 3, ExpiryDate: domain.MustDate("2024-03-15")}
	pay, err := c.Payoff(ctx, PayoffRequest{Legs: []domain.Leg{leg}, CurrentPrice: 100})
	if err != nil {
		t.Fatalf("Payoff: %v", err)
	}
	if pay.MaxProfit != 3 {
		t.Errorf("MaxProfit = %v, want 3", pay.MaxProfit)
	}

	g, err := c.Greeks(ctx, GreeksRequest{Legs: []domain.Leg{leg}, Spot: 100, AsOf: domain.MustDate("2024-02-15")})
	if err != nil {
		t.Fatalf("Greeks: %v", err)
	}
	if g.Portfolio.Delta >= 0 {
		t.Errorf("short call delta = %v, want negative", g.Portfolio.Delta)
	}

	if _, err := c.ImpliedVolatility(ctx, IVRequest{InstrumentType: domain.InstrumentCall}); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("ImpliedVolatility error = %v, want a 400 APIError", err)
	}
}

func TestClientGRPC(t *testing.T) {
	srv := api.NewServer(config.Default(), newService(t), http.NotFoundHandler(), util.Discard())
	httpLn, grpcLn := bufconn.Listen(1<<20), bufconn.Listen(1<<20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, httpLn, grpcLn) }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	}()

	c, err := DialGRPC("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return grpcLn.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("DialGRPC: %v", err)
	}
	defer c.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer callCancel()

	ok, err := c.Healthy(callCtx)
	if err != nil || !ok {
		t.Fatalf("Healthy = %v, %v, want true", ok, err)
	}

	run, err := c.RunPreset(callCtx, "bull_call_spread", params())
	if err != nil {
		t.Fatalf("RunPreset: %v", err)
	}
	if run.StrategyName != "bull_call_spread" || run.Result == nil {
		t.Errorf("run = %+v, want a bull_call_spread result", run)
	}

	if _, err := c.RunBacktest(callCtx, domain.StrategyConfig{Name: "empty"}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("RunBacktest error = %v, want InvalidArgument", err)
	}

	leg := domain.Leg{InstrumentType: domain.InstrumentPut, Action: domain.ActionBuy, Quantity: 1, StrikePrice: 100, EntryPrice: 2, ExpiryDate: domain.MustDate("2024-03-15")}
	pay, err := c.Payoff(callCtx, PayoffRequest{Legs: []domain.Leg{leg}, CurrentPrice: 100})
	if err != nil {
		t.Fatalf("Payoff: %v", err)
	}
	if len(pay.Breakevens) != 1 || pay.Breakevens[0] != 98 {
		t.Errorf("Breakevens = %v, want [98]", pay.Breakevens)
	}

	g, err := c.Greeks(callCtx, GreeksRequest{Legs: []domain.Leg{leg}, Spot: 100, AsOf: domain.MustDate("2024-02-15")})
	if err != nil {
		t.Fatalf("Greeks: %v", err)
	}
	if len(g.Legs) != 1 {
		t.Errorf("Greeks legs = %d, want 1", len(g.Legs))
	}
}
