package api

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"optlab/internal/domain"
	"optlab/internal/engine"
	"optlab/internal/marketdata"
	"optlab/internal/payoff"
	"optlab/internal/pricing"
	"optlab/internal/store"
	"optlab/internal/strategy"
	"optlab/internal/strategy/builtins"
	"optlab/internal/util"
)

func newTestService(t *testing.T, persist bool) *Service {
	t.Helper()
	factory := func() (marketdata.SpotProvider, error) {
		return marketdata.NewRandomWalk(21500, 0.01, 7), nil
	}
	cfg := strategy.BacktesterConfig{Engine: engine.Options{Logger: util.Discard()}}
	var results store.ResultStore
	if persist {
		db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		cfg.Results = db
		results = db
	}
	bt := strategy.NewBacktester(factory, builtins.NewRegistry(), cfg)
	return NewService(bt, results, 0.06, 0.20, util.Discard())
}

func presetRequest() BacktestRequest {
	return BacktestRequest{
		Preset: "long_call",
		Params: &strategy.Params{
			InitialCapital: 100000,
			StartDate:      domain.MustDate("2024-01-01"),
			EndDate:        domain.MustDate("2024-02-29"),
		},
	}
}

func TestServiceStrategies(t *testing.T) {
	svc := newTestService(t, false)
	infos := svc.Strategies()
	if len(infos) != 8 {
		t.Fatalf("Strategies() returned %d presets, want 8", len(infos))
	}
	for _, info := range infos {
		if info.Description == "" || len(info.Legs) == 0 {
			t.Errorf("preset %s has no description or legs", info.Name)
		}
	}
}

func TestServiceBacktestLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, true)

	run, err := svc.Backtest(ctx, presetRequest())
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if run.ID == "" || run.StrategyName != "long_call" {
		t.Fatalf("run = %s/%s, want an ID and long_call", run.ID, run.StrategyName)
	}
	if run.Result.TotalTrades == 0 {
		t.Error("TotalTrades = 0, want trades")
	}
	if got := util.Round(run.Result.FinalCapital, 2); got != run.Result.FinalCapital {
		t.Errorf("FinalCapital = %v, want rounded to 2 decimals", run.Result.FinalCapital)
	}

	got, err := svc.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Result.TotalTrades != run.Result.TotalTrades {
		t.Errorf("GetRun TotalTrades = %d, want %d", got.Result.TotalTrades, run.Result.TotalTrades)
	}

	runs, err := svc.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("ListRuns = %+v, want the one run", runs)
	}

	if err := svc.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := svc.GetRun(ctx, run.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetRun after delete error = %v, want ErrNotFound", err)
	}
}

func TestServiceBacktestFullConfig(t *testing.T) {
	svc := newTestService(t, false)
	req := BacktestRequest{StrategyConfig: domain.StrategyConfig{
		Name:           "short-put",
		InitialCapital: 200000,
		StartDate:      domain.MustDate("2024-03-01"),
		EndDate:        domain.MustDate("2024-03-29"),
		EntryRules:     domain.EntryRules{DaysToExpiry: 7, StrikeSelection: domain.StrikeOTM},
		Legs:           []domain.LegTemplate{{InstrumentType: domain.InstrumentPut, Action: domain.ActionSell, Quantity: 1}},
	}}
	run, err := svc.Backtest(context.Background(), req)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if run.StrategyName != "short-put" {
		t.Errorf("StrategyName = %q, want short-put", run.StrategyName)
	}
}

func TestServiceBacktestErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)

	if _, err := svc.Backtest(ctx, BacktestRequest{}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("empty request error = %v, want ErrInvalidConfig", err)
	}
	if _, err := svc.Backtest(ctx, BacktestRequest{Preset: "nope"}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("unknown preset error = %v, want ErrInvalidConfig", err)
	}
	if _, err := svc.GetRun(ctx, "x"); !errors.Is(err, ErrNoResultStore) {
		t.Errorf("GetRun without store error = %v, want ErrNoResultStore", err)
	}
	if _, err := svc.ListRuns(ctx, 10); !errors.Is(err, ErrNoResultStore) {
		t.Errorf("ListRuns without store error = %v, want ErrNoResultStore", err)
	}
}

func longCall() domain.Leg {
	return domain.Leg{
		InstrumentType: domain.InstrumentCall,
		Action:         domain.ActionBuy,
		Quantity:       1,
		StrikePrice:    100,
		ExpiryDate:     domain.MustDate("2024-02-01"),
		EntryPrice:     5,
	}
}

func TestServicePayoff(t *testing.T) {
	svc := newTestService(t, false)

	resp, err := svc.Payoff(PayoffRequest{Legs: []domain.Leg{longCall()}, CurrentPrice: 100})
	if err != nil {
		t.Fatalf("Payoff: %v", err)
	}
	if len(resp.Breakevens) != 1 || resp.Breakevens[0] != 105 {
		t.Errorf("Breakevens = %v, want [105]", resp.Breakevens)
	}
	if resp.MaxLoss != -5 {
		t.Errorf("MaxLoss = %v, want -5", resp.MaxLoss)
	}
	if resp.ProbabilityOfProfit != 0 {
		t.Errorf("ProbabilityOfProfit = %v, want 0 for one breakeven", resp.ProbabilityOfProfit)
	}

	put := longCall()
	put.InstrumentType = domain.InstrumentPut
	resp, err = svc.Payoff(PayoffRequest{
		Legs:         []domain.Leg{longCall(), put},
		CurrentPrice: 100,
		Volatility:   0.2,
		DaysToExpiry: 30,
	})
	if err != nil {
		t.Fatalf("Payoff: %v", err)
	}
	if len(resp.Breakevens) != 2 {
		t.Fatalf("straddle Breakevens = %v, want two", resp.Breakevens)
	}
	if resp.ProbabilityOfProfit <= 0 || resp.ProbabilityOfProfit >= 1 {
		t.Errorf("ProbabilityOfProfit = %v, want in (0, 1)", resp.ProbabilityOfProfit)
	}
}

func TestServiceValidation(t *testing.T) {
	svc := newTestService(t, false)
	bad := longCall()
	bad.Quantity = 0

	tests := []struct {
		name string
		call func() error
	}{
		{"payoff no legs", func() error { _, err := svc.Payoff(PayoffRequest{CurrentPrice: 100}); return err }},
		{"payoff zero price", func() error { _, err := svc.Payoff(PayoffRequest{Legs: []domain.Leg{longCall()}}); return err }},
		{"payoff bad leg", func() error {
			_, err := svc.Payoff(PayoffRequest{Legs: []domain.Leg{bad}, CurrentPrice: 100})
			return err
		}},
		{"payoff inverted range", func() error {
			_, err := svc.Payoff(PayoffRequest{Legs: []domain.Leg{longCall()}, CurrentPrice: 100, Range: &payoff.Range{Min: 120, Max: 80}})
			return err
		}},
		{"greeks zero spot", func() error { _, err := svc.Greeks(GreeksRequest{Legs: []domain.Leg{longCall()}}); return err }},
		{"iv stock", func() error {
			_, err := svc.ImpliedVolatility(IVRequest{InstrumentType: domain.InstrumentStock, MarketPrice: 1, Spot: 1, Strike: 1, DaysToExpiry: 1})
			return err
		}},
		{"iv zero price", func() error {
			_, err := svc.ImpliedVolatility(IVRequest{InstrumentType: domain.InstrumentCall, Spot: 100, Strike: 100, DaysToExpiry: 30})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestServiceGreeks(t *testing.T) {
	svc := newTestService(t, false)
	stock := domain.Leg{InstrumentType: domain.InstrumentStock, Action: domain.ActionBuy, Quantity: 100, EntryPrice: 100}

	resp, err := svc.Greeks(GreeksRequest{
		Legs: []domain.Leg{longCall(), stock},
		Spot: 100,
		AsOf: domain.MustDate("2024-01-02"),
	})
	if err != nil {
		t.Fatalf("Greeks: %v", err)
	}
	if len(resp.Legs) != 2 {
		t.Fatalf("Legs = %d, want 2", len(resp.Legs))
	}
	d := resp.Legs[0].Greeks.Delta
	if d < 0.5 || d > 0.65 {
		t.Errorf("ATM call delta = %v, want in [0.5, 0.65]", d)
	}
	if resp.Legs[1].Greeks.Delta != 1 {
		t.Errorf("stock delta = %v, want 1", resp.Legs[1].Greeks.Delta)
	}
	if got, want := resp.Portfolio.Delta, util.Round(d+100, 4); math.Abs(got-want) > 1e-3 {
		t.Errorf("portfolio delta = %v, want %v", got, want)
	}
}

func TestServiceImpliedVolatility(t *testing.T) {
	svc := newTestService(t, false)
	price := pricing.Price(100, 105, pricing.YearFraction(45), 0.06, 0.3, domain.InstrumentCall)

	resp, err := svc.ImpliedVolatility(IVRequest{
		InstrumentType: domain.InstrumentCall,
		MarketPrice:    price,
		Spot:           100,
		Strike:         105,
		DaysToExpiry:   45,
	})
	if err != nil {
		t.Fatalf("ImpliedVolatility: %v", err)
	}
	if math.Abs(resp.ImpliedVolatility-0.3) > 0.001 {
		t.Errorf("ImpliedVolatility = %v, want 0.3", resp.ImpliedVolatility)
	}
}
