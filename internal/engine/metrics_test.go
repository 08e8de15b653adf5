package engine

import (
	"math"
	"testing"

	"optlab/internal/domain"
)

func closed(id int, exit string, pnl, pnlPct float64, days int) domain.Trade {
	return domain.Trade{ID: id, ExitDate: domain.MustDate(exit), PnL: pnl, PnLPct: pnlPct, DurationDays: days, Commission: 10}
}

func TestBuildResult(t *testing.T) {
	cfg := domain.StrategyConfig{Name: "x", InitialCapital: 1000}
	trades := []domain.Trade{
		closed(1, "2024-01-15", 100, 10, 4),
		closed(2, "2024-01-29", -50, -5, 6),
		closed(3, "2024-02-12", 30, 3, 2),
	}
	r := buildResult(cfg, 1080, trades, nil, nil)

	checks := []struct {
		name      string
		got, want float64
	}{
		{"WinRate", r.WinRate, 200.0 / 3},
		{"TotalPnL", r.TotalPnL, 80},
		{"AvgWin", r.AvgWin, 65},
		{"AvgLoss", r.AvgLoss, -50},
		{"LargestWin", r.LargestWin, 100},
		{"LargestLoss", r.LargestLoss, -50},
		{"ProfitFactor", r.ProfitFactor, 2.6},
		{"AvgTradeDuration", r.AvgTradeDuration, 4},
		{"TotalCommissions", r.TotalCommissions, 30},
		{"ReturnPct", r.ReturnPct, 8},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if r.WinningTrades != 2 || r.LosingTrades != 1 {
		t.Errorf("winners/losers = %d/%d, want 2/1", r.WinningTrades, r.LosingTrades)
	}
	if r.MonthlyReturns["2024-01"] != 50 || r.MonthlyReturns["2024-02"] != 30 {
		t.Errorf("MonthlyReturns = %v, want 2024-01: 50, 2024-02: 30", r.MonthlyReturns)
	}
}

func TestBuildResultEmpty(t *testing.T) {
	r := buildResult(domain.StrategyConfig{InitialCapital: 1000}, 1000, []domain.Trade{}, nil, nil)
	if r.WinRate != 0 || r.AvgWin != 0 || r.AvgLoss != 0 || r.LargestWin != 0 || r.LargestLoss != 0 || r.ProfitFactor != 0 {
		t.Errorf("empty result stats = %+v, want zeros", r)
	}
	if r.MonthlyReturns == nil {
		t.Error("MonthlyReturns = nil, want empty map")
	}
}

func TestMaxDrawdown(t *testing.T) {
	var eq []domain.EquityPoint
	for i, v := range []float64{100, 120, 90, 130, 110} {
		eq = append(eq, domain.EquityPoint{Date: domain.MustDate("2024-01-01").AddDays(i), Equity: v})
	}
	dd, pct := maxDrawdown(100, eq)
	if dd != 30 || pct != 25 {
		t.Errorf("maxDrawdown = %v, %v%%; want 30, 25%%", dd, pct)
	}

	dd, pct = maxDrawdown(100, []domain.EquityPoint{{Equity: 80}})
	if dd != 20 || pct != 20 {
		t.Errorf("drop below initial capital = %v, %v%%; want 20, 20%%", dd, pct)
	}
}

func TestSharpeRatio(t *testing.T) {
	trades := []domain.Trade{{PnLPct: 10}, {PnLPct: -5}, {PnLPct: 3}}

	daily := 0.06 / 252
	r := []float64{0.10 - daily, -0.05 - daily, 0.03 - daily}
	mean := (r[0] + r[1] + r[2]) / 3
	var ss float64
	for _, v := range r {
		ss += (v - mean) * (v - mean)
	}
	want := mean / math.Sqrt(ss/2) * math.Sqrt(252)

	if got := sharpeRatio(trades); math.Abs(got-want) > 1e-9 {
		t.Errorf("sharpeRatio = %v, want %v", got, want)
	}
	if got := sharpeRatio(trades[:1]); got != 0 {
		t.Errorf("sharpeRatio with one trade = %v, want 0", got)
	}
	if got := sharpeRatio([]domain.Trade{{PnLPct: 2}, {PnLPct: 2}}); got != 0 {
		t.Errorf("sharpeRatio with no dispersion = %v, want 0", got)
	}
}
