package engine

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"optlab/internal/domain"
)

const (
	annualRiskFree = 0.06
	tradingDaysPA  = 252.0
)

// buildResult derives the performance report from the closed trades and the
// equity curve. Everything stays at full precision; see
// BacktestResult.Rounded for presentation.
func buildResult(cfg domain.StrategyConfig, finalCapital float64, trades []domain.Trade, equity []domain.EquityPoint, openTrade *domain.Trade) *domain.BacktestResult {
	r := &domain.BacktestResult{
		StrategyName:   cfg.Name,
		StartDate:      cfg.StartDate,
		EndDate:        cfg.EndDate,
		TotalTrades:    len(trades),
		InitialCapital: cfg.InitialCapital,
		FinalCapital:   finalCapital,
		EquityCurve:    equity,
		Trades:         trades,
		MonthlyReturns: make(map[string]float64),
		OpenTrade:      openTrade,
	}

	var (
		grossProfit, grossLoss float64
		duration               float64
	)
	for i, t := range trades {
		r.TotalPnL += t.PnL
		r.TotalCommissions += t.Commission
		duration += float64(t.DurationDays)
		r.MonthlyReturns[t.ExitDate.MonthKey()] += t.PnL

		if i == 0 || t.PnL > r.LargestWin {
			r.LargestWin = t.PnL
		}
		if i == 0 || t.PnL < r.LargestLoss {
			r.LargestLoss = t.PnL
		}
		switch {
		case t.PnL > 0:
			r.WinningTrades++
			grossProfit += t.PnL
		case t.PnL < 0:
			r.LosingTrades++
			grossLoss -= t.PnL
		}
	}

	if n := len(trades); n > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(n) * 100
		r.AvgTradeDuration = duration / float64(n)
	}
	if r.WinningTrades > 0 {
		r.AvgWin = grossProfit / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = -grossLoss / float64(r.LosingTrades)
	}
	if grossLoss > 0 {
		r.ProfitFactor = grossProfit / grossLoss
	}
	if cfg.InitialCapital != 0 {
		r.ReturnPct = (finalCapital - cfg.InitialCapital) / cfg.InitialCapital * 100
	}

	r.MaxDrawdown, r.MaxDrawdownPct = maxDrawdown(cfg.InitialCapital, equity)
	r.SharpeRatio = sharpeRatio(trades)
	return r
}

// maxDrawdown scans the equity curve against its running peak, starting from
// the initial capital. Both results are non-negative.
func maxDrawdown(initial float64, equity []domain.EquityPoint) (float64, float64) {
	peak := initial
	var dd, ddPct float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		drop := peak - p.Equity
		dd = math.Max(dd, drop)
		if peak > 0 {
			ddPct = math.Max(ddPct, drop/peak*100)
		}
	}
	return dd, ddPct
}

// sharpeRatio annualises per-trade excess returns (pnlPct less a daily 6%/yr
// risk-free rate) by sqrt(252). Fewer than two trades, or no dispersion,
// yields 0.
func sharpeRatio(trades []domain.Trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	daily := annualRiskFree / tradingDaysPA
	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = t.PnLPct/100 - daily
	}
	sd := stat.StdDev(returns, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return stat.Mean(returns, nil) / sd * math.Sqrt(tradingDaysPA)
}
