// Package engine simulates one options strategy over a date range, one
// weekday at a time, and assembles the performance report.
//
// An Engine owns all mutable run state (cash, open position, ledger, equity
// curve). Run resets it on entry, so an Engine must not be shared between
// concurrent runs; create one per run instead.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"optlab/internal/domain"
	"optlab/internal/marketdata"
)

// EquityMode selects how an open position is reflected in the equity curve.
type EquityMode string

const (
	// EquityMarkToMarket adds the open position's exit value, net of the exit
	// commission, to cash.
	EquityMarkToMarket EquityMode = "mark_to_market"
	// EquityRealized reports cash only; open positions are invisible until
	// closed.
	EquityRealized EquityMode = "realized"
)

// Default model and sizing parameters.
const (
	DefaultRiskFreeRate   = 0.06
	DefaultVolatility     = 0.20
	DefaultStrikeInterval = 50.0
	DefaultMinCapitalPct  = 0.20
)

// Options tunes the simulation. Zero fields take the defaults above.
type Options struct {
	RiskFreeRate   float64
	Volatility     float64
	StrikeInterval float64 // used when the strategy does not set its own
	MinCapitalPct  float64 // fraction of initial capital required to open
	EquityMode     EquityMode

	// LeaveOpenAtEnd keeps a position still open after the last day out of
	// the ledger and reports it as BacktestResult.OpenTrade. By default it is
	// closed on the last simulated day with reason end_of_window.
	LeaveOpenAtEnd bool

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.RiskFreeRate == 0 {
		o.RiskFreeRate = DefaultRiskFreeRate
	}
	if o.Volatility <= 0 {
		o.Volatility = DefaultVolatility
	}
	if o.StrikeInterval <= 0 {
		o.StrikeInterval = DefaultStrikeInterval
	}
	if o.MinCapitalPct <= 0 {
		o.MinCapitalPct = DefaultMinCapitalPct
	}
	if o.EquityMode == "" {
		o.EquityMode = EquityMarkToMarket
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// positionState is the engine's position state machine. enter is only legal
// from flat and exit only from open, so trades can never overlap.
type positionState int

const (
	flat positionState = iota
	open
)

// Engine runs one StrategyConfig against one SpotProvider.
type Engine struct {
	cfg      domain.StrategyConfig
	provider marketdata.SpotProvider
	opts     Options
	risk     *RiskManager
	log      *slog.Logger

	// run state, reset by Run
	capital float64
	state   positionState
	pos     *position
	trades  []domain.Trade
	equity  []domain.EquityPoint
	nextID  int
}

// New creates an Engine for cfg priced off provider.
func New(cfg domain.StrategyConfig, provider marketdata.SpotProvider, opts Options) *Engine {
	opts = opts.withDefaults()
	if cfg.StrikeInterval > 0 {
		opts.StrikeInterval = cfg.StrikeInterval
	}
	return &Engine{
		cfg:      cfg,
		provider: provider,
		opts:     opts,
		risk:     NewRiskManager(cfg.InitialCapital, opts.MinCapitalPct),
		log:      opts.Logger.With("strategy", cfg.Name),
	}
}

func (e *Engine) reset() {
	e.capital = e.cfg.InitialCapital
	e.state = flat
	e.pos = nil
	e.trades = []domain.Trade{}
	e.equity = []domain.EquityPoint{}
	e.nextID = 1
}

// Run simulates every weekday in [StartDate, EndDate]. Each day it (a) tries
// to open a position when flat and the capital gate allows, (b) applies the
// exit rules to an open position, and (c) records equity. Skipped entries are
// not errors; a spot-price failure or cancellation aborts the run.
func (e *Engine) Run(ctx context.Context) (*domain.BacktestResult, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	e.reset()

	days := tradingDays(e.cfg.StartDate, e.cfg.EndDate)
	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		spot, err := e.provider.SpotPrice(ctx, day.Time)
		if err != nil {
			return nil, fmt.Errorf("spot price for %s: %w", day, err)
		}

		if e.state == flat && e.risk.CanEnter(e.capital) {
			e.enter(day, spot)
		}
		if e.state == open {
			lastDay := i == len(days)-1
			e.evaluateExit(day, spot, lastDay && !e.opts.LeaveOpenAtEnd)
		}
		e.equity = append(e.equity, domain.EquityPoint{Date: day, Equity: e.equityValue(day, spot)})
	}

	var openTrade *domain.Trade
	if e.state == open {
		t := e.pos.trade
		openTrade = &t
	}

	res := buildResult(e.cfg, e.capital, e.trades, e.equity, openTrade)
	e.log.Info("run complete",
		"trades", res.TotalTrades,
		"pnl", res.TotalPnL,
		"final_capital", res.FinalCapital,
		"days", len(days),
	)
	return res, nil
}

func (e *Engine) equityValue(day domain.Date, spot float64) float64 {
	if e.state != open || e.opts.EquityMode == EquityRealized {
		return e.capital
	}
	return e.capital + e.pos.value(day, spot) - e.pos.exitCommission
}

// tradingDays lists the weekdays in [start, end]. There is no holiday
// calendar.
func tradingDays(start, end domain.Date) []domain.Date {
	var days []domain.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		if !d.IsWeekend() {
			days = append(days, d)
		}
	}
	return days
}
