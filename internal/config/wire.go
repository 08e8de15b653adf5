package config

import (
	"log/slog"

	"optlab/internal/engine"
	"optlab/internal/marketdata"
	"optlab/internal/store"
)

// EngineOptions converts the backtest section into engine options.
func (c *Config) EngineOptions(logger *slog.Logger) engine.Options {
	return engine.Options{
		RiskFreeRate:   c.Backtest.RiskFreeRate,
		Volatility:     c.Backtest.Volatility,
		StrikeInterval: c.Backtest.StrikeInterval,
		MinCapitalPct:  c.Backtest.MinCapitalPct,
		EquityMode:     engine.EquityMode(c.Backtest.EquityMode),
		LeaveOpenAtEnd: !c.Backtest.Liquidate(),
		Logger:         logger,
	}
}

// MarketSource describes the configured spot price source. bars backs the
// parquet source and receives Alpaca write-through; it may be nil for the
// random source.
func (c *Config) MarketSource(bars store.BarStore) marketdata.Source {
	md := c.MarketData
	return marketdata.Source{
		Kind:       md.Source,
		Symbol:     md.Symbol,
		Market:     md.Market,
		StartPrice: md.StartPrice,
		DailyVol:   md.DailyVol,
		Seed:       md.Seed,
		Store:      bars,
		Alpaca: marketdata.AlpacaConfig{
			APIKey:          c.Alpaca.APIKey,
			APISecret:       c.Alpaca.APISecret,
			DataURL:         c.Alpaca.DataURL,
			Feed:            c.Alpaca.Feed,
			RateLimitPerMin: md.RateLimitPerMin,
		},
	}
}
