package marketdata

import (
	"fmt"

	"optlab/internal/store"
)

// Source kinds accepted by Source.NewProvider.
const (
	SourceRandom  = "random"
	SourceParquet = "parquet"
	SourceAlpaca  = "alpaca"
)

// Source describes where backtests get their spot prices. Each call to
// NewProvider returns a fresh provider so concurrent runs share no caches.
type Source struct {
	Kind   string
	Symbol string
	Market string

	// random
	StartPrice float64
	DailyVol   float64
	Seed       uint64

	// parquet, and the alpaca write-through sink
	Store store.BarStore

	// alpaca
	Alpaca AlpacaConfig
}

// NewProvider builds a SpotProvider for the source.
func (s Source) NewProvider() (SpotProvider, error) {
	switch s.Kind {
	case "", SourceRandom:
		return NewRandomWalk(s.StartPrice, s.DailyVol, s.Seed), nil
	case SourceParquet:
		if s.Store == nil {
			return nil, fmt.Errorf("parquet source needs a bar store")
		}
		return NewBarProvider(s.Store, s.Market, s.Symbol), nil
	case SourceAlpaca:
		cfg := s.Alpaca
		cfg.Symbol = s.Symbol
		cfg.Market = s.Market
		if cfg.Sink == nil {
			cfg.Sink = s.Store
		}
		return NewAlpacaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown market data source %q", s.Kind)
	}
}
