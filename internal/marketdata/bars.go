package marketdata

import (
	"context"
	"time"

	"optlab/internal/domain"
	"optlab/internal/store"
)

// BarProvider quotes daily closes from a BarStore, typically the Parquet
// files written by fetch-bars.
type BarProvider struct {
	store  store.BarStore
	market string
	symbol string
	cache  *closeCache
}

// NewBarProvider returns a provider over symbol's bars in market.
func NewBarProvider(s store.BarStore, market, symbol string) *BarProvider {
	p := &BarProvider{store: s, market: market, symbol: symbol}
	p.cache = newCloseCache(p.loadYear)
	return p
}

// SpotPrice returns the close on date, falling back to the previous close on
// holidays.
func (p *BarProvider) SpotPrice(ctx context.Context, date time.Time) (float64, error) {
	return p.cache.closeOn(ctx, date)
}

func (p *BarProvider) loadYear(ctx context.Context, year int) ([]domain.Bar, error) {
	start, end := yearBounds(year)
	return p.store.ReadBars(ctx, p.symbol, p.market, start, end)
}
