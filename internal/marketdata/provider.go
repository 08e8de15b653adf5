// Package marketdata supplies the underlying's daily spot price to backtests.
// The engine only sees SpotProvider; the implementations here range from
// deterministic test feeds to Parquet-backed history and the Alpaca API.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optlab/internal/domain"
	"optlab/internal/util"
)

// ErrNoPrice is returned when no spot price exists for a requested date.
var ErrNoPrice = errors.New("no spot price")

// SpotProvider returns the underlying's price for a calendar day. A lookup
// failure aborts the backtest asking for it.
type SpotProvider interface {
	SpotPrice(ctx context.Context, date time.Time) (float64, error)
}

// ProviderFunc adapts a function to SpotProvider.
type ProviderFunc func(ctx context.Context, date time.Time) (float64, error)

// SpotPrice calls f.
func (f ProviderFunc) SpotPrice(ctx context.Context, date time.Time) (float64, error) {
	return f(ctx, date)
}

// Flat quotes the same price every day.
type Flat float64

// SpotPrice returns the flat price.
func (f Flat) SpotPrice(context.Context, time.Time) (float64, error) {
	return float64(f), nil
}

// Series quotes explicit closes keyed by "YYYY-MM-DD". Days without a key
// return ErrNoPrice.
type Series map[string]float64

// SpotPrice looks up the close for date.
func (s Series) SpotPrice(_ context.Context, date time.Time) (float64, error) {
	key := domain.DateOf(date).String()
	p, ok := s[key]
	if !ok {
		return 0, fmt.Errorf("%s: %w", key, ErrNoPrice)
	}
	return p, nil
}

// Sequence assigns prices to consecutive weekdays starting on or after start.
func Sequence(start time.Time, prices ...float64) Series {
	s := make(Series, len(prices))
	d := domain.DateOf(start)
	for _, p := range prices {
		for util.IsWeekend(d.Time) {
			d = d.AddDays(1)
		}
		s[d.String()] = p
		d = d.AddDays(1)
	}
	return s
}
