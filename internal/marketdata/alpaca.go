package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"optlab/internal/domain"
	"optlab/internal/store"
	"optlab/internal/util"
)

const (
	fetchAttempts  = 3
	fetchBaseDelay = time.Second
)

// BarsClient is the slice of the Alpaca market-data client the provider uses.
type BarsClient interface {
	GetBars(symbol string, req alpacamd.GetBarsRequest) ([]alpacamd.Bar, error)
}

// AlpacaConfig configures an AlpacaProvider.
type AlpacaConfig struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Feed            string // "sip" or "iex"
	Symbol          string
	RateLimitPerMin int

	// Sink, when set, receives every fetched year so later runs can read
	// them through a BarProvider.
	Sink   store.BarStore
	Market string
}

// AlpacaProvider quotes daily closes fetched from the Alpaca market-data API.
// Years are fetched once and cached; requests are rate limited and retried.
type AlpacaProvider struct {
	client  BarsClient
	cfg     AlpacaConfig
	limiter *util.RateLimiter
	backoff time.Duration
	cache   *closeCache
	log     *slog.Logger
}

// NewAlpacaProvider creates a provider backed by a live Alpaca client.
func NewAlpacaProvider(cfg AlpacaConfig) *AlpacaProvider {
	opts := alpacamd.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return NewAlpacaProviderWithClient(alpacamd.NewClient(opts), cfg)
}

// NewAlpacaProviderWithClient creates a provider over an existing client.
func NewAlpacaProviderWithClient(client BarsClient, cfg AlpacaConfig) *AlpacaProvider {
	if cfg.Feed == "" {
		cfg.Feed = "sip"
	}
	if cfg.Market == "" {
		cfg.Market = "us"
	}
	cfg.Symbol = strings.ToUpper(cfg.Symbol)

	p := &AlpacaProvider{
		client:  client,
		cfg:     cfg,
		limiter: util.NewRateLimiter(cfg.RateLimitPerMin),
		backoff: fetchBaseDelay,
		log:     slog.Default().With("provider", "alpaca", "symbol", cfg.Symbol),
	}
	p.cache = newCloseCache(p.loadYear)
	return p
}

// SpotPrice returns the close on date, falling back to the previous close on
// holidays.
func (p *AlpacaProvider) SpotPrice(ctx context.Context, date time.Time) (float64, error) {
	return p.cache.closeOn(ctx, date)
}

// FetchBars fetches daily bars for the configured symbol in [start, end],
// ordered by timestamp.
func (p *AlpacaProvider) FetchBars(ctx context.Context, start, end time.Time) ([]domain.Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw []alpacamd.Bar
	err := util.Retry(ctx, fetchAttempts, p.backoff, func() error {
		var err error
		raw, err = p.client.GetBars(p.cfg.Symbol, alpacamd.GetBarsRequest{
			TimeFrame: alpacamd.OneDay,
			Start:     start,
			End:       end,
			Feed:      alpacamd.Feed(p.cfg.Feed),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", p.cfg.Symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    p.cfg.Symbol,
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func (p *AlpacaProvider) loadYear(ctx context.Context, year int) ([]domain.Bar, error) {
	start, end := yearBounds(year)
	if now := time.Now(); end.After(now) {
		end = now
	}
	if !start.Before(end) {
		return nil, nil
	}

	bars, err := p.FetchBars(ctx, start, end)
	if err != nil {
		return nil, err
	}
	p.log.Debug("fetched year", "year", year, "bars", len(bars))

	if p.cfg.Sink != nil && len(bars) > 0 {
		if err := p.cfg.Sink.WriteBars(ctx, p.cfg.Market, bars); err != nil {
			p.log.Warn("writing fetched bars failed", "year", year, "err", err)
		}
	}
	return bars, nil
}
