package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"optlab/internal/domain"
	"optlab/internal/engine"
	"optlab/internal/marketdata"
	"optlab/internal/store"
)

// ProviderFactory returns a fresh SpotProvider for one run.
type ProviderFactory func() (marketdata.SpotProvider, error)

// BacktesterConfig wires optional collaborators into a Backtester.
type BacktesterConfig struct {
	Engine        engine.Options
	MaxConcurrent int               // batch parallelism; <= 0 means 4
	Results       store.ResultStore // optional; runs are saved when set
	Exporter      store.RunExporter // optional; runs are exported when set
}

// Backtester runs strategy configs through the engine, one engine and one
// provider per run, and records the outcome.
type Backtester struct {
	providers ProviderFactory
	registry  *Registry
	cfg       BacktesterConfig
	log       *slog.Logger
}

// NewBacktester creates a Backtester that prices runs with providers and
// resolves presets through registry.
func NewBacktester(providers ProviderFactory, registry *Registry, cfg BacktesterConfig) *Backtester {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	log := cfg.Engine.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		providers: providers,
		registry:  registry,
		cfg:       cfg,
		log:       log.With("component", "backtester"),
	}
}

// Registry returns the preset registry.
func (bt *Backtester) Registry() *Registry { return bt.registry }

// Run backtests cfg and returns the recorded run. Persistence failures are
// returned after the run completes; the run itself is still returned.
func (bt *Backtester) Run(ctx context.Context, cfg domain.StrategyConfig) (*domain.BacktestRun, error) {
	provider, err := bt.providers()
	if err != nil {
		return nil, fmt.Errorf("creating spot provider: %w", err)
	}

	start := time.Now()
	res, err := engine.New(cfg, provider, bt.cfg.Engine).Run(ctx)
	if err != nil {
		return nil, err
	}

	run := &domain.BacktestRun{
		ID:           uuid.NewString(),
		StrategyName: cfg.Name,
		CreatedAt:    time.Now().UTC(),
		Config:       cfg,
		Result:       res,
	}
	bt.log.Info("backtest finished",
		"run", run.ID,
		"strategy", cfg.Name,
		"trades", res.TotalTrades,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if bt.cfg.Results != nil {
		if err := bt.cfg.Results.SaveRun(ctx, run); err != nil {
			return run, fmt.Errorf("saving run %s: %w", run.ID, err)
		}
	}
	if bt.cfg.Exporter != nil {
		if err := bt.cfg.Exporter.ExportRun(ctx, run); err != nil {
			return run, fmt.Errorf("exporting run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

// RunPreset backtests the named preset with p.
func (bt *Backtester) RunPreset(ctx context.Context, name string, p Params) (*domain.BacktestRun, error) {
	preset, ok := bt.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidConfig, name)
	}
	return bt.Run(ctx, preset.Config(p))
}

// RunBatch backtests every config concurrently, at most MaxConcurrent at a
// time. Results are in input order. The first failure cancels the rest.
func (bt *Backtester) RunBatch(ctx context.Context, cfgs []domain.StrategyConfig) ([]*domain.BacktestRun, error) {
	runs := make([]*domain.BacktestRun, len(cfgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bt.cfg.MaxConcurrent)
	for i, cfg := range cfgs {
		g.Go(func() error {
			run, err := bt.Run(ctx, cfg)
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.Name, err)
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}
