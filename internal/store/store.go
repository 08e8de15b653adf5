// Package store defines storage interfaces for the daily bars that feed
// backtests and for the runs they produce.
package store

import (
	"context"
	"errors"
	"time"

	"optlab/internal/domain"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves daily OHLCV bars of an underlying.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// ResultStore persists completed backtest runs.
type ResultStore interface {
	// SaveRun inserts a run, assigning an ID and creation time when unset.
	SaveRun(ctx context.Context, run *domain.BacktestRun) error

	// GetRun retrieves a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*domain.BacktestRun, error)

	// ListRuns returns summaries of the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)

	// DeleteRun removes a run and its trade ledger, or returns ErrNotFound.
	DeleteRun(ctx context.Context, id string) error
}

// RunExporter writes a run's equity curve and trade ledger to files for
// offline analysis.
type RunExporter interface {
	ExportRun(ctx context.Context, run *domain.BacktestRun) error
}
