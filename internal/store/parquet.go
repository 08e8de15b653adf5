package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"optlab/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ RunExporter = (*ParquetStore)(nil)

// ParquetStore implements BarStore and RunExporter using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// EquityRecord is the Parquet schema for one equity-curve sample of a run.
type EquityRecord struct {
	RunID  string  `parquet:"run_id"`
	Date   string  `parquet:"date"` // YYYY-MM-DD
	Equity float64 `parquet:"equity"`
}

// TradeRecord is the Parquet schema for one closed trade of a run.
type TradeRecord struct {
	RunID        string  `parquet:"run_id"`
	TradeID      int64   `parquet:"trade_id"`
	EntryDate    string  `parquet:"entry_date"`
	ExitDate     string  `parquet:"exit_date"`
	EntryPrice   float64 `parquet:"entry_price"`
	ExitPrice    float64 `parquet:"exit_price"`
	GrossPnL     float64 `parquet:"gross_pnl"`
	Commission   float64 `parquet:"commission"`
	PnL          float64 `parquet:"pnl"`
	PnLPct       float64 `parquet:"pnl_pct"`
	DurationDays int64   `parquet:"duration_days"`
	ExitReason   string  `parquet:"exit_reason"`
	Legs         int64   `parquet:"legs"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars to Parquet files organized by symbol and year,
// merging with whatever the files already hold:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    k.symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars for the given symbol and time range. Missing year files
// are skipped.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path := s.barPath(symbol, market, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:    r.Symbol,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// RunExporter implementation
// ---------------------------------------------------------------------------

// ExportRun writes the run's equity curve and closed trades to
// <DataDir>/runs/<id>/equity.parquet and trades.parquet.
func (s *ParquetStore) ExportRun(_ context.Context, run *domain.BacktestRun) error {
	if run == nil || run.Result == nil {
		return fmt.Errorf("export run: no result")
	}
	if run.ID == "" {
		return fmt.Errorf("export run: missing id")
	}

	equity := make([]EquityRecord, 0, len(run.Result.EquityCurve))
	for _, p := range run.Result.EquityCurve {
		equity = append(equity, EquityRecord{RunID: run.ID, Date: p.Date.String(), Equity: p.Equity})
	}
	if err := writeParquetFile(s.runPath(run.ID, "equity"), equity); err != nil {
		return fmt.Errorf("writing equity for run %s: %w", run.ID, err)
	}

	trades := make([]TradeRecord, 0, len(run.Result.Trades))
	for _, t := range run.Result.Trades {
		trades = append(trades, tradeRecord(run.ID, t))
	}
	if err := writeParquetFile(s.runPath(run.ID, "trades"), trades); err != nil {
		return fmt.Errorf("writing trades for run %s: %w", run.ID, err)
	}
	return nil
}

// ReadRunEquity reads back an exported equity curve.
func (s *ParquetStore) ReadRunEquity(runID string) ([]EquityRecord, error) {
	return readParquetFile[EquityRecord](s.runPath(runID, "equity"))
}

// ReadRunTrades reads back an exported trade ledger.
func (s *ParquetStore) ReadRunTrades(runID string) ([]TradeRecord, error) {
	return readParquetFile[TradeRecord](s.runPath(runID, "trades"))
}

func tradeRecord(runID string, t domain.Trade) TradeRecord {
	return TradeRecord{
		RunID:        runID,
		TradeID:      int64(t.ID),
		EntryDate:    t.EntryDate.String(),
		ExitDate:     t.ExitDate.String(),
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		GrossPnL:     t.GrossPnL,
		Commission:   t.Commission,
		PnL:          t.PnL,
		PnLPct:       t.PnLPct,
		DurationDays: int64(t.DurationDays),
		ExitReason:   string(t.ExitReason),
		Legs:         int64(len(t.Legs)),
	}
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// runPath returns the filesystem path for an exported run file.
// Layout: <dataDir>/runs/<runID>/<name>.parquet
func (s *ParquetStore) runPath(runID, name string) string {
	return filepath.Join(s.DataDir, "runs", runID, name+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
