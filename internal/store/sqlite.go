package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"optlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		strategy_name TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		config        TEXT NOT NULL,
		result        TEXT NOT NULL,
		total_trades  INTEGER NOT NULL,
		total_pnl     REAL NOT NULL,
		return_pct    REAL NOT NULL,
		sharpe_ratio  REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS trades (
		run_id        TEXT NOT NULL,
		trade_id      INTEGER NOT NULL,
		entry_date    TEXT NOT NULL,
		exit_date     TEXT NOT NULL,
		entry_price   REAL NOT NULL,
		exit_price    REAL NOT NULL,
		pnl           REAL NOT NULL,
		pnl_pct       REAL NOT NULL,
		commission    REAL NOT NULL,
		duration_days INTEGER NOT NULL,
		exit_reason   TEXT NOT NULL,
		PRIMARY KEY (run_id, trade_id)
	)`,
}

// SQLiteStore implements ResultStore backed by a SQLite database. Each run is
// kept as JSON documents plus a flat trades table for ad-hoc queries.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run and its closed trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.BacktestRun) error {
	if run == nil || run.Result == nil {
		return errors.New("save run: no result")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.StrategyName == "" {
		run.StrategyName = run.Result.StrategyName
	}

	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	res, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, strategy_name, created_at, config, result, total_trades, total_pnl, return_pct, sharpe_ratio)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StrategyName, run.CreatedAt.UnixNano(), string(cfg), string(res),
		run.Result.TotalTrades, run.Result.TotalPnL, run.Result.ReturnPct, run.Result.SharpeRatio)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for _, t := range run.Result.Trades {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO trades (run_id, trade_id, entry_date, exit_date, entry_price, exit_price, pnl, pnl_pct, commission, duration_days, exit_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, t.ID, t.EntryDate.String(), t.ExitDate.String(), t.EntryPrice, t.ExitPrice,
			t.PnL, t.PnLPct, t.Commission, t.DurationDays, string(t.ExitReason))
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", t.ID, run.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	var (
		run       domain.BacktestRun
		createdAt int64
		cfg, res  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, strategy_name, created_at, config, result FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.StrategyName, &createdAt, &cfg, &res)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	run.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(cfg), &run.Config); err != nil {
		return nil, fmt.Errorf("decoding config of run %s: %w", id, err)
	}
	run.Result = &domain.BacktestResult{}
	if err := json.Unmarshal([]byte(res), run.Result); err != nil {
		return nil, fmt.Errorf("decoding result of run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_name, created_at, total_trades, total_pnl, return_pct, sharpe_ratio
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var (
			r         domain.RunSummary
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.StrategyName, &createdAt, &r.TotalTrades, &r.TotalPnL, &r.ReturnPct, &r.SharpeRatio); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// TradePnLByReason sums net trade P&L per exit reason for one run, straight
// from the trades table.
func (s *SQLiteStore) TradePnLByReason(ctx context.Context, runID string) (map[domain.ExitReason]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT exit_reason, SUM(pnl) FROM trades WHERE run_id = ? GROUP BY exit_reason`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.ExitReason]float64)
	for rows.Next() {
		var (
			reason string
			pnl    float64
		)
		if err := rows.Scan(&reason, &pnl); err != nil {
			return nil, err
		}
		out[domain.ExitReason(reason)] = pnl
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its trades.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE run_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
