package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"optlab/internal/api"
	"optlab/internal/config"
	"optlab/internal/httpapi"
	"optlab/internal/store"
	"optlab/internal/strategy"
	"optlab/internal/strategy/builtins"
	"optlab/internal/util"
)

const version = "0.1.0"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating sqlite directory: %v", err)
	}
	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite store: %v", err)
	}
	defer results.Close()

	source := cfg.MarketSource(pstore)
	bt := strategy.NewBacktester(source.NewProvider, builtins.NewRegistry(), strategy.BacktesterConfig{
		Engine:        cfg.EngineOptions(logger),
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
		Results:       results,
		Exporter:      pstore,
	})
	svc := api.NewService(bt, results, cfg.Backtest.RiskFreeRate, cfg.Backtest.Volatility, logger)
	srv := api.NewServer(cfg, svc, httpapi.NewServer(svc, version, logger).Handler(), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting optlab-server",
		"version", version,
		"config", cfgPath,
		"market_data", cfg.MarketData.Source,
		"http_port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
