package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"optlab/internal/api"
	"optlab/internal/config"
	"optlab/internal/domain"
	"optlab/internal/marketdata"
	"optlab/internal/payoff"
	"optlab/internal/store"
	"optlab/internal/strategy"
	"optlab/internal/strategy/builtins"
	"optlab/pkg/optlab"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdStrategies(args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ExitOnError)
	fs.Parse(args)

	reg := builtins.NewRegistry()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLEGS\tDESCRIPTION")
	for _, name := range reg.List() {
		p, _ := reg.Get(name)
		fmt.Fprintf(tw, "%s\t%d\t%s\n", name, len(p.Config(strategy.Params{}).Legs), p.Description())
	}
	return tw.Flush()
}

// openStores opens the parquet and sqlite stores named in cfg.
func openStores(cfg *config.Config) (*store.ParquetStore, *store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating sqlite directory: %w", err)
	}
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return store.NewParquetStore(cfg.Storage.DataDir), db, nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	preset := fs.String("preset", "", "run a built-in preset instead of strategy files")
	start := fs.String("start", "", "preset start date (YYYY-MM-DD)")
	end := fs.String("end", "", "preset end date (YYYY-MM-DD)")
	capital := fs.Float64("capital", 100000, "preset initial capital")
	qty := fs.Int("qty", 1, "preset quantity multiplier")
	dte := fs.Int("dte", 0, "preset days to expiry (0 keeps the preset default)")
	commission := fs.Float64("commission", 0, "preset commission per leg")
	save := fs.Bool("save", false, "persist runs to sqlite and export them to parquet")
	asJSON := fs.Bool("json", false, "print full results as JSON")
	server := fs.String("server", "", "run on an optlab-server at this URL instead of locally")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: optlab-cli run [options] <strategy.yaml>...\n       optlab-cli run -preset NAME -start DATE -end DATE [options]\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg := builtins.NewRegistry()

	var cfgs []domain.StrategyConfig
	if *preset != "" {
		p, ok := reg.Get(*preset)
		if !ok {
			return fmt.Errorf("unknown preset %q (see 'optlab-cli strategies')", *preset)
		}
		params := strategy.Params{InitialCapital: *capital, Quantity: *qty, DaysToExpiry: *dte, CommissionPerLeg: *commission}
		if params.StartDate, err = domain.ParseDate(*start); err != nil {
			return fmt.Errorf("-start: %w", err)
		}
		if params.EndDate, err = domain.ParseDate(*end); err != nil {
			return fmt.Errorf("-end: %w", err)
		}
		cfgs = append(cfgs, p.Config(params))
	}
	for _, path := range fs.Args() {
		sc, err := strategy.LoadStrategyFile(path, reg)
		if err != nil {
			return err
		}
		cfgs = append(cfgs, sc)
	}
	if len(cfgs) == 0 {
		fs.Usage()
		return fmt.Errorf("nothing to run")
	}

	ctx, cancel := signalContext()
	defer cancel()

	var runs []*domain.BacktestRun
	if *server != "" {
		c := optlab.NewClient(*server)
		for _, sc := range cfgs {
			run, err := c.RunBacktest(ctx, sc)
			if err != nil {
				return fmt.Errorf("%s: %w", sc.Name, err)
			}
			runs = append(runs, run)
		}
	} else {
		btCfg := strategy.BacktesterConfig{
			Engine:        cfg.EngineOptions(slog.Default()),
			MaxConcurrent: cfg.Backtest.MaxConcurrent,
		}
		pstore := store.NewParquetStore(cfg.Storage.DataDir)
		if *save {
			var db *store.SQLiteStore
			pstore, db, err = openStores(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			btCfg.Results, btCfg.Exporter = db, pstore
		}
		source := cfg.MarketSource(pstore)
		bt := strategy.NewBacktester(source.NewProvider, reg, btCfg)

		raw, err := bt.RunBatch(ctx, cfgs)
		if err != nil {
			return err
		}
		for _, r := range raw {
			out := *r
			out.Result = r.Result.Rounded()
			runs = append(runs, &out)
		}
	}

	if *asJSON {
		return printJSON(runs)
	}
	return printRunTable(runs)
}

func printRunTable(runs []*domain.BacktestRun) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "STRATEGY\tTRADES\tWIN%\tP&L\tRETURN%\tMAX DD%\tSHARPE\tFINAL\tRUN\t")
	for _, r := range runs {
		res := r.Result
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.4f\t%.2f\t%s\t\n",
			r.StrategyName, res.TotalTrades, res.WinRate, res.TotalPnL, res.ReturnPct,
			res.MaxDrawdownPct, res.SharpeRatio, res.FinalCapital, r.ID)
	}
	return tw.Flush()
}

func cmdPayoff(args []string) error {
	fs := flag.NewFlagSet("payoff", flag.ExitOnError)
	legSpec := fs.String("legs", "", "legs as action:type:strike:premium[:qty[:expiry]], comma separated")
	price := fs.Float64("price", 0, "current underlying price")
	lo := fs.Float64("min", 0, "range minimum (with -max)")
	hi := fs.Float64("max", 0, "range maximum (with -min)")
	step := fs.Float64("step", 0, "range step")
	vol := fs.Float64("vol", 0, "volatility for probability of profit")
	days := fs.Int("days", 0, "days to expiry for probability of profit")
	points := fs.Bool("points", false, "print every sampled point")
	server := fs.String("server", "", "compute on an optlab-server at this URL")
	fs.Parse(args)

	legs, err := parseLegs(*legSpec)
	if err != nil {
		return err
	}
	req := optlab.PayoffRequest{Legs: legs, CurrentPrice: *price, Volatility: *vol, DaysToExpiry: *days}
	if *hi > *lo {
		req.Range = &payoff.Range{Min: *lo, Max: *hi, Step: *step}
	}

	var resp *optlab.PayoffResponse
	if *server != "" {
		ctx, cancel := signalContext()
		defer cancel()
		resp, err = optlab.NewClient(*server).Payoff(ctx, req)
	} else {
		resp, err = localService(nil).Payoff(req)
	}
	if err != nil {
		return err
	}

	fmt.Printf("max profit:        %.2f\n", resp.MaxProfit)
	fmt.Printf("max loss:          %.2f\n", resp.MaxLoss)
	fmt.Printf("breakevens:        %v\n", resp.Breakevens)
	fmt.Printf("P&L at %-10.2f %.2f\n", *price, resp.CurrentPnL)
	fmt.Printf("risk/reward:       %.4f\n", resp.RiskRewardRatio)
	if *vol > 0 && *days > 0 {
		fmt.Printf("prob. of profit:   %.4f\n", resp.ProbabilityOfProfit)
	}
	if *points {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "PRICE\tP&L\t")
		for _, p := range resp.Points {
			fmt.Fprintf(tw, "%.2f\t%.2f\t\n", p.UnderlyingPrice, p.PnL)
		}
		return tw.Flush()
	}
	return nil
}

// localService builds an API service with no backtester persistence, for
// the pure pricing commands.
func localService(cfg *config.Config) *api.Service {
	if cfg == nil {
		cfg = config.Default()
	}
	bt := strategy.NewBacktester(cfg.MarketSource(nil).NewProvider, builtins.NewRegistry(), strategy.BacktesterConfig{})
	return api.NewService(bt, nil, cfg.Backtest.RiskFreeRate, cfg.Backtest.Volatility, slog.Default())
}

func cmdGreeks(args []string) error {
	fs := flag.NewFlagSet("greeks", flag.ExitOnError)
	legSpec := fs.String("legs", "", "legs as action:type:strike:premium[:qty[:expiry]], comma separated")
	spot := fs.Float64("spot", 0, "underlying price")
	asOf := fs.String("asof", "", "valuation date (YYYY-MM-DD, default today)")
	rate := fs.Float64("rate", 0, "risk-free rate (default from config)")
	vol := fs.Float64("vol", 0, "volatility (default from config)")
	server := fs.String("server", "", "compute on an optlab-server at this URL")
	fs.Parse(args)

	legs, err := parseLegs(*legSpec)
	if err != nil {
		return err
	}
	req := optlab.GreeksRequest{Legs: legs, Spot: *spot, RiskFreeRate: *rate, Volatility: *vol}
	if *asOf != "" {
		if req.AsOf, err = domain.ParseDate(*asOf); err != nil {
			return fmt.Errorf("-asof: %w", err)
		}
	}

	var resp *optlab.GreeksResponse
	if *server != "" {
		ctx, cancel := signalContext()
		defer cancel()
		resp, err = optlab.NewClient(*server).Greeks(ctx, req)
	} else {
		cfg, cerr := loadConfig()
		if cerr != nil {
			return cerr
		}
		resp, err = localService(cfg).Greeks(req)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "LEG\tSIDE\tQTY\tDELTA\tGAMMA\tTHETA\tVEGA\tRHO\t")
	for i, l := range resp.Legs {
		g := l.Greeks
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n", i+1, l.Action, l.Quantity, g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho)
	}
	p := resp.Portfolio
	fmt.Fprintf(tw, "TOTAL\t\t\t%.4f\t%.4f\t%.4f\t%.4f\t\t\n", p.Delta, p.Gamma, p.Theta, p.Vega)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("net exposure: %.4f\n", p.NetExposure)
	return nil
}

func cmdIV(args []string) error {
	fs := flag.NewFlagSet("iv", flag.ExitOnError)
	typ := fs.String("type", "call", "call or put")
	price := fs.Float64("price", 0, "option market price")
	spot := fs.Float64("spot", 0, "underlying price")
	strike := fs.Float64("strike", 0, "strike price")
	days := fs.Int("days", 0, "days to expiry")
	rate := fs.Float64("rate", 0, "risk-free rate (default from config)")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resp, err := localService(cfg).ImpliedVolatility(api.IVRequest{
		InstrumentType: domain.InstrumentType(*typ),
		MarketPrice:    *price,
		Spot:           *spot,
		Strike:         *strike,
		DaysToExpiry:   *days,
		RiskFreeRate:   *rate,
	})
	if err != nil {
		return err
	}
	fmt.Printf("implied volatility: %.4f (%.2f%%)\n", resp.ImpliedVolatility, resp.ImpliedVolatility*100)
	return nil
}

func cmdFetchBars(args []string) error {
	fs := flag.NewFlagSet("fetch-bars", flag.ExitOnError)
	symbol := fs.String("symbol", "", "symbol to fetch (default from config)")
	start := fs.String("start", "", "first date (YYYY-MM-DD)")
	end := fs.String("end", "", "last date (YYYY-MM-DD, default today)")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *symbol != "" {
		cfg.MarketData.Symbol = *symbol
	}
	from, err := domain.ParseDate(*start)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	to := domain.DateOf(time.Now())
	if *end != "" {
		if to, err = domain.ParseDate(*end); err != nil {
			return fmt.Errorf("-end: %w", err)
		}
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	src := cfg.MarketSource(pstore)
	src.Alpaca.Symbol, src.Alpaca.Market = src.Symbol, src.Market
	provider := marketdata.NewAlpacaProvider(src.Alpaca)

	ctx, cancel := signalContext()
	defer cancel()

	bars, err := provider.FetchBars(ctx, from.Time, to.Time)
	if err != nil {
		return err
	}
	if err := pstore.WriteBars(ctx, src.Market, bars); err != nil {
		return fmt.Errorf("writing bars: %w", err)
	}
	slog.Info("bars saved", "symbol", src.Symbol, "market", src.Market, "bars", len(bars), "data_dir", cfg.Storage.DataDir)
	fmt.Printf("saved %d %s bars (%s..%s)\n", len(bars), src.Symbol, from, to)
	return nil
}

func cmdRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of runs to list")
	show := fs.String("show", "", "print the full run with this ID as JSON")
	del := fs.String("delete", "", "delete the run with this ID")
	byReason := fs.String("by-reason", "", "P&L by exit reason for the run with this ID")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, db, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	switch {
	case *show != "":
		run, err := db.GetRun(ctx, *show)
		if err != nil {
			return err
		}
		run.Result = run.Result.Rounded()
		return printJSON(run)
	case *del != "":
		if err := db.DeleteRun(ctx, *del); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", *del)
		return nil
	case *byReason != "":
		pnl, err := db.TradePnLByReason(ctx, *byReason)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EXIT REASON\tP&L")
		for _, reason := range slices.Sorted(maps.Keys(pnl)) {
			fmt.Fprintf(tw, "%s\t%.2f\n", reason, pnl[reason])
		}
		return tw.Flush()
	}

	runs, err := db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTRATEGY\tCREATED\tTRADES\tP&L\tRETURN%\tSHARPE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.4f\n",
			r.ID, r.StrategyName, r.CreatedAt.Local().Format(time.DateTime), r.TotalTrades, r.TotalPnL, r.ReturnPct, r.SharpeRatio)
	}
	return tw.Flush()
}
