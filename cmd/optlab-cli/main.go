package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"optlab/internal/config"
	"optlab/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: optlab-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  strategies   List built-in strategy presets\n")
		fmt.Fprintf(os.Stderr, "  run          Backtest strategy files or a preset\n")
		fmt.Fprintf(os.Stderr, "  payoff       Payoff diagram for a leg set\n")
		fmt.Fprintf(os.Stderr, "  greeks       Greeks for a leg set\n")
		fmt.Fprintf(os.Stderr, "  iv           Implied volatility of an option price\n")
		fmt.Fprintf(os.Stderr, "  fetch-bars   Download daily bars from Alpaca into the parquet store\n")
		fmt.Fprintf(os.Stderr, "  runs         List, show or delete saved runs\n")
		fmt.Fprintf(os.Stderr, "\nRun 'optlab-cli <command> -h' for command options.\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "version":
		fmt.Printf("optlab-cli %s\n", version)
	case "strategies":
		err = cmdStrategies(args)
	case "run":
		err = cmdRun(args)
	case "payoff":
		err = cmdPayoff(args)
	case "greeks":
		err = cmdGreeks(args)
	case "iv":
		err = cmdIV(args)
	case "fetch-bars":
		err = cmdFetchBars(args)
	case "runs":
		err = cmdRuns(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "optlab-cli %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, and installs the configured logger on stderr.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Path())
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	util.SetDefault(util.NewLoggerTo(os.Stderr, cfg.Logging.Level, "text"))
	return cfg, nil
}
