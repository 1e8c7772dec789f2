package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantlab/internal/config"
	"quantlab/internal/marketdata"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

// quantlab-fetch downloads historical bars into the local Parquet archive so
// backtests can run without touching the network.
func main() {
	godotenv.Load()

	cfgPath := "config/quantlab.yaml"
	if p := os.Getenv("QUANTLAB_CONFIG"); p != "" {
		cfgPath = p
	}

	symbols := flag.String("symbols", "", "comma-separated symbols to fetch")
	timeframe := flag.String("timeframe", "1d", "bar timeframe")
	start := flag.String("start", "", "start date (YYYY-MM-DD)")
	end := flag.String("end", "", "end date (YYYY-MM-DD)")
	source := flag.String("source", "alpaca", "bar source: alpaca or synthetic")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *symbols == "" {
		log.Fatal("-symbols is required")
	}
	startDate, err := time.Parse("2006-01-02", *start)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	endDate, err := time.Parse("2006-01-02", *end)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}

	var provider marketdata.Provider
	switch *source {
	case "alpaca":
		provider = marketdata.NewAlpacaProvider(cfg.Alpaca, cfg.MarketData.RateLimitPerMin, logger)
	case "synthetic":
		provider = marketdata.NewSyntheticProvider(cfg.MarketData.Synthetic)
	default:
		log.Fatalf("unknown source %q", *source)
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}

		fetched, err := provider.GetPriceBars(ctx, symbol, *timeframe,
			util.StartOfDay(startDate), util.EndOfDay(endDate))
		if err != nil {
			log.Fatalf("fetching %s: %v", symbol, err)
		}
		if len(fetched) == 0 {
			logger.Warn("no bars returned", "symbol", symbol, "timeframe", *timeframe)
			continue
		}

		if err := bars.WriteBars(ctx, symbol, *timeframe, fetched); err != nil {
			log.Fatalf("writing %s: %v", symbol, err)
		}
		logger.Info("bars archived", "symbol", symbol, "timeframe", *timeframe, "bars", len(fetched))
	}
}
