package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantlab/internal/auth"
	"quantlab/internal/backtest"
	"quantlab/internal/config"
	"quantlab/internal/httpapi"
	"quantlab/internal/marketdata"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
	"quantlab/internal/util"
)

func main() {
	godotenv.Load()

	cfgPath := "config/quantlab.yaml"
	if p := os.Getenv("QUANTLAB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	runs, strategies, closeStore, err := openStores(cfg)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer closeStore()

	provider := buildProviderChain(cfg, logger)

	svc := backtest.NewService(
		runs,
		strategies,
		configProvider(cfg, strategies),
		provider,
		auth.NewRoleChecker(),
		logger,
	)
	api := httpapi.NewServer(svc, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("quantlab-server listening", "addr", addr, "driver", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// openStores opens the run/strategy store selected by storage.driver.
func openStores(cfg *config.Config) (store.RunStore, store.StrategyStore, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := store.NewPostgresStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st, closer(st), nil
	case "sqlite", "":
		st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st, closer(st), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Error("closing store", "error", err)
		}
	}
}

// buildProviderChain assembles the market-data sources listed in the config.
func buildProviderChain(cfg *config.Config, logger *slog.Logger) backtest.MarketDataProvider {
	var providers []marketdata.Provider
	for _, name := range cfg.MarketData.Providers {
		switch name {
		case "parquet":
			providers = append(providers,
				marketdata.NewParquetProvider(store.NewParquetStore(cfg.Storage.DataDir)))
		case "alpaca":
			providers = append(providers,
				marketdata.NewAlpacaProvider(cfg.Alpaca, cfg.MarketData.RateLimitPerMin, logger))
		case "synthetic":
			providers = append(providers,
				marketdata.NewSyntheticProvider(cfg.MarketData.Synthetic))
		default:
			log.Fatalf("unknown market data provider %q", name)
		}
	}
	return marketdata.NewChain(logger, providers...)
}

// configProvider selects where strategy documents are resolved from. A
// configured strategies.dir wins; otherwise the database store is used.
func configProvider(cfg *config.Config, strategies store.StrategyStore) backtest.ConfigProvider {
	if cfg.Strategies.Dir != "" {
		return strategy.NewDirProvider(cfg.Strategies.Dir)
	}
	return strategy.NewStoreProvider(strategies)
}
