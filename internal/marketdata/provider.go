// Package marketdata supplies historical price bars to the backtest engine.
// Providers share one interface; a Chain tries them in order so a local
// Parquet archive can be backed by the Alpaca API with a synthetic generator
// as the final fallback.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quantlab/internal/domain"
)

// Provider returns price bars for a symbol and timeframe over an inclusive
// date range. An empty slice with a nil error means the source has no data
// for the request.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// GetPriceBars fetches bars ordered by ascending timestamp.
	GetPriceBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.PriceBar, error)
}

// ---------------------------------------------------------------------------
// Chain
// ---------------------------------------------------------------------------

// Chain queries providers in order and returns the first non-empty result.
// A provider error is logged and treated like an empty result so a flaky
// upstream does not sink a request the next source could serve.
type Chain struct {
	providers []Provider
	log       *slog.Logger
}

// NewChain creates a Chain over the given providers. A nil logger falls back
// to slog.Default().
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, log: logger.With("component", "marketdata")}
}

// Name identifies the provider in logs.
func (c *Chain) Name() string { return "chain" }

// GetPriceBars walks the chain. It returns an error only when the context is
// cancelled or every provider failed or came back empty.
func (c *Chain) GetPriceBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.PriceBar, error) {
	var lastErr error
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		bars, err := p.GetPriceBars(ctx, symbol, timeframe, start, end)
		if err != nil {
			c.log.Warn("provider failed, trying next",
				"provider", p.Name(), "symbol", symbol, "timeframe", timeframe, "error", err)
			lastErr = err
			continue
		}
		if len(bars) == 0 {
			c.log.Debug("provider returned no bars",
				"provider", p.Name(), "symbol", symbol, "timeframe", timeframe)
			continue
		}

		c.log.Info("bars loaded",
			"provider", p.Name(), "symbol", symbol, "timeframe", timeframe, "bars", len(bars))
		return bars, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all providers exhausted for %s %s: %w", symbol, timeframe, lastErr)
	}
	return nil, nil
}
