package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/util"
)

var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches historical bars from the Alpaca market-data API.
// Calls are rate limited and retried with exponential backoff.
type AlpacaProvider struct {
	client  *marketdata.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider from the Alpaca credentials in
// the configuration. rateLimitPerMin bounds outbound request volume.
func NewAlpacaProvider(cfg config.Alpaca, rateLimitPerMin int, logger *slog.Logger) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AlpacaProvider{
		client:  marketdata.NewClient(opts),
		limiter: util.NewRateLimiter(rateLimitPerMin),
		log:     logger.With("provider", "alpaca"),
	}
}

// Name identifies the provider in logs.
func (p *AlpacaProvider) Name() string { return "alpaca" }

// GetPriceBars fetches bars for the symbol over the inclusive date range.
func (p *AlpacaProvider) GetPriceBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.PriceBar, error) {
	tf, err := alpacaTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw []marketdata.Bar
	err = util.Retry(ctx, 3, time.Second, func() error {
		var fetchErr error
		raw, fetchErr = p.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     start,
			End:       end,
			Feed:      "iex",
		})
		if fetchErr != nil {
			p.log.Warn("GetBars failed", "symbol", symbol, "timeframe", timeframe, "error", fetchErr)
		}
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s bars: %w", symbol, timeframe, err)
	}

	bars := make([]domain.PriceBar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, domain.PriceBar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return bars, nil
}

// alpacaTimeFrame maps our timeframe strings onto the Alpaca SDK's bar
// durations.
func alpacaTimeFrame(timeframe string) (marketdata.TimeFrame, error) {
	switch strings.ToLower(timeframe) {
	case "1m":
		return marketdata.OneMin, nil
	case "5m":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15m":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "30m":
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case "1h":
		return marketdata.OneHour, nil
	case "4h":
		return marketdata.NewTimeFrame(4, marketdata.Hour), nil
	case "1d":
		return marketdata.OneDay, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
}
