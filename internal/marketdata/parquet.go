package marketdata

import (
	"context"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/store"
)

var _ Provider = (*ParquetProvider)(nil)

// ParquetProvider serves bars from the local Parquet archive written by the
// fetch tool.
type ParquetProvider struct {
	bars store.BarStore
}

// NewParquetProvider wraps the given bar store.
func NewParquetProvider(bars store.BarStore) *ParquetProvider {
	return &ParquetProvider{bars: bars}
}

// Name identifies the provider in logs.
func (p *ParquetProvider) Name() string { return "parquet" }

// GetPriceBars reads bars from the archive. A symbol or timeframe with no
// files on disk yields an empty slice, not an error.
func (p *ParquetProvider) GetPriceBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.PriceBar, error) {
	return p.bars.ReadBars(ctx, symbol, timeframe, start, end)
}
