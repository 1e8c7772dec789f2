// Package store defines storage interfaces for persisting and retrieving
// domain objects such as backtest runs, simulated trades, strategies, and
// price bars, plus the SQLite, Postgres, and Parquet implementations.
package store

import (
	"context"
	"errors"
	"time"

	"quantlab/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RunStore persists and retrieves backtest run records.
type RunStore interface {
	// SaveRun inserts a new run.
	SaveRun(ctx context.Context, run *domain.BacktestRun) error

	// GetRun retrieves a single run by ID, including curves, metrics, and
	// trades. Returns ErrNotFound when absent.
	GetRun(ctx context.Context, id string) (*domain.BacktestRun, error)

	// ListRuns returns runs matching the filter, newest first. Curves and
	// trades are not hydrated.
	ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.BacktestRun, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *domain.BacktestRun) error

	// DeleteRun removes a run and its trades. Returns ErrNotFound when absent.
	DeleteRun(ctx context.Context, id string) error

	// SaveTrades replaces the stored trades for a run.
	SaveTrades(ctx context.Context, runID string, trades []domain.SimulatedTrade) error

	// ListTrades returns the trades of a run in sequence order.
	ListTrades(ctx context.Context, runID string) ([]domain.SimulatedTrade, error)
}

// StrategyStore persists and retrieves strategy documents.
type StrategyStore interface {
	// SaveStrategy inserts a new strategy.
	SaveStrategy(ctx context.Context, s *domain.Strategy) error

	// GetStrategy retrieves a strategy by ID. Returns ErrNotFound when absent.
	GetStrategy(ctx context.Context, id string) (*domain.Strategy, error)

	// ListStrategies returns all strategies, newest first.
	ListStrategies(ctx context.Context) ([]domain.Strategy, error)

	// DeleteStrategy removes a strategy. Returns ErrNotFound when absent.
	DeleteStrategy(ctx context.Context, id string) error
}

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for a symbol and timeframe, merging
	// with any bars already stored for the same period.
	WriteBars(ctx context.Context, symbol, timeframe string, bars []domain.PriceBar) error

	// ReadBars returns bars for the symbol and timeframe within [start, end],
	// in timestamp order.
	ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.PriceBar, error)

	// ListSymbols returns all distinct symbols stored for the timeframe.
	ListSymbols(ctx context.Context, timeframe string) ([]string, error)
}
