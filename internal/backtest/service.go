// Package backtest contains the simulation core: the bar-replay simulator,
// the metrics calculator, and the run orchestrator that drives a backtest
// from submission through completion.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quantlab/internal/domain"
	"quantlab/internal/rules"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

// MarketDataProvider supplies price bars for a symbol and timeframe over an
// inclusive date range.
type MarketDataProvider interface {
	GetPriceBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.PriceBar, error)
}

// ConfigProvider resolves a strategy ID to its raw configuration text.
type ConfigProvider interface {
	GetStrategyConfig(ctx context.Context, strategyID string) (string, error)
}

// PermissionChecker decides whether a role may run backtests.
type PermissionChecker interface {
	CanRunBacktest(role domain.Role) bool
}

// Service orchestrates backtest runs: it validates submissions, persists
// lifecycle state, executes each run in its own goroutine, and supports
// cancellation through a per-run task registry.
type Service struct {
	runs       store.RunStore
	strategies store.StrategyStore
	configs    ConfigProvider
	market     MarketDataProvider
	perms      PermissionChecker
	logger     *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

// task tracks one executing run. cancel aborts the simulation loop; done is
// closed when the goroutine has finished persisting the terminal state.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a Service wired with the given collaborators.
func NewService(
	runs store.RunStore,
	strategies store.StrategyStore,
	configs ConfigProvider,
	market MarketDataProvider,
	perms PermissionChecker,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runs:       runs,
		strategies: strategies,
		configs:    configs,
		market:     market,
		perms:      perms,
		logger:     logger,
		tasks:      make(map[string]*task),
	}
}

// Submit validates the request, persists a PENDING run, and launches its
// execution. Validation failures persist nothing. The returned ID can be
// polled with Get while the run executes.
func (s *Service) Submit(ctx context.Context, req domain.BacktestRequest, role domain.Role) (string, error) {
	if !s.perms.CanRunBacktest(role) {
		return "", ErrPermissionDenied
	}
	if err := validateRequest(&req); err != nil {
		return "", err
	}
	if _, err := s.configs.GetStrategyConfig(ctx, req.StrategyID); err != nil {
		return "", &ValidationError{Field: "strategyId", Reason: "strategy not found"}
	}

	run := &domain.BacktestRun{
		ID:             uuid.NewString(),
		Name:           req.Name,
		StrategyID:     req.StrategyID,
		Symbol:         strings.ToUpper(req.Symbol),
		Timeframe:      req.Timeframe,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		InitialCapital: req.InitialCapital,
		CommissionRate: req.CommissionRate,
		SlippageRate:   req.SlippageRate,
		Status:         domain.RunPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("saving run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.tasks[run.ID] = t
	s.mu.Unlock()

	go s.execute(runCtx, run, t)

	return run.ID, nil
}

// Get retrieves a run with its curves, metrics, and trades.
func (s *Service) Get(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	return s.runs.GetRun(ctx, runID)
}

// List returns runs matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter domain.RunFilter) ([]domain.BacktestRun, error) {
	return s.runs.ListRuns(ctx, filter)
}

// Delete removes a run record, cancelling it first if still executing.
func (s *Service) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	t, active := s.tasks[runID]
	s.mu.Unlock()
	if active {
		t.cancel()
		<-t.done
	}
	return s.runs.DeleteRun(ctx, runID)
}

// Cancel requests early termination of an executing run. The run transitions
// to CANCELLED once the simulation loop observes the cancellation; partial
// equity and drawdown curves are retained.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	s.mu.Lock()
	t, active := s.tasks[runID]
	s.mu.Unlock()
	if active {
		t.cancel()
		return nil
	}

	if _, err := s.runs.GetRun(ctx, runID); err != nil {
		return err
	}
	return ErrRunNotActive
}

// ---------------------------------------------------------------------------
// Strategy CRUD passthrough
// ---------------------------------------------------------------------------

// CreateStrategy stores a new strategy document.
func (s *Service) CreateStrategy(ctx context.Context, name, description, configText string) (*domain.Strategy, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	strat := &domain.Strategy{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		ConfigText:  configText,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.strategies.SaveStrategy(ctx, strat); err != nil {
		return nil, fmt.Errorf("saving strategy: %w", err)
	}
	return strat, nil
}

// GetStrategy retrieves a strategy by ID.
func (s *Service) GetStrategy(ctx context.Context, id string) (*domain.Strategy, error) {
	return s.strategies.GetStrategy(ctx, id)
}

// ListStrategies returns all stored strategies.
func (s *Service) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	return s.strategies.ListStrategies(ctx)
}

// DeleteStrategy removes a strategy document.
func (s *Service) DeleteStrategy(ctx context.Context, id string) error {
	return s.strategies.DeleteStrategy(ctx, id)
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// execute drives one run to a terminal state. It is the only writer of the
// run record while the run is active. Store operations use a background
// context so that cancelling the simulation does not also abort the final
// persistence.
func (s *Service) execute(ctx context.Context, run *domain.BacktestRun, t *task) {
	persistCtx := context.Background()
	logger := s.logger.With("run_id", run.ID, "symbol", run.Symbol)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("backtest panicked", "panic", r)
			s.failRun(persistCtx, run, fmt.Errorf("internal error: %v", r))
		}
		s.mu.Lock()
		delete(s.tasks, run.ID)
		s.mu.Unlock()
		close(t.done)
	}()

	logger.Info("starting backtest")

	run.Status = domain.RunRunning
	run.ProgressPct = 0
	if err := s.runs.UpdateRun(persistCtx, run); err != nil {
		logger.Error("persisting running state", "error", err)
	}

	configText, err := s.configs.GetStrategyConfig(ctx, run.StrategyID)
	if err != nil {
		s.failRun(persistCtx, run, fmt.Errorf("loading strategy config: %w", err))
		return
	}
	cfg := rules.Parse(configText)

	bars, err := s.market.GetPriceBars(ctx, run.Symbol, run.Timeframe,
		util.StartOfDay(run.StartDate), util.EndOfDay(run.EndDate))
	if err != nil {
		s.failRun(persistCtx, run, fmt.Errorf("loading market data: %w", err))
		return
	}
	if len(bars) == 0 {
		s.failRun(persistCtx, run, &DataUnavailableError{
			Symbol:    run.Symbol,
			Timeframe: run.Timeframe,
			Start:     run.StartDate,
			End:       run.EndDate,
		})
		return
	}

	result, simErr := Simulate(ctx, Simulation{
		Bars:           bars,
		Config:         cfg,
		Timeframe:      run.Timeframe,
		InitialCapital: run.InitialCapital,
		CommissionRate: run.CommissionRate,
		SlippageRate:   run.SlippageRate,
		Checkpoint: func(pct int, equity, drawdown []domain.CurvePoint) {
			run.ProgressPct = pct
			run.EquityCurve = slices.Clone(equity)
			run.DrawdownCurve = slices.Clone(drawdown)
			if err := s.runs.UpdateRun(persistCtx, run); err != nil {
				logger.Warn("persisting progress checkpoint", "error", err, "progress", pct)
			}
		},
	})

	if simErr != nil {
		run.Status = domain.RunCancelled
		run.EquityCurve = result.EquityCurve
		run.DrawdownCurve = result.DrawdownCurve
		now := time.Now().UTC()
		run.CompletedAt = &now
		if err := s.runs.UpdateRun(persistCtx, run); err != nil {
			logger.Error("persisting cancelled state", "error", err)
		}
		if err := s.runs.SaveTrades(persistCtx, run.ID, result.Trades); err != nil {
			logger.Error("persisting trades after cancel", "error", err)
		}
		logger.Info("backtest cancelled", "progress", run.ProgressPct, "trades", len(result.Trades))
		return
	}

	run.Status = domain.RunCompleted
	run.ProgressPct = 100
	run.FinalCapital = &result.FinalCapital
	run.TotalReturn = &result.TotalReturn
	run.EquityCurve = result.EquityCurve
	run.DrawdownCurve = result.DrawdownCurve
	run.Metrics = ComputeMetrics(result.Trades, result.EquityCurve,
		run.InitialCapital, result.FinalCapital, run.StartDate, run.EndDate)
	now := time.Now().UTC()
	run.CompletedAt = &now

	if err := s.runs.UpdateRun(persistCtx, run); err != nil {
		logger.Error("persisting completed state", "error", err)
		return
	}
	if err := s.runs.SaveTrades(persistCtx, run.ID, result.Trades); err != nil {
		logger.Error("persisting trades", "error", err)
	}

	logger.Info("backtest completed",
		"trades", len(result.Trades),
		"final_capital", result.FinalCapital,
		"total_return", result.TotalReturn)
}

// failRun marks the run FAILED with the error message. Accumulated curves are
// discarded; a failed run exposes no partial results.
func (s *Service) failRun(ctx context.Context, run *domain.BacktestRun, cause error) {
	run.Status = domain.RunFailed
	run.ErrorMessage = cause.Error()
	run.EquityCurve = nil
	run.DrawdownCurve = nil
	run.Metrics = nil
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		s.logger.Error("persisting failed state", "run_id", run.ID, "error", err)
	}
	s.logger.Warn("backtest failed", "run_id", run.ID, "error", cause)
}

// waitRun blocks until the run's goroutine has finished. No-op when the run
// is not active.
func (s *Service) waitRun(runID string) {
	s.mu.Lock()
	t, ok := s.tasks[runID]
	s.mu.Unlock()
	if ok {
		<-t.done
	}
}

func validateRequest(req *domain.BacktestRequest) error {
	if req.StrategyID == "" {
		return &ValidationError{Field: "strategyId", Reason: "must not be empty"}
	}
	if req.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if !slices.Contains(domain.SupportedTimeframes, strings.ToLower(req.Timeframe)) {
		return &ValidationError{Field: "timeframe", Reason: "unsupported timeframe"}
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return &ValidationError{Field: "startDate", Reason: "start and end dates are required"}
	}
	if req.EndDate.Before(req.StartDate) {
		return &ValidationError{Field: "endDate", Reason: "end date precedes start date"}
	}
	if req.InitialCapital <= 0 {
		return &ValidationError{Field: "initialCapital", Reason: "must be positive"}
	}
	if req.CommissionRate < 0 {
		return &ValidationError{Field: "commissionRate", Reason: "must not be negative"}
	}
	if req.SlippageRate < 0 {
		return &ValidationError{Field: "slippageRate", Reason: "must not be negative"}
	}
	return nil
}
