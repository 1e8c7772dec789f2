// Package domain defines the shared types of the quantlab platform: price
// bars, backtest runs, simulated trades, performance metrics, and the
// enumerations that tie them together.
package domain

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// PriceBar is a single OHLCV bar. Bar sequences handed to the simulator are
// strictly time-ordered with no duplicate timestamps.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SampleRate returns how many bars separate two sampled equity/drawdown
// points for the given timeframe. Long intraday backtests would otherwise
// produce curves with hundreds of thousands of points.
func SampleRate(timeframe string) int {
	switch strings.ToLower(timeframe) {
	case "1m":
		return 60
	case "5m":
		return 12
	case "15m":
		return 4
	case "30m":
		return 2
	case "1h", "4h", "1d":
		return 1
	default:
		return 10
	}
}

// SupportedTimeframes lists the timeframes the HTTP layer accepts.
var SupportedTimeframes = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}

// ---------------------------------------------------------------------------
// Users / permissions
// ---------------------------------------------------------------------------

// Role identifies the capability tier of the submitting user.
type Role string

const (
	RoleResearcher       Role = "researcher"
	RolePortfolioManager Role = "portfolio_manager"
	RoleAdmin            Role = "admin"
	RoleClient           Role = "client"
)

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

// Strategy is a stored strategy document. ConfigText holds the raw JSON rule
// configuration; parsing happens at backtest time.
type Strategy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ConfigText  string    `json:"configText"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ---------------------------------------------------------------------------
// Backtest runs
// ---------------------------------------------------------------------------

// RunStatus is the lifecycle state of a backtest run.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// BacktestRequest is the caller-facing submission contract.
type BacktestRequest struct {
	Name           string    `json:"name,omitempty"`
	StrategyID     string    `json:"strategyId"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	InitialCapital float64   `json:"initialCapital"`
	CommissionRate float64   `json:"commissionRate"`
	SlippageRate   float64   `json:"slippageRate"`
}

// CurvePoint is one sampled point of the equity or drawdown series.
type CurvePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SimulatedTrade is one round trip (or still-open position) produced by the
// simulator. It is created on entry, mutated once on exit, and immutable
// thereafter. At most one trade per run has ExitTime == nil.
type SimulatedTrade struct {
	SequenceNumber  int        `json:"sequenceNumber"`
	EntryTime       time.Time  `json:"entryTime"`
	EntryPrice      float64    `json:"entryPrice"`
	Quantity        float64    `json:"quantity"`
	PositionSizePct float64    `json:"positionSizePct"`
	EntryReason     string     `json:"entryReason,omitempty"`
	EntryIndicators string     `json:"entryIndicators,omitempty"`
	ExitTime        *time.Time `json:"exitTime,omitempty"`
	ExitPrice       *float64   `json:"exitPrice,omitempty"`
	ExitReason      string     `json:"exitReason,omitempty"`
	ExitIndicators  string     `json:"exitIndicators,omitempty"`
	CommissionPaid  float64    `json:"commissionPaid"`
	GrossPnl        *float64   `json:"grossPnl,omitempty"`
	NetPnl          *float64   `json:"netPnl,omitempty"`
	ReturnPct       *float64   `json:"returnPct,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
}

// Closed reports whether the trade has been exited.
func (t *SimulatedTrade) Closed() bool { return t.ExitTime != nil }

// Metrics holds the summary statistics computed from a finished run.
// Ratio-style fields are pointers: they are omitted when undefined (no
// losing trades, too few equity points, zero-length date range).
type Metrics struct {
	TotalTrades         int      `json:"totalTrades"`
	WinningTrades       int      `json:"winningTrades"`
	LosingTrades        int      `json:"losingTrades"`
	WinRate             float64  `json:"winRate"`
	ProfitFactor        *float64 `json:"profitFactor,omitempty"`
	AvgTradeDuration    int      `json:"avgTradeDuration"`
	Volatility          *float64 `json:"volatility,omitempty"`
	SharpeRatio         *float64 `json:"sharpeRatio,omitempty"`
	SortinoRatio        *float64 `json:"sortinoRatio,omitempty"`
	MaxDrawdown         float64  `json:"maxDrawdown"`
	MaxDrawdownDuration int      `json:"maxDrawdownDuration"`
	CAGR                *float64 `json:"cagr,omitempty"`
}

// BacktestRun is the durable record of one backtest, including lifecycle
// state, progress, and (once finished) results.
type BacktestRun struct {
	ID             string       `json:"id"`
	Name           string       `json:"name,omitempty"`
	StrategyID     string       `json:"strategyId"`
	Symbol         string       `json:"symbol"`
	Timeframe      string       `json:"timeframe"`
	StartDate      time.Time    `json:"startDate"`
	EndDate        time.Time    `json:"endDate"`
	InitialCapital float64      `json:"initialCapital"`
	CommissionRate float64      `json:"commissionRate"`
	SlippageRate   float64      `json:"slippageRate"`
	Status         RunStatus    `json:"status"`
	ProgressPct    int          `json:"progressPct"`
	FinalCapital   *float64     `json:"finalCapital,omitempty"`
	TotalReturn    *float64     `json:"totalReturn,omitempty"`
	Metrics        *Metrics     `json:"metrics,omitempty"`
	EquityCurve    []CurvePoint `json:"equityCurve,omitempty"`
	DrawdownCurve  []CurvePoint `json:"drawdownCurve,omitempty"`
	Trades         []SimulatedTrade `json:"trades,omitempty"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
}

// RunFilter narrows ListRuns results. Zero values match everything.
type RunFilter struct {
	StrategyID string
	Status     RunStatus
}
