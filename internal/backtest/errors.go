package backtest

import (
	"errors"
	"fmt"
	"time"
)

// ErrPermissionDenied is returned by Submit when the caller's role may not
// run backtests. Nothing is persisted.
var ErrPermissionDenied = errors.New("role is not permitted to run backtests")

// ErrRunNotFound is returned when a run ID does not resolve to a stored run.
var ErrRunNotFound = errors.New("backtest run not found")

// ErrRunNotActive is returned by Cancel when the run is not currently
// executing.
var ErrRunNotActive = errors.New("backtest run is not active")

// ValidationError rejects a submission before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DataUnavailableError marks a run as failed when no price bars exist for the
// requested range. It is fatal for the run; the caller sees it in the run's
// error message, never as partial results.
type DataUnavailableError struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("no market data available for %s %s between %s and %s",
		e.Symbol, e.Timeframe, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}
