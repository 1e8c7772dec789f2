// Package httpapi exposes the backtest platform as a JSON REST API.
package httpapi

import (
	"fmt"
	"time"

	"quantlab/internal/domain"
)

// SubmitRequest is the wire form of a backtest submission. Dates accept
// either plain dates ("2006-01-02") or RFC 3339 timestamps.
type SubmitRequest struct {
	Name           string  `json:"name"`
	StrategyID     string  `json:"strategyId"`
	Symbol         string  `json:"symbol"`
	Timeframe      string  `json:"timeframe"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	InitialCapital float64 `json:"initialCapital"`
	CommissionRate float64 `json:"commissionRate"`
	SlippageRate   float64 `json:"slippageRate"`
}

// ToDomain converts the wire request into the service submission contract.
func (r SubmitRequest) ToDomain() (domain.BacktestRequest, error) {
	start, err := parseDate(r.StartDate)
	if err != nil {
		return domain.BacktestRequest{}, fmt.Errorf("startDate: %w", err)
	}
	end, err := parseDate(r.EndDate)
	if err != nil {
		return domain.BacktestRequest{}, fmt.Errorf("endDate: %w", err)
	}
	return domain.BacktestRequest{
		Name:           r.Name,
		StrategyID:     r.StrategyID,
		Symbol:         r.Symbol,
		Timeframe:      r.Timeframe,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: r.InitialCapital,
		CommissionRate: r.CommissionRate,
		SlippageRate:   r.SlippageRate,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t.UTC(), nil
}

// SubmitResponse carries the ID of a newly created run.
type SubmitResponse struct {
	ID     string           `json:"id"`
	Status domain.RunStatus `json:"status"`
}

// CreateStrategyRequest is the wire form of a strategy document.
type CreateStrategyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Config      string `json:"config"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status string `json:"status"`
}
