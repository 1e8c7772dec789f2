// Package quantlab provides a Go SDK for the quantlab-server REST API.
package quantlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quantlab/internal/domain"
)

// Client talks to a quantlab-server instance. All requests carry the
// configured role in the X-User-Role header.
type Client struct {
	baseURL    string
	role       string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRole sets the role sent with every request. Defaults to "researcher".
func WithRole(role string) Option {
	return func(c *Client) { c.role = role }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		role:       "researcher",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// ---------------------------------------------------------------------------
// Backtests
// ---------------------------------------------------------------------------

// SubmitBacktestRequest mirrors the server's submission contract. Dates use
// the YYYY-MM-DD form.
type SubmitBacktestRequest struct {
	Name           string  `json:"name,omitempty"`
	StrategyID     string  `json:"strategyId"`
	Symbol         string  `json:"symbol"`
	Timeframe      string  `json:"timeframe"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	InitialCapital float64 `json:"initialCapital"`
	CommissionRate float64 `json:"commissionRate"`
	SlippageRate   float64 `json:"slippageRate"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// SubmitBacktest submits a run and returns its ID.
func (c *Client) SubmitBacktest(ctx context.Context, req SubmitBacktestRequest) (string, error) {
	var resp submitResponse
	if err := c.call(ctx, http.MethodPost, "/api/backtests", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetBacktest fetches a run with its curves, trades, and metrics.
func (c *Client) GetBacktest(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	if err := c.call(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListBacktests lists runs, optionally filtered by strategy ID and status.
func (c *Client) ListBacktests(ctx context.Context, strategyID, status string) ([]domain.BacktestRun, error) {
	q := url.Values{}
	if strategyID != "" {
		q.Set("strategy_id", strategyID)
	}
	if status != "" {
		q.Set("status", status)
	}
	path := "/api/backtests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var runs []domain.BacktestRun
	if err := c.call(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// CancelBacktest requests early termination of a running backtest.
func (c *Client) CancelBacktest(ctx context.Context, runID string) error {
	return c.call(ctx, http.MethodPost, "/api/backtests/"+url.PathEscape(runID)+"/cancel", nil, nil)
}

// DeleteBacktest removes a run record.
func (c *Client) DeleteBacktest(ctx context.Context, runID string) error {
	return c.call(ctx, http.MethodDelete, "/api/backtests/"+url.PathEscape(runID), nil, nil)
}

// WaitBacktest polls until the run reaches a terminal state or the context
// expires.
func (c *Client) WaitBacktest(ctx context.Context, runID string, pollInterval time.Duration) (*domain.BacktestRun, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	for {
		run, err := c.GetBacktest(ctx, runID)
		if err != nil {
			return nil, err
		}
		switch run.Status {
		case domain.RunCompleted, domain.RunFailed, domain.RunCancelled:
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

// CreateStrategyRequest is the wire form of a strategy document.
type CreateStrategyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Config      string `json:"config"`
}

// CreateStrategy stores a new strategy and returns the created record.
func (c *Client) CreateStrategy(ctx context.Context, req CreateStrategyRequest) (*domain.Strategy, error) {
	var strat domain.Strategy
	if err := c.call(ctx, http.MethodPost, "/api/strategies", req, &strat); err != nil {
		return nil, err
	}
	return &strat, nil
}

// GetStrategy fetches a strategy by ID.
func (c *Client) GetStrategy(ctx context.Context, id string) (*domain.Strategy, error) {
	var strat domain.Strategy
	if err := c.call(ctx, http.MethodGet, "/api/strategies/"+url.PathEscape(id), nil, &strat); err != nil {
		return nil, err
	}
	return &strat, nil
}

// ListStrategies returns all stored strategies.
func (c *Client) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	var strategies []domain.Strategy
	if err := c.call(ctx, http.MethodGet, "/api/strategies", nil, &strategies); err != nil {
		return nil, err
	}
	return strategies, nil
}

// DeleteStrategy removes a strategy document.
func (c *Client) DeleteStrategy(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/strategies/"+url.PathEscape(id), nil, nil)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// call performs one request. A nil out discards the response body.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-Role", c.role)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func errorMessage(body io.Reader) string {
	var wire struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&wire); err != nil || wire.Error == "" {
		return "unknown error"
	}
	return wire.Error
}
