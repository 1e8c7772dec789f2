package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quantlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RunStore = (*SQLiteStore)(nil)
var _ StrategyStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore and StrategyStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS backtest_runs (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	strategy_id      TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	start_date       TIMESTAMP NOT NULL,
	end_date         TIMESTAMP NOT NULL,
	initial_capital  REAL NOT NULL,
	commission_rate  REAL NOT NULL,
	slippage_rate    REAL NOT NULL,
	status           TEXT NOT NULL,
	progress_pct     INTEGER NOT NULL DEFAULT 0,
	final_capital    REAL,
	total_return     REAL,
	metrics_json     TEXT,
	equity_json      TEXT,
	drawdown_json    TEXT,
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL,
	completed_at     TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_strategy ON backtest_runs(strategy_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON backtest_runs(status);

CREATE TABLE IF NOT EXISTS backtest_trades (
	run_id           TEXT NOT NULL,
	sequence_number  INTEGER NOT NULL,
	entry_time       TIMESTAMP NOT NULL,
	entry_price      REAL NOT NULL,
	quantity         REAL NOT NULL,
	position_size_pct REAL NOT NULL,
	entry_reason     TEXT NOT NULL DEFAULT '',
	entry_indicators TEXT NOT NULL DEFAULT '',
	exit_time        TIMESTAMP,
	exit_price       REAL,
	exit_reason      TEXT NOT NULL DEFAULT '',
	exit_indicators  TEXT NOT NULL DEFAULT '',
	commission_paid  REAL NOT NULL,
	gross_pnl        REAL,
	net_pnl          REAL,
	return_pct       REAL,
	duration_minutes INTEGER,
	PRIMARY KEY (run_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS strategies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	config_json TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
`)
	return err
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a new run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.BacktestRun) error {
	metrics, err := marshalMetrics(run.Metrics)
	if err != nil {
		return err
	}
	equity, err := marshalCurve(run.EquityCurve)
	if err != nil {
		return err
	}
	drawdown, err := marshalCurve(run.DrawdownCurve)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO backtest_runs (
	id, name, strategy_id, symbol, timeframe, start_date, end_date,
	initial_capital, commission_rate, slippage_rate, status, progress_pct,
	final_capital, total_return, metrics_json, equity_json, drawdown_json,
	error_message, created_at, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.StrategyID, run.Symbol, run.Timeframe,
		run.StartDate.UTC(), run.EndDate.UTC(),
		run.InitialCapital, run.CommissionRate, run.SlippageRate,
		string(run.Status), run.ProgressPct,
		nullFloat(run.FinalCapital), nullFloat(run.TotalReturn),
		metrics, equity, drawdown,
		run.ErrorMessage, run.CreatedAt.UTC(), nullTime(run.CompletedAt))
	return err
}

// GetRun retrieves a run by ID with curves, metrics, and trades hydrated.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, strategy_id, symbol, timeframe, start_date, end_date,
	initial_capital, commission_rate, slippage_rate, status, progress_pct,
	final_capital, total_return, metrics_json, equity_json, drawdown_json,
	error_message, created_at, completed_at
FROM backtest_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	trades, err := s.ListTrades(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Trades = trades
	return run, nil
}

// ListRuns returns runs matching the filter, newest first. Curves and trades
// are not hydrated.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.BacktestRun, error) {
	query := `
SELECT id, name, strategy_id, symbol, timeframe, start_date, end_date,
	initial_capital, commission_rate, slippage_rate, status, progress_pct,
	final_capital, total_return, error_message, created_at, completed_at
FROM backtest_runs WHERE 1=1`
	var args []any
	if filter.StrategyID != "" {
		query += " AND strategy_id = ?"
		args = append(args, filter.StrategyID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.BacktestRun
	for rows.Next() {
		var run domain.BacktestRun
		var status string
		var finalCapital, totalReturn sql.NullFloat64
		var completedAt sql.NullTime
		if err := rows.Scan(
			&run.ID, &run.Name, &run.StrategyID, &run.Symbol, &run.Timeframe,
			&run.StartDate, &run.EndDate,
			&run.InitialCapital, &run.CommissionRate, &run.SlippageRate,
			&status, &run.ProgressPct,
			&finalCapital, &totalReturn,
			&run.ErrorMessage, &run.CreatedAt, &completedAt,
		); err != nil {
			return nil, err
		}
		run.Status = domain.RunStatus(status)
		run.FinalCapital = floatPtr(finalCapital)
		run.TotalReturn = floatPtr(totalReturn)
		run.CompletedAt = timePtr(completedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRun persists changes to an existing run.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.BacktestRun) error {
	metrics, err := marshalMetrics(run.Metrics)
	if err != nil {
		return err
	}
	equity, err := marshalCurve(run.EquityCurve)
	if err != nil {
		return err
	}
	drawdown, err := marshalCurve(run.DrawdownCurve)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE backtest_runs SET
	name = ?, status = ?, progress_pct = ?,
	final_capital = ?, total_return = ?,
	metrics_json = ?, equity_json = ?, drawdown_json = ?,
	error_message = ?, completed_at = ?
WHERE id = ?`,
		run.Name, string(run.Status), run.ProgressPct,
		nullFloat(run.FinalCapital), nullFloat(run.TotalReturn),
		metrics, equity, drawdown,
		run.ErrorMessage, nullTime(run.CompletedAt), run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRun removes a run and its trades.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backtest_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM backtest_trades WHERE run_id = ?`, id)
	return err
}

// SaveTrades replaces the stored trades for a run.
func (s *SQLiteStore) SaveTrades(ctx context.Context, runID string, trades []domain.SimulatedTrade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_trades WHERE run_id = ?`, runID); err != nil {
		return err
	}
	for _, t := range trades {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO backtest_trades (
	run_id, sequence_number, entry_time, entry_price, quantity,
	position_size_pct, entry_reason, entry_indicators,
	exit_time, exit_price, exit_reason, exit_indicators,
	commission_paid, gross_pnl, net_pnl, return_pct, duration_minutes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, t.SequenceNumber, t.EntryTime.UTC(), t.EntryPrice, t.Quantity,
			t.PositionSizePct, t.EntryReason, t.EntryIndicators,
			nullTime(t.ExitTime), nullFloat(t.ExitPrice), t.ExitReason, t.ExitIndicators,
			t.CommissionPaid, nullFloat(t.GrossPnl), nullFloat(t.NetPnl),
			nullFloat(t.ReturnPct), nullInt(t.DurationMinutes)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListTrades returns the trades of a run in sequence order.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]domain.SimulatedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sequence_number, entry_time, entry_price, quantity,
	position_size_pct, entry_reason, entry_indicators,
	exit_time, exit_price, exit_reason, exit_indicators,
	commission_paid, gross_pnl, net_pnl, return_pct, duration_minutes
FROM backtest_trades WHERE run_id = ? ORDER BY sequence_number`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.SimulatedTrade
	for rows.Next() {
		var t domain.SimulatedTrade
		var exitTime sql.NullTime
		var exitPrice, grossPnl, netPnl, returnPct sql.NullFloat64
		var duration sql.NullInt64
		if err := rows.Scan(
			&t.SequenceNumber, &t.EntryTime, &t.EntryPrice, &t.Quantity,
			&t.PositionSizePct, &t.EntryReason, &t.EntryIndicators,
			&exitTime, &exitPrice, &t.ExitReason, &t.ExitIndicators,
			&t.CommissionPaid, &grossPnl, &netPnl, &returnPct, &duration,
		); err != nil {
			return nil, err
		}
		t.ExitTime = timePtr(exitTime)
		t.ExitPrice = floatPtr(exitPrice)
		t.GrossPnl = floatPtr(grossPnl)
		t.NetPnl = floatPtr(netPnl)
		t.ReturnPct = floatPtr(returnPct)
		t.DurationMinutes = intPtr(duration)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// scanRun decodes a full run row, including the JSON curve and metrics
// columns.
func scanRun(row *sql.Row) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	var status string
	var finalCapital, totalReturn sql.NullFloat64
	var metrics, equity, drawdown sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.Name, &run.StrategyID, &run.Symbol, &run.Timeframe,
		&run.StartDate, &run.EndDate,
		&run.InitialCapital, &run.CommissionRate, &run.SlippageRate,
		&status, &run.ProgressPct,
		&finalCapital, &totalReturn,
		&metrics, &equity, &drawdown,
		&run.ErrorMessage, &run.CreatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.FinalCapital = floatPtr(finalCapital)
	run.TotalReturn = floatPtr(totalReturn)
	run.CompletedAt = timePtr(completedAt)

	if run.Metrics, err = unmarshalMetrics(metrics); err != nil {
		return nil, err
	}
	if run.EquityCurve, err = unmarshalCurve(equity); err != nil {
		return nil, err
	}
	if run.DrawdownCurve, err = unmarshalCurve(drawdown); err != nil {
		return nil, err
	}
	return &run, nil
}

// ---------------------------------------------------------------------------
// StrategyStore implementation
// ---------------------------------------------------------------------------

// SaveStrategy inserts a new strategy.
func (s *SQLiteStore) SaveStrategy(ctx context.Context, strat *domain.Strategy) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO strategies (id, name, description, config_json, created_at)
VALUES (?, ?, ?, ?, ?)`,
		strat.ID, strat.Name, strat.Description, strat.ConfigText, strat.CreatedAt.UTC())
	return err
}

// GetStrategy retrieves a strategy by ID.
func (s *SQLiteStore) GetStrategy(ctx context.Context, id string) (*domain.Strategy, error) {
	var strat domain.Strategy
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, description, config_json, created_at
FROM strategies WHERE id = ?`, id).Scan(
		&strat.ID, &strat.Name, &strat.Description, &strat.ConfigText, &strat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &strat, nil
}

// ListStrategies returns all strategies, newest first.
func (s *SQLiteStore) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, config_json, created_at
FROM strategies ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []domain.Strategy
	for rows.Next() {
		var strat domain.Strategy
		if err := rows.Scan(&strat.ID, &strat.Name, &strat.Description, &strat.ConfigText, &strat.CreatedAt); err != nil {
			return nil, err
		}
		strategies = append(strategies, strat)
	}
	return strategies, rows.Err()
}

// DeleteStrategy removes a strategy.
func (s *SQLiteStore) DeleteStrategy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
