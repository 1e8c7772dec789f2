package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quantlab/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "quantlab.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fptr(v float64) *float64 { return &v }

func sampleRun(id string) *domain.BacktestRun {
	return &domain.BacktestRun{
		ID:             id,
		Name:           "rsi sweep",
		StrategyID:     "strat-1",
		Symbol:         "AAPL",
		Timeframe:      "1d",
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
		Status:         domain.RunPending,
		CreatedAt:      time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteRunRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Symbol != "AAPL" || got.Status != domain.RunPending {
		t.Errorf("got %s/%s, want AAPL/PENDING", got.Symbol, got.Status)
	}
	if !got.StartDate.Equal(run.StartDate) {
		t.Errorf("start date = %v, want %v", got.StartDate, run.StartDate)
	}
	if got.FinalCapital != nil || got.Metrics != nil {
		t.Error("pending run should have no results")
	}

	// Complete the run with curves and metrics.
	pf := 2.5
	completed := time.Date(2024, 3, 2, 12, 5, 0, 0, time.UTC)
	run.Status = domain.RunCompleted
	run.ProgressPct = 100
	run.FinalCapital = fptr(10244.75)
	run.TotalReturn = fptr(0.024475)
	run.Metrics = &domain.Metrics{TotalTrades: 3, WinningTrades: 2, LosingTrades: 1, WinRate: 2.0 / 3.0, ProfitFactor: &pf, MaxDrawdown: 0.25}
	run.EquityCurve = []domain.CurvePoint{
		{Timestamp: run.StartDate, Value: 10000},
		{Timestamp: run.EndDate, Value: 10244.75},
	}
	run.DrawdownCurve = []domain.CurvePoint{
		{Timestamp: run.StartDate, Value: 0},
		{Timestamp: run.EndDate, Value: 0.02},
	}
	run.CompletedAt = &completed
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err = s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun after update: %v", err)
	}
	if got.Status != domain.RunCompleted || got.ProgressPct != 100 {
		t.Errorf("status/progress = %s/%d, want COMPLETED/100", got.Status, got.ProgressPct)
	}
	if got.FinalCapital == nil || *got.FinalCapital != 10244.75 {
		t.Errorf("final capital = %v, want 10244.75", got.FinalCapital)
	}
	if got.Metrics == nil || got.Metrics.TotalTrades != 3 {
		t.Errorf("metrics = %+v, want 3 total trades", got.Metrics)
	}
	if got.Metrics.ProfitFactor == nil || *got.Metrics.ProfitFactor != 2.5 {
		t.Errorf("profit factor = %v, want 2.5", got.Metrics.ProfitFactor)
	}
	if len(got.EquityCurve) != 2 || got.EquityCurve[1].Value != 10244.75 {
		t.Errorf("equity curve = %+v, want 2 points ending at 10244.75", got.EquityCurve)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("completedAt = %v, want %v", got.CompletedAt, completed)
	}
}

func TestSQLiteRunNotFound(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateRun(ctx, sampleRun("missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRun err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteRun err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteListRunsFilter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a := sampleRun("run-a")
	b := sampleRun("run-b")
	b.StrategyID = "strat-2"
	b.Status = domain.RunCompleted
	for _, run := range []*domain.BacktestRun{a, b} {
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun(%s): %v", run.ID, err)
		}
	}

	all, err := s.ListRuns(ctx, domain.RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all runs = %d, want 2", len(all))
	}

	byStrategy, _ := s.ListRuns(ctx, domain.RunFilter{StrategyID: "strat-2"})
	if len(byStrategy) != 1 || byStrategy[0].ID != "run-b" {
		t.Errorf("byStrategy = %+v, want only run-b", byStrategy)
	}

	byStatus, _ := s.ListRuns(ctx, domain.RunFilter{Status: domain.RunCompleted})
	if len(byStatus) != 1 || byStatus[0].ID != "run-b" {
		t.Errorf("byStatus = %+v, want only run-b", byStatus)
	}
}

func TestSQLiteTradesRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	entry := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	exit := entry.AddDate(0, 0, 1)
	dur := 1440
	trades := []domain.SimulatedTrade{
		{
			SequenceNumber:  1,
			EntryTime:       entry,
			EntryPrice:      100,
			Quantity:        25,
			PositionSizePct: 25,
			EntryReason:     "Entry: RSI=28.50 SMA50=101.20",
			EntryIndicators: `{"RSI":28.5}`,
			ExitTime:        &exit,
			ExitPrice:       fptr(110),
			ExitReason:      "Exit: RSI=71.00 ",
			ExitIndicators:  `{"RSI":71}`,
			CommissionPaid:  2.75,
			GrossPnl:        fptr(250),
			NetPnl:          fptr(247.25),
			ReturnPct:       fptr(0.0989),
			DurationMinutes: &dur,
		},
		{
			SequenceNumber:  2,
			EntryTime:       exit.AddDate(0, 0, 5),
			EntryPrice:      112,
			Quantity:        20,
			PositionSizePct: 25,
			CommissionPaid:  2.24,
		},
	}
	if err := s.SaveTrades(ctx, "run-1", trades); err != nil {
		t.Fatalf("SaveTrades: %v", err)
	}

	got, err := s.ListTrades(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("trades = %d, want 2", len(got))
	}

	closed := got[0]
	if !closed.Closed() || *closed.NetPnl != 247.25 || *closed.DurationMinutes != 1440 {
		t.Errorf("closed trade = %+v, want net 247.25 over 1440 minutes", closed)
	}
	open := got[1]
	if open.Closed() || open.ExitPrice != nil || open.NetPnl != nil {
		t.Errorf("open trade = %+v, want nil exit fields", open)
	}

	// SaveTrades replaces.
	if err := s.SaveTrades(ctx, "run-1", trades[:1]); err != nil {
		t.Fatalf("SaveTrades replace: %v", err)
	}
	got, _ = s.ListTrades(ctx, "run-1")
	if len(got) != 1 {
		t.Errorf("trades after replace = %d, want 1", len(got))
	}
}

func TestSQLiteStrategyRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	strat := &domain.Strategy{
		ID:          "strat-1",
		Name:        "mean reversion",
		Description: "RSI oversold entries",
		ConfigText:  `{"entry":{"rules":[]}}`,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.SaveStrategy(ctx, strat); err != nil {
		t.Fatalf("SaveStrategy: %v", err)
	}

	got, err := s.GetStrategy(ctx, "strat-1")
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if got.Name != strat.Name || got.ConfigText != strat.ConfigText {
		t.Errorf("got %+v, want %+v", got, strat)
	}

	list, err := s.ListStrategies(ctx)
	if err != nil {
		t.Fatalf("ListStrategies: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("strategies = %d, want 1", len(list))
	}

	if err := s.DeleteStrategy(ctx, "strat-1"); err != nil {
		t.Fatalf("DeleteStrategy: %v", err)
	}
	if _, err := s.GetStrategy(ctx, "strat-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStrategy after delete = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// ParquetStore
// ---------------------------------------------------------------------------

func parquetBars(start time.Time, closes ...float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")
	got := ps.barPath("aapl", "1D", 2024)
	want := filepath.Join("/data", "bars", "1d", "AAPL", "2024.parquet")
	if got != want {
		t.Errorf("barPath = %s, want %s", got, want)
	}
}

func TestParquetStoreRoundTrip(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := parquetBars(start, 100, 101, 102, 103)
	if err := ps.WriteBars(ctx, "AAPL", "1d", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "aapl", "1d", start, start.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("bars = %d, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatal("bars not in timestamp order")
		}
	}
	if got[0].Close != 100 || got[3].Close != 103 {
		t.Errorf("closes = %v..%v, want 100..103", got[0].Close, got[3].Close)
	}

	// Range filter excludes bars outside [start, end].
	got, _ = ps.ReadBars(ctx, "AAPL", "1d", start.AddDate(0, 0, 1), start.AddDate(0, 0, 2))
	if len(got) != 2 {
		t.Errorf("filtered bars = %d, want 2", len(got))
	}
}

func TestParquetStoreMergeDedupe(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := ps.WriteBars(ctx, "AAPL", "1d", parquetBars(start, 100, 101)); err != nil {
		t.Fatalf("first WriteBars: %v", err)
	}

	// Overlapping rewrite: second day corrected, third day new.
	rewrite := parquetBars(start.AddDate(0, 0, 1), 201, 202)
	if err := ps.WriteBars(ctx, "AAPL", "1d", rewrite); err != nil {
		t.Fatalf("second WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL", "1d", start, start.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("merged bars = %d, want 3 (deduped by timestamp)", len(got))
	}
	if got[1].Close != 201 {
		t.Errorf("overlapping bar close = %v, want incoming 201", got[1].Close)
	}
}

func TestParquetStoreYearSpan(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	// Bars straddling a year boundary land in two files but read as one range.
	start := time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)
	if err := ps.WriteBars(ctx, "AAPL", "1d", parquetBars(start, 100, 101, 102, 103)); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL", "1d", start, start.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("bars across years = %d, want 4", len(got))
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, sym := range []string{"MSFT", "AAPL"} {
		if err := ps.WriteBars(ctx, sym, "1d", parquetBars(start, 100)); err != nil {
			t.Fatalf("WriteBars(%s): %v", sym, err)
		}
	}

	symbols, err := ps.ListSymbols(ctx, "1d")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "MSFT" {
		t.Errorf("symbols = %v, want [AAPL MSFT] sorted", symbols)
	}

	none, err := ps.ListSymbols(ctx, "5m")
	if err != nil {
		t.Fatalf("ListSymbols empty: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("symbols for empty timeframe = %v, want none", none)
	}
}
