package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/rules"
)

func fptr(v float64) *float64 { return &v }

func dailyBars(closes []float64) []domain.PriceBar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// enterExitConfig always enters once warm and exits when price crosses the
// given threshold. A 5-period indicator keeps the warm-up short.
func enterExitConfig(exitAbove float64) *rules.StrategyConfig {
	cfg := rules.Default()
	cfg.Indicators = []rules.IndicatorSpec{{Kind: "RSI", Period: 5}}
	cfg.Entry = rules.And{rules.Comparison{Indicator: "PRICE", Op: ">", Value: fptr(0)}}
	cfg.Exit = rules.Or{rules.Comparison{Indicator: "PRICE", Op: ">", Value: fptr(exitAbove)}}
	return cfg
}

func TestSimulateEntryMath(t *testing.T) {
	// Six flat bars at 100: warm-up is 5, so the position opens on bar index 5.
	closes := []float64{100, 100, 100, 100, 100, 100}
	res, err := Simulate(context.Background(), Simulation{
		Bars:           dailyBars(closes),
		Config:         enterExitConfig(1e9),
		Timeframe:      "1d",
		InitialCapital: 10000,
		CommissionRate: 0.001,
		SlippageRate:   0,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	trade := res.Trades[0]

	if trade.Closed() {
		t.Error("trade should still be open")
	}
	if !near(trade.EntryPrice, 100) {
		t.Errorf("entry price = %v, want 100", trade.EntryPrice)
	}
	if !near(trade.Quantity, 25) {
		t.Errorf("quantity = %v, want 25 (2500 notional / 100)", trade.Quantity)
	}
	if !near(trade.CommissionPaid, 2.5) {
		t.Errorf("entry commission = %v, want 2.5", trade.CommissionPaid)
	}
	if trade.PositionSizePct != 25 {
		t.Errorf("position size pct = %v, want default 25", trade.PositionSizePct)
	}

	// Capital drops only by the commission; the open position is carried as
	// unrealized.
	if !near(res.FinalCapital, 9997.5) {
		t.Errorf("final capital = %v, want 9997.5", res.FinalCapital)
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if !near(last.Value, 9997.5) {
		t.Errorf("equity at entry bar = %v, want 9997.5", last.Value)
	}
}

func TestSimulateExitMath(t *testing.T) {
	// Entry at 100 on bar 5, exit at 110 on bar 6.
	closes := []float64{100, 100, 100, 100, 100, 100, 110}
	res, err := Simulate(context.Background(), Simulation{
		Bars:           dailyBars(closes),
		Config:         enterExitConfig(105),
		Timeframe:      "1d",
		InitialCapital: 10000,
		CommissionRate: 0.001,
		SlippageRate:   0,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	trade := res.Trades[0]
	if !trade.Closed() {
		t.Fatal("trade should be closed")
	}

	if !near(*trade.ExitPrice, 110) {
		t.Errorf("exit price = %v, want 110", *trade.ExitPrice)
	}
	if !near(*trade.GrossPnl, 250) {
		t.Errorf("gross pnl = %v, want 250", *trade.GrossPnl)
	}
	if !near(trade.CommissionPaid, 2.75) {
		t.Errorf("exit commission = %v, want 2.75", trade.CommissionPaid)
	}
	if !near(*trade.NetPnl, 247.25) {
		t.Errorf("net pnl = %v, want 247.25", *trade.NetPnl)
	}
	if !near(*trade.ReturnPct, 0.0989) {
		t.Errorf("return pct = %v, want 0.0989", *trade.ReturnPct)
	}
	if *trade.DurationMinutes != 1440 {
		t.Errorf("duration minutes = %v, want 1440 (one daily bar)", *trade.DurationMinutes)
	}

	if !near(res.FinalCapital, 10244.75) {
		t.Errorf("final capital = %v, want 10244.75", res.FinalCapital)
	}
	if !near(res.TotalReturn, 0.024475) {
		t.Errorf("total return = %v, want 0.024475", res.TotalReturn)
	}
}

func TestSimulateSlippage(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 100, 110}
	res, err := Simulate(context.Background(), Simulation{
		Bars:           dailyBars(closes),
		Config:         enterExitConfig(105),
		Timeframe:      "1d",
		InitialCapital: 10000,
		CommissionRate: 0,
		SlippageRate:   0.01,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	trade := res.Trades[0]
	if !near(trade.EntryPrice, 101) {
		t.Errorf("entry price = %v, want 101 (1%% adverse slippage on buy)", trade.EntryPrice)
	}
	if !near(*trade.ExitPrice, 108.9) {
		t.Errorf("exit price = %v, want 108.9 (1%% adverse slippage on sell)", *trade.ExitPrice)
	}
}

func TestSimulateNoEntryBeforeWarmup(t *testing.T) {
	closes := []float64{100, 100, 100, 100}
	res, err := Simulate(context.Background(), Simulation{
		Bars:           dailyBars(closes),
		Config:         enterExitConfig(1e9),
		Timeframe:      "1d",
		InitialCapital: 10000,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("trades = %d, want 0 before warm-up", len(res.Trades))
	}
	if !near(res.FinalCapital, 10000) {
		t.Errorf("final capital = %v, want untouched 10000", res.FinalCapital)
	}
}

func TestSimulateEmptyEntryTreeNeverTrades(t *testing.T) {
	cfg := rules.Default()
	cfg.Indicators = []rules.IndicatorSpec{{Kind: "RSI", Period: 5}}

	res, err := Simulate(context.Background(), Simulation{
		Bars:           dailyBars(monotoneCloses(30)),
		Config:         cfg,
		Timeframe:      "1d",
		InitialCapital: 10000,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("trades = %d, want 0 with an empty entry tree", len(res.Trades))
	}
}

func TestSimulateCurveSampling(t *testing.T) {
	closes := monotoneCloses(120)

	cases := []struct {
		timeframe  string
		wantPoints int
	}{
		{"1m", 2},   // every 60th bar
		{"5m", 10},  // every 12th bar
		{"15m", 30}, // every 4th bar
		{"1h", 120}, // every bar
		{"1d", 120},
		{"2h", 12}, // unknown timeframe, every 10th bar
	}

	for _, tc := range cases {
		t.Run(tc.timeframe, func(t *testing.T) {
			res, err := Simulate(context.Background(), Simulation{
				Bars:           dailyBars(closes),
				Config:         rules.Default(),
				Timeframe:      tc.timeframe,
				InitialCapital: 10000,
			})
			if err != nil {
				t.Fatalf("Simulate: %v", err)
			}
			if got := len(res.EquityCurve); got != tc.wantPoints {
				t.Errorf("equity points = %d, want %d", got, tc.wantPoints)
			}
			if got := len(res.DrawdownCurve); got != tc.wantPoints {
				t.Errorf("drawdown points = %d, want %d", got, tc.wantPoints)
			}
		})
	}
}

func TestSimulateProgressCheckpoints(t *testing.T) {
	var pcts []int
	_, err := Simulate(context.Background(), Simulation{
		Bars:           dailyBars(monotoneCloses(200)),
		Config:         rules.Default(),
		Timeframe:      "1d",
		InitialCapital: 10000,
		Checkpoint: func(pct int, _, _ []domain.CurvePoint) {
			pcts = append(pcts, pct)
		},
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if len(pcts) != 100 {
		t.Fatalf("checkpoints = %d, want 100 (every integer percent once)", len(pcts))
	}
	for i, pct := range pcts {
		if pct != i {
			t.Fatalf("checkpoint %d reported %d%%, want strictly increasing by 1", i, pct)
		}
	}
}

func TestSimulateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	bars := dailyBars(monotoneCloses(500))
	stopAt := 50
	res, err := Simulate(ctx, Simulation{
		Bars:           bars,
		Config:         rules.Default(),
		Timeframe:      "1d",
		InitialCapital: 10000,
		Checkpoint: func(pct int, _, _ []domain.CurvePoint) {
			if pct >= stopAt {
				cancel()
			}
		},
	})
	if err == nil {
		t.Fatal("Simulate should report the cancellation")
	}
	if res == nil {
		t.Fatal("cancelled Simulate should still return the partial result")
	}

	got := len(res.EquityCurve)
	if got == 0 || got >= len(bars) {
		t.Errorf("partial equity points = %d, want some but not all of %d", got, len(bars))
	}
}

func monotoneCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}
