package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/rules"
)

// Simulation is one configured replay of a bar sequence through a strategy.
// Bars must be strictly time-ordered.
type Simulation struct {
	Bars           []domain.PriceBar
	Config         *rules.StrategyConfig
	Timeframe      string
	InitialCapital float64
	CommissionRate float64
	SlippageRate   float64

	// Checkpoint, when non-nil, is invoked each time the integer progress
	// percentage changes. The curve slices passed are the live accumulators;
	// callers must copy if they retain them past the callback.
	Checkpoint func(progressPct int, equity, drawdown []domain.CurvePoint)
}

// SimulationResult carries everything a finished (or cancelled) replay
// produced.
type SimulationResult struct {
	FinalCapital  float64
	TotalReturn   float64
	Trades        []domain.SimulatedTrade
	EquityCurve   []domain.CurvePoint
	DrawdownCurve []domain.CurvePoint
}

// Simulate replays the bars through a FLAT/LONG state machine. At most one
// position is open at a time; entries are evaluated only while flat and only
// after the warm-up period, exits on every bar with an open position.
//
// Cancellation via ctx stops the loop early and returns the partial result
// alongside ctx.Err(); the caller decides what to do with the partial curves.
func Simulate(ctx context.Context, sim Simulation) (*SimulationResult, error) {
	cfg := sim.Config
	if cfg == nil {
		cfg = rules.Default()
	}

	capital := sim.InitialCapital
	var qty, entryPrice float64
	inPosition := false

	res := &SimulationResult{}
	eng := indicator.NewEngine()
	peak := capital
	warmup := cfg.MinimumBars()
	sampleRate := domain.SampleRate(sim.Timeframe)
	total := len(sim.Bars)
	lastProgress := -1

	for i, bar := range sim.Bars {
		if err := ctx.Err(); err != nil {
			res.FinalCapital = capital
			res.TotalReturn = totalReturn(sim.InitialCapital, capital)
			return res, err
		}

		progress := int(float64(i) / float64(total) * 100)
		if progress != lastProgress {
			lastProgress = progress
			if sim.Checkpoint != nil {
				sim.Checkpoint(progress, res.EquityCurve, res.DrawdownCurve)
			}
		}

		snap := eng.Update(bar)
		closePrice := bar.Close

		if !inPosition && i >= warmup && cfg.ShouldEnter(snap, closePrice) {
			notional := capital * cfg.PositionSizePct / 100
			execPrice := closePrice * (1 + sim.SlippageRate)
			qty = notional / execPrice
			entryPrice = execPrice
			commission := notional * sim.CommissionRate
			capital -= commission
			inPosition = true

			res.Trades = append(res.Trades, domain.SimulatedTrade{
				SequenceNumber:  len(res.Trades) + 1,
				EntryTime:       bar.Timestamp,
				EntryPrice:      execPrice,
				Quantity:        qty,
				PositionSizePct: cfg.PositionSizePct,
				EntryReason:     entryReason(snap),
				EntryIndicators: indicatorValuesJSON(snap),
				CommissionPaid:  commission,
			})
		} else if inPosition && cfg.ShouldExit(snap, closePrice, entryPrice) {
			trade := &res.Trades[len(res.Trades)-1]

			execPrice := closePrice * (1 - sim.SlippageRate)
			gross := qty * (execPrice - entryPrice)
			commission := qty * execPrice * sim.CommissionRate
			net := gross - commission

			exitTime := bar.Timestamp
			trade.ExitTime = &exitTime
			trade.ExitPrice = &execPrice
			trade.ExitReason = exitReason(snap)
			trade.ExitIndicators = indicatorValuesJSON(snap)
			trade.GrossPnl = &gross
			trade.NetPnl = &net
			trade.CommissionPaid = commission

			if cost := qty * entryPrice; cost > 0 {
				ret := net / cost
				trade.ReturnPct = &ret
			}
			dur := int(exitTime.Sub(trade.EntryTime).Minutes())
			trade.DurationMinutes = &dur

			capital += net
			inPosition = false
			qty = 0
		}

		equity := capital
		if inPosition {
			equity += qty * (closePrice - entryPrice)
		}
		if equity > peak {
			peak = equity
		}
		drawdown := (peak - equity) / peak

		if i%sampleRate == 0 {
			res.EquityCurve = append(res.EquityCurve, domain.CurvePoint{Timestamp: bar.Timestamp, Value: equity})
			res.DrawdownCurve = append(res.DrawdownCurve, domain.CurvePoint{Timestamp: bar.Timestamp, Value: drawdown})
		}
	}

	res.FinalCapital = capital
	res.TotalReturn = totalReturn(sim.InitialCapital, capital)
	return res, nil
}

func totalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}

func entryReason(snap indicator.Snapshot) string {
	var b strings.Builder
	b.WriteString("Entry: ")
	if snap.RSI != nil {
		fmt.Fprintf(&b, "RSI=%.2f ", *snap.RSI)
	}
	if snap.SMA50 != nil {
		fmt.Fprintf(&b, "SMA50=%.2f", *snap.SMA50)
	}
	return b.String()
}

func exitReason(snap indicator.Snapshot) string {
	var b strings.Builder
	b.WriteString("Exit: ")
	if snap.RSI != nil {
		fmt.Fprintf(&b, "RSI=%.2f ", *snap.RSI)
	}
	return b.String()
}

// indicatorValuesJSON serializes the warm indicator values for the trade
// record. Nil fields are omitted.
func indicatorValuesJSON(snap indicator.Snapshot) string {
	values := map[string]float64{}
	if snap.RSI != nil {
		values["RSI"] = *snap.RSI
	}
	if snap.SMA20 != nil {
		values["SMA_20"] = *snap.SMA20
	}
	if snap.SMA50 != nil {
		values["SMA_50"] = *snap.SMA50
	}
	if snap.EMA20 != nil {
		values["EMA_20"] = *snap.EMA20
	}
	if snap.MACD != nil {
		values["MACD"] = *snap.MACD
	}

	out, err := json.Marshal(values)
	if err != nil {
		return "{}"
	}
	return string(out)
}
