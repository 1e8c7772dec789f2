// Package indicator maintains a bounded rolling window of closing prices and
// volumes and recomputes technical indicators incrementally as bars arrive.
package indicator

import (
	"quantlab/internal/domain"
)

// maxWindow caps the rolling window; older bars cannot influence any of the
// configured indicators.
const maxWindow = 200

// Warm-up thresholds: a snapshot field stays nil until the window holds at
// least this many closes.
const (
	rsiMinBars   = 14
	sma20MinBars = 20
	sma50MinBars = 50
	macdMinBars  = 26
)

// Snapshot holds the indicator values derived from the current window. Each
// field is nil until its minimum warm-up is satisfied. A Snapshot is a pure
// function of the window contents: replaying the same bar sequence through a
// fresh Engine reproduces identical snapshots.
type Snapshot struct {
	RSI        *float64
	SMA20      *float64
	SMA50      *float64
	EMA20      *float64
	MACD       *float64
	MACDSignal *float64
}

// Engine accumulates closes and volumes in a rolling window capped at 200
// entries (oldest dropped first) and recomputes all indicators on every bar.
type Engine struct {
	closes  []float64
	volumes []float64
}

// NewEngine creates an Engine with an empty window.
func NewEngine() *Engine {
	return &Engine{
		closes:  make([]float64, 0, maxWindow),
		volumes: make([]float64, 0, maxWindow),
	}
}

// WindowLen returns the number of closes currently held.
func (e *Engine) WindowLen() int { return len(e.closes) }

// Update appends the bar's close and volume to the window and returns the
// recomputed snapshot.
func (e *Engine) Update(bar domain.PriceBar) Snapshot {
	e.closes = append(e.closes, bar.Close)
	e.volumes = append(e.volumes, bar.Volume)
	if len(e.closes) > maxWindow {
		e.closes = e.closes[1:]
		e.volumes = e.volumes[1:]
	}

	var snap Snapshot
	n := len(e.closes)

	if n >= rsiMinBars {
		v := RSI(e.closes, 14)
		snap.RSI = &v
	}
	if n >= sma20MinBars {
		s := SMA(e.closes, 20)
		snap.SMA20 = &s
		ema := EMA(e.closes, 20)
		snap.EMA20 = &ema
	}
	if n >= sma50MinBars {
		s := SMA(e.closes, 50)
		snap.SMA50 = &s
	}
	if n >= macdMinBars {
		line, signal := MACD(e.closes)
		snap.MACD = &line
		snap.MACDSignal = &signal
	}

	return snap
}

// RSI computes the Relative Strength Index over the most recent `period`
// deltas of the window, using simple (non-exponential) averaging of up-moves
// and down-moves. Returns 50 when fewer than period+1 closes are available
// and 100 when there are no down-moves.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}

	var avgGain, avgLoss float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// SMA computes the arithmetic mean of the last `period` closes. Returns the
// latest close when the window is shorter than `period`.
func SMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return closes[len(closes)-1]
	}

	var sum float64
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// EMA computes an exponential moving average seeded with the SMA of the
// first `period` closes, then applies the 2/(period+1) multiplier over the
// remainder of the window. Returns the latest close when the window is
// shorter than `period`.
func EMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return closes[len(closes)-1]
	}

	multiplier := 2.0 / float64(period+1)
	ema := SMA(closes[:period], period)
	for i := period; i < len(closes); i++ {
		ema = closes[i]*multiplier + ema*(1-multiplier)
	}
	return ema
}

// MACD returns the MACD line (EMA12 − EMA26) and its signal line. Both are 0
// until the window holds at least 26 closes.
//
// The signal line is 0.9× the MACD line rather than a smoothed average of
// MACD history. Existing stored results were produced with this fixed-ratio
// form, so it is kept as-is; do not replace it with a true 9-period EMA
// without migrating those results.
func MACD(closes []float64) (line, signal float64) {
	if len(closes) < macdMinBars {
		return 0, 0
	}

	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	line = ema12 - ema26
	signal = line * 0.9
	return line, signal
}
