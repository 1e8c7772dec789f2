package backtest

import (
	"math"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/util"
)

// Annualized risk-free rate backing the Sharpe and Sortino numerators,
// converted to a per-period rate with 252 trading days.
const annualRiskFreeRate = 0.05

// ComputeMetrics derives summary statistics from a finished run. Only closed
// trades count; a run with no round trips returns nil. Ratio fields stay nil
// when their inputs are degenerate (no losing trades, a curve with fewer than
// two points, a zero-length date range).
func ComputeMetrics(
	trades []domain.SimulatedTrade,
	equityCurve []domain.CurvePoint,
	initialCapital, finalCapital float64,
	startDate, endDate time.Time,
) *domain.Metrics {
	var closed []domain.SimulatedTrade
	for _, t := range trades {
		if t.Closed() {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		return nil
	}

	m := &domain.Metrics{TotalTrades: len(closed)}

	var totalWins, totalLosses float64
	var totalDuration int
	for _, t := range closed {
		if t.NetPnl == nil {
			continue
		}
		switch {
		case *t.NetPnl > 0:
			m.WinningTrades++
			totalWins += *t.NetPnl
		case *t.NetPnl < 0:
			m.LosingTrades++
			totalLosses += -*t.NetPnl
		}
		if t.DurationMinutes != nil {
			totalDuration += *t.DurationMinutes
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(len(closed))
	m.AvgTradeDuration = totalDuration / len(closed)

	if totalLosses > 0 {
		pf := totalWins / totalLosses
		m.ProfitFactor = &pf
	}

	applyReturnStats(m, equityCurve)
	applyDrawdownStats(m, equityCurve)

	if days := util.DaysBetween(startDate, endDate); days > 0 && initialCapital > 0 {
		years := float64(days) / 365.0
		cagr := math.Pow(finalCapital/initialCapital, 1/years) - 1
		m.CAGR = &cagr
	}

	return m
}

// applyReturnStats computes volatility, Sharpe, and Sortino from the simple
// returns between consecutive sampled equity points. Volatility is the
// population standard deviation of those per-point returns, not annualized.
func applyReturnStats(m *domain.Metrics, equityCurve []domain.CurvePoint) {
	var returns []float64
	for i := 1; i < len(equityCurve); i++ {
		prev := equityCurve[i-1].Value
		if prev > 0 {
			returns = append(returns, (equityCurve[i].Value-prev)/prev)
		}
	}
	if len(returns) < 2 {
		return
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	vol := math.Sqrt(variance)
	m.Volatility = &vol

	riskFree := annualRiskFreeRate / 252
	if vol > 0 {
		sharpe := (mean - riskFree) / vol
		m.SharpeRatio = &sharpe
	}

	// Sortino replaces total volatility with the downside deviation: the
	// root mean square of the negative returns alone.
	var downsideSum float64
	negatives := 0
	for _, r := range returns {
		if r < 0 {
			downsideSum += r * r
			negatives++
		}
	}
	if negatives > 0 {
		downside := math.Sqrt(downsideSum / float64(negatives))
		if downside > 0 {
			sortino := (mean - riskFree) / downside
			m.SortinoRatio = &sortino
		}
	}
}

// applyDrawdownStats walks the sampled equity curve tracking the running peak
// and reports the deepest drawdown together with the duration (in sampled
// points) of the decline that produced it.
func applyDrawdownStats(m *domain.Metrics, equityCurve []domain.CurvePoint) {
	if len(equityCurve) < 2 {
		return
	}

	peak := equityCurve[0].Value
	var maxDrawdown float64
	maxDuration := 0
	currentDuration := 0

	for _, p := range equityCurve {
		if p.Value > peak {
			peak = p.Value
			currentDuration = 0
			continue
		}
		currentDuration++
		if peak <= 0 {
			continue
		}
		drawdown := (peak - p.Value) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
			maxDuration = currentDuration
		}
	}

	m.MaxDrawdown = maxDrawdown
	m.MaxDrawdownDuration = maxDuration
}
