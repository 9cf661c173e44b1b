package backtest

import (
	"math"

	"alphaloop/internal/domain"
)

// ProfitFactorCap is the sentinel reported when a strategy has winning
// trades and zero gross loss. A true ratio would be infinite; the cap keeps
// the value orderable by the aggregator. Callers comparing against it should
// use the constant, not the literal.
const ProfitFactorCap = 999.0

// Metrics is the performance bundle computed from a completed simulation.
// Every ratio resolves to 0 when its denominator is zero — never NaN or
// Inf — because the aggregator compares these numbers directly.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	CAGR             float64 `json:"cagr"`
	AnnualizedReturn float64 `json:"annualized_return"` // linear: totalReturnPct / years
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	LargestWin       float64 `json:"largest_win"`
	LargestLoss      float64 `json:"largest_loss"`
	AvgDurationBars  float64 `json:"avg_duration_bars"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	Expectancy       float64 `json:"expectancy"`
}

// ComputeMetrics builds the metric bundle from a trade ledger and equity
// curve. The aggregator uses it to fold trades from several runs into one
// per-candidate bundle.
func ComputeMetrics(initialCapital, finalEquity float64, trades []domain.Trade, curve []domain.EquityPoint) Metrics {
	return computeMetrics(initialCapital, finalEquity, trades, curve)
}

// computeMetrics converts the closed-trade ledger and equity curve into the
// metric bundle.
func computeMetrics(initialCapital, finalEquity float64, trades []domain.Trade, curve []domain.EquityPoint) Metrics {
	m := Metrics{TotalTrades: len(trades)}

	m.TotalReturn = finalEquity - initialCapital
	if initialCapital > 0 {
		m.TotalReturnPct = m.TotalReturn / initialCapital * 100
	}

	// Elapsed years from the equity curve span; both CAGR and the linear
	// annualized return are reported, and they are not the same number.
	if len(curve) > 1 {
		years := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp).Hours() / (24 * 365)
		if years > 0 {
			if initialCapital > 0 && finalEquity > 0 {
				m.CAGR = (math.Pow(finalEquity/initialCapital, 1/years) - 1) * 100
			}
			m.AnnualizedReturn = m.TotalReturnPct / years
		}
	}

	// Max drawdown over the full curve, peak tracked point by point.
	peak := initialCapital
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		dd := peak - pt.Equity
		if dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
			if peak > 0 {
				m.MaxDrawdownPct = dd / peak * 100
			}
		}
	}

	// Trade statistics.
	var grossProfit, grossLoss, totalPnL float64
	var totalBars int
	for _, tr := range trades {
		totalPnL += tr.PnL
		totalBars += tr.BarsHeld
		if tr.PnL > 0 {
			m.WinningTrades++
			grossProfit += tr.PnL
			if tr.PnL > m.LargestWin {
				m.LargestWin = tr.PnL
			}
		} else {
			m.LosingTrades++
			grossLoss += -tr.PnL
			if tr.PnL < m.LargestLoss {
				m.LargestLoss = tr.PnL
			}
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
		m.Expectancy = totalPnL / float64(m.TotalTrades)
		m.AvgDurationBars = float64(totalBars) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -grossLoss / float64(m.LosingTrades)
	}

	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		m.ProfitFactor = ProfitFactorCap
	default:
		m.ProfitFactor = 0
	}

	m.SharpeRatio = sharpe(curve, false)
	m.SortinoRatio = sharpe(curve, true)

	return m
}

// sharpe computes the annualized Sharpe ratio from bar-to-bar equity
// returns; with downsideOnly it computes Sortino instead. Zero volatility
// yields 0.
func sharpe(curve []domain.EquityPoint, downsideOnly bool) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	var n int
	for _, r := range returns {
		if downsideOnly {
			if r >= 0 {
				continue
			}
			variance += r * r
			n++
		} else {
			d := r - mean
			variance += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	std := math.Sqrt(variance / float64(n))
	if std == 0 {
		return 0
	}

	return mean / std * math.Sqrt(252)
}
