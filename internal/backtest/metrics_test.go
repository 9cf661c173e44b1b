package backtest

import (
	"math"
	"testing"
	"time"

	"alphaloop/internal/domain"
)

func mkTrade(pnl float64, bars int) domain.Trade {
	return domain.Trade{
		Ticker: "TEST", Side: domain.SideLong,
		EntryPrice: 100, ExitPrice: 100 + pnl, Qty: 1,
		PnL: pnl, BarsHeld: bars,
	}
}

func mkCurve(equities ...float64) []domain.EquityPoint {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := make([]domain.EquityPoint, len(equities))
	for i, e := range equities {
		curve[i] = domain.EquityPoint{
			Timestamp: start.AddDate(0, 0, i),
			Equity:    e,
			Cash:      e,
		}
	}
	return curve
}

func TestMetricsZeroTrades(t *testing.T) {
	m := computeMetrics(10000, 10000, nil, nil)

	// Exact literal zeros, not merely "falsy" — downstream ranking compares
	// these numbers directly.
	if m.WinRate != 0 {
		t.Errorf("WinRate = %v, want 0", m.WinRate)
	}
	if m.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0", m.SharpeRatio)
	}
	if m.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0", m.ProfitFactor)
	}
	if m.TotalReturn != 0 {
		t.Errorf("TotalReturn = %v, want 0", m.TotalReturn)
	}
	if m.SortinoRatio != 0 || m.Expectancy != 0 || m.AvgDurationBars != 0 {
		t.Error("all trade-derived metrics must be 0 with zero trades")
	}
}

func TestMetricsNoNaNAnywhere(t *testing.T) {
	m := computeMetrics(0, 0, []domain.Trade{}, mkCurve(0, 0))
	for name, v := range map[string]float64{
		"TotalReturnPct": m.TotalReturnPct,
		"CAGR":           m.CAGR,
		"WinRate":        m.WinRate,
		"ProfitFactor":   m.ProfitFactor,
		"Sharpe":         m.SharpeRatio,
		"Sortino":        m.SortinoRatio,
		"MaxDrawdownPct": m.MaxDrawdownPct,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v, want finite", name, v)
		}
	}
}

func TestMetricsWinRateAndProfitFactor(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(100, 5), mkTrade(50, 3), mkTrade(-75, 4),
	}
	m := computeMetrics(10000, 10075, trades, mkCurve(10000, 10100, 10075))

	if got, want := m.WinRate, 2.0/3.0*100; math.Abs(got-want) > 1e-9 {
		t.Errorf("WinRate = %v, want %v", got, want)
	}
	if got, want := m.ProfitFactor, 150.0/75.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("ProfitFactor = %v, want %v", got, want)
	}
	if m.AvgWin != 75 {
		t.Errorf("AvgWin = %v, want 75", m.AvgWin)
	}
	if m.AvgLoss != -75 {
		t.Errorf("AvgLoss = %v, want -75", m.AvgLoss)
	}
	if m.LargestWin != 100 || m.LargestLoss != -75 {
		t.Errorf("largest win/loss = %v/%v, want 100/-75", m.LargestWin, m.LargestLoss)
	}
	if got, want := m.AvgDurationBars, 4.0; got != want {
		t.Errorf("AvgDurationBars = %v, want %v", got, want)
	}
	if got, want := m.Expectancy, 75.0/3; math.Abs(got-want) > 1e-9 {
		t.Errorf("Expectancy = %v, want %v", got, want)
	}
}

func TestMetricsProfitFactorCap(t *testing.T) {
	trades := []domain.Trade{mkTrade(100, 1), mkTrade(200, 1)}
	m := computeMetrics(10000, 10300, trades, mkCurve(10000, 10300))
	if m.ProfitFactor != ProfitFactorCap {
		t.Errorf("ProfitFactor = %v, want cap %v with zero gross loss", m.ProfitFactor, ProfitFactorCap)
	}
}

func TestMetricsMaxDrawdown(t *testing.T) {
	m := computeMetrics(10000, 10500, nil, mkCurve(10000, 12000, 9000, 10500))
	if m.MaxDrawdown != 3000 {
		t.Errorf("MaxDrawdown = %v, want 3000", m.MaxDrawdown)
	}
	if got, want := m.MaxDrawdownPct, 3000.0/12000*100; math.Abs(got-want) > 1e-9 {
		t.Errorf("MaxDrawdownPct = %v, want %v", got, want)
	}
}

func TestMetricsSharpeZeroVolatility(t *testing.T) {
	// A flat curve has stdev 0: Sharpe must be 0, not NaN.
	m := computeMetrics(10000, 10000, nil, mkCurve(10000, 10000, 10000))
	if m.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0 for zero volatility", m.SharpeRatio)
	}
}

func TestMetricsSortinoNoDownside(t *testing.T) {
	// Monotonically rising curve has no negative returns: Sortino is 0 by
	// the zero-denominator contract.
	m := computeMetrics(10000, 10300, nil, mkCurve(10000, 10100, 10200, 10300))
	if m.SortinoRatio != 0 {
		t.Errorf("SortinoRatio = %v, want 0 with no downside returns", m.SortinoRatio)
	}
	if m.SharpeRatio <= 0 {
		t.Errorf("SharpeRatio = %v, want positive for a rising curve", m.SharpeRatio)
	}
}

func TestMetricsCAGRAndAnnualizedDiffer(t *testing.T) {
	// Two years, 100 -> 144: CAGR is 20%, linear annualized is 22%.
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := []domain.EquityPoint{
		{Timestamp: start, Equity: 10000},
		{Timestamp: start.AddDate(0, 0, 730), Equity: 14400},
	}
	m := computeMetrics(10000, 14400, nil, curve)

	if math.Abs(m.CAGR-20) > 0.1 {
		t.Errorf("CAGR = %v, want ~20", m.CAGR)
	}
	if math.Abs(m.AnnualizedReturn-22) > 0.1 {
		t.Errorf("AnnualizedReturn = %v, want ~22", m.AnnualizedReturn)
	}
	if m.CAGR == m.AnnualizedReturn {
		t.Error("CAGR and AnnualizedReturn must be reported as distinct numbers")
	}
}
