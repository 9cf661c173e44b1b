// Package backtest implements the bar-by-bar simulation engine: it replays
// historical bars through a strategy's entry/exit rules, manages position
// lifecycle with slippage and commission, applies risk-management exits, and
// computes the performance-metric bundle used to rank strategies.
package backtest

import (
	"alphaloop/internal/domain"
	"alphaloop/internal/indicator"
)

// Status is the terminal state of a simulation run.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// SizingMethod selects how entry quantity is computed.
type SizingMethod string

const (
	SizeFixedAmount      SizingMethod = "FIXED_AMOUNT"
	SizePercentPortfolio SizingMethod = "PERCENT_PORTFOLIO"
	SizeRiskBased        SizingMethod = "RISK_BASED"
)

// StopType selects how a stop-loss or take-profit level is derived from the
// entry price.
type StopType string

const (
	StopPercent StopType = "PERCENT"
	StopFixed   StopType = "FIXED"
	StopATR     StopType = "ATR"
)

// StopSpec derives a protective level from an entry price. Value is a
// percent for PERCENT, an absolute dollar amount for FIXED, and an ATR
// multiple for ATR.
type StopSpec struct {
	Type  StopType `json:"type" yaml:"type"`
	Value float64  `json:"value" yaml:"value"`
}

// RiskConfig holds the optional protective exits applied to every position.
// TrailingPct is the percent distance a trailing stop follows behind the
// best price seen since entry; zero disables trailing.
type RiskConfig struct {
	StopLoss    *StopSpec `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty"`
	TakeProfit  *StopSpec `json:"take_profit,omitempty" yaml:"take_profit,omitempty"`
	TrailingPct float64   `json:"trailing_pct,omitempty" yaml:"trailing_pct,omitempty"`
}

// SizingConfig selects and parameterises the position-sizing policy.
type SizingConfig struct {
	Method  SizingMethod `json:"method" yaml:"method"`
	Amount  float64      `json:"amount,omitempty" yaml:"amount,omitempty"`   // FIXED_AMOUNT dollars
	Percent float64      `json:"percent,omitempty" yaml:"percent,omitempty"` // PERCENT_PORTFOLIO
}

// Config carries everything one simulation run needs. It is passed
// explicitly into Run; the engine keeps no global defaults.
type Config struct {
	Ticker                 string
	InitialCapital         float64
	Commission             float64 // flat dollars per fill
	SlippagePct            float64 // percent of price, applied against the order
	MaxConcurrentPositions int     // default 1
	Sizing                 SizingConfig
	Risk                   RiskConfig
	Indicators             []indicator.Spec

	// Signals gates entries: when non-empty, an entry may only open on a bar
	// whose session date matches a signal for the ticker at or after the
	// signal time. An empty list leaves entries ungated.
	Signals []domain.Signal

	// Dependency ticker context (e.g. SPY for market regime). Bars must be
	// ascending; the engine exposes the nearest bar at or before the current
	// timestamp, never a later one.
	DependencyTicker string
	DependencyBars   []domain.Bar

	// Earnings events for the simulated ticker, used to flag report dates in
	// the evaluation context.
	Earnings []domain.EarningsEvent
}

// Result is the complete outcome of one simulation run. It is always well
// formed: a failed run carries zero trades, an all-zero metrics bundle, and
// the error message — callers never see a panic or a partial object.
type Result struct {
	Status      Status               `json:"status"`
	Error       string               `json:"error,omitempty"`
	Ticker      string               `json:"ticker"`
	Trades      []domain.Trade       `json:"trades"`
	EquityCurve []domain.EquityPoint `json:"equity_curve"`
	Metrics     Metrics              `json:"metrics"`
	FinalEquity float64              `json:"final_equity"`
}

// failedResult builds the well-formed zero result for a run that could not
// complete.
func failedResult(cfg Config, err error) *Result {
	return &Result{
		Status:      StatusFailed,
		Error:       err.Error(),
		Ticker:      cfg.Ticker,
		Trades:      []domain.Trade{},
		EquityCurve: []domain.EquityPoint{},
		FinalEquity: cfg.InitialCapital,
	}
}
