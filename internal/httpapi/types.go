package httpapi

import (
	"alphaloop/internal/aggregate"
	"alphaloop/internal/backtest"
	"alphaloop/internal/domain"
	"alphaloop/internal/indicator"
	"alphaloop/internal/marketdata"
)

// BacktestRequest runs one simulation for a single ticker. Zero-valued
// capital, commission, and slippage fall back to the server's configured
// defaults.
type BacktestRequest struct {
	Ticker    string               `json:"ticker"`
	Timeframe marketdata.Timeframe `json:"timeframe"`
	Start     string               `json:"start"` // "2006-01-02"
	End       string               `json:"end"`

	InitialCapital         float64 `json:"initial_capital,omitempty"`
	Commission             float64 `json:"commission,omitempty"`
	SlippagePct            float64 `json:"slippage_pct,omitempty"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions,omitempty"`

	Rules      *backtest.RuleSet     `json:"rules"`
	Sizing     backtest.SizingConfig `json:"sizing"`
	Risk       backtest.RiskConfig   `json:"risk"`
	Indicators []indicator.Spec      `json:"indicators,omitempty"`

	Signals          []domain.Signal `json:"signals,omitempty"`
	DependencyTicker string          `json:"dependency_ticker,omitempty"`
}

// TemplateRequest is one candidate execution template in a research request.
// Only declarative rule sets are expressible over the wire.
type TemplateRequest struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Rules      *backtest.RuleSet     `json:"rules"`
	Sizing     backtest.SizingConfig `json:"sizing"`
	Risk       backtest.RiskConfig   `json:"risk"`
	Indicators []indicator.Spec      `json:"indicators,omitempty"`
}

// ResearchRequest runs the full aggregation: filter the signal set, simulate
// every template, rank, and persist the iteration.
type ResearchRequest struct {
	AgentName string               `json:"agent_name"`
	Timeframe marketdata.Timeframe `json:"timeframe"`
	Start     string               `json:"start"`
	End       string               `json:"end"`

	Signals          []domain.Signal   `json:"signals"`
	Templates        []TemplateRequest `json:"templates"`
	DependencyTicker string            `json:"dependency_ticker,omitempty"`
}

// ResearchResponse is the persisted iteration id plus the full ranked
// aggregation result.
type ResearchResponse struct {
	IterationID string            `json:"iteration_id"`
	Result      *aggregate.Result `json:"result"`
}
