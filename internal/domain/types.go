// Package domain defines the core data types shared across the alphaloop
// research loop: bars, signals, positions, trades, and equity points.
package domain

import "time"

// Market identifies a trading venue region.
type Market string

const (
	MarketUS Market = "us"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ExitReason records which condition closed a position. Every closed trade
// carries exactly one of these values.
type ExitReason string

const (
	ExitSignal       ExitReason = "SIGNAL"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitEndOfPeriod  ExitReason = "END_OF_PERIOD"
)

// Bar is one OHLCV sample for a fixed time interval. Bars in a series are
// ordered strictly ascending by timestamp; the simulation depends on this.
type Bar struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	TimeOfDay string    `json:"time_of_day"` // "09:35" in the exchange timezone
}

// Position is an open, unrealized exposure in a single ticker. It is mutated
// every bar (mark-to-market, highest-price ratchet) and converted into a
// Trade when an exit condition fires.
type Position struct {
	Ticker        string
	Side          Side
	EntryPrice    float64
	Qty           float64
	EntryTime     time.Time
	EntryIndex    int // bar index at entry, for duration accounting
	CurrentPrice  float64
	UnrealizedPnL float64
	HighestPrice  float64 // highest bar high seen since entry (lowest low for shorts)

	// Risk levels. Nil means the level is not set.
	StopLoss     *float64
	TakeProfit   *float64
	TrailingStop *float64
}

// Trade is a closed, realized position. Immutable once recorded.
type Trade struct {
	Ticker     string     `json:"ticker"`
	Side       Side       `json:"side"`
	EntryTime  time.Time  `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitPrice  float64    `json:"exit_price"`
	Qty        float64    `json:"qty"`
	Commission float64    `json:"commission"` // total for entry + exit
	PnL        float64    `json:"pnl"`
	PnLPercent float64    `json:"pnl_percent"`
	ExitReason ExitReason `json:"exit_reason"`
	BarsHeld   int        `json:"bars_held"`
}

// EquityPoint is one sample of the equity curve, recorded per simulated bar.
type EquityPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Equity        float64   `json:"equity"` // cash + position market value
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
	Drawdown      float64   `json:"drawdown"` // peak - equity
	DrawdownPct   float64   `json:"drawdown_pct"`
}

// Signal is a scanner-produced candidate trade opportunity, consumed
// read-only by the aggregator for filtering and by the simulation as an
// entry trigger.
type Signal struct {
	Ticker          string             `json:"ticker"`
	Date            string             `json:"date"` // "2006-01-02"
	Time            string             `json:"time"` // "09:35"
	PatternStrength float64            `json:"pattern_strength"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// EarningsEvent flags an earnings report for a ticker on a calendar date.
type EarningsEvent struct {
	Ticker     string `json:"ticker"`
	ReportDate string `json:"report_date"` // "2006-01-02"
	ReportTime string `json:"report_time"` // "bmo" (before open) or "amc" (after close)
}

// PortfolioSnapshot is the read-only cash/equity view exposed to strategy
// evaluation.
type PortfolioSnapshot struct {
	Cash   float64
	Equity float64
}

// MarketValue returns the current market value of the position.
func (p *Position) MarketValue() float64 {
	return p.CurrentPrice * p.Qty
}

// ComputeUnrealizedPnL recomputes unrealized P&L from the position's side,
// entry price, current price, and quantity.
func (p *Position) ComputeUnrealizedPnL() float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - p.CurrentPrice) * p.Qty
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Qty
}
