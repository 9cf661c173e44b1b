package backtest

import (
	"errors"

	"alphaloop/internal/domain"
)

// CustomStrategy is the handler interface an externally generated strategy
// implements. CheckEntry and CheckExit are required; the sizing and
// risk-level hooks are optional capabilities probed via the interfaces
// below.
type CustomStrategy interface {
	// CheckEntry reports whether a position should open on this bar and in
	// which direction.
	CheckEntry(ctx *EvalContext) (domain.Side, bool)

	// CheckExit reports whether the open position should close on this bar.
	CheckExit(ctx *EvalContext, pos *domain.Position) bool
}

// PositionSizer lets a custom strategy override the configured sizing
// policy. Returning zero or a negative quantity suppresses the entry.
type PositionSizer interface {
	PositionSize(ctx *EvalContext, price float64) float64
}

// StopLossCalculator lets a custom strategy derive its own stop level.
// Returning nil leaves the position without a stop.
type StopLossCalculator interface {
	StopLoss(ctx *EvalContext, side domain.Side, entryPrice float64) *float64
}

// TakeProfitCalculator lets a custom strategy derive its own target level.
type TakeProfitCalculator interface {
	TakeProfit(ctx *EvalContext, side domain.Side, entryPrice float64) *float64
}

// TrailingStopUpdater lets a custom strategy refresh the trailing-stop level
// each bar. Returning nil leaves the current level unchanged.
type TrailingStopUpdater interface {
	UpdateTrailingStop(ctx *EvalContext, pos *domain.Position) *float64
}

// Strategy is the tagged union the engine dispatches on: exactly one of
// Declarative or Custom is set for a run, decided once up front rather than
// per bar.
type Strategy struct {
	Declarative *RuleSet
	Custom      CustomStrategy
}

var errStrategyMode = errors.New("strategy must set exactly one of Declarative or Custom")

// validate checks the one-mode-only contract.
func (s Strategy) validate() error {
	if (s.Declarative == nil) == (s.Custom == nil) {
		return errStrategyMode
	}
	return nil
}

// DeclarativeStrategy returns a Strategy wrapping a rule set.
func DeclarativeStrategy(rules *RuleSet) Strategy {
	return Strategy{Declarative: rules}
}

// CustomStrategyOf returns a Strategy wrapping a handler object.
func CustomStrategyOf(cs CustomStrategy) Strategy {
	return Strategy{Custom: cs}
}
