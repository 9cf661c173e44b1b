package backtest

import (
	"fmt"
	"math"

	"alphaloop/internal/domain"
)

// fillPrice applies slippage against the order: buys fill above the close,
// sells below it.
func fillPrice(closePrice, slippagePct float64, buying bool) float64 {
	if buying {
		return closePrice * (1 + slippagePct/100)
	}
	return closePrice * (1 - slippagePct/100)
}

// positionSize computes entry quantity under the configured policy. Shares
// are whole (floored); a result below one share suppresses the entry.
func positionSize(cfg SizingConfig, price, cash, equity float64) (float64, error) {
	if price <= 0 {
		return 0, nil
	}
	switch cfg.Method {
	case SizeFixedAmount:
		return math.Floor(cfg.Amount / price), nil
	case SizePercentPortfolio:
		return math.Floor(equity * cfg.Percent / 100 / price), nil
	case SizeRiskBased:
		// Simplified risk sizing: 2% of cash per trade. Not a risk-parity
		// calculation.
		return math.Floor(cash * 0.02 / price), nil
	case "":
		// Default to the full fixed amount if unset.
		return math.Floor(cash / price), nil
	default:
		return 0, fmt.Errorf("unknown position sizing method %q", cfg.Method)
	}
}

// deriveLevel computes a stop-loss or take-profit level from the entry
// price. below selects the protective direction: stops sit below entry for
// longs and above for shorts; targets mirror that.
func deriveLevel(spec *StopSpec, side domain.Side, entryPrice, atr float64, below bool) (*float64, error) {
	if spec == nil {
		return nil, nil
	}
	if side == domain.SideShort {
		below = !below
	}
	sign := 1.0
	if below {
		sign = -1.0
	}

	var level float64
	switch spec.Type {
	case StopPercent:
		level = entryPrice * (1 + sign*spec.Value/100)
	case StopFixed:
		level = entryPrice + sign*spec.Value
	case StopATR:
		if atr <= 0 {
			return nil, fmt.Errorf("ATR stop requested but no ATR value is available at entry")
		}
		level = entryPrice + sign*atr*spec.Value
	default:
		return nil, fmt.Errorf("unknown stop type %q", spec.Type)
	}
	return &level, nil
}

// markToMarket updates the position for the latest bar: current price,
// best-price ratchet, and unrealized P&L.
func markToMarket(pos *domain.Position, bar domain.Bar) {
	pos.CurrentPrice = bar.Close
	if pos.Side == domain.SideLong {
		if bar.High > pos.HighestPrice {
			pos.HighestPrice = bar.High
		}
	} else {
		// For shorts the ratchet tracks the lowest low.
		if bar.Low < pos.HighestPrice {
			pos.HighestPrice = bar.Low
		}
	}
	pos.UnrealizedPnL = pos.ComputeUnrealizedPnL()
}

// ratchetTrailingStop moves the percent trailing stop toward the best price
// seen. It only ever tightens, never loosens.
func ratchetTrailingStop(pos *domain.Position, trailingPct float64) {
	if trailingPct <= 0 {
		return
	}
	var level float64
	if pos.Side == domain.SideLong {
		level = pos.HighestPrice * (1 - trailingPct/100)
		if pos.TrailingStop == nil || level > *pos.TrailingStop {
			pos.TrailingStop = &level
		}
	} else {
		level = pos.HighestPrice * (1 + trailingPct/100)
		if pos.TrailingStop == nil || level < *pos.TrailingStop {
			pos.TrailingStop = &level
		}
	}
}

// checkRiskExit evaluates the protective exits for one bar in priority
// order: trailing stop (intrabar extreme), stop-loss (close), take-profit
// (close). The strategy's own exit signal is checked before this, in the
// engine.
func checkRiskExit(pos *domain.Position, bar domain.Bar) (domain.ExitReason, bool) {
	if pos.TrailingStop != nil {
		if pos.Side == domain.SideLong && bar.Low <= *pos.TrailingStop {
			return domain.ExitTrailingStop, true
		}
		if pos.Side == domain.SideShort && bar.High >= *pos.TrailingStop {
			return domain.ExitTrailingStop, true
		}
	}
	if pos.StopLoss != nil {
		if pos.Side == domain.SideLong && bar.Close <= *pos.StopLoss {
			return domain.ExitStopLoss, true
		}
		if pos.Side == domain.SideShort && bar.Close >= *pos.StopLoss {
			return domain.ExitStopLoss, true
		}
	}
	if pos.TakeProfit != nil {
		if pos.Side == domain.SideLong && bar.Close >= *pos.TakeProfit {
			return domain.ExitTakeProfit, true
		}
		if pos.Side == domain.SideShort && bar.Close <= *pos.TakeProfit {
			return domain.ExitTakeProfit, true
		}
	}
	return "", false
}

// exitCredit is the cash returned when a position closes: the entry notional
// plus gross P&L, less the exit commission. For longs this reduces to
// exitFill×qty − commission, the form the cash-conservation invariant is
// stated in; for shorts it generalizes the same reconciliation.
func exitCredit(pos *domain.Position, exitFill, commission float64) float64 {
	var gross float64
	if pos.Side == domain.SideShort {
		gross = (pos.EntryPrice - exitFill) * pos.Qty
	} else {
		gross = (exitFill - pos.EntryPrice) * pos.Qty
	}
	return pos.EntryPrice*pos.Qty + gross - commission
}

// affordableQty shrinks a quantity to what the cash balance covers after the
// entry commission.
func affordableQty(cash, price, commission float64) float64 {
	if price <= 0 {
		return 0
	}
	q := math.Floor((cash - commission) / price)
	if q < 0 {
		return 0
	}
	return q
}

// closePosition converts a position into a trade at the given exit fill.
func closePosition(pos *domain.Position, bar domain.Bar, barIndex int, exitFill, commission float64, reason domain.ExitReason) domain.Trade {
	var pnl float64
	if pos.Side == domain.SideShort {
		pnl = (pos.EntryPrice - exitFill) * pos.Qty
	} else {
		pnl = (exitFill - pos.EntryPrice) * pos.Qty
	}
	// Commission is charged on both fills.
	pnl -= 2 * commission

	pnlPct := 0.0
	if basis := pos.EntryPrice * pos.Qty; basis > 0 {
		pnlPct = pnl / basis * 100
	}

	return domain.Trade{
		Ticker:     pos.Ticker,
		Side:       pos.Side,
		EntryTime:  pos.EntryTime,
		EntryPrice: pos.EntryPrice,
		ExitTime:   bar.Timestamp,
		ExitPrice:  exitFill,
		Qty:        pos.Qty,
		Commission: 2 * commission,
		PnL:        pnl,
		PnLPercent: pnlPct,
		ExitReason: reason,
		BarsHeld:   barIndex - pos.EntryIndex,
	}
}
