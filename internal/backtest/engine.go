package backtest

import (
	"context"
	"fmt"

	"alphaloop/internal/domain"
	"alphaloop/internal/indicator"
	"alphaloop/internal/util"
)

// Run executes one simulation over the bar series. It is strictly
// single-threaded and sequential over the bar index: bar i+1 is never
// evaluated before bar i's position and cash mutations are committed.
//
// Run never panics across its boundary and never returns nil: any failure
// (bad data, bad configuration, cancelled context, panicking custom
// strategy) produces a StatusFailed result with zero trades and the error
// message preserved.
func Run(ctx context.Context, bars []domain.Bar, strat Strategy, cfg Config) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			result = failedResult(cfg, fmt.Errorf("strategy panic: %v", r))
		}
	}()

	if err := strat.validate(); err != nil {
		return failedResult(cfg, err)
	}
	if strat.Declarative != nil {
		if err := validateRules(strat.Declarative.Entry); err != nil {
			return failedResult(cfg, fmt.Errorf("entry rules: %w", err))
		}
		if err := validateRules(strat.Declarative.Exit); err != nil {
			return failedResult(cfg, fmt.Errorf("exit rules: %w", err))
		}
	}
	if len(bars) == 0 {
		return failedResult(cfg, fmt.Errorf("no bar data for %s", cfg.Ticker))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return failedResult(cfg, fmt.Errorf("bars out of order at index %d", i))
		}
	}

	atrID := firstATRID(cfg.Indicators)
	if usesATRStop(cfg.Risk) && atrID == "" {
		return failedResult(cfg, fmt.Errorf("ATR stop configured but no ATR indicator requested"))
	}

	indicators, err := indicator.ComputeAll(bars, cfg.Indicators)
	if err != nil {
		return failedResult(cfg, fmt.Errorf("precomputing indicators: %w", err))
	}

	maxConcurrent := cfg.MaxConcurrentPositions
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	evaluator := &ruleEvaluator{bars: bars, indicators: indicators}
	builder := newContextBuilder(bars, indicators, cfg)
	signalGate := buildSignalGate(cfg)

	// Optional custom capabilities, probed once per run.
	var (
		sizer       PositionSizer
		stopCalc    StopLossCalculator
		targetCalc  TakeProfitCalculator
		trailUpdate TrailingStopUpdater
	)
	if strat.Custom != nil {
		sizer, _ = strat.Custom.(PositionSizer)
		stopCalc, _ = strat.Custom.(StopLossCalculator)
		targetCalc, _ = strat.Custom.(TakeProfitCalculator)
		trailUpdate, _ = strat.Custom.(TrailingStopUpdater)
	}

	// Working state, exclusively owned by this invocation.
	cash := cfg.InitialCapital
	positions := make(map[string]*domain.Position, maxConcurrent)
	trades := []domain.Trade{}
	equityCurve := make([]domain.EquityPoint, 0, len(bars))
	peakEquity := cfg.InitialCapital

	positionValue := func() float64 {
		var total float64
		for _, p := range positions {
			// Entry notional plus unrealized P&L: equals mark-to-market value
			// for longs and generalizes correctly for shorts.
			total += p.EntryPrice*p.Qty + p.UnrealizedPnL
		}
		return total
	}

	for i := range bars {
		select {
		case <-ctx.Done():
			return failedResult(cfg, fmt.Errorf("simulation cancelled: %w", ctx.Err()))
		default:
		}

		bar := bars[i]

		// (a) Mark every open position to the new bar.
		for _, pos := range positions {
			markToMarket(pos, bar)
		}

		portfolio := domain.PortfolioSnapshot{Cash: cash, Equity: cash + positionValue()}
		pos := positions[cfg.Ticker]

		// (b) Build the evaluation context for this bar.
		ec := builder.build(i, pos, portfolio)

		// (c) Refresh trailing stops before exit checks.
		for _, p := range positions {
			if trailUpdate != nil {
				if level := trailUpdate.UpdateTrailingStop(ec, p); level != nil {
					p.TrailingStop = level
				}
			} else {
				ratchetTrailingStop(p, cfg.Risk.TrailingPct)
			}
		}

		// (d) Exit evaluation, strategy signal first, then risk levels.
		for ticker, p := range positions {
			reason, exit := evalExit(strat, evaluator, ec, p, i)
			if !exit {
				reason, exit = checkRiskExit(p, bar)
			}
			if !exit {
				continue
			}
			exitFill := fillPrice(bar.Close, cfg.SlippagePct, p.Side == domain.SideShort)
			trade := closePosition(p, bar, i, exitFill, cfg.Commission, reason)
			trades = append(trades, trade)
			cash += exitCredit(p, exitFill, cfg.Commission)
			delete(positions, ticker)
		}

		// (e) Entry evaluation while capacity remains.
		if len(positions) < maxConcurrent && positions[cfg.Ticker] == nil && signalGate.allows(bar) {
			side, enter := evalEntry(strat, evaluator, ec, i)
			if enter {
				entryFill := fillPrice(bar.Close, cfg.SlippagePct, side == domain.SideLong)

				var qty float64
				if sizer != nil {
					qty = sizer.PositionSize(ec, entryFill)
				} else {
					qty, err = positionSize(cfg.Sizing, entryFill, cash, cash+positionValue())
					if err != nil {
						return failedResult(cfg, err)
					}
				}
				// Never spend more than the available cash.
				if cost := entryFill*qty + cfg.Commission; cost > cash {
					qty = affordableQty(cash, entryFill, cfg.Commission)
				}

				if qty >= 1 {
					if p, err := openPosition(ec, side, entryFill, qty, bar, i, cfg, indicators, atrID, stopCalc, targetCalc); err != nil {
						return failedResult(cfg, err)
					} else if p != nil {
						positions[cfg.Ticker] = p
						cash -= entryFill*qty + cfg.Commission
					}
				}
			}
		}

		// (f) Record one equity point per bar.
		equity := cash + positionValue()
		if equity > peakEquity {
			peakEquity = equity
		}
		dd := peakEquity - equity
		ddPct := 0.0
		if peakEquity > 0 {
			ddPct = dd / peakEquity * 100
		}
		equityCurve = append(equityCurve, domain.EquityPoint{
			Timestamp:     bar.Timestamp,
			Equity:        equity,
			Cash:          cash,
			PositionValue: equity - cash,
			Drawdown:      dd,
			DrawdownPct:   ddPct,
		})
	}

	// Force-close anything still open at the final bar so every position
	// resolves to exactly one trade and cash fully reconciles.
	last := bars[len(bars)-1]
	lastIdx := len(bars) - 1
	for ticker, p := range positions {
		exitFill := fillPrice(last.Close, cfg.SlippagePct, p.Side == domain.SideShort)
		trade := closePosition(p, last, lastIdx, exitFill, cfg.Commission, domain.ExitEndOfPeriod)
		trades = append(trades, trade)
		cash += exitCredit(p, exitFill, cfg.Commission)
		delete(positions, ticker)
	}

	// The final equity point reflects the force-close.
	if len(equityCurve) > 0 {
		final := &equityCurve[len(equityCurve)-1]
		final.Equity = cash
		final.Cash = cash
		final.PositionValue = 0
		if cash > peakEquity {
			peakEquity = cash
		}
		final.Drawdown = peakEquity - cash
		if peakEquity > 0 {
			final.DrawdownPct = final.Drawdown / peakEquity * 100
		}
	}

	metrics := computeMetrics(cfg.InitialCapital, cash, trades, equityCurve)

	return &Result{
		Status:      StatusCompleted,
		Ticker:      cfg.Ticker,
		Trades:      trades,
		EquityCurve: equityCurve,
		Metrics:     metrics,
		FinalEquity: cash,
	}
}

// evalEntry dispatches entry evaluation on the strategy mode.
func evalEntry(strat Strategy, evaluator *ruleEvaluator, ec *EvalContext, i int) (domain.Side, bool) {
	if strat.Custom != nil {
		return strat.Custom.CheckEntry(ec)
	}
	rs := strat.Declarative
	if !evaluator.evalAll(rs.Entry, i) {
		return "", false
	}
	side := rs.Side
	if side == "" {
		side = domain.SideLong
	}
	return side, true
}

// evalExit dispatches the strategy-signal exit check.
func evalExit(strat Strategy, evaluator *ruleEvaluator, ec *EvalContext, pos *domain.Position, i int) (domain.ExitReason, bool) {
	if strat.Custom != nil {
		if strat.Custom.CheckExit(ec, pos) {
			return domain.ExitSignal, true
		}
		return "", false
	}
	if evaluator.evalAll(strat.Declarative.Exit, i) {
		return domain.ExitSignal, true
	}
	return "", false
}

// openPosition creates a position with its protective levels resolved.
// Returns nil (no error) when an ATR level is requested but the indicator is
// still warming up, holding the strategy out of the market for that bar.
func openPosition(
	ec *EvalContext,
	side domain.Side,
	entryFill, qty float64,
	bar domain.Bar,
	barIndex int,
	cfg Config,
	indicators map[string][]*indicator.Value,
	atrID string,
	stopCalc StopLossCalculator,
	targetCalc TakeProfitCalculator,
) (*domain.Position, error) {
	atr := atrAt(indicators, atrID, barIndex)
	if usesATRStop(cfg.Risk) && atr == 0 {
		return nil, nil
	}

	pos := &domain.Position{
		Ticker:       cfg.Ticker,
		Side:         side,
		EntryPrice:   entryFill,
		Qty:          qty,
		EntryTime:    bar.Timestamp,
		EntryIndex:   barIndex,
		CurrentPrice: bar.Close,
		HighestPrice: entryFill,
	}

	var err error
	if stopCalc != nil {
		pos.StopLoss = stopCalc.StopLoss(ec, side, entryFill)
	} else if pos.StopLoss, err = deriveLevel(cfg.Risk.StopLoss, side, entryFill, atr, true); err != nil {
		return nil, err
	}
	if targetCalc != nil {
		pos.TakeProfit = targetCalc.TakeProfit(ec, side, entryFill)
	} else if pos.TakeProfit, err = deriveLevel(cfg.Risk.TakeProfit, side, entryFill, atr, false); err != nil {
		return nil, err
	}

	pos.UnrealizedPnL = pos.ComputeUnrealizedPnL()
	return pos, nil
}

func usesATRStop(risk RiskConfig) bool {
	return (risk.StopLoss != nil && risk.StopLoss.Type == StopATR) ||
		(risk.TakeProfit != nil && risk.TakeProfit.Type == StopATR)
}

func firstATRID(specs []indicator.Spec) string {
	for _, s := range specs {
		if s.Type == indicator.TypeATR {
			return s.ID()
		}
	}
	return ""
}

func atrAt(indicators map[string][]*indicator.Value, atrID string, i int) float64 {
	if atrID == "" {
		return 0
	}
	series, ok := indicators[atrID]
	if !ok || i >= len(series) || series[i] == nil {
		return 0
	}
	return series[i].Scalar
}

// signalGate restricts entries to bars covered by a scan signal.
type signalGate struct {
	active bool
	byDate map[string]string // session date -> earliest signal time
}

func buildSignalGate(cfg Config) *signalGate {
	g := &signalGate{byDate: map[string]string{}}
	for _, sig := range cfg.Signals {
		if sig.Ticker != "" && sig.Ticker != cfg.Ticker {
			continue
		}
		g.active = true
		if t, ok := g.byDate[sig.Date]; !ok || sig.Time < t {
			g.byDate[sig.Date] = sig.Time
		}
	}
	return g
}

// allows reports whether an entry may open on this bar. With no signals
// configured every bar qualifies; otherwise the bar's session date must
// carry a signal and the bar must not precede the signal time.
func (g *signalGate) allows(bar domain.Bar) bool {
	if !g.active {
		return true
	}
	t, ok := g.byDate[util.SessionDate(bar.Timestamp)]
	if !ok {
		return false
	}
	tod := bar.TimeOfDay
	if tod == "" {
		tod = util.TimeOfDay(bar.Timestamp)
	}
	return tod >= t
}
