package backtest

import (
	"math"
	"testing"

	"alphaloop/internal/domain"
)

func TestFillPrice(t *testing.T) {
	if got := fillPrice(100, 0.1, true); math.Abs(got-100.1) > 1e-9 {
		t.Errorf("buy fill = %v, want 100.1", got)
	}
	if got := fillPrice(100, 0.1, false); math.Abs(got-99.9) > 1e-9 {
		t.Errorf("sell fill = %v, want 99.9", got)
	}
	if got := fillPrice(100, 0, true); got != 100 {
		t.Errorf("zero-slippage fill = %v, want 100", got)
	}
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name string
		cfg  SizingConfig
		want float64
	}{
		{"fixed amount", SizingConfig{Method: SizeFixedAmount, Amount: 1000}, 19},      // floor(1000/50.5)
		{"percent portfolio", SizingConfig{Method: SizePercentPortfolio, Percent: 10}, 39}, // floor(20000*0.10/50.5)
		{"risk based", SizingConfig{Method: SizeRiskBased}, 3},                          // floor(10000*0.02/50.5)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := positionSize(tt.cfg, 50.5, 10000, 20000)
			if err != nil {
				t.Fatalf("positionSize returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("positionSize = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPositionSizeUnknownMethod(t *testing.T) {
	if _, err := positionSize(SizingConfig{Method: "KELLY"}, 50, 10000, 10000); err == nil {
		t.Error("unknown sizing method should error")
	}
}

func TestDeriveLevel(t *testing.T) {
	tests := []struct {
		name  string
		spec  StopSpec
		side  domain.Side
		below bool
		want  float64
	}{
		{"percent stop long", StopSpec{Type: StopPercent, Value: 2}, domain.SideLong, true, 98},
		{"percent target long", StopSpec{Type: StopPercent, Value: 2}, domain.SideLong, false, 102},
		{"percent stop short", StopSpec{Type: StopPercent, Value: 2}, domain.SideShort, true, 102},
		{"fixed stop long", StopSpec{Type: StopFixed, Value: 5}, domain.SideLong, true, 95},
		{"fixed target short", StopSpec{Type: StopFixed, Value: 5}, domain.SideShort, false, 95},
		{"atr stop long", StopSpec{Type: StopATR, Value: 2}, domain.SideLong, true, 97},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := deriveLevel(&tt.spec, tt.side, 100, 1.5, tt.below)
			if err != nil {
				t.Fatalf("deriveLevel returned error: %v", err)
			}
			if level == nil || math.Abs(*level-tt.want) > 1e-9 {
				t.Errorf("deriveLevel = %v, want %v", level, tt.want)
			}
		})
	}
}

func TestDeriveLevelNilSpec(t *testing.T) {
	level, err := deriveLevel(nil, domain.SideLong, 100, 0, true)
	if err != nil || level != nil {
		t.Errorf("nil spec should yield nil level without error, got %v, %v", level, err)
	}
}

func TestDeriveLevelATRWithoutValue(t *testing.T) {
	if _, err := deriveLevel(&StopSpec{Type: StopATR, Value: 2}, domain.SideLong, 100, 0, true); err == nil {
		t.Error("ATR level with zero ATR should error")
	}
}

func TestMarkToMarketRatchet(t *testing.T) {
	pos := &domain.Position{
		Ticker: "TEST", Side: domain.SideLong,
		EntryPrice: 100, Qty: 10, HighestPrice: 100,
	}
	markToMarket(pos, domain.Bar{Close: 103, High: 105, Low: 102})
	if pos.HighestPrice != 105 {
		t.Errorf("HighestPrice = %v, want 105", pos.HighestPrice)
	}
	if pos.UnrealizedPnL != 30 {
		t.Errorf("UnrealizedPnL = %v, want 30", pos.UnrealizedPnL)
	}

	// The ratchet never moves back down.
	markToMarket(pos, domain.Bar{Close: 101, High: 102, Low: 100})
	if pos.HighestPrice != 105 {
		t.Errorf("HighestPrice = %v after lower bar, want 105", pos.HighestPrice)
	}
}

func TestMarkToMarketShortTracksLow(t *testing.T) {
	pos := &domain.Position{
		Ticker: "TEST", Side: domain.SideShort,
		EntryPrice: 100, Qty: 10, HighestPrice: 100,
	}
	markToMarket(pos, domain.Bar{Close: 95, High: 98, Low: 94})
	if pos.HighestPrice != 94 {
		t.Errorf("short ratchet = %v, want lowest low 94", pos.HighestPrice)
	}
	if pos.UnrealizedPnL != 50 {
		t.Errorf("UnrealizedPnL = %v, want 50", pos.UnrealizedPnL)
	}
}

func TestRatchetTrailingStop(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, HighestPrice: 110}
	ratchetTrailingStop(pos, 5)
	if pos.TrailingStop == nil || math.Abs(*pos.TrailingStop-104.5) > 1e-9 {
		t.Fatalf("trailing stop = %v, want 104.5", pos.TrailingStop)
	}

	// Higher high tightens the stop.
	pos.HighestPrice = 120
	ratchetTrailingStop(pos, 5)
	if math.Abs(*pos.TrailingStop-114) > 1e-9 {
		t.Errorf("trailing stop = %v, want 114 after new high", *pos.TrailingStop)
	}

	// It never loosens.
	pos.HighestPrice = 100
	ratchetTrailingStop(pos, 5)
	if math.Abs(*pos.TrailingStop-114) > 1e-9 {
		t.Errorf("trailing stop = %v, must not loosen below 114", *pos.TrailingStop)
	}
}

func TestCheckRiskExitPriority(t *testing.T) {
	// Trailing stop outranks stop-loss, which outranks take-profit, so a
	// single bar can only ever produce one exit.
	pos := &domain.Position{
		Side:         domain.SideLong,
		TrailingStop: f64(100),
		StopLoss:     f64(99),
		TakeProfit:   f64(98), // absurd target below price to force overlap
	}
	bar := domain.Bar{Close: 98.5, High: 101, Low: 99.5}

	reason, exit := checkRiskExit(pos, bar)
	if !exit || reason != domain.ExitTrailingStop {
		t.Errorf("reason = %v, want TRAILING_STOP to win the priority order", reason)
	}

	pos.TrailingStop = nil
	reason, _ = checkRiskExit(pos, bar)
	if reason != domain.ExitStopLoss {
		t.Errorf("reason = %v, want STOP_LOSS once trailing is gone", reason)
	}

	pos.StopLoss = nil
	reason, _ = checkRiskExit(pos, bar)
	if reason != domain.ExitTakeProfit {
		t.Errorf("reason = %v, want TAKE_PROFIT once stops are gone", reason)
	}
}

func TestCheckRiskExitShortMirrored(t *testing.T) {
	pos := &domain.Position{
		Side:     domain.SideShort,
		StopLoss: f64(105),
	}
	if reason, exit := checkRiskExit(pos, domain.Bar{Close: 106, High: 106.5, Low: 104}); !exit || reason != domain.ExitStopLoss {
		t.Errorf("short stop above entry should fire on rising close, got %v/%v", reason, exit)
	}
	if _, exit := checkRiskExit(pos, domain.Bar{Close: 104, High: 104.5, Low: 103}); exit {
		t.Error("short stop should not fire while close stays below the level")
	}
}

func TestExitCreditLongMatchesInvariant(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, EntryPrice: 101, Qty: 99}
	// For longs the credit must be exactly exitFill*qty - commission.
	if got, want := exitCredit(pos, 104, 1), 104.0*99-1; math.Abs(got-want) > 1e-9 {
		t.Errorf("exitCredit = %v, want %v", got, want)
	}
}

func TestAffordableQty(t *testing.T) {
	if got := affordableQty(10000, 101, 1); got != 99 {
		t.Errorf("affordableQty = %v, want 99", got)
	}
	if got := affordableQty(50, 101, 1); got != 0 {
		t.Errorf("affordableQty = %v, want 0 when cash is insufficient", got)
	}
}
