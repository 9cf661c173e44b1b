package domain

import "testing"

func TestPositionComputeUnrealizedPnL(t *testing.T) {
	tests := []struct {
		name string
		side Side
		entry, current, qty float64
		want float64
	}{
		{"long gain", SideLong, 100, 110, 10, 100},
		{"long loss", SideLong, 100, 95, 10, -50},
		{"short gain", SideShort, 100, 90, 10, 100},
		{"short loss", SideShort, 100, 105, 10, -50},
		{"flat", SideLong, 100, 100, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{Side: tt.side, EntryPrice: tt.entry, CurrentPrice: tt.current, Qty: tt.qty}
			if got := p.ComputeUnrealizedPnL(); got != tt.want {
				t.Errorf("ComputeUnrealizedPnL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPositionMarketValue(t *testing.T) {
	p := &Position{CurrentPrice: 25.5, Qty: 4}
	if got := p.MarketValue(); got != 102 {
		t.Errorf("MarketValue() = %v, want 102", got)
	}
}

func TestExitReasonValues(t *testing.T) {
	// The exit reason enum is part of the persisted record shape; these
	// literals must not drift.
	want := map[ExitReason]string{
		ExitSignal:       "SIGNAL",
		ExitStopLoss:     "STOP_LOSS",
		ExitTakeProfit:   "TAKE_PROFIT",
		ExitTrailingStop: "TRAILING_STOP",
		ExitEndOfPeriod:  "END_OF_PERIOD",
	}
	for reason, s := range want {
		if string(reason) != s {
			t.Errorf("exit reason %v = %q, want %q", reason, string(reason), s)
		}
	}
}

func TestZeroValueBar(t *testing.T) {
	bar := Bar{}
	if bar.Ticker != "" || !bar.Timestamp.IsZero() {
		t.Error("zero-value Bar should have empty ticker and zero timestamp")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 || bar.Volume != 0 {
		t.Error("zero-value Bar should have zero OHLCV")
	}
}

func TestSignalConstruction(t *testing.T) {
	sig := Signal{
		Ticker:          "AAPL",
		Date:            "2025-11-14",
		Time:            "09:35",
		PatternStrength: 8.5,
		Metrics:         map[string]float64{"gap_percent": -2.1},
	}
	if sig.PatternStrength != 8.5 {
		t.Errorf("sig.PatternStrength = %v, want 8.5", sig.PatternStrength)
	}
	if _, ok := sig.Metrics["gap_percent"]; !ok {
		t.Error("expected gap_percent metric to be present")
	}
}
