package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"alphaloop/internal/backtest"
	"alphaloop/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.barPath("aapl", 2025)
	want := filepath.Join("/data", "bars", "AAPL", "2025.parquet")
	if got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Ticker:    "AAPL",
			Timestamp: time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC),
			Open:      185.0, High: 186.5, Low: 184.0, Close: 185.5,
			Volume: 50000000, TimeOfDay: "09:30",
		},
		{
			Ticker:    "AAPL",
			Timestamp: time.Date(2025, 1, 2, 14, 31, 0, 0, time.UTC),
			Open:      185.5, High: 187.0, Low: 185.0, Close: 186.0,
			Volume: 45000000, TimeOfDay: "09:31",
		},
	}

	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 || got[1].Close != 186.0 {
		t.Errorf("closes = %v/%v, want 185.5/186.0", got[0].Close, got[1].Close)
	}
	if got[0].TimeOfDay != "09:30" {
		t.Errorf("TimeOfDay = %q, want 09:30", got[0].TimeOfDay)
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("bars must come back strictly ascending")
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	first := []domain.Bar{
		{Ticker: "MSFT", Timestamp: time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC), Open: 400, High: 405, Low: 399, Close: 403, Volume: 3000},
	}
	if err := ps.WriteBars(ctx, first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// A second write for the same ticker+year must merge, not overwrite, and
	// the overlapping timestamp must prefer the incoming record.
	second := []domain.Bar{
		{Ticker: "MSFT", Timestamp: time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC), Open: 400, High: 405, Low: 399, Close: 404, Volume: 3100},
		{Ticker: "MSFT", Timestamp: time.Date(2025, 3, 4, 14, 30, 0, 0, time.UTC), Open: 404, High: 410, Low: 403, Close: 408, Volume: 3500},
	}
	if err := ps.WriteBars(ctx, second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "MSFT", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404 {
		t.Errorf("overlapping bar Close = %v, want the rewritten 404", got[0].Close)
	}
}

func TestParquetStoreReadMissingTicker(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), "NOPE",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("missing data must not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bars for a ticker with no data", len(got))
	}
}

func TestParquetStoreListTickers(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Ticker: "AAPL", Timestamp: time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC), Close: 185.5, Volume: 100},
		{Ticker: "GOOGL", Timestamp: time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC), Close: 140.5, Volume: 100},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	tickers, err := ps.ListTickers(ctx)
	if err != nil {
		t.Fatalf("ListTickers: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "GOOGL" {
		t.Errorf("ListTickers = %v, want [AAPL GOOGL]", tickers)
	}
}

func TestSQLiteStoreSaveGetIteration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	it := &Iteration{
		AgentName:       "momentum-scout",
		Status:          "COMPLETED",
		WinnerID:        "tpl-breakout",
		RawSignals:      120,
		FilteredSignals: 18,
		Metrics:         backtest.Metrics{TotalTrades: 3, WinRate: 66.7, ProfitFactor: 2.1},
		Trades: []domain.Trade{
			{Ticker: "AAPL", Side: domain.SideLong, EntryPrice: 185, ExitPrice: 188, Qty: 10, PnL: 30, ExitReason: domain.ExitTakeProfit},
		},
		EquityCurve: []domain.EquityPoint{
			{Timestamp: time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC), Equity: 10000, Cash: 10000},
		},
	}
	if err := s.SaveIteration(ctx, it); err != nil {
		t.Fatalf("SaveIteration: %v", err)
	}
	if it.ID == "" {
		t.Fatal("SaveIteration must assign an id")
	}
	if it.CreatedAt.IsZero() {
		t.Fatal("SaveIteration must assign a creation time")
	}

	got, err := s.GetIteration(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetIteration: %v", err)
	}
	if got.AgentName != "momentum-scout" || got.WinnerID != "tpl-breakout" {
		t.Errorf("record = %s/%s, want momentum-scout/tpl-breakout", got.AgentName, got.WinnerID)
	}
	if got.Metrics.ProfitFactor != 2.1 {
		t.Errorf("ProfitFactor = %v, want 2.1", got.Metrics.ProfitFactor)
	}
	if len(got.Trades) != 1 || got.Trades[0].ExitReason != domain.ExitTakeProfit {
		t.Errorf("trades did not round-trip: %+v", got.Trades)
	}
	if len(got.EquityCurve) != 1 || got.EquityCurve[0].Equity != 10000 {
		t.Errorf("equity curve did not round-trip: %+v", got.EquityCurve)
	}
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	if _, err := s.GetIteration(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetIteration for missing id = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreListIterations(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		it := &Iteration{
			AgentName: "agent",
			Status:    "COMPLETED",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Trades:    []domain.Trade{},
		}
		if err := s.SaveIteration(ctx, it); err != nil {
			t.Fatalf("SaveIteration %d: %v", i, err)
		}
	}

	got, err := s.ListIterations(ctx, 2)
	if err != nil {
		t.Fatalf("ListIterations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListIterations returned %d records, want 2", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Error("records must come back newest first")
	}
}
