package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"alphaloop/internal/backtest"
	"alphaloop/internal/config"
	"alphaloop/internal/indicator"
	"alphaloop/internal/marketdata"
	"alphaloop/internal/store"
	"alphaloop/internal/util"
)

// strategyFile is the JSON shape of a declarative strategy definition.
type strategyFile struct {
	Rules      *backtest.RuleSet     `json:"rules"`
	Sizing     backtest.SizingConfig `json:"sizing"`
	Risk       backtest.RiskConfig   `json:"risk"`
	Indicators []indicator.Spec      `json:"indicators,omitempty"`
}

func main() {
	var (
		ticker       = flag.String("ticker", "", "ticker to simulate (required)")
		startStr     = flag.String("start", "", "start date YYYY-MM-DD (required)")
		endStr       = flag.String("end", "", "end date YYYY-MM-DD (required)")
		timeframe    = flag.String("timeframe", "1Min", "bar interval: 1Min, 1Hour, 1Day")
		strategyPath = flag.String("strategy", "", "path to a JSON strategy definition (required)")
		capital      = flag.Float64("capital", 0, "initial capital (default from config)")
	)
	flag.Parse()

	if *ticker == "" || *startStr == "" || *endStr == "" || *strategyPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfgPath := "config/alphaloop.yaml"
	if p := os.Getenv("ALPHALOOP_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, "text")
	util.SetDefault(logger)

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endStr)
	if err != nil {
		log.Fatalf("invalid end date: %v", err)
	}
	end = end.Add(24*time.Hour - time.Nanosecond)

	data, err := os.ReadFile(*strategyPath)
	if err != nil {
		log.Fatalf("reading strategy file: %v", err)
	}
	var strat strategyFile
	if err := json.Unmarshal(data, &strat); err != nil {
		log.Fatalf("parsing strategy file: %v", err)
	}
	if strat.Rules == nil {
		log.Fatalf("strategy file %s has no rules", *strategyPath)
	}

	barStore := store.NewParquetStore(cfg.Storage.DataDir)
	earnings, err := marketdata.NewFileEarningsSource(cfg.Alpaca.EarningsPath)
	if err != nil {
		log.Fatalf("loading earnings calendar: %v", err)
	}
	provider := marketdata.NewStoreProvider(barStore, earnings)

	ctx := context.Background()
	bars, err := provider.GetBars(ctx, *ticker, marketdata.Timeframe(*timeframe), start, end)
	if err != nil {
		log.Fatalf("reading bars: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("no bars for %s in %s..%s — run alphaloop-data first", *ticker, *startStr, *endStr)
	}
	events, err := provider.GetEarningsEvents(ctx, *ticker, start, end)
	if err != nil {
		log.Fatalf("reading earnings: %v", err)
	}

	initialCapital := cfg.Backtest.InitialCapital
	if *capital > 0 {
		initialCapital = *capital
	}

	runCfg := backtest.Config{
		Ticker:                 *ticker,
		InitialCapital:         initialCapital,
		Commission:             cfg.Backtest.Commission,
		SlippagePct:            cfg.Backtest.SlippagePct,
		MaxConcurrentPositions: cfg.Backtest.MaxConcurrentPositions,
		Sizing:                 strat.Sizing,
		Risk:                   strat.Risk,
		Indicators:             strat.Indicators,
		Earnings:               events,
	}

	logger.Info("running backtest", "ticker", *ticker, "bars", len(bars),
		"start", *startStr, "end", *endStr)

	res := backtest.Run(ctx, bars, backtest.DeclarativeStrategy(strat.Rules), runCfg)
	if res.Status == backtest.StatusFailed {
		log.Fatalf("backtest failed: %s", res.Error)
	}

	printSummary(res, initialCapital)
}

func printSummary(res *backtest.Result, initialCapital float64) {
	m := res.Metrics
	fmt.Printf("\n%s: %d trades, %.2f → %.2f\n", res.Ticker, m.TotalTrades, initialCapital, res.FinalEquity)
	fmt.Printf("  total return    %10.2f (%.2f%%)\n", m.TotalReturn, m.TotalReturnPct)
	fmt.Printf("  win rate        %10.1f%%  (%d W / %d L)\n", m.WinRate, m.WinningTrades, m.LosingTrades)
	fmt.Printf("  profit factor   %10.2f\n", m.ProfitFactor)
	fmt.Printf("  expectancy      %10.2f\n", m.Expectancy)
	fmt.Printf("  max drawdown    %10.2f (%.2f%%)\n", m.MaxDrawdown, m.MaxDrawdownPct)
	fmt.Printf("  sharpe/sortino  %10.2f / %.2f\n", m.SharpeRatio, m.SortinoRatio)
	fmt.Printf("  avg win/loss    %10.2f / %.2f\n", m.AvgWin, m.AvgLoss)
	fmt.Printf("  avg duration    %10.1f bars\n", m.AvgDurationBars)

	for _, tr := range res.Trades {
		fmt.Printf("  %s %-5s %s  %8.2f → %8.2f  qty %6.0f  pnl %9.2f  %s\n",
			tr.EntryTime.Format("2006-01-02 15:04"), tr.Side, tr.Ticker,
			tr.EntryPrice, tr.ExitPrice, tr.Qty, tr.PnL, tr.ExitReason)
	}
}
