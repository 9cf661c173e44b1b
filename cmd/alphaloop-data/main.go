package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"alphaloop/internal/config"
	"alphaloop/internal/marketdata"
	"alphaloop/internal/store"
	"alphaloop/internal/util"
)

func main() {
	var (
		tickersArg = flag.String("tickers", "", "comma-separated tickers to fetch (required)")
		startStr   = flag.String("start", "", "start date YYYY-MM-DD (required)")
		endStr     = flag.String("end", "", "end date YYYY-MM-DD (required)")
		timeframe  = flag.String("timeframe", "1Min", "bar interval: 1Min, 1Hour, 1Day")
	)
	flag.Parse()

	if *tickersArg == "" || *startStr == "" || *endStr == "" {
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

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca credentials are required (APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
	}

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endStr)
	if err != nil {
		log.Fatalf("invalid end date: %v", err)
	}
	end = end.Add(24*time.Hour - time.Nanosecond)

	provider, err := marketdata.NewAlpacaProvider(cfg.Alpaca)
	if err != nil {
		log.Fatalf("creating alpaca provider: %v", err)
	}
	barStore := store.NewParquetStore(cfg.Storage.DataDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tickers := strings.Split(*tickersArg, ",")
	runStart := time.Now()
	var total int

	for _, ticker := range tickers {
		ticker = strings.TrimSpace(strings.ToUpper(ticker))
		if ticker == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		bars, err := provider.GetBars(ctx, ticker, marketdata.Timeframe(*timeframe), start, end)
		if err != nil {
			logger.Error("fetching bars", "ticker", ticker, "error", err)
			continue
		}
		if len(bars) == 0 {
			logger.Warn("no bars returned", "ticker", ticker)
			continue
		}
		if err := barStore.WriteBars(ctx, bars); err != nil {
			logger.Error("writing bars", "ticker", ticker, "error", err)
			continue
		}

		total += len(bars)
		logger.Info("ticker done", "ticker", ticker, "bars", len(bars))
	}

	logger.Info("complete", "tickers", len(tickers), "bars", total,
		"elapsed", time.Since(runStart).Round(time.Second))
}
