package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alphaloop/internal/aggregate"
	"alphaloop/internal/config"
	"alphaloop/internal/httpapi"
	"alphaloop/internal/marketdata"
	"alphaloop/internal/store"
	"alphaloop/internal/util"
)

func main() {
	cfgPath := "config/alphaloop.yaml"
	if p := os.Getenv("ALPHALOOP_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	barStore := store.NewParquetStore(cfg.Storage.DataDir)
	iterations, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening iteration store: %v", err)
	}
	defer iterations.Close()

	// Market data comes from the local Parquet store when no Alpaca
	// credentials are configured.
	var provider marketdata.Provider
	if cfg.Alpaca.APIKey != "" {
		provider, err = marketdata.NewAlpacaProvider(cfg.Alpaca)
		if err != nil {
			log.Fatalf("creating alpaca provider: %v", err)
		}
		logger.Info("market data source", "provider", "alpaca")
	} else {
		earnings, err := marketdata.NewFileEarningsSource(cfg.Alpaca.EarningsPath)
		if err != nil {
			log.Fatalf("loading earnings calendar: %v", err)
		}
		provider = marketdata.NewStoreProvider(barStore, earnings)
		logger.Info("market data source", "provider", "store", "dataDir", cfg.Storage.DataDir)
	}

	aggregator := aggregate.New(cfg.Aggregator, cfg.Backtest, logger)
	api := httpapi.NewServer(provider, iterations, aggregator, cfg.Backtest, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("alphaloop-server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
