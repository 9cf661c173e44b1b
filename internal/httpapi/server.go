// Package httpapi exposes the research loop over HTTP: one-shot backtests,
// full research aggregations, and stored iteration history.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"alphaloop/internal/aggregate"
	"alphaloop/internal/backtest"
	"alphaloop/internal/config"
	"alphaloop/internal/domain"
	"alphaloop/internal/marketdata"
	"alphaloop/internal/store"
)

// Server serves the research HTTP API.
type Server struct {
	provider   marketdata.Provider
	iterations store.IterationStore
	aggregator *aggregate.Aggregator
	defaults   config.BacktestConfig
	log        *slog.Logger
}

// NewServer creates the API server with its collaborators.
func NewServer(provider marketdata.Provider, iterations store.IterationStore, aggregator *aggregate.Aggregator, defaults config.BacktestConfig, log *slog.Logger) *Server {
	return &Server{
		provider:   provider,
		iterations: iterations,
		aggregator: aggregator,
		defaults:   defaults,
		log:        log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/research", s.handleResearch)
	mux.HandleFunc("GET /api/iterations", s.handleListIterations)
	mux.HandleFunc("GET /api/iterations/{id}", s.handleGetIteration)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleBacktest runs one simulation. A FAILED run is still a 200 with the
// well-formed zero result; only malformed requests and data-fetch problems
// map to error statuses.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Ticker == "" || req.Rules == nil {
		writeError(w, http.StatusBadRequest, "ticker and rules are required")
		return
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	bars, err := s.provider.GetBars(ctx, req.Ticker, req.Timeframe, start, end)
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetching bars: "+err.Error())
		return
	}
	earnings, err := s.provider.GetEarningsEvents(ctx, req.Ticker, start, end)
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetching earnings: "+err.Error())
		return
	}

	cfg := backtest.Config{
		Ticker:                 req.Ticker,
		InitialCapital:         orDefault(req.InitialCapital, s.defaults.InitialCapital),
		Commission:             orDefault(req.Commission, s.defaults.Commission),
		SlippagePct:            orDefault(req.SlippagePct, s.defaults.SlippagePct),
		MaxConcurrentPositions: req.MaxConcurrentPositions,
		Sizing:                 req.Sizing,
		Risk:                   req.Risk,
		Indicators:             req.Indicators,
		Signals:                req.Signals,
		Earnings:               earnings,
	}
	if cfg.MaxConcurrentPositions == 0 {
		cfg.MaxConcurrentPositions = s.defaults.MaxConcurrentPositions
	}
	if req.DependencyTicker != "" {
		depBars, err := s.provider.GetBars(ctx, req.DependencyTicker, req.Timeframe, start, end)
		if err != nil {
			writeError(w, http.StatusBadGateway, "fetching dependency bars: "+err.Error())
			return
		}
		cfg.DependencyTicker = req.DependencyTicker
		cfg.DependencyBars = depBars
	}

	res := backtest.Run(ctx, bars, backtest.DeclarativeStrategy(req.Rules), cfg)
	if res.Status == backtest.StatusFailed {
		s.log.Warn("backtest failed", "ticker", req.Ticker, "error", res.Error)
	}
	writeJSON(w, res)
}

// handleResearch filters the signal set, runs the aggregation across all
// templates, persists the iteration, and returns the ranked result.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Templates) == 0 {
		writeError(w, http.StatusBadRequest, "at least one template is required")
		return
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	templates := make([]aggregate.Template, 0, len(req.Templates))
	for _, t := range req.Templates {
		if t.Rules == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("template %s: rules are required", t.ID))
			return
		}
		templates = append(templates, aggregate.Template{
			ID:         t.ID,
			Name:       t.Name,
			Strategy:   backtest.DeclarativeStrategy(t.Rules),
			Sizing:     t.Sizing,
			Risk:       t.Risk,
			Indicators: t.Indicators,
		})
	}

	ctx := r.Context()
	in := aggregate.Input{
		Signals:   req.Signals,
		Templates: templates,
		Bars:      map[string][]domain.Bar{},
		Earnings:  map[string][]domain.EarningsEvent{},
	}

	for _, ticker := range signalTickers(req.Signals) {
		bars, err := s.provider.GetBars(ctx, ticker, req.Timeframe, start, end)
		if err != nil {
			// Missing data for one ticker is non-fatal; that candidate slice
			// simply contributes nothing.
			s.log.Warn("fetching bars", "ticker", ticker, "error", err)
			continue
		}
		in.Bars[ticker] = bars
		if earnings, err := s.provider.GetEarningsEvents(ctx, ticker, start, end); err == nil {
			in.Earnings[ticker] = earnings
		}
	}
	if req.DependencyTicker != "" {
		depBars, err := s.provider.GetBars(ctx, req.DependencyTicker, req.Timeframe, start, end)
		if err != nil {
			writeError(w, http.StatusBadGateway, "fetching dependency bars: "+err.Error())
			return
		}
		in.DependencyTicker = req.DependencyTicker
		in.DependencyBars = depBars
	}

	res := s.aggregator.Run(ctx, in)

	it := &store.Iteration{
		AgentName:       req.AgentName,
		Status:          string(backtest.StatusCompleted),
		RawSignals:      res.RawSignals,
		FilteredSignals: res.FilteredSignals,
		Trades:          []domain.Trade{},
		EquityCurve:     []domain.EquityPoint{},
	}
	if res.Winner != nil {
		it.WinnerID = res.Winner.TemplateID
		it.Metrics = res.Winner.Metrics
		it.Trades = res.Winner.Trades
		it.EquityCurve = res.Winner.EquityCurve
	}
	if err := s.iterations.SaveIteration(ctx, it); err != nil {
		writeError(w, http.StatusInternalServerError, "persisting iteration: "+err.Error())
		return
	}

	s.log.Info("research iteration complete",
		"iteration", it.ID, "agent", req.AgentName,
		"raw_signals", res.RawSignals, "filtered", res.FilteredSignals,
		"winner", it.WinnerID)

	writeJSON(w, ResearchResponse{IterationID: it.ID, Result: res})
}

// handleGetIteration returns one stored iteration by id.
func (s *Server) handleGetIteration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	it, err := s.iterations.GetIteration(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "iteration not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, it)
}

// handleListIterations returns recent iterations, newest first.
func (s *Server) handleListIterations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	iterations, err := s.iterations.ListIterations(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if iterations == nil {
		iterations = []store.Iteration{}
	}
	writeJSON(w, iterations)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseRange parses the inclusive "2006-01-02" date range of a request; the
// end date extends to the end of its day.
func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q", startStr)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q", endStr)
	}
	end = end.Add(24*time.Hour - time.Nanosecond)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %q before start %q", endStr, startStr)
	}
	return start, end, nil
}

// signalTickers returns the distinct tickers in a signal list, in first-seen
// order.
func signalTickers(signals []domain.Signal) []string {
	seen := make(map[string]struct{})
	var tickers []string
	for _, s := range signals {
		if _, ok := seen[s.Ticker]; ok {
			continue
		}
		seen[s.Ticker] = struct{}{}
		tickers = append(tickers, s.Ticker)
	}
	return tickers
}

func orDefault(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}
