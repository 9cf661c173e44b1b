// Package aggregate runs the simulation engine across many candidate
// execution templates against a shared, filtered signal set and ranks the
// candidates by profit factor. Individual candidate failures are folded into
// zero-trade results; the aggregation itself never fails.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"alphaloop/internal/backtest"
	"alphaloop/internal/config"
	"alphaloop/internal/domain"
	"alphaloop/internal/indicator"
)

// Template is one candidate execution strategy variant. Templates are
// independently generated; the aggregator treats them as opaque competitors.
type Template struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Strategy   backtest.Strategy     `json:"-"`
	Sizing     backtest.SizingConfig `json:"sizing"`
	Risk       backtest.RiskConfig   `json:"risk"`
	Indicators []indicator.Spec      `json:"indicators,omitempty"`
}

// TemplateResult is the folded outcome of one candidate across every ticker
// it was simulated on.
type TemplateResult struct {
	TemplateID  string               `json:"template_id"`
	Name        string               `json:"name"`
	Trades      []domain.Trade       `json:"trades"`
	EquityCurve []domain.EquityPoint `json:"equity_curve"`
	Metrics     backtest.Metrics     `json:"metrics"`
	Failures    int                  `json:"failures"` // candidate×ticker runs that errored or timed out
}

// Input carries one aggregation request. Bars and signals are shared
// read-only across all concurrent candidate runs; the aggregator never
// mutates them.
type Input struct {
	Signals   []domain.Signal // raw scan output, pre-filter
	Templates []Template
	Custom    *Template // optional non-template strategy, competes as an equal candidate

	Bars             map[string][]domain.Bar // per ticker, ascending
	DependencyTicker string
	DependencyBars   []domain.Bar
	Earnings         map[string][]domain.EarningsEvent
}

// Result is the ranked outcome of one aggregation. With zero candidates the
// result is well formed: empty ranking, nil winner, never an error.
type Result struct {
	RawSignals      int              `json:"raw_signals"`
	FilteredSignals int              `json:"filtered_signals"`
	Results         []TemplateResult `json:"results"` // profit factor descending
	Winner          *TemplateResult  `json:"winner,omitempty"`
}

// Aggregator orchestrates candidate simulations under explicit limits. It
// holds no mutable state between calls.
type Aggregator struct {
	cfg  config.AggregatorConfig
	base config.BacktestConfig
	log  *slog.Logger
}

func New(cfg config.AggregatorConfig, base config.BacktestConfig, log *slog.Logger) *Aggregator {
	return &Aggregator{cfg: cfg, base: base, log: log}
}

// Run filters the signal set, simulates every candidate against it, and
// returns the candidates ranked by profit factor descending. Ties preserve
// declaration order. Per-candidate errors and timeouts contribute zero trades
// and are counted, not propagated.
func (a *Aggregator) Run(ctx context.Context, in Input) *Result {
	filtered := FilterSignals(in.Signals, a.cfg)
	byTicker := signalsByTicker(filtered)

	candidates := make([]Template, 0, len(in.Templates)+1)
	candidates = append(candidates, in.Templates...)
	if in.Custom != nil {
		candidates = append(candidates, *in.Custom)
	}

	out := &Result{
		RawSignals:      len(in.Signals),
		FilteredSignals: len(filtered),
		Results:         []TemplateResult{},
	}
	if len(candidates) == 0 {
		return out
	}

	// Tickers in sorted order so job indexing is deterministic.
	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		if len(in.Bars[t]) > 0 {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)

	type job struct {
		candidate int
		ticker    string
	}
	jobs := make([]job, 0, len(candidates)*len(tickers))
	for ci := range candidates {
		for _, t := range tickers {
			jobs = append(jobs, job{candidate: ci, ticker: t})
		}
	}

	// One simulation per candidate×ticker, batched over that ticker's whole
	// signal set. Runs are independent; each owns its state exclusively.
	workers := a.cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	runs := make([]*backtest.Result, len(jobs))
	sem := make(chan struct{}, workers)
	timeout := time.Duration(a.cfg.CandidateTimeoutSeconds) * time.Second

	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		cand := candidates[j.candidate]
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			runCtx := gctx
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}

			cfg := backtest.Config{
				Ticker:                 j.ticker,
				InitialCapital:         a.base.InitialCapital,
				Commission:             a.base.Commission,
				SlippagePct:            a.base.SlippagePct,
				MaxConcurrentPositions: a.base.MaxConcurrentPositions,
				Sizing:                 cand.Sizing,
				Risk:                   cand.Risk,
				Indicators:             cand.Indicators,
				Signals:                byTicker[j.ticker],
				DependencyTicker:       in.DependencyTicker,
				DependencyBars:         in.DependencyBars,
				Earnings:               in.Earnings[j.ticker],
			}
			runs[i] = backtest.Run(runCtx, in.Bars[j.ticker], cand.Strategy, cfg)
			return nil
		})
	}
	g.Wait() // workers never return errors; failures live in the run results

	// Fold per candidate.
	results := make([]TemplateResult, len(candidates))
	for ci, cand := range candidates {
		results[ci] = TemplateResult{
			TemplateID: cand.ID,
			Name:       cand.Name,
			Trades:     []domain.Trade{},
		}
	}
	for i, j := range jobs {
		run := runs[i]
		tr := &results[j.candidate]
		if run == nil || run.Status == backtest.StatusFailed {
			tr.Failures++
			errMsg := "no result"
			if run != nil {
				errMsg = run.Error
			}
			a.log.Warn("candidate run failed",
				"template", tr.TemplateID, "ticker", j.ticker, "error", errMsg)
			continue
		}
		tr.Trades = append(tr.Trades, run.Trades...)
	}
	for ci := range results {
		curve := realizedCurve(a.base.InitialCapital, results[ci].Trades)
		finalEquity := a.base.InitialCapital
		if len(curve) > 0 {
			finalEquity = curve[len(curve)-1].Equity
		}
		results[ci].EquityCurve = curve
		results[ci].Metrics = backtest.ComputeMetrics(a.base.InitialCapital, finalEquity, results[ci].Trades, curve)
	}

	// Rank by profit factor descending; the stable sort keeps declaration
	// order on ties, which makes the ranking deterministic.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Metrics.ProfitFactor > results[j].Metrics.ProfitFactor
	})

	out.Results = results
	out.Winner = &results[0]
	return out
}

// realizedCurve rebuilds a candidate's equity curve from realized P&L at
// trade exit times. The per-ticker simulation curves do not share a clock,
// so the fold works from the closed-trade ledger instead.
func realizedCurve(initialCapital float64, trades []domain.Trade) []domain.EquityPoint {
	if len(trades) == 0 {
		return []domain.EquityPoint{}
	}

	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	curve := make([]domain.EquityPoint, 0, len(sorted)+1)
	equity := initialCapital
	curve = append(curve, domain.EquityPoint{
		Timestamp: sorted[0].EntryTime,
		Equity:    equity,
		Cash:      equity,
	})
	for _, t := range sorted {
		equity += t.PnL
		curve = append(curve, domain.EquityPoint{
			Timestamp: t.ExitTime,
			Equity:    equity,
			Cash:      equity,
		})
	}
	return curve
}
