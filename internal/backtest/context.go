package backtest

import (
	"sort"
	"time"

	"alphaloop/internal/domain"
	"alphaloop/internal/indicator"
	"alphaloop/internal/util"
)

// EvalContext is the read-only snapshot strategy code receives for one bar.
// It never exposes bars beyond the current index; look-ahead prevention is a
// correctness invariant of the engine, not an optimization.
type EvalContext struct {
	Bar   domain.Bar
	Index int

	// Bars holds the series up to and including the current bar, for
	// lookback. It is a sub-slice of the simulation input; strategies must
	// treat it as read-only.
	Bars []domain.Bar

	// Indicators maps indicator id to its current value. Indicators still
	// warming up at this index are absent from the map.
	Indicators map[string]*indicator.Value

	// Position is the open position for the ticker under simulation, nil
	// when flat.
	Position *domain.Position

	Portfolio domain.PortfolioSnapshot

	// DependencyBar is the nearest dependency-ticker bar at or before the
	// current timestamp, nil when no dependency series is configured or no
	// bar has printed yet.
	DependencyBar *domain.Bar

	// HasEarnings flags an earnings report on the current session date.
	HasEarnings  bool
	EarningsTime string
}

// contextBuilder assembles EvalContexts from the precomputed series. It is
// created once per run.
type contextBuilder struct {
	bars       []domain.Bar
	indicators map[string][]*indicator.Value
	depBars    []domain.Bar
	earnings   map[string]string // session date -> report time
}

func newContextBuilder(bars []domain.Bar, indicators map[string][]*indicator.Value, cfg Config) *contextBuilder {
	earnings := make(map[string]string, len(cfg.Earnings))
	for _, ev := range cfg.Earnings {
		if ev.Ticker == "" || ev.Ticker == cfg.Ticker {
			earnings[ev.ReportDate] = ev.ReportTime
		}
	}
	return &contextBuilder{
		bars:       bars,
		indicators: indicators,
		depBars:    cfg.DependencyBars,
		earnings:   earnings,
	}
}

// build assembles the snapshot for bar index i.
func (b *contextBuilder) build(i int, pos *domain.Position, portfolio domain.PortfolioSnapshot) *EvalContext {
	snapshot := make(map[string]*indicator.Value, len(b.indicators))
	for id, series := range b.indicators {
		if i < len(series) && series[i] != nil {
			snapshot[id] = series[i]
		}
	}

	ctx := &EvalContext{
		Bar:        b.bars[i],
		Index:      i,
		Bars:       b.bars[:i+1],
		Indicators: snapshot,
		Position:   pos,
		Portfolio:  portfolio,
	}

	if dep := b.dependencyBarAt(b.bars[i].Timestamp); dep != nil {
		ctx.DependencyBar = dep
	}

	if t, ok := b.earnings[util.SessionDate(b.bars[i].Timestamp)]; ok {
		ctx.HasEarnings = true
		ctx.EarningsTime = t
	}

	return ctx
}

// dependencyBarAt returns the latest dependency bar with timestamp <= ts.
// Searching backward from the insertion point guarantees the dependency
// series can never leak future data into the context.
func (b *contextBuilder) dependencyBarAt(ts time.Time) *domain.Bar {
	if len(b.depBars) == 0 {
		return nil
	}
	idx := sort.Search(len(b.depBars), func(j int) bool {
		return b.depBars[j].Timestamp.After(ts)
	})
	if idx == 0 {
		return nil
	}
	bar := b.depBars[idx-1]
	return &bar
}
