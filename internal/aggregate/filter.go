package aggregate

import (
	"sort"

	"alphaloop/internal/config"
	"alphaloop/internal/domain"
)

// FilterSignals reduces a raw scan output to a bounded, diversified working
// set. The pipeline order is fixed:
//
//  1. drop signals below the minimum pattern strength
//  2. per (ticker, date) keep only the top-K by strength
//  3. cap the number of signals admitted per unique date, tracked with a
//     running counter so the cap is exact regardless of group order
//  4. sort by strength descending and take the global top-N
//
// The input slice is never mutated.
func FilterSignals(signals []domain.Signal, cfg config.AggregatorConfig) []domain.Signal {
	quality := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		if s.PatternStrength >= cfg.MinPatternStrength {
			quality = append(quality, s)
		}
	}

	// Group by (ticker, date) and keep the strongest K of each group.
	type groupKey struct {
		ticker string
		date   string
	}
	groups := make(map[groupKey][]domain.Signal)
	for _, s := range quality {
		k := groupKey{ticker: s.Ticker, date: s.Date}
		groups[k] = append(groups[k], s)
	}

	perDate := make(map[string]int)
	diversified := make([]domain.Signal, 0, len(quality))
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].PatternStrength > group[j].PatternStrength
		})
		if cfg.MaxPerTickerDate > 0 && len(group) > cfg.MaxPerTickerDate {
			group = group[:cfg.MaxPerTickerDate]
		}
		for _, s := range group {
			if cfg.MaxPerDate > 0 && perDate[s.Date] >= cfg.MaxPerDate {
				continue
			}
			perDate[s.Date]++
			diversified = append(diversified, s)
		}
	}

	sort.SliceStable(diversified, func(i, j int) bool {
		return diversified[i].PatternStrength > diversified[j].PatternStrength
	})
	if cfg.MaxSignalsPerIteration > 0 && len(diversified) > cfg.MaxSignalsPerIteration {
		diversified = diversified[:cfg.MaxSignalsPerIteration]
	}
	return diversified
}

// signalsByTicker splits a filtered signal set into per-ticker slices so each
// ticker's signals gate one batched simulation rather than one run per signal.
func signalsByTicker(signals []domain.Signal) map[string][]domain.Signal {
	out := make(map[string][]domain.Signal)
	for _, s := range signals {
		out[s.Ticker] = append(out[s.Ticker], s)
	}
	return out
}
