package util

import (
	"sync"
	"time"
)

var (
	marketLocOnce sync.Once
	marketLoc     *time.Location
)

// MarketLocation returns the US equity exchange timezone (America/New_York).
// If the tzdata lookup fails it falls back to a fixed EST offset so session
// grouping still behaves deterministically.
func MarketLocation() *time.Location {
	marketLocOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("EST", -5*60*60)
		}
		marketLoc = loc
	})
	return marketLoc
}

// SessionDate returns the trading-session calendar date ("2006-01-02") of t
// in the exchange timezone. One session per calendar date; intraday series
// spanning several dates span several sessions.
func SessionDate(t time.Time) string {
	return t.In(MarketLocation()).Format("2006-01-02")
}

// SameSession reports whether two timestamps fall in the same trading
// session. Session-cumulative indicators (VWAP) reset when this turns false.
func SameSession(a, b time.Time) bool {
	return SessionDate(a) == SessionDate(b)
}

// TimeOfDay formats t as "15:04" in the exchange timezone, the time-of-day
// string carried on bars and signals.
func TimeOfDay(t time.Time) string {
	return t.In(MarketLocation()).Format("15:04")
}
