// Package marketdata supplies historical bars and earnings calendars to the
// research loop. Providers are external collaborators behind a narrow
// interface; the engine only ever sees ordered bar slices.
package marketdata

import (
	"context"
	"time"

	"alphaloop/internal/domain"
)

// Timeframe is the bar interval requested from a provider.
type Timeframe string

const (
	TimeframeMinute Timeframe = "1Min"
	TimeframeHour   Timeframe = "1Hour"
	TimeframeDay    Timeframe = "1Day"
)

// Provider fetches historical market data. Implementations must return bars
// strictly ascending by timestamp; an empty result for a quiet range is not
// an error.
type Provider interface {
	// GetBars returns OHLCV bars for the ticker within [start, end].
	GetBars(ctx context.Context, ticker string, tf Timeframe, start, end time.Time) ([]domain.Bar, error)

	// GetEarningsEvents returns earnings calendar entries for the ticker
	// within [start, end].
	GetEarningsEvents(ctx context.Context, ticker string, start, end time.Time) ([]domain.EarningsEvent, error)
}
