package marketdata

import (
	"context"
	"strings"
	"time"

	"alphaloop/internal/domain"
	"alphaloop/internal/store"
)

// Compile-time interface check.
var _ Provider = (*StoreProvider)(nil)

// StoreProvider serves bars from the local Parquet store instead of a remote
// API. Stored bars keep whatever interval they were gathered at, so the
// timeframe argument is not re-sampled; callers are expected to request the
// interval they stored.
type StoreProvider struct {
	bars     store.BarStore
	earnings *FileEarningsSource
}

// NewStoreProvider wraps a bar store and an optional earnings calendar.
func NewStoreProvider(bars store.BarStore, earnings *FileEarningsSource) *StoreProvider {
	if earnings == nil {
		earnings = &FileEarningsSource{}
	}
	return &StoreProvider{bars: bars, earnings: earnings}
}

// GetBars reads bars from the store for the given range.
func (p *StoreProvider) GetBars(ctx context.Context, ticker string, _ Timeframe, start, end time.Time) ([]domain.Bar, error) {
	return p.bars.ReadBars(ctx, strings.ToUpper(ticker), start, end)
}

// GetEarningsEvents serves events from the attached calendar.
func (p *StoreProvider) GetEarningsEvents(_ context.Context, ticker string, start, end time.Time) ([]domain.EarningsEvent, error) {
	return p.earnings.Events(strings.ToUpper(ticker), start, end), nil
}
