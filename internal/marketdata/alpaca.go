package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"alphaloop/internal/config"
	"alphaloop/internal/domain"
	"alphaloop/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches historical bars from the Alpaca market-data API.
// Requests are rate limited and retried with backoff. Earnings events come
// from the configured JSON calendar file, since Alpaca has no earnings
// endpoint.
type AlpacaProvider struct {
	client   *marketdata.Client
	earnings *FileEarningsSource
	limiter  *util.RateLimiter
}

// NewAlpacaProvider builds a provider from the Alpaca configuration section.
func NewAlpacaProvider(cfg config.Alpaca) (*AlpacaProvider, error) {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}

	earnings, err := NewFileEarningsSource(cfg.EarningsPath)
	if err != nil {
		return nil, err
	}

	return &AlpacaProvider{
		client:   marketdata.NewClient(opts),
		earnings: earnings,
		limiter:  util.NewRateLimiter(200), // free-tier API budget
	}, nil
}

// GetBars fetches bars for one ticker and converts them into domain bars
// with the exchange-local time of day attached.
func (p *AlpacaProvider) GetBars(ctx context.Context, ticker string, tf Timeframe, start, end time.Time) ([]domain.Bar, error) {
	timeFrame, err := alpacaTimeFrame(tf)
	if err != nil {
		return nil, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw []marketdata.Bar
	err = util.Retry(ctx, 3, time.Second, func() error {
		var fetchErr error
		raw, fetchErr = p.client.GetBars(strings.ToUpper(ticker), marketdata.GetBarsRequest{
			TimeFrame: timeFrame,
			Start:     start,
			End:       end,
			Feed:      "sip",
		})
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars for %s: %w", tf, ticker, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Ticker:    strings.ToUpper(ticker),
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
			TimeOfDay: util.TimeOfDay(ab.Timestamp),
		})
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// GetEarningsEvents serves events from the JSON calendar file.
func (p *AlpacaProvider) GetEarningsEvents(_ context.Context, ticker string, start, end time.Time) ([]domain.EarningsEvent, error) {
	return p.earnings.Events(strings.ToUpper(ticker), start, end), nil
}

// alpacaTimeFrame maps the provider timeframe to the SDK's bar interval.
func alpacaTimeFrame(tf Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case TimeframeMinute:
		return marketdata.OneMin, nil
	case TimeframeHour:
		return marketdata.OneHour, nil
	case TimeframeDay:
		return marketdata.OneDay, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", tf)
	}
}
