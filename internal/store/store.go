// Package store persists bar data as Parquet files and research-iteration
// history in SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"alphaloop/internal/backtest"
	"alphaloop/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, merging with any existing data.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given ticker within [start, end],
	// strictly ascending by timestamp. An empty result is not an error.
	ReadBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error)

	// ListTickers returns all distinct tickers with stored bar data.
	ListTickers(ctx context.Context) ([]string, error)
}

// Iteration is one completed research-loop pass: the signal counts, the
// winning template, and the winner's trade ledger, equity curve, and metrics.
type Iteration struct {
	ID              string               `json:"id"`
	AgentName       string               `json:"agent_name"`
	CreatedAt       time.Time            `json:"created_at"`
	Status          string               `json:"status"`
	Error           string               `json:"error,omitempty"`
	WinnerID        string               `json:"winner_template_id"`
	RawSignals      int                  `json:"raw_signals"`
	FilteredSignals int                  `json:"filtered_signals"`
	Metrics         backtest.Metrics     `json:"metrics"`
	Trades          []domain.Trade       `json:"trades"`
	EquityCurve     []domain.EquityPoint `json:"equity_curve"`
}

// IterationStore persists research-iteration records by id.
type IterationStore interface {
	// SaveIteration inserts the record, assigning an id and creation time
	// when unset.
	SaveIteration(ctx context.Context, it *Iteration) error

	// GetIteration retrieves one record by id; ErrNotFound when absent.
	GetIteration(ctx context.Context, id string) (*Iteration, error)

	// ListIterations returns the most recent records, newest first.
	ListIterations(ctx context.Context, limit int) ([]Iteration, error)
}
