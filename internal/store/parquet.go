package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"alphaloop/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk, one file per
// ticker and year.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
	TimeOfDay string  `parquet:"time_of_day"`
}

// WriteBars writes bar data to Parquet files organized by ticker and year.
// Each ticker+year combination produces a separate file at:
//
//	<DataDir>/bars/<TICKER>/<YYYY>.parquet
//
// Existing records are merged, deduplicated by timestamp with incoming data
// winning.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		ticker string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{ticker: b.Ticker, year: b.Timestamp.Year()}
		groups[k] = append(groups[k], BarRecord{
			Ticker:    b.Ticker,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			TimeOfDay: b.TimeOfDay,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.ticker, k.year)

		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.ticker, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data for the given ticker and time range. Output is
// strictly ascending by timestamp; a missing file yields an empty result,
// not an error.
func (s *ParquetStore) ReadBars(_ context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[BarRecord](s.barPath(ticker, year))
		if err != nil {
			// No file for this year.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Ticker:    r.Ticker,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
				TimeOfDay: r.TimeOfDay,
			})
		}
	}
	return bars, nil
}

// ListTickers lists all tickers that have bar data.
func (s *ParquetStore) ListTickers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "bars"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/bars/<TICKER>/<YYYY>.parquet
func (s *ParquetStore) barPath(ticker string, year int) string {
	return filepath.Join(s.DataDir, "bars", strings.ToUpper(ticker), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by timestamp, preferring incoming
// records over existing ones. Results are sorted ascending.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
