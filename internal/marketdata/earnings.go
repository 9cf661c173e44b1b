package marketdata

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"alphaloop/internal/domain"
)

// FileEarningsSource serves earnings events from a JSON calendar file. The
// file holds a flat array of events; it is read once and held in memory.
type FileEarningsSource struct {
	events []domain.EarningsEvent
}

// NewFileEarningsSource loads the earnings calendar at path. An empty path
// yields a source with no events, which is valid: earnings context is
// optional.
func NewFileEarningsSource(path string) (*FileEarningsSource, error) {
	if path == "" {
		return &FileEarningsSource{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading earnings calendar %s: %w", path, err)
	}

	var events []domain.EarningsEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parsing earnings calendar %s: %w", path, err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].ReportDate < events[j].ReportDate
	})
	return &FileEarningsSource{events: events}, nil
}

// Events returns the events for a ticker whose report date falls within
// [start, end].
func (s *FileEarningsSource) Events(ticker string, start, end time.Time) []domain.EarningsEvent {
	startDate := start.Format("2006-01-02")
	endDate := end.Format("2006-01-02")

	var out []domain.EarningsEvent
	for _, e := range s.events {
		if e.Ticker != ticker {
			continue
		}
		if e.ReportDate < startDate || e.ReportDate > endDate {
			continue
		}
		out = append(out, e)
	}
	return out
}
