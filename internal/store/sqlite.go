package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"alphaloop/internal/domain"
)

// Compile-time interface check.
var _ IterationStore = (*SQLiteStore)(nil)

const iterationsDDL = `
CREATE TABLE IF NOT EXISTS iterations (
	id                 TEXT PRIMARY KEY,
	agent_name         TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	status             TEXT NOT NULL,
	error              TEXT NOT NULL DEFAULT '',
	winner_template_id TEXT NOT NULL DEFAULT '',
	raw_signals        INTEGER NOT NULL DEFAULT 0,
	filtered_signals   INTEGER NOT NULL DEFAULT 0,
	metrics_json       TEXT NOT NULL DEFAULT '{}',
	trades_json        TEXT NOT NULL DEFAULT '[]',
	equity_json        TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_iterations_created_at ON iterations(created_at);
`

// SQLiteStore implements IterationStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(iterationsDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating iterations schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveIteration inserts a new iteration record. A missing id or creation
// time is filled in before the insert.
func (s *SQLiteStore) SaveIteration(ctx context.Context, it *Iteration) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}

	metricsJSON, err := json.Marshal(it.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	tradesJSON, err := json.Marshal(it.Trades)
	if err != nil {
		return fmt.Errorf("marshaling trades: %w", err)
	}
	equityJSON, err := json.Marshal(it.EquityCurve)
	if err != nil {
		return fmt.Errorf("marshaling equity curve: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO iterations (
			id, agent_name, created_at, status, error, winner_template_id,
			raw_signals, filtered_signals, metrics_json, trades_json, equity_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.AgentName, it.CreatedAt.Format(time.RFC3339Nano), it.Status,
		it.Error, it.WinnerID, it.RawSignals, it.FilteredSignals,
		string(metricsJSON), string(tradesJSON), string(equityJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting iteration %s: %w", it.ID, err)
	}
	return nil
}

// GetIteration retrieves one iteration record by id.
func (s *SQLiteStore) GetIteration(ctx context.Context, id string) (*Iteration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_name, created_at, status, error, winner_template_id,
		       raw_signals, filtered_signals, metrics_json, trades_json, equity_json
		FROM iterations WHERE id = ?`, id)

	it, err := scanIteration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading iteration %s: %w", id, err)
	}
	return it, nil
}

// ListIterations returns the most recent iteration records, newest first.
func (s *SQLiteStore) ListIterations(ctx context.Context, limit int) ([]Iteration, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_name, created_at, status, error, winner_template_id,
		       raw_signals, filtered_signals, metrics_json, trades_json, equity_json
		FROM iterations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var iterations []Iteration
	for rows.Next() {
		it, err := scanIteration(rows)
		if err != nil {
			return nil, err
		}
		iterations = append(iterations, *it)
	}
	return iterations, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanIteration(sc scanner) (*Iteration, error) {
	var it Iteration
	var createdAt, metricsJSON, tradesJSON, equityJSON string

	err := sc.Scan(&it.ID, &it.AgentName, &createdAt, &it.Status, &it.Error,
		&it.WinnerID, &it.RawSignals, &it.FilteredSignals,
		&metricsJSON, &tradesJSON, &equityJSON)
	if err != nil {
		return nil, err
	}

	if it.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &it.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshaling metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(tradesJSON), &it.Trades); err != nil {
		return nil, fmt.Errorf("unmarshaling trades: %w", err)
	}
	if err := json.Unmarshal([]byte(equityJSON), &it.EquityCurve); err != nil {
		return nil, fmt.Errorf("unmarshaling equity curve: %w", err)
	}
	if it.Trades == nil {
		it.Trades = []domain.Trade{}
	}
	if it.EquityCurve == nil {
		it.EquityCurve = []domain.EquityPoint{}
	}
	return &it, nil
}
