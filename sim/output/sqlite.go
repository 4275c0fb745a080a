// Package output persists simulation results.
package output

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/ldar-sim/ldar-sim/sim"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		program TEXT NOT NULL,
		replicate INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		days INTEGER NOT NULL,
		emissions INTEGER NOT NULL,
		total_volume_kg REAL NOT NULL,
		total_cost REAL NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS timeseries (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		day INTEGER NOT NULL,
		metric TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (run_id, metric, day)
	)`,
	`CREATE TABLE IF NOT EXISTS surveys (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		site_id TEXT NOT NULL,
		company TEXT NOT NULL,
		crew TEXT NOT NULL,
		start_day INTEGER NOT NULL,
		end_day INTEGER NOT NULL,
		survey_minutes REAL NOT NULL,
		travel_minutes REAL NOT NULL,
		true_rate REAL NOT NULL,
		measured_rate REAL NOT NULL,
		detected INTEGER NOT NULL,
		missed INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS emissions (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		emission_id TEXT NOT NULL,
		site_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		rate REAL NOT NULL,
		start_day INTEGER NOT NULL,
		estimated_start_day INTEGER NOT NULL,
		end_day INTEGER NOT NULL,
		volume_kg REAL NOT NULL,
		tagged_by TEXT NOT NULL,
		day_tagged INTEGER NOT NULL,
		PRIMARY KEY (run_id, emission_id)
	)`,
}

// SQLiteSink writes each result into a SQLite database, one transaction
// per result. It is safe for concurrent use.
type SQLiteSink struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewSQLiteSink opens (or creates) the database at path and its tables.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		path = "ldar-sim.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLiteSink{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file.
func (s *SQLiteSink) Path() string { return s.path }

// Write stores res under a fresh run id.
func (s *SQLiteSink) Write(ctx context.Context, res *sim.Result) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	runID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, program, replicate, seed, start_date, days, emissions, total_volume_kg, total_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.Program, res.Replicate, res.Seed, res.Start.Format(time.DateOnly), res.Days,
		res.Summary.Emissions, res.Summary.TotalVolumeKg, res.Summary.TotalCost, s.now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertEach(ctx, tx,
		`INSERT INTO timeseries (run_id, day, metric, value) VALUES (?, ?, ?, ?)`,
		timeseriesRows(runID, res.Timeseries)); err != nil {
		return fmt.Errorf("insert timeseries: %w", err)
	}

	surveys := make([][]any, 0, len(res.Reports))
	for _, r := range res.Reports {
		surveys = append(surveys, []any{runID, r.SiteID, r.Company, r.Crew, r.StartDay, r.EndDay,
			r.SurveyMinutes, r.TravelMinutes, r.TrueRate, r.MeasuredRate, r.EmissionsDetected, r.MissedEmissions})
	}
	if err := insertEach(ctx, tx,
		`INSERT INTO surveys (run_id, site_id, company, crew, start_day, end_day, survey_minutes, travel_minutes, true_rate, measured_rate, detected, missed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, surveys); err != nil {
		return fmt.Errorf("insert surveys: %w", err)
	}

	emissions := make([][]any, 0, len(res.Emissions))
	for _, e := range res.Emissions {
		emissions = append(emissions, []any{runID, e.ID, e.SiteID, string(e.Kind), string(e.Status), e.Rate,
			e.StartDay, e.EstimatedStartDay, e.EndDay, e.VolumeKg, e.TaggedBy, e.DayTagged})
	}
	if err := insertEach(ctx, tx,
		`INSERT INTO emissions (run_id, emission_id, site_id, kind, status, rate, start_day, estimated_start_day, end_day, volume_kg, tagged_by, day_tagged)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, emissions); err != nil {
		return fmt.Errorf("insert emissions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func timeseriesRows(runID string, ts *sim.Timeseries) [][]any {
	if ts == nil {
		return nil
	}
	var rows [][]any
	for _, m := range ts.Metrics() {
		for day, v := range ts.Get(m) {
			rows = append(rows, []any{runID, day, m, v})
		}
	}
	return rows
}

func insertEach(ctx context.Context, tx *sql.Tx, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID         string
	Program       string
	Replicate     int
	Seed          int64
	Days          int
	Emissions     int
	TotalVolumeKg float64
	TotalCost     float64
}

// Runs lists stored runs, optionally filtered to the given programs,
// ordered by program then replicate.
func (s *SQLiteSink) Runs(ctx context.Context, programs ...string) ([]RunRecord, error) {
	query := `SELECT run_id, program, replicate, seed, days, emissions, total_volume_kg, total_cost FROM runs`
	args := make([]any, len(programs))
	if len(programs) > 0 {
		query += ` WHERE program IN (?` + strings.Repeat(`, ?`, len(programs)-1) + `)`
		for i, p := range programs {
			args[i] = p
		}
	}
	query += ` ORDER BY program, replicate`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Program, &r.Replicate, &r.Seed, &r.Days, &r.Emissions, &r.TotalVolumeKg, &r.TotalCost); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Series reads back one metric of a run, indexed by day.
func (s *SQLiteSink) Series(ctx context.Context, runID, metric string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM timeseries WHERE run_id = ? AND metric = ? ORDER BY day`, runID, metric)
	if err != nil {
		return nil, fmt.Errorf("select series: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
