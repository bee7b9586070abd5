// Package db is the sqlite-backed event store. Normalized events are
// persisted as JSON rows with extracted columns for year scans.
package db

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/calens/calens/internal/config"
	"github.com/calens/calens/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the path of the event store under the data dir.
func DefaultPath() (string, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "calens.db"), nil
}

// Open opens the event store at the default path, creating the schema
// if needed.
func Open() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return OpenAt(path)
}

// OpenAt opens the event store at an explicit path. Tests pass
// ":memory:".
func OpenAt(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Pragmas for performance + concurrency.
	// WAL allows concurrent readers while a writer is active.
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEvents upserts normalized events in one transaction and records
// an import run. Returns the run ID.
func (s *Store) SaveEvents(events []model.Event, source string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO events (id, summary, start_time, end_time, year, all_day, duration_minutes, location_raw, payload, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			year = excluded.year,
			all_day = excluded.all_day,
			duration_minutes = excluded.duration_minutes,
			location_raw = excluded.location_raw,
			payload = excluded.payload,
			imported_at = excluded.imported_at`)
	if err != nil {
		return "", fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return "", fmt.Errorf("marshal event %s: %w", event.ID, err)
		}
		allDay := 0
		if event.AllDay {
			allDay = 1
		}
		_, err = stmt.Exec(
			event.ID,
			event.Summary,
			event.Start.Format(time.RFC3339),
			event.End.Format(time.RFC3339),
			event.Start.Year(),
			allDay,
			event.DurationMinutes,
			event.LocationRaw,
			string(payload),
			now,
		)
		if err != nil {
			return "", fmt.Errorf("upsert event %s: %w", event.ID, err)
		}
	}

	runID := uuid.NewString()
	_, err = tx.Exec(
		"INSERT INTO import_runs (id, source, event_count, imported_at) VALUES (?, ?, ?, ?)",
		runID, source, len(events), now,
	)
	if err != nil {
		return "", fmt.Errorf("record import run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// EventsForYear loads all events starting in the given year, ordered
// by start time.
func (s *Store) EventsForYear(year int) ([]model.Event, error) {
	rows, err := s.db.Query("SELECT payload FROM events WHERE year = ? ORDER BY start_time", year)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event model.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Years returns the distinct years present in the store, descending.
func (s *Store) Years() ([]int, error) {
	rows, err := s.db.Query("SELECT DISTINCT year FROM events ORDER BY year DESC")
	if err != nil {
		return nil, fmt.Errorf("query years: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		years = append(years, year)
	}
	return years, rows.Err()
}

// EventCount returns the total number of stored events.
func (s *Store) EventCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// SaveReport persists a generated report keyed by its uuid.
func (s *Store) SaveReport(report *model.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO reports (id, year, generated_at, payload) VALUES (?, ?, ?, ?)",
		report.ID, report.Year, report.GeneratedAt.UTC().Format(time.RFC3339), string(payload),
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// LatestReport returns the most recent report for a year, or nil when
// none exists.
func (s *Store) LatestReport(year int) (*model.Report, error) {
	var payload string
	err := s.db.QueryRow(
		"SELECT payload FROM reports WHERE year = ? ORDER BY generated_at DESC LIMIT 1", year,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	var report model.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
