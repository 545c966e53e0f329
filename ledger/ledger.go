// Package ledger records what the service did and when.
//
// Two tables: stage_runs is the audit trail of pipeline executions,
// page_snapshots keeps markdown captures of the pages being monitored.
// The ledger is write-mostly; the pipeline itself never reads it back,
// only the admin API and the operator do.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andaqua/sisswatch/dbopen"
	"github.com/andaqua/sisswatch/idgen"
)

// Schema creates the ledger tables. Exported so tests can open an
// in-memory database with the same layout.
const Schema = `
CREATE TABLE IF NOT EXISTS stage_runs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_stage_runs_stage ON stage_runs(stage, started_at);

CREATE TABLE IF NOT EXISTS page_snapshots (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	markdown    TEXT NOT NULL,
	captured_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_page_snapshots_url ON page_snapshots(url, captured_at);
`

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("ledger: not found")

// StageRun is one recorded pipeline stage execution.
type StageRun struct {
	ID        string
	Stage     string
	StartedAt time.Time
	Duration  time.Duration
	Status    string
	Detail    string
}

// PageSnapshot is a markdown capture of a monitored page.
type PageSnapshot struct {
	ID         string
	URL        string
	Markdown   string
	CapturedAt time.Time
}

// Store wraps the ledger database.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an already-open database. The schema must be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, newID: idgen.Default}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts a stage execution and returns its ID.
func (s *Store) RecordRun(ctx context.Context, run StageRun) (string, error) {
	id := run.ID
	if id == "" {
		id = s.newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (id, stage, started_at, duration_ms, status, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, run.Stage, run.StartedAt.UTC().Format(time.RFC3339),
		run.Duration.Milliseconds(), run.Status, run.Detail)
	if err != nil {
		return "", fmt.Errorf("ledger: record run: %w", err)
	}
	return id, nil
}

// RecentRuns returns up to limit stage executions, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]StageRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, started_at, duration_ms, status, detail
		 FROM stage_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent runs: %w", err)
	}
	defer rows.Close()

	var out []StageRun
	for rows.Next() {
		var (
			r       StageRun
			started string
			ms      int64
		)
		if err := rows.Scan(&r.ID, &r.Stage, &started, &ms, &r.Status, &r.Detail); err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveSnapshot stores a markdown capture of url and returns the row ID.
func (s *Store) SaveSnapshot(ctx context.Context, url, markdown string, capturedAt time.Time) (string, error) {
	id := s.newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_snapshots (id, url, markdown, captured_at) VALUES (?, ?, ?, ?)`,
		id, url, markdown, capturedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("ledger: save snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the most recent capture of url, or ErrNotFound.
func (s *Store) LatestSnapshot(ctx context.Context, url string) (*PageSnapshot, error) {
	var (
		snap     PageSnapshot
		captured string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, markdown, captured_at FROM page_snapshots
		 WHERE url = ? ORDER BY captured_at DESC, id DESC LIMIT 1`, url).
		Scan(&snap.ID, &snap.URL, &snap.Markdown, &captured)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: latest snapshot: %w", err)
	}
	snap.CapturedAt, _ = time.Parse(time.RFC3339, captured)
	return &snap, nil
}
