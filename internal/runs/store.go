// Package runs keeps a local history of pipeline runs so past analyze
// and apply invocations stay auditable.
package runs

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID         string
	Phase      string // analyze, convert, apply, validate
	Document   string // run id of the mapping document involved
	Dataset    string
	SourceDir  string
	OutputDir  string
	Series     int
	Assigned   int
	Excluded   int
	Unmatched  int
	Errors     int
	Warnings   int
	DurationMS int64
	Outcome    string // ok or the error text
	CreatedAt  time.Time
}

// Store persists run history in a sqlite database under dataDir.
type Store struct {
	db   *sql.DB
	path string
}

func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "runs.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		document TEXT,
		dataset TEXT NOT NULL,
		source_dir TEXT NOT NULL,
		output_dir TEXT,
		series INTEGER NOT NULL DEFAULT 0,
		assigned INTEGER NOT NULL DEFAULT 0,
		excluded INTEGER NOT NULL DEFAULT 0,
		unmatched INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		warnings INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, phase, document, dataset, source_dir, output_dir,
						  series, assigned, excluded, unmatched, errors, warnings,
						  duration_ms, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Phase, run.Document, run.Dataset, run.SourceDir, run.OutputDir,
		run.Series, run.Assigned, run.Excluded, run.Unmatched, run.Errors,
		run.Warnings, run.DurationMS, run.Outcome, run.CreatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var r Run
	var outputDir sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phase, document, dataset, source_dir, output_dir, series, assigned,
			   excluded, unmatched, errors, warnings, duration_ms, outcome, created_at
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Phase, &r.Document, &r.Dataset, &r.SourceDir, &outputDir, &r.Series,
		&r.Assigned, &r.Excluded, &r.Unmatched, &r.Errors, &r.Warnings,
		&r.DurationMS, &r.Outcome, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if outputDir.Valid {
		r.OutputDir = outputDir.String
	}
	return &r, nil
}

// List returns the most recent runs, optionally filtered by dataset.
func (s *Store) List(ctx context.Context, dataset string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, phase, document, dataset, source_dir, output_dir, series, assigned,
			   excluded, unmatched, errors, warnings, duration_ms, outcome, created_at
		FROM runs`
	args := []interface{}{}
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var outputDir sql.NullString
		if err := rows.Scan(&r.ID, &r.Phase, &r.Document, &r.Dataset, &r.SourceDir, &outputDir,
			&r.Series, &r.Assigned, &r.Excluded, &r.Unmatched, &r.Errors,
			&r.Warnings, &r.DurationMS, &r.Outcome, &r.CreatedAt); err != nil {
			return nil, err
		}
		if outputDir.Valid {
			r.OutputDir = outputDir.String
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Prune deletes history older than the cutoff and reports how many
// rows went away.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
