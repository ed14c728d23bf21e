// Package history records dispatched commands in a local SQLite database
// under the root's gen/ directory. History is derived data: the registry
// and link stores never depend on it, and recording failures must never
// fail the dispatch they describe.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/grovekit/grove/internal/log"
)

// DBFile is the history database path relative to the root's gen/
// directory.
const DBFile = "history.db"

// schemaVersion tracks migrations via PRAGMA user_version.
const schemaVersion = 1

// Run is one recorded dispatch.
type Run struct {
	ID        string
	Target    string
	Command   string
	Args      string
	ExitCode  int
	Duration  time.Duration
	StartedAt time.Time
}

// Repository stores and queries runs.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at genDir.
func Open(genDir string) (*Repository, error) {
	if err := os.MkdirAll(genDir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", genDir, err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(genDir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			target     TEXT NOT NULL,
			command    TEXT NOT NULL,
			args       TEXT NOT NULL DEFAULT '',
			exit_code  INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}
	log.Debug(log.CatHistory, "migrated history schema", "version", schemaVersion)
	return nil
}

// Record inserts one run. A zero ID is assigned.
func (r *Repository) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, target, command, args, exit_code, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Target, run.Command, run.Args, run.ExitCode,
		run.Duration.Milliseconds(), run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, target, command, args, exit_code, duration_ms, started_at
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var run Run
		var durationMS int64
		if err := rows.Scan(&run.ID, &run.Target, &run.Command, &run.Args,
			&run.ExitCode, &durationMS, &run.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}
