// Package store handles SQLite persistence of generation runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/charlm/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			corpus_path TEXT NOT NULL,
			window_length INTEGER NOT NULL,
			length_mode TEXT NOT NULL,
			seeded INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			initial_text TEXT NOT NULL,
			text_length INTEGER NOT NULL,
			output TEXT NOT NULL,
			windows INTEGER NOT NULL,
			corpus_chars INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_corpus_path ON runs(corpus_path);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a completed generation and returns its id.
func (s *Store) InsertRun(ctx context.Context, run model.RunRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, ended_at, corpus_path, window_length, length_mode, seeded, seed, initial_text, text_length, output, windows, corpus_chars, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC().Format(timeLayout),
		run.EndedAt.UTC().Format(timeLayout),
		run.CorpusPath,
		run.WindowLength,
		run.LengthMode,
		boolToInt(run.Seeded),
		run.Seed,
		run.InitialText,
		run.TextLength,
		run.Output,
		run.Windows,
		run.CorpusChars,
		run.DurationMs,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRuns returns runs matching cfg in ascending end time. When cfg.Last is
// positive only the most recent cfg.Last runs are returned.
func (s *Store) ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.CorpusPath != "" {
		clauses = append(clauses, "corpus_path = ?")
		args = append(args, cfg.CorpusPath)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.UTC().Format(timeLayout))
	}
	query := fmt.Sprintf(`SELECT id, started_at, ended_at, corpus_path, window_length, length_mode, seeded, seed,
		initial_text, text_length, output, windows, corpus_chars, duration_ms
		FROM runs
		WHERE %s
		ORDER BY ended_at ASC, id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunRecord
	for rows.Next() {
		var run model.RunRecord
		var startedAt, endedAt string
		var seeded int
		if err := rows.Scan(&run.ID, &startedAt, &endedAt, &run.CorpusPath, &run.WindowLength, &run.LengthMode,
			&seeded, &run.Seed, &run.InitialText, &run.TextLength, &run.Output, &run.Windows,
			&run.CorpusChars, &run.DurationMs); err != nil {
			return nil, err
		}
		run.Seeded = seeded != 0
		if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, err
		}
		if run.EndedAt, err = time.Parse(timeLayout, endedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(runs) > cfg.Last {
		runs = runs[len(runs)-cfg.Last:]
	}
	return runs, nil
}

// CountRuns returns the number of stored runs for corpusPath, or all runs
// when corpusPath is empty.
func (s *Store) CountRuns(ctx context.Context, corpusPath string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE (? = '' OR corpus_path = ?)`, corpusPath, corpusPath).Scan(&n)
	return n, err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
